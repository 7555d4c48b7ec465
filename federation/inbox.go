package federation

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/docloader"
	"github.com/fedkit/fedkit/httpsig"
	"github.com/fedkit/fedkit/proof"
	"github.com/fedkit/fedkit/vocab"
)

const dedupKeyPrefix = "inbox-dedup/"

type dedupEntry struct {
	ReceivedAt time.Time `json:"receivedAt"`
}

// handleInbox runs the inbound pipeline: parse, authenticate, dedup,
// dispatch. identifier is empty for the shared inbox.
func (f *Federation) handleInbox(w http.ResponseWriter, r *http.Request, identifier string, opts *FetchOptions) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, f.opts.MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		http.Error(w, "malformed JSON", http.StatusBadRequest)
		return
	}

	fctx := f.CreateContext(r, opts.ContextData)
	fctx.InboxIdentifier = identifier

	entity, err := vocab.FromJSONLDAs(ctx, doc, vocab.ActivitySpec(),
		vocab.WithDocumentLoader(f.loader))
	if err != nil {
		slog.Debug("inbox: activity parse failed", "error", err)
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}
	activity, ok := entity.(vocab.ActivityEntity)
	if !ok {
		http.Error(w, "not an activity", http.StatusBadRequest)
		return
	}

	if !f.authenticate(r, body, doc, activity, fctx) {
		// A Delete for an actor that is already gone cannot be verified
		// against its keys anymore; swallow it.
		if f.actorGone(ctx, activity) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		slog.Debug("inbox: authentication failed",
			"activity", activity.ID(), "actor", activity.ActorID())
		opts.unauthorized(w, r)
		return
	}

	if f.isDuplicate(fctx, activity) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	listener := f.listenerFor(activity)
	if listener == nil {
		slog.Debug("inbox: no listener", "type", activity.Spec().Name)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := listener(fctx, activity); err != nil {
		if f.inbox.onError != nil {
			f.inbox.onError(fctx, err)
		} else {
			slog.Error("inbox: listener failed",
				"type", activity.Spec().Name, "activity", activity.ID(), "error", err)
		}
		if errors.Is(err, ErrRetry) {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

// authenticate tries, in order: integrity proof, LD signature, HTTP
// signature. The HTTP-signature path additionally requires the key to
// belong to the activity's actor.
func (f *Federation) authenticate(r *http.Request, body []byte, doc map[string]any, activity vocab.ActivityEntity, fctx *Context) bool {
	ctx := r.Context()
	loader := f.verificationLoader(fctx)

	if _, has := doc["proof"]; has {
		if e, err := proof.VerifyObject(ctx, doc, loader); err == nil && e != nil {
			return true
		}
	}

	if _, has := doc["signature"]; has {
		if key, err := proof.VerifyLDSignature(ctx, doc, loader); err == nil && key != nil {
			if owns, err := httpsig.DoesActorOwnKey(ctx, activity, key, loader); err == nil && owns {
				return true
			}
		}
	}

	key, err := httpsig.VerifyRequest(ctx, r, body, loader, &httpsig.VerifyOptions{
		TimeWindow: f.opts.SignatureTimeWindow,
	})
	if err != nil || key == nil {
		return false
	}
	owns, err := httpsig.DoesActorOwnKey(ctx, activity, key, loader)
	return err == nil && owns
}

// verificationLoader returns the loader key fetches go through. With a
// shared-key dispatcher and our own base loader, fetches are signed so
// authorized-fetch servers answer them.
func (f *Federation) verificationLoader(fctx *Context) ld.DocumentLoader {
	if f.inbox == nil || f.inbox.sharedKey == nil || f.baseLoader == nil {
		return f.loader
	}
	identifier := f.inbox.sharedKey(fctx)
	if identifier == "" {
		return f.loader
	}
	sender, err := fctx.ActorKeyPairs(identifier)
	if err != nil {
		slog.Warn("inbox: shared key dispatch failed", "identifier", identifier, "error", err)
		return f.loader
	}
	for _, k := range sender.Keys {
		if _, ok := k.Private.(*rsa.PrivateKey); ok {
			return docloader.NewAuthorized(f.baseLoader, k.ID, k.Private)
		}
	}
	return f.loader
}

// actorGone reports whether the activity is a Delete whose actor no
// longer exists (HTTP 410 on fetch).
func (f *Federation) actorGone(ctx context.Context, activity vocab.ActivityEntity) bool {
	if _, ok := activity.(*vocab.Delete); !ok {
		return false
	}
	_, err := activity.GetActor(ctx)
	return errors.Is(err, docloader.ErrGone) || errors.Is(err, docloader.ErrNotFound)
}

// isDuplicate records the activity id in the KV dedup window, reporting
// whether it was already present. Activities without an id never dedup.
func (f *Federation) isDuplicate(fctx *Context, activity vocab.ActivityEntity) bool {
	id := activity.ID()
	if id == nil {
		return false
	}
	ctx := fctx.Context()
	key := dedupKeyPrefix + id.String()
	if _, found, err := f.opts.Store.Get(ctx, key); err == nil && found {
		slog.Debug("inbox: duplicate delivery suppressed", "activity", id)
		return true
	}
	entry, err := json.Marshal(dedupEntry{ReceivedAt: time.Now().UTC()})
	if err == nil {
		if err := f.opts.Store.Set(ctx, key, entry, f.opts.DedupWindow); err != nil {
			slog.Warn("inbox: dedup store failed", "activity", id, "error", err)
		}
	}
	return false
}

// listenerFor selects the listener for the activity's exact type, walking
// up the supertype chain when none is registered for it.
func (f *Federation) listenerFor(activity vocab.ActivityEntity) Listener {
	if f.inbox == nil {
		return nil
	}
	for spec := activity.Spec(); spec != nil; spec = spec.Super() {
		if l, ok := f.inbox.listeners[spec.Name]; ok {
			return l
		}
	}
	return nil
}
