package federation

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/vocab"
)

// SenderKey is one signing key of the sending actor.
type SenderKey struct {
	// ID is the published key id URL, e.g. the actor URL + "#main-key".
	ID *url.URL
	// Private is the matching private key.
	Private crypto.PrivateKey
}

// Sender identifies the delivering actor and its keys.
type Sender struct {
	ActorID *url.URL
	Keys    []SenderKey
}

// SendOptions tunes SendActivity.
type SendOptions struct {
	// PreferSharedInbox groups recipients under their shared inbox.
	PreferSharedInbox bool
	// ExcludeBaseURIs drops inboxes on the given origins, typically the
	// local origin to prevent self-delivery loops.
	ExcludeBaseURIs []*url.URL
}

// InboxTarget is the per-inbox result of ExtractInboxes.
type InboxTarget struct {
	// Shared marks a shared-inbox delivery.
	Shared bool
	// Recipients are the actor ids served by this inbox.
	Recipients []string
}

// SendActivity resolves recipients, fans the activity out to their
// inboxes, and enqueues one delivery job per inbox. bto and bcc are
// stripped from the delivered payload. An activity without an id gets a
// urn:uuid one.
func (f *Federation) SendActivity(ctx context.Context, sender *Sender, recipients []vocab.Value, activity vocab.ActivityEntity, opts *SendOptions) error {
	if f.opts.Queue == nil {
		return fmt.Errorf("federation: no queue configured")
	}
	if sender == nil || len(sender.Keys) == 0 {
		return fmt.Errorf("federation: sender has no keys")
	}
	if opts == nil {
		opts = &SendOptions{}
	}

	changes := vocab.Props{"btos": nil, "bccs": nil}
	if activity.ID() == nil {
		changes["id"] = "urn:uuid:" + uuid.NewString()
	}
	if activity.ActorID() == nil && sender.ActorID != nil {
		changes["actor"] = sender.ActorID
	}
	stripped, err := activity.Clone(changes)
	if err != nil {
		return fmt.Errorf("federation: prepare activity: %w", err)
	}
	payload := stripped.(vocab.ActivityEntity)

	doc, err := payload.ToJSONLD(ctx)
	if err != nil {
		return fmt.Errorf("federation: encode activity: %w", err)
	}
	activityJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("federation: encode activity: %w", err)
	}

	keys, err := exportSenderKeys(sender)
	if err != nil {
		return err
	}

	actors := f.resolveRecipients(ctx, recipients)
	inboxes := ExtractInboxes(actors, opts.PreferSharedInbox, opts.ExcludeBaseURIs)
	if len(inboxes) == 0 {
		slog.Debug("send: no deliverable inboxes", "activity", payload.ID())
		return nil
	}

	for inbox, target := range inboxes {
		job := DeliveryJob{
			ID:           uuid.NewString(),
			Inbox:        inbox,
			SharedInbox:  target.Shared,
			Activity:     activityJSON,
			SenderKeys:   keys,
			RecipientIDs: target.Recipients,
			ActivityID:   payload.ID().String(),
			ActivityType: payload.Spec().Name,
		}
		body, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("federation: encode job: %w", err)
		}
		if err := f.opts.Queue.Enqueue(ctx, body, 0); err != nil {
			return fmt.Errorf("federation: enqueue delivery to %s: %w", inbox, err)
		}
		slog.Debug("send: delivery enqueued",
			"inbox", inbox, "shared", target.Shared,
			"recipients", len(target.Recipients), "activity", job.ActivityID)
	}
	return nil
}

func exportSenderKeys(sender *Sender) ([]deliveryKey, error) {
	keys := make([]deliveryKey, 0, len(sender.Keys))
	for _, k := range sender.Keys {
		if k.ID == nil {
			return nil, fmt.Errorf("federation: sender key without id")
		}
		jwk, err := keyutil.ExportPrivateJWK(k.Private)
		if err != nil {
			return nil, fmt.Errorf("federation: export sender key %s: %w", k.ID, err)
		}
		keys = append(keys, deliveryKey{KeyID: k.ID.String(), Key: jwk})
	}
	return keys, nil
}

// resolveRecipients materializes recipient values into actors, fetching
// referenced ones through the document loader. Unresolvable recipients
// and recipients without an inbox are dropped with a log line.
func (f *Federation) resolveRecipients(ctx context.Context, recipients []vocab.Value) []vocab.Actor {
	seen := make(map[string]bool)
	var out []vocab.Actor
	add := func(a vocab.Actor) {
		if a.InboxID() == nil {
			slog.Debug("send: recipient has no inbox", "actor", a.ID())
			return
		}
		if id := a.ID(); id != nil {
			if seen[id.String()] {
				return
			}
			seen[id.String()] = true
		}
		out = append(out, a)
	}

	for _, v := range recipients {
		if a, ok := v.Obj.(vocab.Actor); ok {
			add(a)
			continue
		}
		if v.Ref == nil || v.Ref.String() == vocab.Public {
			continue
		}
		e, err := vocab.FromJSONLD(ctx, mustFetch(f, v.Ref), vocab.WithDocumentLoader(f.loader))
		if err != nil {
			slog.Warn("send: recipient fetch failed", "recipient", v.Ref, "error", err)
			continue
		}
		a, ok := e.(vocab.Actor)
		if !ok {
			slog.Warn("send: recipient is not an actor", "recipient", v.Ref)
			continue
		}
		add(a)
	}
	return out
}

func mustFetch(f *Federation, u *url.URL) any {
	remote, err := f.loader.LoadDocument(u.String())
	if err != nil || remote == nil {
		return nil
	}
	return remote.Document
}

// ExtractInboxes maps inbox URL to delivery target. With preferShared,
// recipients publishing endpoints.sharedInbox collapse into one shared
// entry; every recipient id survives in some target's Recipients.
func ExtractInboxes(actors []vocab.Actor, preferShared bool, exclude []*url.URL) map[string]*InboxTarget {
	out := make(map[string]*InboxTarget)
	for _, a := range actors {
		inbox := a.InboxID()
		shared := false
		if preferShared {
			if si := a.SharedInboxID(); si != nil {
				inbox, shared = si, true
			}
		}
		if inbox == nil || excluded(inbox, exclude) {
			continue
		}
		key := inbox.String()
		target := out[key]
		if target == nil {
			target = &InboxTarget{Shared: shared}
			out[key] = target
		}
		if id := a.ID(); id != nil {
			target.Recipients = append(target.Recipients, id.String())
		}
	}
	return out
}

func excluded(inbox *url.URL, exclude []*url.URL) bool {
	for _, base := range exclude {
		if base != nil && inbox.Scheme == base.Scheme && inbox.Host == base.Host {
			return true
		}
	}
	return false
}

// CollectRecipients gathers the addressing values of an activity (to, cc,
// bto, bcc, audience), skipping the Public pseudo-recipient and
// duplicates. expand, when non-nil, replaces a collection reference
// (e.g. a followers URL) with its member values.
func CollectRecipients(activity vocab.ActivityEntity, expand func(ref *url.URL) ([]vocab.Value, bool)) []vocab.Value {
	seen := make(map[string]bool)
	var out []vocab.Value
	for _, name := range []string{"tos", "ccs", "btos", "bccs", "audiences"} {
		for _, v := range activity.Get(name) {
			if v.Ref != nil {
				if v.Ref.String() == vocab.Public {
					continue
				}
				if expand != nil {
					if members, ok := expand(v.Ref); ok {
						for _, m := range members {
							out = appendRecipient(out, seen, m)
						}
						continue
					}
				}
			}
			out = appendRecipient(out, seen, v)
		}
	}
	return out
}

func appendRecipient(out []vocab.Value, seen map[string]bool, v vocab.Value) []vocab.Value {
	key := ""
	switch {
	case v.Ref != nil:
		key = v.Ref.String()
	case v.Obj != nil && v.Obj.ID() != nil:
		key = v.Obj.ID().String()
	}
	if key != "" {
		if seen[key] {
			return out
		}
		seen[key] = true
	}
	return append(out, v)
}
