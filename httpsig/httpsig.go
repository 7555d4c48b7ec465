// Package httpsig signs and verifies HTTP requests with draft-cavage HTTP
// Signatures, the scheme fediverse servers authenticate inbox deliveries
// and authorized fetches with.
package httpsig

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/vocab"
)

// defaultTimeWindow bounds how far a request's Date header may drift from
// the current time.
const defaultTimeWindow = 30 * time.Second

// SignRequest signs req with rsa-sha256 (or hs2019/Ed25519 when handed an
// Ed25519 key). The signed header set is (request-target) host date, plus
// digest when a body is present and content-type for POSTs. Date and Host
// are filled in when missing.
func SignRequest(req *http.Request, key crypto.PrivateKey, keyID *url.URL, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	// go-fed/httpsig reads signed headers from the header map, where Go
	// never stores Host; mirror it in explicitly.
	if req.Header.Get("Host") == "" {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		req.Header.Set("Host", host)
	}

	headers := []string{httpsig.RequestTarget, "host", "date"}
	if body != nil {
		headers = append(headers, "digest")
	}
	if req.Method == http.MethodPost && req.Header.Get("Content-Type") != "" {
		headers = append(headers, "content-type")
	}

	var algo httpsig.Algorithm
	switch key.(type) {
	case *rsa.PrivateKey:
		algo = httpsig.RSA_SHA256
	case ed25519.PrivateKey:
		algo = httpsig.ED25519
	default:
		return fmt.Errorf("httpsig: unsupported private key type %T", key)
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{algo}, httpsig.DigestSha256, headers, httpsig.Signature, 0)
	if err != nil {
		return fmt.Errorf("httpsig: create signer: %w", err)
	}
	if err := signer.SignRequest(key, keyID.String(), req, body); err != nil {
		return fmt.Errorf("httpsig: sign request: %w", err)
	}
	return nil
}

// Key is a verified signing key: its id, its owner, and the parsed public
// key material.
type Key struct {
	ID     *url.URL
	Owner  *url.URL
	Public crypto.PublicKey
}

// VerifyOptions tunes VerifyRequest.
type VerifyOptions struct {
	// TimeWindow overrides the ±30s Date drift bound.
	TimeWindow time.Duration
	// Now stubs the clock in tests.
	Now func() time.Time
}

// VerifyRequest checks the Signature header of an inbound request: the key
// named by keyId is fetched through loader, the signature verified against
// it, the Date header checked for drift, and any Digest header recomputed
// over body. Recoverable verification failures return (nil, nil); only
// infrastructure errors surface.
func VerifyRequest(ctx context.Context, req *http.Request, body []byte, loader ld.DocumentLoader, opts *VerifyOptions) (*Key, error) {
	if opts == nil {
		opts = &VerifyOptions{}
	}
	window := opts.TimeWindow
	if window == 0 {
		window = defaultTimeWindow
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	dateHdr := req.Header.Get("Date")
	if dateHdr == "" {
		slog.Debug("httpsig: request has no Date header")
		return nil, nil
	}
	date, err := http.ParseTime(dateHdr)
	if err != nil {
		slog.Debug("httpsig: unparseable Date header", "date", dateHdr)
		return nil, nil
	}
	if drift := now().Sub(date); drift > window || drift < -window {
		slog.Debug("httpsig: Date outside window", "date", dateHdr, "drift", now().Sub(date))
		return nil, nil
	}

	if digest := req.Header.Get("Digest"); digest != "" {
		if !digestMatches(digest, body) {
			slog.Debug("httpsig: Digest mismatch")
			return nil, nil
		}
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		slog.Debug("httpsig: unparseable Signature header", "error", err)
		return nil, nil
	}

	key, err := FetchKey(ctx, verifier.KeyId(), loader)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}

	// The algorithm label in the header is untrusted; the key type decides.
	// This also accepts hs2019-labelled RSA signatures.
	var algo httpsig.Algorithm
	switch key.Public.(type) {
	case *rsa.PublicKey:
		algo = httpsig.RSA_SHA256
	case ed25519.PublicKey:
		algo = httpsig.ED25519
	default:
		return nil, nil
	}
	if err := verifier.Verify(key.Public, algo); err != nil {
		slog.Debug("httpsig: signature verification failed", "keyId", key.ID, "error", err)
		return nil, nil
	}
	return key, nil
}

func digestMatches(header string, body []byte) bool {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "sha-256") {
			continue
		}
		sum := sha256.Sum256(body)
		want := base64.StdEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(want), []byte(value)) == 1
	}
	return false
}

// FetchKey resolves a keyId to a parsed public key through the document
// loader. The fetched document may be the key node itself or the owning
// actor carrying the key among its publicKey/assertionMethod entries.
func FetchKey(ctx context.Context, keyID string, loader ld.DocumentLoader) (*Key, error) {
	id, err := url.Parse(keyID)
	if err != nil {
		slog.Debug("httpsig: bad keyId", "keyId", keyID)
		return nil, nil
	}

	remote, err := loader.LoadDocument(keyID)
	if err != nil {
		slog.Debug("httpsig: key fetch failed", "keyId", keyID, "error", err)
		return nil, nil
	}
	e, err := vocab.FromJSONLD(ctx, remote.Document, vocab.WithDocumentLoader(loader))
	if err != nil {
		slog.Debug("httpsig: key document undecodable", "keyId", keyID, "error", err)
		return nil, nil
	}

	if k := keyFromEntity(e, id); k != nil {
		return k, nil
	}
	// Actor document: search its published keys for the matching id.
	if actor, ok := e.(vocab.Actor); ok {
		for _, ck := range actor.PublicKeys() {
			if ck.ID() != nil && ck.ID().String() == id.String() {
				return keyFromEntity(ck, id), nil
			}
		}
		if ab, ok := e.(interface{ AssertionMethods() []*vocab.Multikey }); ok {
			for _, mk := range ab.AssertionMethods() {
				if mk.ID() != nil && mk.ID().String() == id.String() {
					return keyFromEntity(mk, id), nil
				}
			}
		}
	}
	slog.Debug("httpsig: no usable key in document", "keyId", keyID)
	return nil, nil
}

func keyFromEntity(e vocab.Entity, id *url.URL) *Key {
	switch k := e.(type) {
	case *vocab.CryptographicKey:
		pub, err := keyutil.ImportSPKI(k.PublicKeyPEM())
		if err != nil {
			slog.Debug("httpsig: bad publicKeyPem", "keyId", id, "error", err)
			return nil
		}
		kid := k.ID()
		if kid == nil {
			kid = id
		}
		return &Key{ID: kid, Owner: k.OwnerID(), Public: pub}
	case *vocab.Multikey:
		pub, err := keyutil.ImportMultibase(k.PublicKeyMultibase())
		if err != nil {
			slog.Debug("httpsig: bad publicKeyMultibase", "keyId", id, "error", err)
			return nil
		}
		kid := k.ID()
		if kid == nil {
			kid = id
		}
		return &Key{ID: kid, Owner: k.ControllerID(), Public: pub}
	default:
		return nil
	}
}

// DoesActorOwnKey fetches the activity's actor and reports whether it
// publishes the key's id among its publicKey or assertionMethod entries.
func DoesActorOwnKey(ctx context.Context, activity vocab.ActivityEntity, key *Key, loader ld.DocumentLoader) (bool, error) {
	if key.Owner != nil {
		if actorID := activity.ActorID(); actorID != nil && actorID.String() == key.Owner.String() {
			return true, nil
		}
	}
	actorID := activity.ActorID()
	if actorID == nil {
		return false, nil
	}
	remote, err := loader.LoadDocument(actorID.String())
	if err != nil {
		return false, fmt.Errorf("httpsig: fetch actor %s: %w", actorID, err)
	}
	e, err := vocab.FromJSONLD(ctx, remote.Document, vocab.WithDocumentLoader(loader))
	if err != nil {
		return false, fmt.Errorf("httpsig: decode actor %s: %w", actorID, err)
	}
	actor, ok := e.(vocab.Actor)
	if !ok {
		return false, nil
	}
	for _, kid := range actor.KeyIDs() {
		if kid.String() == key.ID.String() {
			return true, nil
		}
	}
	return false, nil
}
