package httpsig

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedkit/fedkit/keyutil"
)

type stubLoader struct {
	docs map[string]any
}

func (s *stubLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	doc, ok := s.docs[u]
	if !ok {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, u)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

func keyDoc(t *testing.T, keyID, owner string, pub any) map[string]any {
	t.Helper()
	pem, err := keyutil.ExportSPKI(pub)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{
		"@context":     []any{"https://www.w3.org/ns/activitystreams", "https://w3id.org/security/v1"},
		"id":           keyID,
		"type":         "CryptographicKey",
		"owner":        owner,
		"publicKeyPem": pem,
	})
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)

	const keyID = "https://example.com/users/alice#main-key"
	const owner = "https://example.com/users/alice"
	loader := &stubLoader{docs: map[string]any{
		keyID: keyDoc(t, keyID, owner, pair.Public),
	}}

	body := []byte(`{"type":"Create"}`)
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")

	kid, err := url.Parse(keyID)
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, pair.Private, kid, body))

	assert.NotEmpty(t, req.Header.Get("Signature"))
	assert.NotEmpty(t, req.Header.Get("Digest"))
	assert.NotEmpty(t, req.Header.Get("Date"))

	key, err := VerifyRequest(context.Background(), req, body, loader, nil)
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, keyID, key.ID.String())
	assert.Equal(t, owner, key.Owner.String())
	assert.IsType(t, &rsa.PublicKey{}, key.Public)
}

func TestSignRequestSetsHostHeader(t *testing.T) {
	// The signed header set names host, and go-fed/httpsig reads it from
	// the header map, which Go leaves empty on outbound requests.
	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)

	body := []byte(`{}`)
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")

	kid, _ := url.Parse("https://example.com/users/alice#main-key")
	require.NoError(t, SignRequest(req, pair.Private, kid, body))

	assert.Equal(t, "remote.example", req.Header.Get("Host"))
	assert.Contains(t, req.Header.Get("Signature"), "(request-target) host date")
}

func TestVerifyRejectsStaleDate(t *testing.T) {
	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)

	const keyID = "https://example.com/users/alice#main-key"
	loader := &stubLoader{docs: map[string]any{
		keyID: keyDoc(t, keyID, "https://example.com/users/alice", pair.Public),
	}}

	body := []byte(`{}`)
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().Add(-10*time.Minute).UTC().Format(http.TimeFormat))

	kid, _ := url.Parse(keyID)
	require.NoError(t, SignRequest(req, pair.Private, kid, body))

	key, err := VerifyRequest(context.Background(), req, body, loader, nil)
	require.NoError(t, err)
	assert.Nil(t, key, "stale Date must fail verification")

	// A widened window lets the same request through.
	key, err = VerifyRequest(context.Background(), req, body, loader, &VerifyOptions{TimeWindow: time.Hour})
	require.NoError(t, err)
	assert.NotNil(t, key)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)

	const keyID = "https://example.com/users/alice#main-key"
	loader := &stubLoader{docs: map[string]any{
		keyID: keyDoc(t, keyID, "https://example.com/users/alice", pair.Public),
	}}

	body := []byte(`{"type":"Create"}`)
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")

	kid, _ := url.Parse(keyID)
	require.NoError(t, SignRequest(req, pair.Private, kid, body))

	key, err := VerifyRequest(context.Background(), req, []byte(`{"type":"Delete"}`), loader, nil)
	require.NoError(t, err)
	assert.Nil(t, key, "tampered body must fail the digest check")
}

func TestVerifyUnknownKey(t *testing.T) {
	body := []byte(`{}`)
	req, err := http.NewRequest(http.MethodPost, "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")

	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)
	kid, _ := url.Parse("https://example.com/users/ghost#main-key")
	require.NoError(t, SignRequest(req, pair.Private, kid, body))

	key, err := VerifyRequest(context.Background(), req, body, &stubLoader{}, nil)
	require.NoError(t, err)
	assert.Nil(t, key)
}
