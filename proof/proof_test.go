package proof

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/vocab"
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

func multikeyDoc(t *testing.T, id, controller string, pub ed25519.PublicKey) map[string]any {
	t.Helper()
	enc, err := keyutil.ExportMultibase(pub)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{
		"@context": []any{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/multikey/v1",
		},
		"id":                 id,
		"type":               "Multikey",
		"controller":         controller,
		"publicKeyMultibase": enc,
	})
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestCreateProofVector(t *testing.T) {
	priv, err := keyutil.ImportPrivateJWK(&keyutil.JWK{
		Kty: "OKP",
		Crv: "Ed25519",
		D:   "yW756hDF5BTEcXI6_53nLDX6W3D66X6IMuysfS4rjtY",
		X:   "sA2Nk45_dz1RVlqtNqYj9TRPf10ZYPnPPo4SYg6igQ8",
	})
	require.NoError(t, err)

	doc := map[string]any{
		"@context": []any{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/data-integrity/v1",
		},
		"type":  "Create",
		"actor": "https://server.example/users/alice",
		"object": map[string]any{
			"type":    "Note",
			"content": "Hello world",
		},
	}
	vm, err := url.Parse("https://server.example/users/alice#ed25519-key")
	require.NoError(t, err)
	created, err := time.Parse(time.RFC3339, "2023-02-24T23:36:38Z")
	require.NoError(t, err)

	node, err := CreateProof(doc, priv.(ed25519.PrivateKey), vm, created)
	require.NoError(t, err)

	assert.Equal(t, "DataIntegrityProof", node["type"])
	assert.Equal(t, Cryptosuite, node["cryptosuite"])
	assert.Equal(t, vm.String(), node["verificationMethod"])
	assert.Equal(t, ProofPurpose, node["proofPurpose"])
	assert.Equal(t, "2023-02-24T23:36:38Z", node["created"])
	assert.Equal(t,
		"z3sXaxjKs4M3BRicwWA9peyNPJvJqxtGsDmpt1jjoHCjgeUf71TRFz56osPSfDErszyLp5Ks1EhYSgpDaNM977Rg2",
		node["proofValue"])
}

func TestSignAndVerifyObject(t *testing.T) {
	pair, err := keyutil.GenerateKeyPair(keyutil.Ed25519)
	require.NoError(t, err)

	const vm = "https://example.com/users/alice#ed25519-key"
	const actor = "https://example.com/users/alice"
	loader := &stubLoader{docs: map[string]any{
		vm: multikeyDoc(t, vm, actor, pair.Public.(ed25519.PublicKey)),
	}}

	doc := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Create",
		"actor":    actor,
		"object":   map[string]any{"type": "Note", "content": "signed"},
	}
	vmURL, _ := url.Parse(vm)
	signed, err := SignObject(doc, pair.Private.(ed25519.PrivateKey), vmURL, time.Now())
	require.NoError(t, err)
	require.Contains(t, signed, "proof")

	// Signing extends @context with the data-integrity vocabulary.
	ctxList, ok := signed["@context"].([]any)
	require.True(t, ok, "expected @context list, got %T", signed["@context"])
	assert.Contains(t, ctxList, vocab.DataIntegrityContext)

	e, err := VerifyObject(context.Background(), signed, loader)
	require.NoError(t, err)
	require.NotNil(t, e, "valid proof must verify")
	assert.IsType(t, &vocab.Create{}, e)

	// Tampering invalidates the proof.
	tampered := make(map[string]any, len(signed))
	for k, v := range signed {
		tampered[k] = v
	}
	tampered["actor"] = "https://evil.example/users/mallory"
	e, err = VerifyObject(context.Background(), tampered, loader)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSignObjectPreservesExistingProofs(t *testing.T) {
	pair, err := keyutil.GenerateKeyPair(keyutil.Ed25519)
	require.NoError(t, err)
	vmURL, _ := url.Parse("https://example.com/users/alice#ed25519-key")

	doc := map[string]any{"type": "Note", "content": "x"}
	once, err := SignObject(doc, pair.Private.(ed25519.PrivateKey), vmURL, time.Now())
	require.NoError(t, err)
	twice, err := SignObject(once, pair.Private.(ed25519.PrivateKey), vmURL, time.Now())
	require.NoError(t, err)

	proofs, ok := twice["proof"].([]any)
	require.True(t, ok, "second proof must append, got %T", twice["proof"])
	assert.Len(t, proofs, 2)
}

func TestVerifyObjectWithoutProof(t *testing.T) {
	e, err := VerifyObject(context.Background(), map[string]any{"type": "Note"}, &stubLoader{})
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestLDSignatureRoundTrip(t *testing.T) {
	pair, err := keyutil.GenerateKeyPair(keyutil.RSA)
	require.NoError(t, err)

	const keyID = "https://example.com/users/alice#main-key"
	const actor = "https://example.com/users/alice"
	pem, err := keyutil.ExportSPKI(pair.Public)
	require.NoError(t, err)
	loader := &stubLoader{docs: map[string]any{
		keyID: map[string]any{
			"@context":     []any{"https://www.w3.org/ns/activitystreams", "https://w3id.org/security/v1"},
			"id":           keyID,
			"type":         "CryptographicKey",
			"owner":        actor,
			"publicKeyPem": pem,
		},
	}}

	doc := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Announce",
		"actor":    actor,
		"object":   "https://example.com/notes/1",
	}
	creator, _ := url.Parse(keyID)
	signed, err := AttachLDSignature(doc, pair.Private.(*rsa.PrivateKey), creator, time.Now(), loader)
	require.NoError(t, err)
	require.Contains(t, signed, "signature")

	key, err := VerifyLDSignature(context.Background(), signed, loader)
	require.NoError(t, err)
	require.NotNil(t, key, "valid LD signature must verify")
	assert.Equal(t, keyID, key.ID.String())

	// Tampering invalidates the signature.
	tampered := make(map[string]any, len(signed))
	for k, v := range signed {
		tampered[k] = v
	}
	tampered["object"] = "https://example.com/notes/2"
	key, err = VerifyLDSignature(context.Background(), tampered, loader)
	require.NoError(t, err)
	assert.Nil(t, key)

	// DetachSignature strips the node without mutating the input.
	detached := DetachSignature(signed)
	assert.NotContains(t, detached, "signature")
	assert.Contains(t, signed, "signature")
}
