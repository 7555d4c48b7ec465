// Package proof attaches and verifies in-document cryptographic proofs:
// FEP-8b32 object integrity proofs (eddsa-jcs-2022) and the legacy
// RsaSignature2017 linked-data signatures older servers still emit.
package proof

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/multiformats/go-multibase"
	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/keyutil"
	"github.com/fedkit/fedkit/vocab"
)

// Cryptosuite is the only integrity-proof suite supported.
const Cryptosuite = "eddsa-jcs-2022"

// ProofPurpose is the purpose written into created proofs.
const ProofPurpose = "assertionMethod"

// CreateProof produces an integrity-proof node over the compact JSON-LD
// document. The signing input is sha256(JCS(proof options)) followed by
// sha256(JCS(document minus any existing proofs)); the document is signed
// with the data-integrity context attached.
func CreateProof(doc map[string]any, priv ed25519.PrivateKey, verificationMethod *url.URL, created time.Time) (map[string]any, error) {
	options := map[string]any{
		"type":               "DataIntegrityProof",
		"cryptosuite":        Cryptosuite,
		"verificationMethod": verificationMethod.String(),
		"proofPurpose":       ProofPurpose,
		"created":            created.UTC().Format(time.RFC3339),
	}

	message, err := signingInput(withDataIntegrityContext(doc), options)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, message)
	value, err := multibase.Encode(multibase.Base58BTC, sig)
	if err != nil {
		return nil, fmt.Errorf("proof: encode proofValue: %w", err)
	}

	node := make(map[string]any, len(options)+1)
	for k, v := range options {
		node[k] = v
	}
	node["proofValue"] = value
	return node, nil
}

// withDataIntegrityContext returns a copy of doc whose @context includes
// the data-integrity context URL, so signed documents name the vocabulary
// their proof terms come from.
func withDataIntegrityContext(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	switch ctx := out["@context"].(type) {
	case nil:
		out["@context"] = []any{vocab.ASContext, vocab.DataIntegrityContext}
	case string:
		if ctx != vocab.DataIntegrityContext {
			out["@context"] = []any{ctx, vocab.DataIntegrityContext}
		}
	case []any:
		for _, v := range ctx {
			if v == vocab.DataIntegrityContext {
				return out
			}
		}
		out["@context"] = append(append([]any{}, ctx...), vocab.DataIntegrityContext)
	}
	return out
}

func signingInput(doc map[string]any, options map[string]any) ([]byte, error) {
	stripped := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "proof" {
			continue
		}
		stripped[k] = v
	}
	optBytes, err := canonicalize(options)
	if err != nil {
		return nil, fmt.Errorf("proof: canonicalize proof options: %w", err)
	}
	docBytes, err := canonicalize(stripped)
	if err != nil {
		return nil, fmt.Errorf("proof: canonicalize document: %w", err)
	}
	optHash := sha256.Sum256(optBytes)
	docHash := sha256.Sum256(docBytes)
	return append(optHash[:], docHash[:]...), nil
}

func canonicalize(v map[string]any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// VerifyProof checks one proof node against the document, fetching the
// referenced Multikey through the loader. It returns the key on success
// and nil on any recoverable failure.
func VerifyProof(ctx context.Context, doc map[string]any, proofNode map[string]any, loader ld.DocumentLoader) (*vocab.Multikey, error) {
	suite, _ := proofNode["cryptosuite"].(string)
	if suite != Cryptosuite {
		slog.Debug("proof: unsupported cryptosuite", "cryptosuite", suite)
		return nil, nil
	}
	value, _ := proofNode["proofValue"].(string)
	vm, _ := proofNode["verificationMethod"].(string)
	if value == "" || vm == "" {
		return nil, nil
	}

	_, sig, err := multibase.Decode(value)
	if err != nil {
		slog.Debug("proof: undecodable proofValue", "error", err)
		return nil, nil
	}

	options := make(map[string]any, len(proofNode))
	for k, v := range proofNode {
		if k == "proofValue" || k == "@context" {
			continue
		}
		options[k] = v
	}
	message, err := signingInput(doc, options)
	if err != nil {
		return nil, err
	}

	key, err := fetchMultikey(ctx, vm, loader)
	if err != nil || key == nil {
		return nil, err
	}
	pub, err := keyutil.ImportMultibase(key.PublicKeyMultibase())
	if err != nil {
		slog.Debug("proof: bad publicKeyMultibase", "verificationMethod", vm, "error", err)
		return nil, nil
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		slog.Debug("proof: verification method is not an Ed25519 key", "verificationMethod", vm)
		return nil, nil
	}
	if !ed25519.Verify(edPub, message, sig) {
		slog.Debug("proof: signature mismatch", "verificationMethod", vm)
		return nil, nil
	}
	return key, nil
}

func fetchMultikey(ctx context.Context, vm string, loader ld.DocumentLoader) (*vocab.Multikey, error) {
	remote, err := loader.LoadDocument(vm)
	if err != nil {
		slog.Debug("proof: verification method fetch failed", "verificationMethod", vm, "error", err)
		return nil, nil
	}
	e, err := vocab.FromJSONLD(ctx, remote.Document, vocab.WithDocumentLoader(loader))
	if err != nil {
		slog.Debug("proof: verification method undecodable", "verificationMethod", vm, "error", err)
		return nil, nil
	}
	if mk, ok := e.(*vocab.Multikey); ok {
		return mk, nil
	}
	// Actor documents carry Multikeys under assertionMethod.
	if ab, ok := e.(interface{ AssertionMethods() []*vocab.Multikey }); ok {
		for _, mk := range ab.AssertionMethods() {
			if mk.ID() != nil && mk.ID().String() == vm {
				return mk, nil
			}
		}
	}
	return nil, nil
}

// SignObject attaches an integrity proof to the document, preserving any
// proofs already present. The returned document carries the
// data-integrity context, so verifiers hash the same bytes.
func SignObject(doc map[string]any, priv ed25519.PrivateKey, verificationMethod *url.URL, created time.Time) (map[string]any, error) {
	out := withDataIntegrityContext(doc)
	node, err := CreateProof(out, priv, verificationMethod, created)
	if err != nil {
		return nil, err
	}
	switch existing := out["proof"].(type) {
	case nil:
		out["proof"] = node
	case []any:
		out["proof"] = append(append([]any{}, existing...), node)
	default:
		out["proof"] = []any{existing, node}
	}
	return out, nil
}

// VerifyObject decodes the document if at least one attached proof
// verifies; it returns nil when no proof does.
func VerifyObject(ctx context.Context, doc map[string]any, loader ld.DocumentLoader) (vocab.Entity, error) {
	var nodes []map[string]any
	switch p := doc["proof"].(type) {
	case map[string]any:
		nodes = []map[string]any{p}
	case []any:
		for _, item := range p {
			if m, ok := item.(map[string]any); ok {
				nodes = append(nodes, m)
			}
		}
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	for _, node := range nodes {
		key, err := VerifyProof(ctx, doc, node, loader)
		if err != nil {
			return nil, err
		}
		if key != nil {
			return vocab.FromJSONLD(ctx, doc, vocab.WithDocumentLoader(loader))
		}
	}
	return nil, nil
}
