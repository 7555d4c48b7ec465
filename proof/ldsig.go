package proof

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedkit/fedkit/httpsig"
	"github.com/fedkit/fedkit/vocab"
)

// Legacy RsaSignature2017 linked-data signatures, as Mastodon relays them.
// The signing input is hex(sha256(urdna2015(options))) followed by
// hex(sha256(urdna2015(document minus signature))), signed RSA-SHA256.

const ldSignatureType = "RsaSignature2017"

func normalize(doc any, loader ld.DocumentLoader) ([]byte, error) {
	opts := ld.NewJsonLdOptions("")
	opts.ProcessingMode = ld.JsonLd_1_1
	opts.Format = "application/n-quads"
	opts.Algorithm = ld.AlgorithmURDNA2015
	opts.DocumentLoader = vocab.NewOfflineLoader(loader)

	normalized, err := ld.NewJsonLdProcessor().Normalize(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("proof: normalize: %w", err)
	}
	s, ok := normalized.(string)
	if !ok {
		return nil, fmt.Errorf("proof: unexpected normalization result %T", normalized)
	}
	return []byte(s), nil
}

func ldSigningInput(doc map[string]any, options map[string]any, loader ld.DocumentLoader) ([]byte, error) {
	optsDoc := map[string]any{"@context": vocab.SecurityV1Context}
	for k, v := range options {
		switch k {
		case "type", "id", "signatureValue":
			continue
		}
		optsDoc[k] = v
	}
	optQuads, err := normalize(optsDoc, loader)
	if err != nil {
		return nil, err
	}

	stripped := DetachSignature(doc)
	docQuads, err := normalize(stripped, loader)
	if err != nil {
		return nil, err
	}

	optHash := sha256.Sum256(optQuads)
	docHash := sha256.Sum256(docQuads)
	input := hex.EncodeToString(optHash[:]) + hex.EncodeToString(docHash[:])
	return []byte(input), nil
}

// CreateLDSignature signs the document with an RSA key, returning the
// signature node to embed under "signature".
func CreateLDSignature(doc map[string]any, priv *rsa.PrivateKey, creator *url.URL, created time.Time, loader ld.DocumentLoader) (map[string]any, error) {
	options := map[string]any{
		"creator": creator.String(),
		"created": created.UTC().Format(time.RFC3339),
	}
	input, err := ldSigningInput(doc, options, loader)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(input)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("proof: sign: %w", err)
	}
	return map[string]any{
		"type":           ldSignatureType,
		"creator":        creator.String(),
		"created":        options["created"],
		"signatureValue": base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// AttachLDSignature signs the document and returns a copy carrying the
// signature node.
func AttachLDSignature(doc map[string]any, priv *rsa.PrivateKey, creator *url.URL, created time.Time, loader ld.DocumentLoader) (map[string]any, error) {
	node, err := CreateLDSignature(doc, priv, creator, created, loader)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["signature"] = node
	return out, nil
}

// VerifyLDSignature checks the embedded signature node, fetching the
// creator key through the loader. It returns the key on success, nil on
// any recoverable failure.
func VerifyLDSignature(ctx context.Context, doc map[string]any, loader ld.DocumentLoader) (*httpsig.Key, error) {
	node, ok := doc["signature"].(map[string]any)
	if !ok {
		return nil, nil
	}
	if typ, _ := node["type"].(string); typ != ldSignatureType {
		slog.Debug("proof: unsupported signature type", "type", node["type"])
		return nil, nil
	}
	creator, _ := node["creator"].(string)
	value, _ := node["signatureValue"].(string)
	if creator == "" || value == "" {
		return nil, nil
	}
	sig, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		slog.Debug("proof: undecodable signatureValue", "error", err)
		return nil, nil
	}

	key, err := httpsig.FetchKey(ctx, creator, loader)
	if err != nil || key == nil {
		return nil, err
	}
	rsaPub, ok := key.Public.(*rsa.PublicKey)
	if !ok {
		slog.Debug("proof: LD signature creator key is not RSA", "creator", creator)
		return nil, nil
	}

	input, err := ldSigningInput(doc, node, loader)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(input)
	if err := rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig); err != nil {
		slog.Debug("proof: LD signature mismatch", "creator", creator)
		return nil, nil
	}
	return key, nil
}

// DetachSignature returns a copy of the document without its signature
// node, for downstream comparison.
func DetachSignature(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "signature" {
			continue
		}
		out[k] = v
	}
	return out
}
