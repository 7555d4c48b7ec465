package keyutil

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/multiformats/go-multibase"
)

// Multicodec varint prefixes for the key types carried in Multikey values.
var (
	mcEd25519Pub  = []byte{0xed, 0x01}
	mcEd25519Priv = []byte{0x80, 0x26}
	mcRSAPub      = []byte{0x85, 0x24}
)

// ExportMultibase encodes a public key as a multibase Multikey string:
// base58btc ("z" prefix) over a multicodec-tagged key. Ed25519 keys use the
// raw 32-byte form, RSA keys use SPKI-less PKCS#1 DER per the multicodec
// registry.
func ExportMultibase(key crypto.PublicKey) (string, error) {
	var tagged []byte
	switch k := key.(type) {
	case ed25519.PublicKey:
		tagged = append(append([]byte{}, mcEd25519Pub...), k...)
	case *rsa.PublicKey:
		der := x509.MarshalPKCS1PublicKey(k)
		tagged = append(append([]byte{}, mcRSAPub...), der...)
	default:
		return "", fmt.Errorf("multibase: unsupported key type %T", key)
	}
	return multibase.Encode(multibase.Base58BTC, tagged)
}

// ExportMultibasePrivate encodes an Ed25519 private key (its 32-byte seed)
// as a multibase string. Only Ed25519 is supported; RSA private keys have
// no Multikey form in the wild.
func ExportMultibasePrivate(key crypto.PrivateKey) (string, error) {
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return "", fmt.Errorf("multibase: unsupported private key type %T", key)
	}
	tagged := append(append([]byte{}, mcEd25519Priv...), priv.Seed()...)
	return multibase.Encode(multibase.Base58BTC, tagged)
}

// ImportMultibase decodes a multibase Multikey string into a public key.
func ImportMultibase(s string) (crypto.PublicKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("multibase: %w", err)
	}
	switch {
	case bytes.HasPrefix(data, mcEd25519Pub):
		raw := data[len(mcEd25519Pub):]
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("multibase: Ed25519 key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		return ed25519.PublicKey(raw), nil
	case bytes.HasPrefix(data, mcRSAPub):
		pub, err := x509.ParsePKCS1PublicKey(data[len(mcRSAPub):])
		if err != nil {
			return nil, fmt.Errorf("multibase: parse RSA key: %w", err)
		}
		if err := ValidateKey(pub); err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("multibase: unsupported multicodec prefix")
	}
}

// ImportMultibasePrivate decodes a multibase-encoded Ed25519 private key.
func ImportMultibasePrivate(s string) (crypto.PrivateKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("multibase: %w", err)
	}
	if !bytes.HasPrefix(data, mcEd25519Priv) {
		return nil, fmt.Errorf("multibase: unsupported multicodec prefix for private key")
	}
	seed := data[len(mcEd25519Priv):]
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("multibase: Ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
