// Package keyutil manages the signing keys used for federation: RSA
// (RSASSA-PKCS1-v1.5 with SHA-256) for HTTP Signatures and Ed25519 for
// object integrity proofs. Keys round-trip through SPKI PEM, JWK, and
// multibase encodings.
package keyutil

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
)

// Algorithm identifies one of the two supported key algorithms.
type Algorithm string

const (
	// RSA is RSASSA-PKCS1-v1.5 with SHA-256, required for HTTP Signatures.
	RSA Algorithm = "RSASSA-PKCS1-v1_5"
	// Ed25519 is used for FEP-8b32 object integrity proofs.
	Ed25519 Algorithm = "Ed25519"
)

const rsaKeyBits = 2048

// KeyPair holds one generated or imported signing key pair.
type KeyPair struct {
	Algorithm Algorithm
	Private   crypto.PrivateKey
	Public    crypto.PublicKey
}

// GenerateKeyPair generates a fresh key pair for the given algorithm.
// An empty algorithm defaults to RSA with a logged deprecation warning;
// callers should always name the algorithm.
func GenerateKeyPair(alg Algorithm) (*KeyPair, error) {
	switch alg {
	case "":
		slog.Warn("GenerateKeyPair called without an algorithm; defaulting to RSA (deprecated)")
		return GenerateKeyPair(RSA)
	case RSA:
		priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate RSA key: %w", err)
		}
		return &KeyPair{Algorithm: RSA, Private: priv, Public: &priv.PublicKey}, nil
	case Ed25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate Ed25519 key: %w", err)
		}
		return &KeyPair{Algorithm: Ed25519, Private: priv, Public: pub}, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// ValidateKey rejects keys the federation stack cannot use: anything that is
// not RSA (with a modulus of at least 2048 bits) or Ed25519.
func ValidateKey(key crypto.PublicKey) error {
	switch k := key.(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < rsaKeyBits {
			return fmt.Errorf("RSA key too small: %d bits", k.N.BitLen())
		}
		return nil
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return fmt.Errorf("malformed Ed25519 key: %d bytes", len(k))
		}
		return nil
	default:
		return fmt.Errorf("unsupported key type %T", key)
	}
}

// AlgorithmOf reports the algorithm of a public or private key.
func AlgorithmOf(key any) (Algorithm, error) {
	switch key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return RSA, nil
	case ed25519.PublicKey, ed25519.PrivateKey:
		return Ed25519, nil
	default:
		return "", fmt.Errorf("unsupported key type %T", key)
	}
}

// Algorithm OIDs found in SPKI headers.
var (
	oidRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}
)

// spkiHeader is the AlgorithmIdentifier prefix of a SubjectPublicKeyInfo.
type spkiHeader struct {
	Algorithm struct {
		OID asn1.ObjectIdentifier
	}
}

// sniffSPKI reads the algorithm OID out of SPKI DER without a full parse,
// so unsupported algorithms fail with a precise error.
func sniffSPKI(der []byte) (Algorithm, error) {
	var hdr spkiHeader
	if _, err := asn1.Unmarshal(der, &hdr); err != nil {
		return "", fmt.Errorf("malformed SPKI: %w", err)
	}
	switch {
	case hdr.Algorithm.OID.Equal(oidRSA):
		return RSA, nil
	case hdr.Algorithm.OID.Equal(oidEd25519):
		return Ed25519, nil
	default:
		return "", fmt.Errorf("unsupported key algorithm OID %v", hdr.Algorithm.OID)
	}
}

// ImportSPKI parses a PEM-encoded SubjectPublicKeyInfo into a public key.
func ImportSPKI(pemStr string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM")
	}
	if _, err := sniffSPKI(block.Bytes); err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	if err := ValidateKey(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// ExportSPKI renders a public key as PEM-encoded SubjectPublicKeyInfo.
func ExportSPKI(key crypto.PublicKey) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// LoadOrGenerate loads an RSA key pair from PEM files, or generates a new
// one if the files do not exist. Zero-setup for new installs.
func LoadOrGenerate(privatePath, publicPath string) (*KeyPair, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		slog.Info("RSA key pair not found, generating new one", "private", privatePath, "public", publicPath)
		return generateAndSave(privatePath, publicPath)
	}

	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &KeyPair{Algorithm: RSA, Private: priv, Public: &priv.PublicKey}, nil
}

func generateAndSave(privatePath, publicPath string) (*KeyPair, error) {
	pair, err := GenerateKeyPair(RSA)
	if err != nil {
		return nil, err
	}
	priv := pair.Private.(*rsa.PrivateKey)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	pubPEM, err := ExportSPKI(pair.Public)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(privatePath, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(pubPEM), 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}

	slog.Info("generated RSA key pair", "private", privatePath, "public", publicPath)
	return pair, nil
}
