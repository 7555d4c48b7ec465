package keyutil

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// JWK is a JSON Web Key restricted to the two algorithms the federation
// stack uses. RSA keys carry "kty":"RSA" with "alg":"RS256"; Ed25519 keys
// carry "kty":"OKP" with "crv":"Ed25519". Private keys include the secret
// parameters; public keys omit them.
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Crv string `json:"crv,omitempty"`

	// RSA parameters.
	N  string `json:"n,omitempty"`
	E  string `json:"e,omitempty"`
	P  string `json:"p,omitempty"`
	Q  string `json:"q,omitempty"`
	Dp string `json:"dp,omitempty"`
	Dq string `json:"dq,omitempty"`
	Qi string `json:"qi,omitempty"`

	// OKP public parameter.
	X string `json:"x,omitempty"`

	// Private exponent (RSA) or seed (Ed25519).
	D string `json:"d,omitempty"`
}

func b64u(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func b64uDecode(field, s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("jwk: invalid %q parameter: %w", field, err)
	}
	return b, nil
}

// ExportPublicJWK renders a public key as a JWK.
func ExportPublicJWK(key crypto.PublicKey) (*JWK, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return &JWK{
			Kty: "RSA",
			Alg: "RS256",
			N:   b64u(k.N.Bytes()),
			E:   b64u(big.NewInt(int64(k.E)).Bytes()),
		}, nil
	case ed25519.PublicKey:
		return &JWK{Kty: "OKP", Crv: "Ed25519", X: b64u(k)}, nil
	default:
		return nil, fmt.Errorf("jwk: unsupported key type %T", key)
	}
}

// ExportPrivateJWK renders a private key as a JWK including its secret
// parameters.
func ExportPrivateJWK(key crypto.PrivateKey) (*JWK, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if len(k.Primes) != 2 {
			return nil, fmt.Errorf("jwk: RSA key must have exactly two primes")
		}
		k.Precompute()
		return &JWK{
			Kty: "RSA",
			Alg: "RS256",
			N:   b64u(k.N.Bytes()),
			E:   b64u(big.NewInt(int64(k.E)).Bytes()),
			D:   b64u(k.D.Bytes()),
			P:   b64u(k.Primes[0].Bytes()),
			Q:   b64u(k.Primes[1].Bytes()),
			Dp:  b64u(k.Precomputed.Dp.Bytes()),
			Dq:  b64u(k.Precomputed.Dq.Bytes()),
			Qi:  b64u(k.Precomputed.Qinv.Bytes()),
		}, nil
	case ed25519.PrivateKey:
		return &JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			X:   b64u(k.Public().(ed25519.PublicKey)),
			D:   b64u(k.Seed()),
		}, nil
	default:
		return nil, fmt.Errorf("jwk: unsupported key type %T", key)
	}
}

// ImportPublicJWK parses a JWK into a public key. Private parameters, if
// present, are ignored.
func ImportPublicJWK(j *JWK) (crypto.PublicKey, error) {
	switch j.Kty {
	case "RSA":
		n, err := b64uDecode("n", j.N)
		if err != nil {
			return nil, err
		}
		e, err := b64uDecode("e", j.E)
		if err != nil {
			return nil, err
		}
		eInt := new(big.Int).SetBytes(e)
		if !eInt.IsInt64() || eInt.Int64() > int64(1<<31-1) || eInt.Int64() < 3 {
			return nil, fmt.Errorf("jwk: RSA exponent out of range")
		}
		pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(eInt.Int64())}
		if err := ValidateKey(pub); err != nil {
			return nil, err
		}
		return pub, nil
	case "OKP":
		if j.Crv != "Ed25519" {
			return nil, fmt.Errorf("jwk: unsupported OKP curve %q", j.Crv)
		}
		x, err := b64uDecode("x", j.X)
		if err != nil {
			return nil, err
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("jwk: Ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(x))
		}
		return ed25519.PublicKey(x), nil
	default:
		return nil, fmt.Errorf("jwk: unsupported key type %q", j.Kty)
	}
}

// ImportPrivateJWK parses a JWK carrying private parameters into a
// private key.
func ImportPrivateJWK(j *JWK) (crypto.PrivateKey, error) {
	if j.D == "" {
		return nil, fmt.Errorf("jwk: missing private parameter %q", "d")
	}
	switch j.Kty {
	case "RSA":
		pub, err := ImportPublicJWK(j)
		if err != nil {
			return nil, err
		}
		d, err := b64uDecode("d", j.D)
		if err != nil {
			return nil, err
		}
		p, err := b64uDecode("p", j.P)
		if err != nil {
			return nil, err
		}
		q, err := b64uDecode("q", j.Q)
		if err != nil {
			return nil, err
		}
		priv := &rsa.PrivateKey{
			PublicKey: *pub.(*rsa.PublicKey),
			D:         new(big.Int).SetBytes(d),
			Primes: []*big.Int{
				new(big.Int).SetBytes(p),
				new(big.Int).SetBytes(q),
			},
		}
		if err := priv.Validate(); err != nil {
			return nil, fmt.Errorf("jwk: invalid RSA private key: %w", err)
		}
		priv.Precompute()
		return priv, nil
	case "OKP":
		if j.Crv != "Ed25519" {
			return nil, fmt.Errorf("jwk: unsupported OKP curve %q", j.Crv)
		}
		d, err := b64uDecode("d", j.D)
		if err != nil {
			return nil, err
		}
		if len(d) != ed25519.SeedSize {
			return nil, fmt.Errorf("jwk: Ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(d))
		}
		return ed25519.NewKeyFromSeed(d), nil
	default:
		return nil, fmt.Errorf("jwk: unsupported key type %q", j.Kty)
	}
}
