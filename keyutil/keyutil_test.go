package keyutil

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	rsaPair, err := GenerateKeyPair(RSA)
	require.NoError(t, err)
	assert.Equal(t, RSA, rsaPair.Algorithm)
	require.NoError(t, ValidateKey(rsaPair.Public))

	edPair, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)
	assert.Equal(t, Ed25519, edPair.Algorithm)
	require.NoError(t, ValidateKey(edPair.Public))

	_, err = GenerateKeyPair("secp256k1")
	assert.Error(t, err)

	// Empty algorithm still works, falling back to RSA.
	defPair, err := GenerateKeyPair("")
	require.NoError(t, err)
	assert.Equal(t, RSA, defPair.Algorithm)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	msg := []byte("the quick brown fox")

	rsaPair, err := GenerateKeyPair(RSA)
	require.NoError(t, err)
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaPair.Private.(*rsa.PrivateKey), crypto.SHA256, digest[:])
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(rsaPair.Public.(*rsa.PublicKey), crypto.SHA256, digest[:], sig))

	edPair, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)
	edSig := ed25519.Sign(edPair.Private.(ed25519.PrivateKey), msg)
	assert.True(t, ed25519.Verify(edPair.Public.(ed25519.PublicKey), msg, edSig))
	assert.False(t, ed25519.Verify(edPair.Public.(ed25519.PublicKey), []byte("tampered"), edSig))
}

func TestSPKIRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{RSA, Ed25519} {
		pair, err := GenerateKeyPair(alg)
		require.NoError(t, err)

		pemStr, err := ExportSPKI(pair.Public)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))

		got, err := ImportSPKI(pemStr)
		require.NoError(t, err)
		assert.Equal(t, pair.Public, got)
	}

	_, err := ImportSPKI("not a pem")
	assert.Error(t, err)
}

func TestValidateKeyRejectsSmallRSA(t *testing.T) {
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	assert.Error(t, ValidateKey(&small.PublicKey))
}

func TestJWKRoundTrip(t *testing.T) {
	rsaPair, err := GenerateKeyPair(RSA)
	require.NoError(t, err)

	pubJWK, err := ExportPublicJWK(rsaPair.Public)
	require.NoError(t, err)
	assert.Equal(t, "RSA", pubJWK.Kty)
	assert.Equal(t, "RS256", pubJWK.Alg)
	assert.Empty(t, pubJWK.D)

	gotPub, err := ImportPublicJWK(pubJWK)
	require.NoError(t, err)
	assert.Equal(t, rsaPair.Public, gotPub)

	privJWK, err := ExportPrivateJWK(rsaPair.Private)
	require.NoError(t, err)
	gotPriv, err := ImportPrivateJWK(privJWK)
	require.NoError(t, err)
	assert.True(t, rsaPair.Private.(*rsa.PrivateKey).Equal(gotPriv.(*rsa.PrivateKey)))

	edPair, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)

	edJWK, err := ExportPrivateJWK(edPair.Private)
	require.NoError(t, err)
	assert.Equal(t, "OKP", edJWK.Kty)
	assert.Equal(t, "Ed25519", edJWK.Crv)

	gotEd, err := ImportPrivateJWK(edJWK)
	require.NoError(t, err)
	assert.True(t, edPair.Private.(ed25519.PrivateKey).Equal(gotEd.(ed25519.PrivateKey)))

	_, err = ImportPublicJWK(&JWK{Kty: "EC", Crv: "P-256"})
	assert.Error(t, err)
}

func TestMultibaseRoundTrip(t *testing.T) {
	edPair, err := GenerateKeyPair(Ed25519)
	require.NoError(t, err)

	enc, err := ExportMultibase(edPair.Public)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "z"), "base58btc uses the z prefix")

	got, err := ImportMultibase(enc)
	require.NoError(t, err)
	assert.Equal(t, edPair.Public, got)

	privEnc, err := ExportMultibasePrivate(edPair.Private)
	require.NoError(t, err)
	gotPriv, err := ImportMultibasePrivate(privEnc)
	require.NoError(t, err)
	assert.True(t, edPair.Private.(ed25519.PrivateKey).Equal(gotPriv.(ed25519.PrivateKey)))

	rsaPair, err := GenerateKeyPair(RSA)
	require.NoError(t, err)
	rsaEnc, err := ExportMultibase(rsaPair.Public)
	require.NoError(t, err)
	gotRSA, err := ImportMultibase(rsaEnc)
	require.NoError(t, err)
	assert.Equal(t, rsaPair.Public, gotRSA)

	_, err = ImportMultibase("zzzz")
	assert.Error(t, err)
}

func TestLoadOrGenerate(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	first, err := LoadOrGenerate(privPath, pubPath)
	require.NoError(t, err)

	second, err := LoadOrGenerate(privPath, pubPath)
	require.NoError(t, err)
	assert.True(t, first.Private.(*rsa.PrivateKey).Equal(second.Private.(*rsa.PrivateKey)))
}
