package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPairPEM(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})
	return string(priv), string(pub)
}

func TestWalletSignature_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	privPEM, pubPEM := testKeyPairPEM(t)

	message := "transfer 40t wheat to 0xbeef"
	sig, err := svc.SignWalletMessage(message, privPEM)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	assert.True(t, svc.VerifyWalletSignature(message, sig, pubPEM))
	assert.False(t, svc.VerifyWalletSignature("transfer 41t wheat to 0xbeef", sig, pubPEM))
}

func TestWalletSignature_WrongKey(t *testing.T) {
	svc := newTestService(t)
	privPEM, _ := testKeyPairPEM(t)
	_, otherPubPEM := testKeyPairPEM(t)

	sig, err := svc.SignWalletMessage("message", privPEM)
	require.NoError(t, err)

	assert.False(t, svc.VerifyWalletSignature("message", sig, otherPubPEM))
}

func TestWalletSignature_BadInputs(t *testing.T) {
	svc := newTestService(t)
	privPEM, pubPEM := testKeyPairPEM(t)

	_, err := svc.SignWalletMessage("message", "not a pem key")
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "sign_wallet_message", cerr.Op)

	sig, err := svc.SignWalletMessage("message", privPEM)
	require.NoError(t, err)

	assert.False(t, svc.VerifyWalletSignature("message", sig, "not a pem key"))
	assert.False(t, svc.VerifyWalletSignature("message", "!!not base64!!", pubPEM))
}

func TestGenerateBackupKey(t *testing.T) {
	svc := newTestService(t)

	phrase, err := svc.GenerateBackupKey()
	require.NoError(t, err)

	words := strings.Fields(phrase)
	require.Len(t, words, backupKeyWords)

	known := make(map[string]bool, len(wordList))
	for _, w := range wordList {
		known[w] = true
	}
	for _, w := range words {
		assert.True(t, known[w], "word %q not in list", w)
	}

	other, err := svc.GenerateBackupKey()
	require.NoError(t, err)
	assert.NotEqual(t, phrase, other)
}
