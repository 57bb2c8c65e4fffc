package crypto

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(zap.NewNop(), 2)
}

func TestHashPassword_Format(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stored, err := svc.HashPassword(ctx, "S3cure!Password")
	require.NoError(t, err)

	saltHex, hashHex, ok := strings.Cut(stored, ":")
	require.True(t, ok)

	salt, err := hex.DecodeString(saltHex)
	require.NoError(t, err)
	assert.Len(t, salt, passwordSaltLength)

	hash, err := hex.DecodeString(hashHex)
	require.NoError(t, err)
	assert.Len(t, hash, passwordKeyLength)
}

func TestHashPassword_SaltIsUnique(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.HashPassword(ctx, "same-password")
	require.NoError(t, err)
	second, err := svc.HashPassword(ctx, "same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHashPassword_Empty(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.HashPassword(context.Background(), "")
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "hash_password", cerr.Op)
}

func TestVerifyPassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stored, err := svc.HashPassword(ctx, "correct horse battery")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		stored   string
		want     bool
	}{
		{"correct password", "correct horse battery", stored, true},
		{"wrong password", "wrong guess", stored, false},
		{"missing separator", "correct horse battery", "deadbeef", false},
		{"non-hex salt", "correct horse battery", "zz:aa", false},
		{"non-hex hash", "correct horse battery", "aa:zz", false},
		{"empty stored", "correct horse battery", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.VerifyPassword(ctx, tt.password, tt.stored))
		})
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	plaintext := `{"walletAddress":"0xabc","balance":1042}`
	result, err := svc.Encrypt(ctx, plaintext, "master-key")
	require.NoError(t, err)
	assert.Equal(t, algorithmName, result.Algorithm)

	iv, err := hex.DecodeString(result.IV)
	require.NoError(t, err)
	assert.Len(t, iv, ivLength)

	salt, err := hex.DecodeString(result.Salt)
	require.NoError(t, err)
	assert.Len(t, salt, saltLength)

	decrypted, err := svc.Decrypt(ctx, result.Ciphertext, "master-key", result.IV, result.Salt)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Encrypt(ctx, "sensitive payload", "master-key")
	require.NoError(t, err)

	sealed, err := hex.DecodeString(result.Ciphertext)
	require.NoError(t, err)
	sealed[0] ^= 0x01
	tampered := hex.EncodeToString(sealed)

	_, err = svc.Decrypt(ctx, tampered, "master-key", result.IV, result.Salt)
	require.Error(t, err)

	var cerr *Error
	assert.ErrorAs(t, err, &cerr)
}

func TestDecrypt_WrongPassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Encrypt(ctx, "sensitive payload", "master-key")
	require.NoError(t, err)

	_, err = svc.Decrypt(ctx, result.Ciphertext, "other-key", result.IV, result.Salt)
	assert.Error(t, err)
}

func TestDecrypt_MalformedInputs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		ciphertext string
		iv         string
		salt       string
	}{
		{"non-hex ciphertext", "zz", strings.Repeat("00", ivLength), strings.Repeat("00", saltLength)},
		{"ciphertext shorter than tag", "00", strings.Repeat("00", ivLength), strings.Repeat("00", saltLength)},
		{"short iv", strings.Repeat("00", tagLength), "0011", strings.Repeat("00", saltLength)},
		{"non-hex salt", strings.Repeat("00", tagLength), strings.Repeat("00", ivLength), "zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Decrypt(ctx, tt.ciphertext, "key", tt.iv, tt.salt)
			assert.Error(t, err)
		})
	}
}

func TestGenerateToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	decoded, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, decoded, 16)

	// Zero length falls back to the 32-byte default.
	fallback, err := svc.GenerateToken(0)
	require.NoError(t, err)
	assert.Len(t, fallback, 64)

	other, err := svc.GenerateToken(16)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateAPIKey(t *testing.T) {
	svc := newTestService(t)

	key, err := svc.GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, apiKeyPrefix))
	assert.NotContains(t, key, "=")

	other, err := svc.GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHashData(t *testing.T) {
	svc := newTestService(t)

	// SHA-256 of "abc", a fixed vector.
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		svc.HashData("abc"))
	assert.Equal(t, svc.HashData("same"), svc.HashData("same"))
	assert.NotEqual(t, svc.HashData("a"), svc.HashData("b"))
}

func TestHMAC(t *testing.T) {
	svc := newTestService(t)

	sig := svc.GenerateHMAC("payload", "secret")
	assert.True(t, svc.VerifyHMAC("payload", sig, "secret"))
	assert.False(t, svc.VerifyHMAC("payload", sig, "other-secret"))
	assert.False(t, svc.VerifyHMAC("other payload", sig, "secret"))
	assert.False(t, svc.VerifyHMAC("payload", "not-hex", "secret"))
}
