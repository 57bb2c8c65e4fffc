// Package crypto implements the cryptographic primitives shared by the
// identity service and the storage layer: password hashing, authenticated
// symmetric encryption, HMAC signing, token generation and a versioned
// encrypt-for-storage envelope.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/sync/semaphore"
)

const (
	algorithmName = "aes-256-gcm"

	keyLength  = 32 // 256-bit AEAD key
	ivLength   = 16 // 128-bit IV
	saltLength = 64 // 512-bit encryption salt
	tagLength  = 16 // 128-bit GCM authentication tag

	passwordSaltLength = 32
	passwordKeyLength  = 64

	// scrypt work factor. Fixed: changing it invalidates every stored hash.
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	apiKeyPrefix = "agro_"
)

// EncryptionResult carries everything a caller must persist to decrypt later.
// All fields are hex encoded; the GCM tag is appended to Ciphertext.
type EncryptionResult struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Algorithm  string `json:"algorithm"`
}

// Service is the process-wide primitives instance. Key derivation and AEAD
// calls are CPU-bound, so a weighted semaphore bounds how many run at once;
// request admission never queues behind more than maxConcurrent derivations.
type Service struct {
	logger *zap.Logger
	sem    *semaphore.Weighted
}

// NewService builds a Service with at most maxConcurrent concurrent
// key-derivation operations. Zero or negative falls back to 4.
func NewService(logger *zap.Logger, maxConcurrent int64) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Service{
		logger: logger,
		sem:    semaphore.NewWeighted(maxConcurrent),
	}
}

// deriveKey runs scrypt under the semaphore so concurrent logins cannot
// saturate every core.
func (s *Service) deriveKey(ctx context.Context, password string, salt []byte, keyLen int) ([]byte, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
}

// HashPassword derives a fresh random salt and returns "salt:hash", both hex.
// The result is opaque to callers; only VerifyPassword can interpret it.
func (s *Service) HashPassword(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", opError("hash_password", errors.New("empty password"))
	}

	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", opError("hash_password", err)
	}

	key, err := s.deriveKey(ctx, password, salt, passwordKeyLength)
	if err != nil {
		return "", opError("hash_password", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword re-derives with the stored salt and compares in constant
// time. Any parse failure yields false, never an error: a malformed stored
// hash is indistinguishable from a wrong password to the caller.
func (s *Service) VerifyPassword(ctx context.Context, password, stored string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil || len(want) == 0 {
		return false
	}

	got, err := s.deriveKey(ctx, password, salt, len(want))
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(got, want) == 1
}

// Encrypt seals plaintext with AES-256-GCM under a key derived from
// password+salt. The authentication tag is appended to the ciphertext.
func (s *Service) Encrypt(ctx context.Context, plaintext, password string) (*EncryptionResult, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, opError("encrypt", err)
	}

	key, err := s.deriveKey(ctx, password, salt, keyLength)
	if err != nil {
		return nil, opError("encrypt", err)
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, opError("encrypt", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, opError("encrypt", err)
	}

	// Seal appends the tag to the ciphertext.
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)

	return &EncryptionResult{
		Ciphertext: hex.EncodeToString(sealed),
		IV:         hex.EncodeToString(iv),
		Salt:       hex.EncodeToString(salt),
		Algorithm:  algorithmName,
	}, nil
}

// Decrypt reverses Encrypt. A wrong password, wrong IV or flipped bit
// anywhere in ciphertext or tag returns a *Error; corrupted plaintext is
// never returned.
func (s *Service) Decrypt(ctx context.Context, ciphertext, password, iv, salt string) (string, error) {
	sealed, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", opError("decrypt", err)
	}
	if len(sealed) < tagLength {
		return "", opError("decrypt", errors.New("ciphertext shorter than authentication tag"))
	}
	ivBytes, err := hex.DecodeString(iv)
	if err != nil || len(ivBytes) != ivLength {
		return "", opError("decrypt", errors.New("malformed iv"))
	}
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", opError("decrypt", errors.New("malformed salt"))
	}

	key, err := s.deriveKey(ctx, password, saltBytes, keyLength)
	if err != nil {
		return "", opError("decrypt", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", opError("decrypt", err)
	}

	plaintext, err := aead.Open(nil, ivBytes, sealed, nil)
	if err != nil {
		return "", opError("decrypt", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLength)
}

// GenerateToken returns length cryptographically random bytes, hex encoded.
func (s *Service) GenerateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", opError("generate_token", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateAPIKey returns a prefixed URL-safe key suitable for headers.
func (s *Service) GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", opError("generate_api_key", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashData returns the SHA-256 digest of data, hex encoded.
func (s *Service) HashData(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// GenerateHMAC signs data with HMAC-SHA256 under secret, hex encoded.
func (s *Service) GenerateHMAC(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex signature in constant time.
func (s *Service) VerifyHMAC(data, signature, secret string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hmac.Equal(mac.Sum(nil), want)
}
