package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CodeVerifier validates a time-based one-time code against a shared
// secret. Injected at construction so tests and alternative OTP providers
// can replace the default RFC 6238 implementation.
type CodeVerifier interface {
	Verify(secretB32, code string, at time.Time) bool
}

// TOTPVerifier is the default CodeVerifier: 6-digit HMAC-SHA1 codes over a
// 30 second step with ±1 step drift tolerance.
type TOTPVerifier struct {
	WindowSteps int
}

const totpStep = 30

// NewTOTPVerifier returns the default verifier.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{WindowSteps: 1}
}

// Verify implements CodeVerifier.
func (v *TOTPVerifier) Verify(secretB32, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretB32))
	if err != nil {
		return false
	}

	counter := at.Unix() / totpStep
	for c := counter - int64(v.WindowSteps); c <= counter+int64(v.WindowSteps); c++ {
		if hotp(secret, c) == code {
			return true
		}
	}
	return false
}

// hotp computes HOTP(K, C) per RFC 4226 with 6 digits.
func hotp(secret []byte, counter int64) string {
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, secret)
	m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	return fmt.Sprintf("%06d", bin%1000000)
}

// generateTOTPSecret returns 20 random bytes, base32 without padding.
func generateTOTPSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// otpAuthURL builds the otpauth:// URI encoded into the provisioning QR.
func otpAuthURL(issuer, account, secretB32 string) string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, account))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", "6")
	q.Set("period", "30")
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}
