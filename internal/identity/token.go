package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the signed token payload. Signed, not encrypted: nothing in
// here is secret, it is only tamper-proof.
type Claims struct {
	UserID        string   `json:"userId"`
	Email         string   `json:"email"`
	Role          Role     `json:"role"`
	WalletAddress string   `json:"walletAddress,omitempty"`
	Permissions   []string `json:"permissions"`
	SessionID     string   `json:"sessionId"`
	jwt.RegisteredClaims
}

// tokenIssuer mints and parses HS256 tokens with fixed issuer/audience
// claims for downstream validation.
type tokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
}

func (t *tokenIssuer) mint(id *Identity, sessionID string, now time.Time) (string, error) {
	claims := Claims{
		UserID:        id.ID,
		Email:         id.Email,
		Role:          id.Role,
		WalletAddress: id.WalletAddress,
		Permissions:   id.Permissions,
		SessionID:     sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.lifetime)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// parse verifies the signature, signing method, issuer, audience and the
// embedded expiry. Every failure collapses to ErrInvalidToken; the caller
// logs the detail, external responses stay generic.
func (t *tokenIssuer) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(t.issuer, true) || !claims.VerifyAudience(t.audience, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
