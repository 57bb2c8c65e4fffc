package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/lp24213/agroisync-sub001/internal/identity"
	"github.com/lp24213/agroisync-sub001/internal/middleware"
)

type registerRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	rec, err := s.identity.Register(r.Context(), req.Email, req.Password, req.WalletAddress)
	if err != nil {
		respondIdentityError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

type loginRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	SecondFactorCode string `json:"twoFactorCode,omitempty"`
}

type loginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt string             `json:"expiresAt"`
	Identity  *identity.Identity `json:"identity"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	res, err := s.identity.Login(r.Context(), identity.LoginRequest{
		Email:            req.Email,
		Password:         req.Password,
		Source:           clientAddress(r),
		UserAgent:        r.UserAgent(),
		SecondFactorCode: req.SecondFactorCode,
	})
	if err != nil {
		respondIdentityError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.Session.ExpiresAt.UTC().Format(time.RFC3339),
		Identity:  res.Identity,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := s.identity.Logout(r.Context(), token); err != nil {
		respondIdentityError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleVerify reflects the identity the Authenticator already attached.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	claims := middleware.ClaimsFromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"identity":  id,
		"sessionId": claims.SessionID,
	})
}

func (s *Server) handleEnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())

	secret, url, err := s.identity.EnableTwoFactor(r.Context(), id.ID)
	if err != nil {
		respondIdentityError(w, err)
		return
	}

	// The plaintext secret is shown exactly once.
	respondJSON(w, http.StatusOK, map[string]string{
		"secret":          secret,
		"provisioningUrl": url,
	})
}

func (s *Server) handleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())

	if err := s.identity.DisableTwoFactor(r.Context(), id.ID); err != nil {
		respondIdentityError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "two-factor disabled"})
}

// clientAddress mirrors the middleware's view of the source so the login
// rate limiter and the firewall key on the same address.
func clientAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if colon := strings.LastIndex(host, ":"); colon != -1 {
		return host[:colon]
	}
	return host
}
