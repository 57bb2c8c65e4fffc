package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lp24213/agroisync-sub001/internal/firewall"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"rules": s.firewall.Rules()})
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule firewall.Rule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	if err := s.firewall.AddRule(&rule); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	if !s.firewall.RemoveRule(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type toggleRuleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	var req toggleRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !s.firewall.SetRuleEnabled(chi.URLParam(r, "id"), req.Enabled) {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "updated", "enabled": req.Enabled})
}

type listEntryRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleGetBlacklist(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"addresses": s.firewall.Blacklist()})
}

func (s *Server) handleAddToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req listEntryRequest
	if err := decodeJSON(r, &req); err != nil || req.Address == "" {
		respondError(w, http.StatusBadRequest, "address required")
		return
	}

	s.firewall.AddToBlacklist(req.Address, req.Reason)
	respondJSON(w, http.StatusCreated, map[string]string{"status": "blacklisted", "address": req.Address})
}

func (s *Server) handleRemoveFromBlacklist(w http.ResponseWriter, r *http.Request) {
	if !s.firewall.RemoveFromBlacklist(chi.URLParam(r, "address")) {
		respondError(w, http.StatusNotFound, "address not blacklisted")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"addresses": s.firewall.Whitelist()})
}

func (s *Server) handleAddToWhitelist(w http.ResponseWriter, r *http.Request) {
	var req listEntryRequest
	if err := decodeJSON(r, &req); err != nil || req.Address == "" {
		respondError(w, http.StatusBadRequest, "address required")
		return
	}

	s.firewall.AddToWhitelist(req.Address)
	respondJSON(w, http.StatusCreated, map[string]string{"status": "whitelisted", "address": req.Address})
}

func (s *Server) handleRemoveFromWhitelist(w http.ResponseWriter, r *http.Request) {
	if !s.firewall.RemoveFromWhitelist(chi.URLParam(r, "address")) {
		respondError(w, http.StatusNotFound, "address not whitelisted")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleFirewallStats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	respondJSON(w, http.StatusOK, map[string]any{
		"topSources":    s.firewall.TopSources(limit),
		"blacklistSize": s.firewall.BlacklistSize(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.monitor.DashboardData())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"alerts": s.monitor.Alerts()})
}

func (s *Server) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.ResolveEvent(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleLoginAttempts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	respondJSON(w, http.StatusOK, map[string]any{"attempts": s.identity.RecentAttempts(limit)})
}

func (s *Server) handleIdentityStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.identity.Stats())
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
