package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"aigate/internal/storage"
	"aigate/internal/utils"
)

// handleRoot issues a self-service key to the calling client, one per
// client identity, and describes the API surface.
func (d *Dependencies) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		utils.RespondWithError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	identity := clientIdentity(r)
	key, err := d.Admin.SelfIssue(r.Context(), identity)
	if err != nil {
		if errors.Is(err, storage.ErrNameTaken) {
			utils.RespondWithError(w, http.StatusConflict,
				"A key was already issued for this client. Use /api_key to check its usage.")
			return
		}
		d.Logger.Error("self-service issuance failed", "identity", identity, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Key generation failed")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message":      "Welcome to the AI gateway!",
		"your_api_key": key.Token,
		"daily_limit":  key.DailyLimit,
		"credits":      key.CreditBalance,
		"endpoints": map[string]string{
			"/api_key":   "Check your API usage",
			"/text":      "Text generation",
			"/image":     "Image generation",
			"/admin/...": "Admin controls (requires authentication)",
		},
		"note": "Use /api_key to check usage.",
	})
}

// handleAPIKeyStatus returns the usage snapshot for a key.
func (d *Dependencies) handleAPIKeyStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("api_key")
	if token == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	snapshot, err := d.Engine.Usage(r.Context(), token)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		d.Logger.Error("usage lookup failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, snapshot)
}

// clientIdentity fingerprints the caller for one-key-per-client
// issuance. Proxied requests are identified by the first hop in
// X-Forwarded-For.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return "public:" + strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "public:" + r.RemoteAddr
	}
	return "public:" + host
}
