package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aigate/internal/admin"
	"aigate/internal/models"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

// handleAdminGenerateKey mints a new API key with operator-chosen limits.
func (d *Dependencies) handleAdminGenerateKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	params := admin.IssueParams{
		Name:               q.Get("key_name"),
		DailyLimit:         int64Param(q.Get("daily_limit"), 30),
		InitialCredits:     int64Param(q.Get("credits"), 0),
		RateLimitPerMinute: int(int64Param(q.Get("rate_limit"), 0)),
	}
	if days := int64Param(q.Get("expires_days"), 0); days > 0 {
		params.TTL = time.Duration(days) * 24 * time.Hour
	}

	key, err := d.Admin.Issue(r.Context(), params)
	if err != nil {
		if errors.Is(err, admin.ErrGenerationExhausted) {
			utils.RespondWithError(w, http.StatusBadRequest, "Key generation failed")
			return
		}
		d.Logger.Error("key issuance failed", "error", err)
		utils.RespondWithError(w, http.StatusBadRequest, "Key generation failed")
		return
	}

	resp := map[string]any{
		"success":     true,
		"api_key":     key.Token,
		"key_name":    key.Name,
		"daily_limit": key.DailyLimit,
		"credits":     key.CreditBalance,
	}
	if key.ExpiresAt != nil {
		resp["expires_at"] = key.ExpiresAt.UTC().Format(time.RFC3339)
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// handleAdminListKeys lists every key with usage aggregates. Tokens are
// returned in full; this surface is operator-only.
func (d *Dependencies) handleAdminListKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reports, err := d.Admin.ListAll(r.Context())
	if err != nil {
		d.Logger.Error("key listing failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"total_keys": len(reports),
		"keys":       reports,
	})
}

// handleAdminIncreaseLimit replaces a key's daily quota.
func (d *Dependencies) handleAdminIncreaseLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("api_key")
	if token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'api_key' parameter")
		return
	}
	newLimit := int64Param(r.URL.Query().Get("new_limit"), 50)

	if err := d.Admin.SetDailyLimit(r.Context(), token, newLimit); err != nil {
		d.respondAdminMutationError(w, token, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Daily limit increased to %d for key %s", newLimit, models.RedactToken(token)),
		"new_limit": newLimit,
	})
}

// handleAdminAddCredits applies a signed credit delta to a key.
func (d *Dependencies) handleAdminAddCredits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	token := q.Get("api_key")
	if token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'api_key' parameter")
		return
	}
	rawDelta := q.Get("credits")
	if rawDelta == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'credits' parameter")
		return
	}
	delta, err := strconv.ParseInt(rawDelta, 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid 'credits' parameter")
		return
	}

	balance, err := d.Admin.AddCredits(r.Context(), token, delta)
	if err != nil {
		d.respondAdminMutationError(w, token, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("Credited %d to key %s", delta, models.RedactToken(token)),
		"new_balance": balance,
	})
}

// handleAdminResetLimit zeroes a key's daily usage counter.
func (d *Dependencies) handleAdminResetLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("api_key")
	if token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'api_key' parameter")
		return
	}

	if err := d.Admin.ResetDailyUsage(r.Context(), token); err != nil {
		d.respondAdminMutationError(w, token, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("Daily limit reset for key %s", models.RedactToken(token)),
		"reset_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAdminDeleteKey revokes a key and wipes its ledger history.
func (d *Dependencies) handleAdminDeleteKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("api_key")
	if token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'api_key' parameter")
		return
	}

	key, err := d.Admin.Revoke(r.Context(), token)
	if err != nil {
		d.respondAdminMutationError(w, token, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("API key %s deleted successfully", key.Redacted()),
		"deleted_key":    key.Redacted(),
		"total_requests": key.TotalRequests,
	})
}

// handleAdminStats reports system-wide usage aggregates.
func (d *Dependencies) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := d.Admin.SystemStats(r.Context())
	if err != nil {
		d.Logger.Error("stats aggregation failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, stats)
}

func (d *Dependencies) respondAdminMutationError(w http.ResponseWriter, token string, err error) {
	if errors.Is(err, storage.ErrKeyNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "API key not found")
		return
	}
	d.Logger.Error("admin mutation failed", "token", models.RedactToken(token), "error", err)
	utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
}

// int64Param parses an integer query parameter with a fallback.
func int64Param(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
