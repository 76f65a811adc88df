package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"aigate/internal/accounting"
	"aigate/internal/logging"
	"aigate/internal/middleware"
	"aigate/internal/models"
	"aigate/internal/utils"
)

const (
	defaultImageWidth  = 512
	defaultImageHeight = 512
)

// handleText serves metered text generation.
//
// Flow:
//  1. Validate method and prompt
//  2. Rate limit (when the key configures one)
//  3. Admit - quota and credit check committed atomically
//  4. Call the downstream text service
//  5. Archive record (best-effort)
//
// Admission is decided strictly before the outbound call; a downstream
// failure does not refund the charge.
func (d *Dependencies) handleText(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := newRequestID()

	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'prompt' parameter")
		return
	}

	ctx := r.Context()
	key, ok := middleware.GetAPIKeyRecord(ctx)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	if !d.allowRate(w, r, key) {
		return
	}

	decision, err := d.Engine.Admit(ctx, accounting.AdmitRequest{
		Token:         key.Token,
		Operation:     "text",
		Cost:          d.TextCost,
		PromptSummary: prompt,
	})
	if err != nil {
		d.Logger.Error("admit failed", "token", key.Redacted(), "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !decision.Admitted() {
		d.respondDenied(w, decision)
		return
	}

	resp, err := d.Provider.GenerateText(ctx, prompt)
	if err != nil {
		d.archive(reqID, key, "text", prompt, d.TextCost, 0, start, http.StatusBadGateway, err)
		utils.RespondWithError(w, http.StatusBadGateway, "AI service error")
		return
	}
	if resp.StatusCode != http.StatusOK {
		d.archive(reqID, key, "text", prompt, d.TextCost, resp.DownstreamLatency, start, http.StatusBadGateway,
			fmt.Errorf("downstream status %d", resp.StatusCode))
		utils.RespondWithError(w, http.StatusBadGateway, "AI service error")
		return
	}

	d.archive(reqID, key, "text", prompt, d.TextCost, resp.DownstreamLatency, start, http.StatusOK, nil)

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

// handleImage serves metered image generation. The downstream image is
// generated eagerly; the response carries its stable URL.
func (d *Dependencies) handleImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := newRequestID()

	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	prompt := q.Get("prompt")
	if prompt == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'prompt' parameter")
		return
	}
	width := intParam(q.Get("width"), defaultImageWidth)
	height := intParam(q.Get("height"), defaultImageHeight)

	ctx := r.Context()
	key, ok := middleware.GetAPIKeyRecord(ctx)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	if !d.allowRate(w, r, key) {
		return
	}

	decision, err := d.Engine.Admit(ctx, accounting.AdmitRequest{
		Token:         key.Token,
		Operation:     "image",
		Cost:          d.ImageCost,
		PromptSummary: prompt,
	})
	if err != nil {
		d.Logger.Error("admit failed", "token", key.Redacted(), "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !decision.Admitted() {
		d.respondDenied(w, decision)
		return
	}

	resp, err := d.Provider.GenerateImage(ctx, prompt, width, height)
	if err != nil {
		d.archive(reqID, key, "image", prompt, d.ImageCost, 0, start, http.StatusBadGateway, err)
		utils.RespondWithError(w, http.StatusBadGateway, "Image service error")
		return
	}
	if resp.StatusCode != http.StatusOK {
		d.archive(reqID, key, "image", prompt, d.ImageCost, resp.DownstreamLatency, start, http.StatusBadGateway,
			fmt.Errorf("downstream status %d", resp.StatusCode))
		utils.RespondWithError(w, http.StatusBadGateway, "Image service error")
		return
	}

	d.archive(reqID, key, "image", prompt, d.ImageCost, resp.DownstreamLatency, start, http.StatusOK, nil)

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"image_url":  d.Provider.ImageURL(prompt, width, height),
		"prompt":     prompt,
		"dimensions": fmt.Sprintf("%dx%d", width, height),
	})
}

// allowRate applies the per-key rate limit, when one is configured.
// Returns false after writing the response when the request is throttled.
func (d *Dependencies) allowRate(w http.ResponseWriter, r *http.Request, key *models.APIKey) bool {
	if key.RateLimitPerMinute <= 0 {
		return true
	}

	allowed, _, resetAt, err := d.RateLimit.AllowWithDetails(r.Context(), key.Token, key.RateLimitPerMinute)
	if err != nil {
		// Rate limiting is advisory; a broken limiter must not take
		// the gateway down with it.
		d.Logger.Warn("rate limit check failed", "token", key.Redacted(), "error", err)
		return true
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetAt).Seconds())+1, 10))
		utils.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}

// respondDenied maps an admission denial to its HTTP status.
func (d *Dependencies) respondDenied(w http.ResponseWriter, decision accounting.Decision) {
	switch decision.Outcome {
	case accounting.OutcomeNotFound:
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
	case accounting.OutcomeInactive:
		utils.RespondWithError(w, http.StatusForbidden, "API key is disabled")
	case accounting.OutcomeExpired:
		utils.RespondWithError(w, http.StatusForbidden, "API key has expired")
	case accounting.OutcomeQuotaExceeded:
		utils.RespondWithError(w, http.StatusTooManyRequests, "Daily limit exceeded")
	case accounting.OutcomeInsufficientCredits:
		utils.RespondWithError(w, http.StatusPaymentRequired, "Insufficient credits")
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// archive enqueues an observability record for an admitted request
// (best-effort, never blocks the response).
func (d *Dependencies) archive(reqID string, key *models.APIKey, operation, prompt string, cost int64, downstream time.Duration, start time.Time, status int, cause error) {
	rec := &logging.ArchiveRecord{
		Timestamp:     time.Now().UTC(),
		RequestID:     reqID,
		APIKey:        key.Redacted(),
		KeyName:       key.Name,
		Operation:     operation,
		PromptSummary: models.SummarizePrompt(prompt),
		CostCredits:   cost,
		DownstreamMs:  downstream.Milliseconds(),
		GatewayMs:     time.Since(start).Milliseconds(),
		StatusCode:    status,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := d.Archive.Enqueue(rec); err != nil {
		d.Logger.Warn("archive enqueue failed", "request_id", reqID, "error", err)
	}
}

// intParam parses a positive integer query parameter with a fallback.
func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// newRequestID returns a UUID request ID for tracing
func newRequestID() string {
	return uuid.New().String()
}
