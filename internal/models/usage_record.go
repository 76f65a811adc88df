package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxPromptSummaryLen bounds the request payload summary stored per record.
const MaxPromptSummaryLen = 256

// UsageRecord is one ledger entry per admitted request. Records are
// immutable once written and are removed only when their key is revoked.
type UsageRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	KeyToken       string    `db:"key_token" json:"key_token"`
	Operation      string    `db:"operation" json:"operation"`
	PromptSummary  string    `db:"prompt_summary" json:"prompt_summary,omitempty"`
	CostCredits    int64     `db:"cost_credits" json:"cost_credits"`
	LatencySeconds float64   `db:"latency_seconds" json:"latency_seconds"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// SummarizePrompt truncates a prompt to the stored summary length.
func SummarizePrompt(prompt string) string {
	if len(prompt) <= MaxPromptSummaryLen {
		return prompt
	}
	return prompt[:MaxPromptSummaryLen]
}
