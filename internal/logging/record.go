package logging

import (
	"context"
	"time"
)

// ArchiveRecord is the structure archived for each proxied request
// (via queue buffering). It is observability data; the accounting
// ledger in internal/storage is the source of truth.
type ArchiveRecord struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`

	// APIKey is the redacted token, never the full secret.
	APIKey  string `json:"api_key"`
	KeyName string `json:"key_name,omitempty"`

	Operation     string `json:"operation"`
	PromptSummary string `json:"prompt_summary,omitempty"`
	CostCredits   int64  `json:"cost_credits"`

	// DownstreamMs is the observed latency of the downstream AI call;
	// GatewayMs is end to end including admission.
	DownstreamMs int64 `json:"downstream_ms"`
	GatewayMs    int64 `json:"gateway_ms"`

	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// Sink receives archive records from the request path. Enqueue must be
// cheap and non-blocking; delivery is best effort.
type Sink interface {
	Enqueue(rec *ArchiveRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records. Used when archiving is disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *ArchiveRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}
