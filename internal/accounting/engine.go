package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aigate/internal/models"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

// Engine decides, for every incoming request, whether it may proceed, and
// atomically records its cost. The check and the commit run inside one
// KeyStore.Mutate call, so concurrent admits on the same token cannot
// interleave between them.
type Engine struct {
	keys   storage.KeyStore
	now    func() time.Time
	logger *utils.Logger
}

// NewEngine creates an accounting engine on top of a key store.
func NewEngine(keys storage.KeyStore) *Engine {
	return &Engine{
		keys:   keys,
		now:    time.Now,
		logger: utils.NewLogger("accounting"),
	}
}

// WithClock overrides the engine's time source. Tests use it to cross
// day boundaries without sleeping.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// AdmitRequest describes one inbound request to be accounted.
type AdmitRequest struct {
	Token     string
	Operation string

	// Cost in credits; 0 marks a free operation, which still consumes
	// daily quota but never touches the balance.
	Cost int64

	// PromptSummary is stored (truncated) on the ledger record.
	PromptSummary string

	// Latency, when already known to the caller, is carried onto the
	// ledger record. On the hot path admission is decided before the
	// downstream call, so this is usually zero; the archive sink records
	// observed downstream latency separately.
	Latency time.Duration
}

// Admit runs the decision rule and, only on admission, commits the cost
// and appends a ledger record as one atomic unit per token. Denials are
// returned as Decisions; a non-nil error always means a storage fault,
// and guarantees no state was changed for this request (a day rollover,
// which is not itself a request, is committed even when the call is then
// denied).
func (e *Engine) Admit(ctx context.Context, req AdmitRequest) (Decision, error) {
	if req.Cost < 0 {
		return Decision{}, fmt.Errorf("negative operation cost %d", req.Cost)
	}

	now := e.now()
	var decision Decision

	err := e.keys.Mutate(ctx, req.Token, func(k *models.APIKey) (*models.UsageRecord, error) {
		if !k.Active {
			decision = deniedDecision(OutcomeInactive, k)
			return nil, nil
		}
		if k.ExpiredAt(now) {
			decision = deniedDecision(OutcomeExpired, k)
			return nil, nil
		}

		// Roll the daily counters before evaluating quota. The reset is
		// committed even if the request is denied below.
		if NewDaySince(k.LastReset, now) {
			k.DailyUsed = 0
			k.LastReset = now
		}

		if k.DailyLimit > 0 && k.DailyUsed+1 > k.DailyLimit {
			decision = deniedDecision(OutcomeQuotaExceeded, k)
			return nil, nil
		}
		if req.Cost > 0 && k.CreditBalance < req.Cost {
			decision = deniedDecision(OutcomeInsufficientCredits, k)
			return nil, nil
		}

		k.DailyUsed++
		k.CreditBalance -= req.Cost
		k.TotalRequests++
		used := now
		k.LastUsedAt = &used

		decision = Decision{
			Outcome:          OutcomeAdmitted,
			RemainingQuota:   k.RemainingQuota(),
			RemainingCredits: k.CreditBalance,
		}
		return &models.UsageRecord{
			ID:             uuid.New(),
			KeyToken:       k.Token,
			Operation:      req.Operation,
			PromptSummary:  models.SummarizePrompt(req.PromptSummary),
			CostCredits:    req.Cost,
			LatencySeconds: req.Latency.Seconds(),
			CreatedAt:      now,
		}, nil
	})
	if errors.Is(err, storage.ErrKeyNotFound) {
		return Decision{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		e.logger.Error("admit aborted by storage fault", "token", models.RedactToken(req.Token), "error", err)
		return Decision{}, err
	}

	if !decision.Admitted() {
		e.logger.Debug("request denied",
			"token", models.RedactToken(req.Token),
			"operation", req.Operation,
			"outcome", string(decision.Outcome))
	}
	return decision, nil
}

func deniedDecision(outcome Outcome, k *models.APIKey) Decision {
	return Decision{
		Outcome:          outcome,
		RemainingQuota:   k.RemainingQuota(),
		RemainingCredits: k.CreditBalance,
	}
}

// Snapshot is a read-only view of a key's balances for self-service
// status checks.
type Snapshot struct {
	Token         string     `json:"token"`
	Name          string     `json:"name"`
	Active        bool       `json:"active"`
	DailyUsed     int64      `json:"daily_used"`
	DailyLimit    int64      `json:"daily_limit"`
	CreditBalance int64      `json:"credit_balance"`
	TotalRequests int64      `json:"total_requests"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

// Usage returns the current balances for a token without mutating
// anything. A pending day rollover is reflected in the reported counters
// but not persisted; the next Admit commits it.
func (e *Engine) Usage(ctx context.Context, token string) (*Snapshot, error) {
	key, err := e.keys.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	dailyUsed := key.DailyUsed
	if NewDaySince(key.LastReset, e.now()) {
		dailyUsed = 0
	}

	return &Snapshot{
		Token:         key.Redacted(),
		Name:          key.Name,
		Active:        key.Active,
		DailyUsed:     dailyUsed,
		DailyLimit:    key.DailyLimit,
		CreditBalance: key.CreditBalance,
		TotalRequests: key.TotalRequests,
		CreatedAt:     key.CreatedAt,
		LastUsedAt:    key.LastUsedAt,
	}, nil
}
