package accounting

// Outcome classifies the result of an Admit call. Every value here is an
// expected, caller-recoverable condition; storage faults travel as errors
// instead so callers never confuse "denied" with "broken".
type Outcome string

const (
	// OutcomeAdmitted means the request may proceed and its cost was
	// committed.
	OutcomeAdmitted Outcome = "admitted"

	// OutcomeNotFound means no key exists for the presented token.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeInactive means the key has been disabled.
	OutcomeInactive Outcome = "inactive"

	// OutcomeExpired means the key's absolute expiry has passed.
	OutcomeExpired Outcome = "expired"

	// OutcomeQuotaExceeded means the daily request ceiling is exhausted.
	OutcomeQuotaExceeded Outcome = "quota_exceeded"

	// OutcomeInsufficientCredits means the balance cannot cover the cost.
	OutcomeInsufficientCredits Outcome = "insufficient_credits"
)

// Decision is the answer to "may this request proceed, and at what cost".
// Balances reflect the post-commit state on admission and the state at
// evaluation time on denial.
type Decision struct {
	Outcome Outcome `json:"outcome"`

	// RemainingQuota is the requests left in the current UTC day, or -1
	// when the key has no daily quota.
	RemainingQuota int64 `json:"remaining_quota"`

	// RemainingCredits is the spendable balance after this decision.
	RemainingCredits int64 `json:"remaining_credits"`
}

// Admitted reports whether the request may proceed.
func (d Decision) Admitted() bool {
	return d.Outcome == OutcomeAdmitted
}
