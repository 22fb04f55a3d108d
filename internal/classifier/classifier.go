// Package classifier turns a gateway balance snapshot into a canonical
// payment status and webhook action. It is pure: no I/O, no state, and it
// never fails — missing information classifies as pending.
package classifier

// Status is the canonical, gateway-independent payment status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusCanceled   Status = "canceled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// Action is the canonical webhook action vocabulary exposed to the local
// payment workflow.
type Action string

const (
	ActionAuthorized   Action = "authorized"
	ActionCaptured     Action = "captured"
	ActionCanceled     Action = "canceled"
	ActionRefunded     Action = "refunded"
	ActionNotSupported Action = "not_supported"
	ActionFailed       Action = "failed"
)

// BalanceSnapshot is the gateway-reported point-in-time totals for one
// payment. It arrives per webhook call or status query and is never
// persisted as-is. Absent fields decode to zero.
type BalanceSnapshot struct {
	TotalAuthorized    int64 `json:"total_authorized"`
	TotalCaptured      int64 `json:"total_captured"`
	TotalVoided        int64 `json:"total_voided"`
	AvailableToCapture int64 `json:"available_to_capture"`
	AvailableToVoid    int64 `json:"available_to_void"`
	TotalRefunded      int64 `json:"total_refunded"`
	AvailableToRefund  int64 `json:"available_to_refund"`
}

// AmountConfig is the result of classifying a balance snapshot: the canonical
// status, the amount relevant to that status, and whether the status is
// terminal for gateway-driven transitions.
type AmountConfig struct {
	Status     Status `json:"status"`
	Amount     int64  `json:"amount"`
	IsComplete bool   `json:"isComplete"`
}

// ClassifiedAction is the normalized instruction derived from a balance
// snapshot, consumed by the local payment workflow.
type ClassifiedAction struct {
	Action    Action `json:"action"`
	Amount    int64  `json:"amount"`
	SessionID string `json:"session_id"`
}

// Classify maps a balance snapshot to its canonical amount configuration.
// The branches are mutually exclusive in gateway semantics but evaluated in
// priority order for determinism; first match wins. A nil snapshot means
// "no information yet" and classifies as pending.
//
// Cancellation deliberately reports amount 0: the gateway does not expose a
// meaningful voided amount on the balance object.
func Classify(balances *BalanceSnapshot) AmountConfig {
	config := AmountConfig{
		Status:     StatusPending,
		Amount:     0,
		IsComplete: false,
	}
	if balances == nil {
		return config
	}

	switch {
	case balances.TotalCaptured > 0 && balances.AvailableToCapture == 0:
		config.Status = StatusCaptured
		config.Amount = balances.TotalCaptured
		config.IsComplete = true
	case balances.TotalAuthorized > 0 && balances.TotalCaptured == 0:
		config.Status = StatusAuthorized
		config.Amount = balances.TotalAuthorized
		config.IsComplete = false
	case balances.TotalVoided > 0 && balances.AvailableToVoid == 0:
		config.Status = StatusCanceled
		config.IsComplete = true
	case balances.TotalRefunded > 0 && balances.AvailableToRefund == 0:
		config.Status = StatusRefunded
		config.Amount = balances.TotalRefunded
		config.IsComplete = true
	}
	return config
}

// ActionFor maps a canonical status to the webhook action handed to the
// workflow. Pending maps to not_supported: a snapshot with no decisive
// balances carries no instruction for the workflow.
func ActionFor(status Status) Action {
	switch status {
	case StatusAuthorized:
		return ActionAuthorized
	case StatusCaptured:
		return ActionCaptured
	case StatusCanceled:
		return ActionCanceled
	case StatusRefunded:
		return ActionRefunded
	case StatusFailed:
		return ActionFailed
	default:
		return ActionNotSupported
	}
}
