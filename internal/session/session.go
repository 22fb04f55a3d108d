// Package session models the locally-owned payment session and the workflow
// that mutates it. The reconciliation endpoints only read sessions and
// propose transitions; this package is the single writer and enforces the
// monotonic status lifecycle.
package session

import (
	"fmt"

	"github.com/yourorg/checkout-reconciler/internal/classifier"
)

// PaymentSession is the local record of one hosted payment flow. The provider
// adapter only reads/writes the opaque Data blob and proposes status
// transitions; it never sets Status directly.
type PaymentSession struct {
	ID         string                 `json:"id"`
	ProviderID string                 `json:"provider_id"`
	Status     classifier.Status      `json:"status"`
	Data       map[string]interface{} `json:"data"`
	Amount     int64                  `json:"amount"`
	Currency   string                 `json:"currency"`
}

// CanTransition reports whether the canonical status may move from -> to.
// The lifecycle is monotonic: pending -> authorized -> {captured, canceled},
// captured -> refunded. A transition to the current status is allowed and
// treated as an idempotent re-apply.
func CanTransition(from, to classifier.Status) bool {
	if from == to {
		return true
	}
	switch from {
	case classifier.StatusPending:
		return to == classifier.StatusAuthorized || to == classifier.StatusFailed
	case classifier.StatusAuthorized:
		return to == classifier.StatusCaptured || to == classifier.StatusCanceled
	case classifier.StatusCaptured:
		return to == classifier.StatusRefunded
	default:
		return false
	}
}

// Store is the session storage surface the reconciliation paths depend on.
// Implementations must make ProposeTransition an atomic read-modify-write.
type Store interface {
	Get(sessionID string) (PaymentSession, error)
	Upsert(session PaymentSession) error
	// ProposeTransition moves the session to status if the lifecycle allows
	// it, merging data into the session's opaque blob and, when amount is
	// positive, recording it as the session amount. Re-applying the current
	// status is allowed and still merges data and amount.
	ProposeTransition(sessionID string, status classifier.Status, amount int64, data map[string]interface{}) (PaymentSession, error)
}

// WorkflowInput is what the webhook ingestion path hands to the workflow
// runner: a classified action, the session it applies to, and the
// gateway-reported amount and data blob to record on it.
type WorkflowInput struct {
	Action    classifier.Action
	SessionID string
	Amount    int64
	Data      map[string]interface{}
}

// WorkflowRunner applies a classified action to the local payment state.
// The real implementation lives in the commerce backend; this service
// consumes the interface and ships an in-memory runner for wiring and tests.
type WorkflowRunner interface {
	Run(input WorkflowInput) error
}

// ErrNotFound is returned when a session id is unknown.
type ErrNotFound struct {
	SessionID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("session: not found: %s", e.SessionID)
}

// ErrInvalidTransition is returned when a proposed status change would move
// the lifecycle backward or sideways.
type ErrInvalidTransition struct {
	SessionID string
	From, To  classifier.Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("session: invalid transition %s -> %s for %s", e.From, e.To, e.SessionID)
}

// statusFor maps a workflow action back to the canonical status it implies.
func statusFor(action classifier.Action) (classifier.Status, bool) {
	switch action {
	case classifier.ActionAuthorized:
		return classifier.StatusAuthorized, true
	case classifier.ActionCaptured:
		return classifier.StatusCaptured, true
	case classifier.ActionCanceled:
		return classifier.StatusCanceled, true
	case classifier.ActionRefunded:
		return classifier.StatusRefunded, true
	case classifier.ActionFailed:
		return classifier.StatusFailed, true
	default:
		return "", false
	}
}
