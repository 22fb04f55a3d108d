// Package webhook ingests asynchronous gateway callbacks and drives the
// local payment workflow with the classified result.
package webhook

import (
	stdcontext "context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/checkout-reconciler/internal/classifier"
	custom_context "github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/provider"
	"github.com/yourorg/checkout-reconciler/internal/reporting"
	"github.com/yourorg/checkout-reconciler/internal/session"
)

// Processor applies a translated webhook to the local payment state: it
// asks the provider to record the authorization outcome, then hands the
// classified action plus the resulting data blob to the workflow runner,
// which owns the one store mutation. The processor holds no locks itself:
// the store's transition is the atomic read-modify-write, and actions are
// idempotent, so a concurrently polling redirect request only ever sees a
// consistent snapshot.
type Processor struct {
	store    session.Store
	runner   session.WorkflowRunner
	reporter *reporting.Reporter
}

// NewProcessor creates a Processor.
func NewProcessor(store session.Store, runner session.WorkflowRunner, reporter *reporting.Reporter) *Processor {
	if store == nil {
		panic("session store cannot be nil")
	}
	if runner == nil {
		panic("workflow runner cannot be nil")
	}
	if reporter == nil {
		panic("reporter cannot be nil")
	}
	return &Processor{store: store, runner: runner, reporter: reporter}
}

// Process records the authorization outcome with the provider and hands the
// classified action to the workflow runner, which applies status, amount,
// and data blob to the session in one transition. The caller has already
// parsed and signature-checked the payload.
func (p *Processor) Process(ctx stdcontext.Context, tc custom_context.TraceContext, prov provider.PaymentProvider, action provider.WebhookAction) error {
	tracer := otel.Tracer("webhook")
	_, span := tracer.Start(ctx, "Processor.Process")
	defer span.End()

	authOut, err := prov.AuthorizePayment(tc, provider.AuthorizeContext{
		PaymentID:      action.PaymentID,
		Source:         action.Source,
		StatusOverride: action.Status,
	})
	if err != nil {
		return fmt.Errorf("webhook: authorize failed for session %s: %w", action.SessionID, err)
	}

	// The runner owns the store mutation: status, amount, and the
	// authorize-produced data blob land in one transition. Stale
	// re-deliveries are swallowed inside the runner.
	if err := p.runner.Run(session.WorkflowInput{
		Action:    action.Action,
		SessionID: action.SessionID,
		Amount:    action.Amount,
		Data:      authOut.Data,
	}); err != nil {
		return fmt.Errorf("webhook: workflow failed for session %s: %w", action.SessionID, err)
	}

	sess, err := p.store.Get(action.SessionID)
	if err != nil {
		return fmt.Errorf("webhook: session lookup failed: %w", err)
	}

	p.reporter.Record(reporting.Entry{
		SessionID: action.SessionID,
		Provider:  prov.Identifier(),
		Action:    string(action.Action),
		Amount:    action.Amount,
		Currency:  sess.Currency,
	})

	log.Printf("webhook: applied action %s to session %s (amount %d)", action.Action, action.SessionID, action.Amount)
	return nil
}

// actionNeedsSession reports whether the classified action carries an
// instruction for the workflow. failed and not_supported events are recorded
// and dropped without touching any session.
func actionNeedsSession(action classifier.Action) bool {
	switch action {
	case classifier.ActionFailed, classifier.ActionNotSupported:
		return false
	default:
		return true
	}
}
