// Package context carries the cross-cutting request data the reconciliation
// paths thread through every downstream call.
package context

import (
	"github.com/google/uuid"
)

// TraceContext carries only cross-cutting concerns needed for observability.
// One is created per inbound request (webhook, redirect, initiate) and passed
// to every gateway call made on behalf of that request; the gateway client
// derives its idempotency keys from it.
type TraceContext struct {
	TraceID string            // Globally unique ID for logs and spans
	SpanID  string            // Current span identifier
	Baggage map[string]string // Optional key-value flags (e.g., correlation data)
}

// NewTraceContext creates a new TraceContext with a unique TraceID and an initial SpanID.
func NewTraceContext() TraceContext {
	return TraceContext{
		TraceID: uuid.NewString(),
		SpanID:  uuid.NewString(),
		Baggage: make(map[string]string),
	}
}

// NewSpan generates a new SpanID for a child operation within the same trace.
func (tc *TraceContext) NewSpan() string {
	tc.SpanID = uuid.NewString()
	return tc.SpanID
}
