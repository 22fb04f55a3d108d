// Package metrics registers the service's Prometheus collectors. Metrics are
// globally registered via promauto and scraped from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookActionsTotal counts ingested webhooks by provider and the
	// classified action that came out of them.
	WebhookActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_webhook_actions_total",
		Help: "Webhook events ingested, partitioned by provider and classified action.",
	}, []string{"provider", "action"})

	// WebhookFailuresTotal counts webhook requests rejected before the
	// workflow ran (bad signature, missing session id, downstream errors).
	WebhookFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_webhook_failures_total",
		Help: "Webhook requests that failed before completing the workflow.",
	}, []string{"provider", "reason"})

	// PollerOutcomesTotal counts redirect reconciliation runs by terminal
	// state (resolved, timed_out, order_missing).
	PollerOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_poller_outcomes_total",
		Help: "Redirect reconciliation poller runs by terminal outcome.",
	}, []string{"outcome"})

	// PollerAttempts observes how many delayed polls a reconciliation run
	// needed before terminating.
	PollerAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_poller_attempts",
		Help:    "Delayed cart polls performed per reconciliation run.",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	// GatewayRequestDuration observes gateway call latency by operation and
	// response class.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_gateway_request_duration_seconds",
		Help:    "Latency of Checkout.com API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
)
