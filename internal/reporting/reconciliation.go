// Package reporting aggregates reconciliation activity into an operator
// report: which webhook actions arrived, what amounts they carried, and how
// redirect reconciliations terminated.
package reporting

import (
	"sync"
	"time"
)

// Entry is a single reconciliation event, recorded by the webhook ingestion
// path and the redirect poller.
type Entry struct {
	Timestamp time.Time
	SessionID string
	Provider  string
	Action    string // classified webhook action, or poller outcome
	Amount    int64
	Currency  string
	ErrorCode string
}

// ReconciliationReport summarizes recorded entries.
type ReconciliationReport struct {
	TotalEvents      int              `json:"total_events"`
	ActionBreakdown  map[string]int   `json:"action_breakdown"`
	AmountByCurrency map[string]int64 `json:"amount_by_currency"` // captured amounts only
	ProviderUsage    map[string]int   `json:"provider_usage"`
	ErrorBreakdown   map[string]int   `json:"error_breakdown"`
	DateFrom         time.Time        `json:"date_from"`
	DateTo           time.Time        `json:"date_to"`
}

// Reporter records entries and generates reports. Safe for concurrent use;
// the webhook and poller paths record from separate requests.
type Reporter struct {
	mu      sync.Mutex
	entries []Entry
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Record appends one event. A zero timestamp gets the current time.
func (r *Reporter) Record(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// Generate summarizes everything recorded so far.
func (r *Reporter) Generate() *ReconciliationReport {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	report := &ReconciliationReport{
		ActionBreakdown:  make(map[string]int),
		AmountByCurrency: make(map[string]int64),
		ProviderUsage:    make(map[string]int),
		ErrorBreakdown:   make(map[string]int),
	}
	if len(entries) == 0 {
		return report
	}

	report.DateFrom = entries[0].Timestamp
	report.DateTo = entries[0].Timestamp

	for _, entry := range entries {
		report.TotalEvents++

		if entry.Timestamp.Before(report.DateFrom) {
			report.DateFrom = entry.Timestamp
		}
		if entry.Timestamp.After(report.DateTo) {
			report.DateTo = entry.Timestamp
		}

		if entry.Action != "" {
			report.ActionBreakdown[entry.Action]++
		}
		if entry.Provider != "" {
			report.ProviderUsage[entry.Provider]++
		}
		if entry.ErrorCode != "" {
			report.ErrorBreakdown[entry.ErrorCode]++
		}
		if entry.Action == "captured" && entry.Currency != "" {
			report.AmountByCurrency[entry.Currency] += entry.Amount
		}
	}
	return report
}
