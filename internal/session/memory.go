package session

import (
	"log"
	"sync"

	"github.com/yourorg/checkout-reconciler/internal/classifier"
)

// MemoryStore is an in-memory Store for wiring and tests. All mutations go
// through a single mutex so ProposeTransition is an atomic
// read-modify-write, which is what the concurrent webhook/poller paths rely
// on.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]PaymentSession
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]PaymentSession),
	}
}

// Get fetches a session by id.
func (s *MemoryStore) Get(sessionID string) (PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return PaymentSession{}, &ErrNotFound{SessionID: sessionID}
	}
	return copySession(sess), nil
}

// Upsert stores a session, creating it if needed. An empty status defaults
// to pending.
func (s *MemoryStore) Upsert(sess PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Status == "" {
		sess.Status = classifier.StatusPending
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

// ProposeTransition applies a status change if the lifecycle allows it,
// merging data into the opaque blob and recording a positive amount on the
// session in the same critical section. Re-applying the current status is
// idempotent: the gateway reports absolute amounts, so writing the same
// snapshot twice changes nothing.
func (s *MemoryStore) ProposeTransition(sessionID string, status classifier.Status, amount int64, data map[string]interface{}) (PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return PaymentSession{}, &ErrNotFound{SessionID: sessionID}
	}

	if !CanTransition(sess.Status, status) {
		return PaymentSession{}, &ErrInvalidTransition{SessionID: sessionID, From: sess.Status, To: status}
	}

	sess.Status = status
	if amount > 0 {
		sess.Amount = amount
	}
	if sess.Data == nil {
		sess.Data = make(map[string]interface{})
	}
	for k, v := range data {
		sess.Data[k] = v
	}
	s.sessions[sessionID] = sess
	return copySession(sess), nil
}

func copySession(sess PaymentSession) PaymentSession {
	out := sess
	if sess.Data != nil {
		out.Data = make(map[string]interface{}, len(sess.Data))
		for k, v := range sess.Data {
			out.Data[k] = v
		}
	}
	return out
}

// MemoryWorkflowRunner applies classified actions to a MemoryStore-backed
// session. It stands in for the commerce backend's payment workflow in local
// wiring and tests.
type MemoryWorkflowRunner struct {
	store Store
}

// NewMemoryWorkflowRunner creates a runner bound to the given store.
func NewMemoryWorkflowRunner(store Store) *MemoryWorkflowRunner {
	if store == nil {
		panic("session store cannot be nil")
	}
	return &MemoryWorkflowRunner{store: store}
}

// Run applies the classified action to the session in a single store
// transition: status, amount, and data blob land together or not at all.
// not_supported actions are ignored; invalid transitions on a re-delivered
// webhook are logged and swallowed so a duplicate delivery cannot fail the
// ingestion path, while genuinely unknown sessions still error.
func (r *MemoryWorkflowRunner) Run(input WorkflowInput) error {
	status, ok := statusFor(input.Action)
	if !ok {
		log.Printf("workflow: ignoring action %q for session %s", input.Action, input.SessionID)
		return nil
	}

	if _, err := r.store.ProposeTransition(input.SessionID, status, input.Amount, input.Data); err != nil {
		if staleErr, stale := err.(*ErrInvalidTransition); stale {
			log.Printf("workflow: stale action %q for session %s (status %s), skipping", input.Action, input.SessionID, staleErr.From)
			return nil
		}
		return err
	}
	return nil
}
