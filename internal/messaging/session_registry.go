package messaging

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/LuckyPipe/internal/models"
)

// sessionSlot serializes access to one session. refs counts callers holding
// or waiting for mu and is guarded by the registry lock.
type sessionSlot struct {
	mu   sync.Mutex
	sess *models.Session
	refs int
}

// SessionRegistry owns the per-conversation sessions, keyed by session id.
// Sessions live in memory only. They are created on first use and dropped on
// release once no caller holds them and their flow is idle, so only
// conversations with a flow in progress take up space.
type SessionRegistry struct {
	mu    sync.Mutex
	slots map[string]*sessionSlot
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{slots: make(map[string]*sessionSlot)}
}

// Acquire locks the session with the given id, creating it if needed, and
// returns it with the function that releases the lock.
func (r *SessionRegistry) Acquire(id string) (*models.Session, func()) {
	s, _ := r.lock(id, true)
	return s.sess, r.releaser(id, s)
}

// lock takes a reference on the slot for id and locks it. Without create, a
// missing slot is reported instead of made.
func (r *SessionRegistry) lock(id string, create bool) (*sessionSlot, bool) {
	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		if !create {
			r.mu.Unlock()
			return nil, false
		}
		s = &sessionSlot{sess: models.NewSession(id)}
		r.slots[id] = s
		slog.Debug("SessionRegistry: session created", "sessionID", id)
	}
	s.refs++
	r.mu.Unlock()

	s.mu.Lock()
	return s, true
}

func (r *SessionRegistry) releaser(id string, s *sessionSlot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Unlock()

			r.mu.Lock()
			defer r.mu.Unlock()
			s.refs--
			// With no refs left nobody can reach the session without r.mu.
			if s.refs == 0 && s.sess.State.Idle() {
				delete(r.slots, id)
				slog.Debug("SessionRegistry: idle session dropped", "sessionID", id)
			}
		})
	}
}

// Step returns the current step of a session, if the session exists.
func (r *SessionRegistry) Step(id string) (models.StepName, bool) {
	s, ok := r.lock(id, false)
	if !ok {
		return "", false
	}
	defer r.releaser(id, s)()
	return s.sess.State.Current(), true
}

// Count returns the number of sessions held.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// IDs returns the held session ids in sorted order.
func (r *SessionRegistry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}
