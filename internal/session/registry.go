// The registry is the single source of truth for active and recently
// finished sessions. It only guards the id -> session map; each session
// carries its own lock.

package session

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or already evicted session ids.
var ErrNotFound = errors.New("session not found")

// Registry creates, looks up and expires sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	retention   time.Duration
	maxTerminal int
}

// NewRegistry creates a registry. Terminal sessions are kept for the given
// retention window and capped at maxTerminal entries, oldest finished first.
func NewRegistry(retention time.Duration, maxTerminal int) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		retention:   retention,
		maxTerminal: maxTerminal,
	}
}

// Create registers a new pending session and returns it.
func (r *Registry) Create(kind string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	for r.sessions[id] != nil {
		id = uuid.New().String()
	}
	s := newSession(id, kind)
	r.sessions[id] = s
	return s
}

// CreateWithID registers a session under a caller-chosen id. A live id may
// not be reused; a terminal session under the same id is evicted first.
func (r *Registry) CreateWithID(id, kind string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok {
		if !existing.Terminal() {
			return nil, fmt.Errorf("session %q is still live", id)
		}
		delete(r.sessions, id)
	}
	s := newSession(id, kind)
	r.sessions[id] = s
	return s, nil
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictExpired removes terminal sessions that finished before the retention
// window, then trims the remaining terminal sessions down to the configured
// cap, oldest finished first. It returns the number of evicted sessions.
func (r *Registry) EvictExpired() int {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	var terminal []*Session
	for id, s := range r.sessions {
		if s.finishedBefore(cutoff) {
			delete(r.sessions, id)
			evicted++
			continue
		}
		if s.Terminal() {
			terminal = append(terminal, s)
		}
	}

	if r.maxTerminal > 0 && len(terminal) > r.maxTerminal {
		sort.Slice(terminal, func(i, j int) bool {
			return terminal[i].finishedAtOrZero().Before(terminal[j].finishedAtOrZero())
		})
		for _, s := range terminal[:len(terminal)-r.maxTerminal] {
			delete(r.sessions, s.ID())
			evicted++
		}
	}

	if evicted > 0 {
		log.Printf("Evicted %d finished sessions", evicted)
	}
	return evicted
}
