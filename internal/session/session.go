// The session entity tracks one pipeline run. All mutation happens through
// methods that take the session's own lock, so unrelated sessions never
// contend with each other.

package session

import (
	"sync"
	"time"

	"github.com/jaehyun-ko/newsight/internal/models"
)

const (
	recentItemsCap = 5
	errorsCap      = 10
)

// Session is one tracked pipeline run. The registry owns the canonical
// value; the runner mutates it and everything else reads snapshots.
type Session struct {
	mu sync.Mutex

	id   string
	kind string

	status          string
	stage           string
	total           int
	current         int
	startedAt       *time.Time
	finishedAt      *time.Time
	stats           models.Stats
	recentItems     []models.RecordSummary
	errors          []models.SessionError
	cancelRequested bool
	finalStats      interface{}
}

func newSession(id, kind string) *Session {
	return &Session{
		id:     id,
		kind:   kind,
		status: models.StatusPending,
		stats:  models.Stats{Categories: make(map[string]int)},
	}
}

// ID returns the session's routing key.
func (s *Session) ID() string { return s.id }

// Kind returns the pipeline variant ("classification" or "deduplication").
func (s *Session) Kind() string { return s.kind }

// Start transitions the session to running and fixes the total.
func (s *Session) Start(total int, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != models.StatusPending {
		return
	}
	now := time.Now()
	s.status = models.StatusRunning
	s.startedAt = &now
	s.total = total
	s.stage = stage
}

// SetStage updates the advisory stage label.
func (s *Session) SetStage(stage string) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// Advance records one processed record (success or failure), increments
// current exactly once, and returns the new current and the fixed total.
func (s *Session) Advance(item models.RecordSummary, recErr *models.SessionError) (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isTerminalLocked() {
		return s.current, s.total
	}
	if s.current < s.total {
		s.current++
	}

	if recErr != nil {
		s.stats.Failed++
		s.errors = append(s.errors, *recErr)
		if len(s.errors) > errorsCap {
			s.errors = s.errors[len(s.errors)-errorsCap:]
		}
	} else {
		s.stats.Succeeded++
	}

	if item.Category != "" {
		s.stats.Categories[item.Category]++
	}
	s.recentItems = append(s.recentItems, item)
	if len(s.recentItems) > recentItemsCap {
		s.recentItems = s.recentItems[len(s.recentItems)-recentItemsCap:]
	}

	return s.current, s.total
}

// CountRelevant bumps the relevant tally. Kept separate from Advance so the
// deduplication variant never touches it.
func (s *Session) CountRelevant() {
	s.mu.Lock()
	if !s.isTerminalLocked() {
		s.stats.Relevant++
	}
	s.mu.Unlock()
}

// RequestStop flips the one-way cancellation latch. It is idempotent and a
// no-op on terminal sessions. The returned status is the session's status
// at the time of the call.
func (s *Session) RequestStop() (status string, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminalLocked() || s.cancelRequested {
		return s.status, false
	}
	s.cancelRequested = true
	return s.status, true
}

// CancelRequested reports the latch. The runner checks it at batch
// boundaries only.
func (s *Session) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// Finalize performs the single transition to a terminal status. Only the
// first caller wins; later calls return false and change nothing.
func (s *Session) Finalize(status string, finalStats interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminalLocked() {
		return false
	}
	now := time.Now()
	s.status = status
	s.finishedAt = &now
	s.finalStats = finalStats
	return true
}

// FinalStats returns the frozen terminal stats, or nil while running.
func (s *Session) FinalStats() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalStats
}

// Snapshot returns a point-in-time copy of the session, safe to marshal.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.SessionSnapshot{
		ID:              s.id,
		Kind:            s.kind,
		Status:          s.status,
		Stage:           s.stage,
		Current:         s.current,
		Total:           s.total,
		StartedAt:       s.startedAt,
		FinishedAt:      s.finishedAt,
		CancelRequested: s.cancelRequested,
		Stats: models.Stats{
			Succeeded:  s.stats.Succeeded,
			Failed:     s.stats.Failed,
			Relevant:   s.stats.Relevant,
			Categories: make(map[string]int, len(s.stats.Categories)),
		},
		RecentItems: append([]models.RecordSummary(nil), s.recentItems...),
		Errors:      append([]models.SessionError(nil), s.errors...),
	}
	for k, v := range s.stats.Categories {
		snap.Stats.Categories[k] = v
	}
	if s.total > 0 {
		snap.Percentage = round1(float64(s.current) / float64(s.total) * 100)
	}
	return snap
}

// Terminal reports whether the session has reached a terminal status.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTerminalLocked()
}

func (s *Session) isTerminalLocked() bool {
	switch s.status {
	case models.StatusCompleted, models.StatusStopped, models.StatusFailed:
		return true
	}
	return false
}

func (s *Session) finishedBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTerminalLocked() && s.finishedAt != nil && s.finishedAt.Before(cutoff)
}

func (s *Session) finishedAtOrZero() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedAt == nil {
		return time.Time{}
	}
	return *s.finishedAt
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
