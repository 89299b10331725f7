package models

import "time"

// Session statuses. A session starts pending, moves to running, and ends
// in exactly one of the terminal statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// Progress event types pushed to observers over the WebSocket.
const (
	EventConnected      = "connected"
	EventHeartbeat      = "heartbeat"
	EventPong           = "pong"
	EventProgressUpdate = "progress_update"
	EventCompleted      = "completed"
	EventStopped        = "stopped"
	EventError          = "error"
)

// RecordSummary is a display-only digest of a processed record.
type RecordSummary struct {
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Failed     bool    `json:"failed,omitempty"`
}

// SessionError describes one per-record failure.
type SessionError struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// Stats holds the running tallies for a session. Counters only ever grow
// until the session is finalized.
type Stats struct {
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Relevant   int            `json:"relevant"`
	Categories map[string]int `json:"categories"`
}

// SessionSnapshot is a point-in-time copy of a session, safe to marshal
// without holding any locks.
type SessionSnapshot struct {
	ID              string          `json:"session_id"`
	Kind            string          `json:"kind"`
	Status          string          `json:"status"`
	Stage           string          `json:"stage"`
	Current         int             `json:"current"`
	Total           int             `json:"total"`
	Percentage      float64         `json:"percentage"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	Stats           Stats           `json:"stats"`
	RecentItems     []RecordSummary `json:"recent_items"`
	Errors          []SessionError  `json:"errors"`
	CancelRequested bool            `json:"cancel_requested"`
}

// ProgressEvent is the wire-level unit pushed to observers. Exactly one
// terminal event (completed, stopped or error) is sent per session, and it
// is always the last event before the connection is closed.
type ProgressEvent struct {
	Type       string           `json:"type"`
	SessionID  string           `json:"session_id"`
	Current    int              `json:"current,omitempty"`
	Total      int              `json:"total,omitempty"`
	Percentage float64          `json:"percentage,omitempty"`
	Stage      string           `json:"stage,omitempty"`
	Item       *RecordSummary   `json:"item,omitempty"`
	Snapshot   *SessionSnapshot `json:"snapshot,omitempty"`
	Stats      interface{}      `json:"stats,omitempty"`
	Message    string           `json:"message,omitempty"`
}
