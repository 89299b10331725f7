// Session status polling, stop control and the progress WebSocket.

package api

import (
	"net/http"

	"github.com/jaehyun-ko/newsight/internal/models"
)

// handleGetSessionStatus is the polling fallback for clients that cannot
// hold a WebSocket open.
func (s *Server) handleGetSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	snap := sess.Snapshot()
	resp := map[string]interface{}{
		"session": snap,
	}
	if stats := sess.FinalStats(); stats != nil {
		resp["final_stats"] = stats
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

// handleStopSession requests cooperative cancellation. It is idempotent:
// repeated calls, and calls on already finished sessions, acknowledge with
// the current status and change nothing.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	status, changed := sess.RequestStop()
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":     sess.ID(),
		"status":         status,
		"stop_requested": changed || status == models.StatusRunning || status == models.StatusPending,
	})
}

// handleProgressSocket attaches an observer to a session's event stream.
// The first event is always a connected greeting carrying the current
// snapshot, so late subscribers see prior progress immediately. For
// sessions that already finished, the terminal event is replayed right
// after the greeting and the connection is closed. The finished check runs
// on the hub goroutine at registration time, so a session that finalizes
// while the connection is being set up is still replayed rather than left
// hanging on a torn-down room.
func (s *Server) handleProgressSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.getSession(w, r)
	if sess == nil {
		return
	}

	snap := sess.Snapshot()
	greeting := models.ProgressEvent{
		Type:      models.EventConnected,
		SessionID: sess.ID(),
		Current:   snap.Current,
		Total:     snap.Total,
		Snapshot:  &snap,
	}

	s.app.Hub.ServeWs(w, r, sess.ID(), greeting, func() *models.ProgressEvent {
		snap := sess.Snapshot()
		var eventType string
		switch snap.Status {
		case models.StatusCompleted:
			eventType = models.EventCompleted
		case models.StatusStopped:
			eventType = models.EventStopped
		case models.StatusFailed:
			eventType = models.EventError
		default:
			return nil
		}
		return &models.ProgressEvent{
			Type:      eventType,
			SessionID: sess.ID(),
			Current:   snap.Current,
			Total:     snap.Total,
			Stats:     sess.FinalStats(),
		}
	})
}
