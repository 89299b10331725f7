// The runner drives one session from start to a terminal state: it splits
// the record collection into batches, scores every record, updates the
// session and emits progress events. Cancellation is cooperative and only
// observed between batches, so a stop request is honored within at most one
// batch of work.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/scoring"
	"github.com/jaehyun-ko/newsight/internal/session"
)

// Scorer is the external per-record scoring call consumed by the runner.
type Scorer interface {
	Score(ctx context.Context, rec models.Record) (models.ScoreResult, error)
}

// Embedder produces embedding vectors, used by the deduplication variant.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EventSink receives the events the runner produces. PublishTerminal marks
// the event as the last one for the session; the sink closes all
// subscriptions afterwards.
type EventSink interface {
	Publish(sessionID string, ev models.ProgressEvent)
	PublishTerminal(sessionID string, ev models.ProgressEvent)
}

// Options tune a runner. Zero values fall back to sane defaults.
type Options struct {
	BatchSize              int
	MaxRetries             int
	MaxConsecutiveFailures int
	RetryDelay             time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize < 1 {
		o.BatchSize = 10
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxConsecutiveFailures < 1 {
		o.MaxConsecutiveFailures = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	return o
}

// Runner executes one pipeline session. Construct one per session and call
// Run in its own goroutine; the triggering request returns immediately.
type Runner struct {
	registry *session.Registry
	sink     EventSink
	scorer   Scorer
	agg      Aggregator
	opts     Options
}

// NewRunner wires a runner for a single session.
func NewRunner(registry *session.Registry, sink EventSink, scorer Scorer, agg Aggregator, opts Options) *Runner {
	return &Runner{
		registry: registry,
		sink:     sink,
		scorer:   scorer,
		agg:      agg,
		opts:     opts.withDefaults(),
	}
}

// Run processes all records for the session and finalizes it exactly once.
func (r *Runner) Run(ctx context.Context, sessionID string, records []models.Record) {
	sess, err := r.registry.Get(sessionID)
	if err != nil {
		log.Printf("Runner: session %s vanished before start: %v", sessionID, err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Runner: session %s panicked: %v", sessionID, rec)
			r.finalize(sess, models.StatusFailed, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	sess.Start(len(records), r.agg.Stage())
	log.Printf("Runner: session %s started, %d records, batch size %d", sessionID, len(records), r.opts.BatchSize)

	consecutiveFailures := 0

	for start := 0; start < len(records); start += r.opts.BatchSize {
		// Cancellation checkpoint. In-flight scoring calls are never
		// interrupted; the latch only prevents the next batch.
		if sess.CancelRequested() {
			r.finalize(sess, models.StatusStopped, "stopped by user request")
			return
		}

		end := start + r.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}

		for _, rec := range records[start:end] {
			res, err := r.scoreWithRetry(ctx, rec)
			if err != nil {
				consecutiveFailures++
				r.recordFailure(sess, rec, err)
				if consecutiveFailures >= r.opts.MaxConsecutiveFailures {
					r.finalize(sess, models.StatusFailed,
						fmt.Sprintf("scoring failed for %d consecutive records: %v", consecutiveFailures, err))
					return
				}
				continue
			}
			consecutiveFailures = 0

			summary, relevant := r.agg.Observe(rec, res)
			if relevant {
				sess.CountRelevant()
			}
			current, total := sess.Advance(summary, nil)
			r.publishProgress(sess, current, total, &summary)
		}
	}

	r.finalize(sess, models.StatusCompleted, "")
}

// scoreWithRetry calls the scorer, retrying rate-limit responses a bounded
// number of times. Any other error is returned as-is.
func (r *Runner) scoreWithRetry(ctx context.Context, rec models.Record) (models.ScoreResult, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		res, err := r.scorer.Score(ctx, rec)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, scoring.ErrRateLimited) {
			return models.ScoreResult{}, err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * r.opts.RetryDelay):
		case <-ctx.Done():
			return models.ScoreResult{}, ctx.Err()
		}
	}
	return models.ScoreResult{}, lastErr
}

// recordFailure counts a failed record as processed and emits a progress
// update carrying the error indicator.
func (r *Runner) recordFailure(sess *session.Session, rec models.Record, err error) {
	log.Printf("Runner: session %s record %d failed: %v", sess.ID(), rec.Position, err)

	summary := models.RecordSummary{Title: rec.Title, Failed: true}
	r.agg.ObserveFailure(rec)
	current, total := sess.Advance(summary, &models.SessionError{
		Position: rec.Position,
		Title:    rec.Title,
		Message:  err.Error(),
	})
	r.publishProgress(sess, current, total, &summary)
}

func (r *Runner) publishProgress(sess *session.Session, current, total int, item *models.RecordSummary) {
	ev := models.ProgressEvent{
		Type:      models.EventProgressUpdate,
		SessionID: sess.ID(),
		Current:   current,
		Total:     total,
		Stage:     r.agg.Stage(),
		Item:      item,
	}
	if total > 0 {
		ev.Percentage = round1(float64(current) / float64(total) * 100)
	}
	r.sink.Publish(sess.ID(), ev)
}

// finalize freezes the session and emits the single terminal event. The
// compare-and-set on the session guarantees that duplicate completion paths
// (natural end racing a stop request) produce exactly one terminal event.
func (r *Runner) finalize(sess *session.Session, status, message string) {
	snap := sess.Snapshot()
	finalStats := r.agg.Finalize(snap)
	if !sess.Finalize(status, finalStats) {
		return
	}

	eventType := models.EventCompleted
	switch status {
	case models.StatusStopped:
		eventType = models.EventStopped
	case models.StatusFailed:
		eventType = models.EventError
	}

	log.Printf("Runner: session %s finished with status %s (%d/%d records)",
		sess.ID(), status, snap.Current, snap.Total)

	r.sink.PublishTerminal(sess.ID(), models.ProgressEvent{
		Type:      eventType,
		SessionID: sess.ID(),
		Current:   snap.Current,
		Total:     snap.Total,
		Stats:     finalStats,
		Message:   message,
	})
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
