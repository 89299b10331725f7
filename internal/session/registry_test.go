package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaehyun-ko/newsight/internal/models"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(time.Hour, 100)

	sess := r.Create("classification")
	if sess.ID() == "" {
		t.Fatal("Expected a non-empty session id")
	}

	got, err := r.Get(sess.ID())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != sess {
		t.Error("Get returned a different session instance")
	}

	snap := got.Snapshot()
	if snap.Status != models.StatusPending {
		t.Errorf("Expected new session to be pending, got %s", snap.Status)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(time.Hour, 100)

	_, err := r.Get("no-such-session")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestRegistryRejectsLiveIDReuse(t *testing.T) {
	r := NewRegistry(time.Hour, 100)

	sess, err := r.CreateWithID("fixed-id", "classification")
	if err != nil {
		t.Fatalf("CreateWithID failed: %v", err)
	}

	if _, err := r.CreateWithID("fixed-id", "classification"); err == nil {
		t.Fatal("Expected re-creation of a live id to fail")
	}

	// Once the session is terminal the id can be reused.
	sess.Finalize(models.StatusCompleted, nil)
	if _, err := r.CreateWithID("fixed-id", "classification"); err != nil {
		t.Fatalf("Expected reuse of a terminal id to succeed, got %v", err)
	}
}

func TestSessionAdvance(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(3, "classifying records")

	current, total := sess.Advance(models.RecordSummary{Title: "a", Category: "other"}, nil)
	if current != 1 || total != 3 {
		t.Fatalf("Expected 1/3, got %d/%d", current, total)
	}

	// A failed record still counts as processed.
	current, _ = sess.Advance(models.RecordSummary{Title: "b", Failed: true},
		&models.SessionError{Position: 1, Title: "b", Message: "boom"})
	if current != 2 {
		t.Fatalf("Expected current 2 after failure, got %d", current)
	}

	snap := sess.Snapshot()
	if snap.Stats.Succeeded != 1 || snap.Stats.Failed != 1 {
		t.Errorf("Expected 1 succeeded / 1 failed, got %d/%d", snap.Stats.Succeeded, snap.Stats.Failed)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].Position != 1 {
		t.Errorf("Expected one error for position 1, got %+v", snap.Errors)
	}
}

func TestSessionCurrentNeverExceedsTotal(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(2, "")

	for i := 0; i < 5; i++ {
		sess.Advance(models.RecordSummary{Title: "x"}, nil)
	}
	if snap := sess.Snapshot(); snap.Current > snap.Total {
		t.Errorf("current %d exceeds total %d", snap.Current, snap.Total)
	}
}

func TestSessionRecentItemsBounded(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(20, "")

	for i := 0; i < 20; i++ {
		sess.Advance(models.RecordSummary{Title: "item", Category: "other"}, nil)
	}

	snap := sess.Snapshot()
	if len(snap.RecentItems) != recentItemsCap {
		t.Errorf("Expected recent items capped at %d, got %d", recentItemsCap, len(snap.RecentItems))
	}
}

func TestSessionErrorsBounded(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(30, "")

	for i := 0; i < 30; i++ {
		sess.Advance(models.RecordSummary{Failed: true},
			&models.SessionError{Position: i, Message: "fail"})
	}

	snap := sess.Snapshot()
	if len(snap.Errors) != errorsCap {
		t.Errorf("Expected errors capped at %d, got %d", errorsCap, len(snap.Errors))
	}
	// The most recent errors are the ones kept.
	if snap.Errors[len(snap.Errors)-1].Position != 29 {
		t.Errorf("Expected last error position 29, got %d", snap.Errors[len(snap.Errors)-1].Position)
	}
}

func TestRequestStopIdempotent(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(10, "")

	if _, changed := sess.RequestStop(); !changed {
		t.Fatal("Expected first stop request to flip the latch")
	}
	if _, changed := sess.RequestStop(); changed {
		t.Fatal("Expected second stop request to be a no-op")
	}
	if !sess.CancelRequested() {
		t.Fatal("Expected latch to stay set")
	}

	sess.Finalize(models.StatusStopped, nil)
	status, changed := sess.RequestStop()
	if changed || status != models.StatusStopped {
		t.Errorf("Expected stop on terminal session to report status without effect, got %s/%v", status, changed)
	}
}

func TestFinalizeOnlyOnce(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(1, "")

	if !sess.Finalize(models.StatusCompleted, "stats") {
		t.Fatal("Expected first finalize to win")
	}
	if sess.Finalize(models.StatusStopped, "other") {
		t.Fatal("Expected second finalize to be rejected")
	}

	snap := sess.Snapshot()
	if snap.Status != models.StatusCompleted {
		t.Errorf("Expected status to stay completed, got %s", snap.Status)
	}
	if sess.FinalStats() != "stats" {
		t.Errorf("Expected final stats frozen by the first finalize")
	}
}

func TestConcurrentAdvance(t *testing.T) {
	r := NewRegistry(time.Hour, 100)
	sess := r.Create("classification")
	sess.Start(100, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Advance(models.RecordSummary{Title: "x"}, nil)
		}()
	}
	wg.Wait()

	if snap := sess.Snapshot(); snap.Current != 100 {
		t.Errorf("Expected current 100, got %d", snap.Current)
	}
}

func TestEvictExpired(t *testing.T) {
	r := NewRegistry(time.Millisecond, 100)

	done := r.Create("classification")
	done.Finalize(models.StatusCompleted, nil)
	live := r.Create("classification")
	live.Start(10, "")

	time.Sleep(10 * time.Millisecond)

	if evicted := r.EvictExpired(); evicted != 1 {
		t.Fatalf("Expected 1 eviction, got %d", evicted)
	}
	if _, err := r.Get(done.ID()); !errors.Is(err, ErrNotFound) {
		t.Error("Expected finished session to be evicted")
	}
	if _, err := r.Get(live.ID()); err != nil {
		t.Error("Expected live session to survive eviction")
	}
}

func TestEvictTerminalCap(t *testing.T) {
	r := NewRegistry(time.Hour, 2)

	oldest := r.Create("classification")
	oldest.Finalize(models.StatusCompleted, nil)
	time.Sleep(2 * time.Millisecond)
	for i := 0; i < 2; i++ {
		s := r.Create("classification")
		s.Finalize(models.StatusCompleted, nil)
		time.Sleep(2 * time.Millisecond)
	}

	if evicted := r.EvictExpired(); evicted != 1 {
		t.Fatalf("Expected 1 eviction from the cap, got %d", evicted)
	}
	if _, err := r.Get(oldest.ID()); !errors.Is(err, ErrNotFound) {
		t.Error("Expected the oldest finished session to be evicted first")
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 sessions left, got %d", r.Len())
	}
}
