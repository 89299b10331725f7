package jobs

import (
	"testing"
	"time"

	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/session"
)

func TestSessionReaperJob(t *testing.T) {
	registry := session.NewRegistry(time.Millisecond, 100)

	sess := registry.Create("classification")
	sess.Start(1, "test")
	if !sess.Finalize(models.StatusCompleted, nil) {
		t.Fatal("Failed to finalize session")
	}

	scheduler := StartJobs(registry, nil, 20*time.Millisecond)
	defer scheduler.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("The reaper never evicted the expired session")
}

func TestReaperDisabledWithZeroInterval(t *testing.T) {
	registry := session.NewRegistry(time.Millisecond, 100)

	sess := registry.Create("classification")
	sess.Finalize(models.StatusCompleted, nil)

	scheduler := StartJobs(registry, nil, 0)
	defer scheduler.Stop()

	time.Sleep(100 * time.Millisecond)
	if registry.Len() != 1 {
		t.Errorf("Expected the session to survive with eviction disabled, got %d", registry.Len())
	}
}
