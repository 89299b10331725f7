package jobs

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/jaehyun-ko/newsight/internal/ingest"
	"github.com/jaehyun-ko/newsight/internal/session"
)

// StartJobs starts the background job scheduler: the session reaper and the
// periodic data directory sweep.
func StartJobs(registry *session.Registry, importer *ingest.Importer, reapInterval time.Duration) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startSessionReaperJob(s, registry, reapInterval)
	startImportSweepJob(s, importer)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func startSessionReaperJob(s *gocron.Scheduler, registry *session.Registry, interval time.Duration) {
	if interval <= 0 {
		log.Println("Session reap interval is 0, eviction is disabled.")
		return
	}

	log.Printf("Scheduling job: 'session-reaper' to run every %s.", interval)
	_, err := s.Every(interval).Do(func() {
		registry.EvictExpired()
	})
	if err != nil {
		log.Printf("Error scheduling 'session-reaper' job: %v", err)
	}
}

func startImportSweepJob(s *gocron.Scheduler, importer *ingest.Importer) {
	if importer == nil {
		return
	}

	log.Println("Scheduling job: 'import-sweep' to run every 10 minutes.")
	_, err := s.Every(10).Minutes().Do(func() {
		if n, err := importer.ImportDir(); err != nil {
			log.Printf("Scheduled import sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("Import sweep created %d datasets", n)
		}
	})
	if err != nil {
		log.Printf("Error scheduling 'import-sweep' job: %v", err)
	}
}
