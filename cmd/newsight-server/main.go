package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jaehyun-ko/newsight/internal/api"
	"github.com/jaehyun-ko/newsight/internal/core"
	"github.com/jaehyun-ko/newsight/internal/ingest"
	"github.com/jaehyun-ko/newsight/internal/jobs"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	// Start the progress event hub
	go app.Hub.Run()

	// Make sure the data directory exists, then run an initial import pass.
	if err := os.MkdirAll(app.Config.Data.Path, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	importer := ingest.New(app.Store, app.Config.Data.Path)
	importer.EnrichContent = true
	if n, err := importer.ImportDir(); err != nil {
		log.Printf("Warning: initial import failed: %v", err)
	} else if n > 0 {
		log.Printf("Initial import created %d datasets", n)
	}

	// Watch the data directory for newly dropped record files.
	if app.Config.Data.Watch {
		watcher := ingest.NewWatcher(importer)
		if err := watcher.Start(); err != nil {
			log.Printf("Warning: could not start file watcher: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	// Background jobs: session reaper and periodic import sweep.
	reapInterval := time.Duration(app.Config.Sessions.ReapIntervalMinutes) * time.Minute
	jobs.StartJobs(app.Registry, importer, reapInterval)

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config.Port)
	log.Printf("Starting web server on %s", addr)

	// Start the HTTP server
	if err := http.ListenAndServe(addr, server.Router()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
