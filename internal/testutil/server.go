// A shared test server setup utility, which simplifies all API tests.

package testutil

import (
	"testing"
	"time"

	"github.com/jaehyun-ko/newsight/internal/config"
	"github.com/jaehyun-ko/newsight/internal/core"
	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/session"
	"github.com/jaehyun-ko/newsight/internal/store"
	"github.com/jaehyun-ko/newsight/internal/websocket"
)

// SetupTestApp builds a core.App backed by an in-memory database, a fresh
// registry and a running hub.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	database := SetupTestDB(t)

	cfg := &config.Config{}
	cfg.Pipeline.BatchSize = 3
	cfg.Pipeline.MaxRetries = 2
	cfg.Pipeline.MaxConsecutiveFailures = 5
	cfg.Deduplication.SimilarityThreshold = 0.85
	cfg.Progress.HeartbeatSeconds = 1

	hub := websocket.NewHub(time.Second)
	go hub.Run()

	return &core.App{
		Config:   cfg,
		DB:       database,
		Store:    store.New(database),
		Hub:      hub,
		Registry: session.NewRegistry(30*time.Minute, 100),
		Version:  "test",
	}
}

// SeedDataset inserts a dataset with n generated records and returns its id.
func SeedDataset(t *testing.T, st *store.Store, name string, n int) string {
	t.Helper()
	records := make([]models.Record, n)
	for i := range records {
		records[i] = models.Record{
			Title:   name + " record " + string(rune('A'+i%26)),
			URL:     "https://news.example.com/" + name,
			Content: "body of record",
		}
	}
	id, err := st.CreateDataset(name, "test", records)
	if err != nil {
		t.Fatalf("Failed to seed dataset: %v", err)
	}
	return id
}
