// Handlers that launch pipeline runs. Starting a run schedules the runner
// as an independent goroutine; the request returns the session id
// immediately and observers follow progress over the WebSocket.

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/pipeline"
	"github.com/jaehyun-ko/newsight/internal/scoring"
	"github.com/jaehyun-ko/newsight/internal/session"
)

// StartAnalysisPayload is the expected body of POST /api/analysis/start.
// SessionID is optional; when set, the run is tracked under the caller's
// id instead of a generated one.
type StartAnalysisPayload struct {
	DatasetID string `json:"dataset_id"`
	SessionID string `json:"session_id"`
	BatchSize int    `json:"batch_size"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	PromptID  string `json:"prompt_id"`
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var payload StartAnalysisPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	records, ok := s.loadRecords(w, payload.DatasetID)
	if !ok {
		return
	}

	prompt := scoring.DefaultPrompt
	if payload.PromptID != "" {
		p, err := s.store.GetPrompt(payload.PromptID)
		if err != nil {
			RespondWithError(w, http.StatusNotFound, "Prompt not found")
			return
		}
		prompt = p.Template
	} else if p, err := s.store.GetActivePrompt(); err == nil {
		prompt = p.Template
	}

	cfg := s.app.Config
	apiKey := payload.APIKey
	if apiKey == "" {
		apiKey = cfg.Scoring.APIKey
	}
	model := payload.Model
	if model == "" {
		model = cfg.Scoring.Model
	}

	sess := s.createSession(w, payload.SessionID, "classification")
	if sess == nil {
		return
	}
	runner := pipeline.NewRunner(
		s.app.Registry,
		s.app.Hub,
		s.newScorer(apiKey, model, prompt),
		pipeline.NewClassifyAggregator(s.store),
		s.runnerOptions(payload.BatchSize),
	)
	go runner.Run(context.Background(), sess.ID(), records)

	log.Printf("Started analysis session %s for dataset %s (%d records)",
		sess.ID(), payload.DatasetID, len(records))
	RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": sess.ID(),
		"total":      len(records),
	})
}

// StartDeduplicationPayload is the expected body of POST /api/deduplication/start.
type StartDeduplicationPayload struct {
	DatasetID           string  `json:"dataset_id"`
	SessionID           string  `json:"session_id"`
	BatchSize           int     `json:"batch_size"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	EmbeddingModel      string  `json:"embedding_model"`
	APIKey              string  `json:"api_key"`
}

func (s *Server) handleStartDeduplication(w http.ResponseWriter, r *http.Request) {
	var payload StartDeduplicationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	records, ok := s.loadRecords(w, payload.DatasetID)
	if !ok {
		return
	}

	cfg := s.app.Config
	apiKey := payload.APIKey
	if apiKey == "" {
		apiKey = cfg.Scoring.APIKey
	}
	model := payload.EmbeddingModel
	if model == "" {
		model = cfg.Scoring.EmbeddingModel
	}
	threshold := payload.SimilarityThreshold
	if threshold == 0 {
		threshold = cfg.Deduplication.SimilarityThreshold
	}

	sess := s.createSession(w, payload.SessionID, "deduplication")
	if sess == nil {
		return
	}
	runner := pipeline.NewRunner(
		s.app.Registry,
		s.app.Hub,
		pipeline.EmbeddingScorer{Embedder: s.newEmbedder(apiKey, model)},
		pipeline.NewDedupAggregator(s.store, threshold),
		s.runnerOptions(payload.BatchSize),
	)
	go runner.Run(context.Background(), sess.ID(), records)

	log.Printf("Started deduplication session %s for dataset %s (%d records, threshold %.2f)",
		sess.ID(), payload.DatasetID, len(records), threshold)
	RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": sess.ID(),
		"total":      len(records),
	})
}

// createSession registers the run's session, honoring a caller-supplied id
// when one is given. Reusing an id whose session is still live is a
// conflict; ids of finished sessions may be reused.
func (s *Server) createSession(w http.ResponseWriter, id, kind string) *session.Session {
	if id == "" {
		return s.app.Registry.Create(kind)
	}
	sess, err := s.app.Registry.CreateWithID(id, kind)
	if err != nil {
		RespondWithError(w, http.StatusConflict, "Session id is already in use")
		return nil
	}
	return sess
}

func (s *Server) loadRecords(w http.ResponseWriter, datasetID string) ([]models.Record, bool) {
	if datasetID == "" {
		RespondWithError(w, http.StatusBadRequest, "dataset_id is required")
		return nil, false
	}
	if _, err := s.store.GetDataset(datasetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Dataset not found")
		} else {
			RespondWithError(w, http.StatusInternalServerError, "Failed to load dataset")
		}
		return nil, false
	}

	records, err := s.store.GetDatasetRecords(datasetID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to load dataset records")
		return nil, false
	}
	if len(records) == 0 {
		RespondWithError(w, http.StatusBadRequest, "Dataset has no records")
		return nil, false
	}
	return records, true
}

func (s *Server) runnerOptions(batchSize int) pipeline.Options {
	cfg := s.app.Config
	if batchSize < 1 {
		batchSize = cfg.Pipeline.BatchSize
	}
	return pipeline.Options{
		BatchSize:              batchSize,
		MaxRetries:             cfg.Pipeline.MaxRetries,
		MaxConsecutiveFailures: cfg.Pipeline.MaxConsecutiveFailures,
	}
}
