// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jaehyun-ko/newsight/internal/core"
	"github.com/jaehyun-ko/newsight/internal/pipeline"
	"github.com/jaehyun-ko/newsight/internal/scoring"
	"github.com/jaehyun-ko/newsight/internal/session"
	"github.com/jaehyun-ko/newsight/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store

	// Scorer construction is injectable so tests can swap in mocks.
	newScorer   func(apiKey, model, prompt string) pipeline.Scorer
	newEmbedder func(apiKey, model string) pipeline.Embedder
}

// NewServer creates a new Server instance and wires the hub's stop-control
// hook to the session registry.
func NewServer(app *core.App) *Server {
	s := &Server{
		app:   app,
		store: app.Store,
	}

	cfg := app.Config
	s.newScorer = func(apiKey, model, prompt string) pipeline.Scorer {
		client := scoring.NewClient(cfg.Scoring.BaseURL, apiKey, model,
			cfg.Scoring.EmbeddingModel, cfg.ScoringTimeout())
		client.SetPrompt(prompt)
		return client
	}
	s.newEmbedder = func(apiKey, model string) pipeline.Embedder {
		return scoring.NewClient(cfg.Scoring.BaseURL, apiKey,
			cfg.Scoring.Model, model, cfg.ScoringTimeout())
	}

	// Observers may send a stop instruction over the progress socket.
	app.Hub.OnStop = func(sessionID string) {
		if sess, err := app.Registry.Get(sessionID); err == nil {
			sess.RequestStop()
		}
	}

	return s
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// SetScorerFactory overrides scorer construction, for testing.
func (s *Server) SetScorerFactory(f func(apiKey, model, prompt string) pipeline.Scorer) {
	s.newScorer = f
}

// SetEmbedderFactory overrides embedder construction, for testing.
func (s *Server) SetEmbedderFactory(f func(apiKey, model string) pipeline.Embedder) {
	s.newEmbedder = f
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleGetVersion)

		// Pipeline triggers
		r.Post("/analysis/start", s.handleStartAnalysis)
		r.Post("/deduplication/start", s.handleStartDeduplication)

		// Session control and polling fallback
		r.Get("/sessions/{sessionID}", s.handleGetSessionStatus)
		r.Post("/sessions/{sessionID}/stop", s.handleStopSession)

		// Dataset Routes
		r.Get("/datasets", s.handleListDatasets)
		r.Post("/datasets", s.handleCreateDataset)
		r.Get("/datasets/{datasetID}/records", s.handleGetDatasetRecords)
		r.Delete("/datasets/{datasetID}", s.handleDeleteDataset)

		// Prompt Template Routes
		r.Get("/prompts", s.handleListPrompts)
		r.Post("/prompts", s.handleCreatePrompt)
		r.Put("/prompts/{promptID}", s.handleUpdatePrompt)
		r.Post("/prompts/{promptID}/activate", s.handleActivatePrompt)
		r.Delete("/prompts/{promptID}", s.handleDeletePrompt)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := s.app.DB.Ping(); err != nil {
				RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
				return
			}
			RespondWithJSON(w, http.StatusOK, map[string]interface{}{
				"status":   "ok",
				"sessions": s.app.Registry.Len(),
			})
		})
	})

	// WebSocket route for progress subscriptions
	r.Get("/ws/{sessionID}", s.handleProgressSocket)

	return r
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}

// getSession resolves a session id URL parameter, writing a 404 when the
// session does not exist (or was already evicted).
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) *session.Session {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.app.Registry.Get(sessionID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "Session not found")
		return nil
	}
	return sess
}
