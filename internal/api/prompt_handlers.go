// A handler file for prompt template CRUD endpoints.

package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jaehyun-ko/newsight/internal/models"
)

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.store.ListPrompts()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list prompts")
		return
	}
	if prompts == nil {
		prompts = []*models.Prompt{}
	}
	RespondWithJSON(w, http.StatusOK, prompts)
}

// PromptPayload is the expected body for creating or updating a prompt.
type PromptPayload struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var payload PromptPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	prompt, err := s.store.CreatePrompt(payload.Name, payload.Template)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to create prompt: %v", err))
		return
	}
	RespondWithJSON(w, http.StatusCreated, prompt)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "promptID")
	var payload PromptPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := s.store.UpdatePrompt(promptID, payload.Name, payload.Template); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Prompt not found")
		} else {
			RespondWithError(w, http.StatusInternalServerError, "Failed to update prompt")
		}
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Prompt updated"})
}

func (s *Server) handleActivatePrompt(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "promptID")
	if err := s.store.ActivatePrompt(promptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Prompt not found")
		} else {
			RespondWithError(w, http.StatusInternalServerError, "Failed to activate prompt")
		}
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Prompt activated"})
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "promptID")
	if err := s.store.DeletePrompt(promptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Prompt not found")
		} else {
			RespondWithError(w, http.StatusInternalServerError, "Failed to delete prompt")
		}
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Prompt deleted"})
}
