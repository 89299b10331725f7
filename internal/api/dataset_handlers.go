// A handler file for all dataset-related API endpoints.

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

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list datasets")
		return
	}
	if datasets == nil {
		datasets = []*models.Dataset{}
	}
	RespondWithJSON(w, http.StatusOK, datasets)
}

// DatasetPayload is the expected body of POST /api/datasets.
type DatasetPayload struct {
	Name    string          `json:"name"`
	Source  string          `json:"source"`
	Records []models.Record `json:"records"`
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var payload DatasetPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(payload.Records) == 0 {
		RespondWithError(w, http.StatusBadRequest, "No records provided")
		return
	}

	if payload.Source == "" {
		payload.Source = "api"
	}
	id, err := s.store.CreateDataset(payload.Name, payload.Source, payload.Records)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to create dataset: %v", err))
		return
	}

	RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           id,
		"record_count": len(payload.Records),
	})
}

func (s *Server) handleGetDatasetRecords(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	if _, err := s.store.GetDataset(datasetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Dataset not found")
		} else {
			RespondWithError(w, http.StatusInternalServerError, "Failed to load dataset")
		}
		return
	}

	records, err := s.store.GetDatasetRecords(datasetID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to load dataset records")
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	RespondWithJSON(w, http.StatusOK, records)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	if err := s.store.DeleteDataset(datasetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Dataset not found")
		} else {
			RespondWithError(w, http.StatusInternalServerError, "Failed to delete dataset")
		}
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Dataset deleted"})
}
