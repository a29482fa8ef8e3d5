// Package api provides HTTP handlers for the sshwontdie REST API. It
// includes handlers for starting fingerprint jobs, retrieving results,
// listing known devices, and reporting system status.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/fingerprint"
	"github.com/scottpeterman/sshwontdie/internal/models"
)

// JobHandler handles fingerprint job API endpoints
type JobHandler struct {
	service *fingerprint.Service
}

// NewJobHandler creates a new job handler
func NewJobHandler(service *fingerprint.Service) *JobHandler {
	return &JobHandler{service: service}
}

// RegisterRoutes registers the fingerprint job routes
func (h *JobHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/fingerprints", h.startFingerprint).Methods("POST")
	r.HandleFunc("/api/fingerprints", h.getFingerprints).Methods("GET")
	r.HandleFunc("/api/fingerprints/{id}", h.getFingerprint).Methods("GET")
}

// startFingerprint launches an asynchronous fingerprint job
func (h *JobHandler) startFingerprint(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "startFingerprint").Logger()

	var params models.FingerprintParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		logger.Error().Err(err).Msg("Invalid request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if params.Host == "" {
		http.Error(w, "host is required", http.StatusBadRequest)
		return
	}
	if params.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	jobID := h.service.StartJob(params)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"id":     jobID,
		"status": models.JobStatusRunning,
	})
}

// getFingerprints returns all tracked fingerprint jobs
func (h *JobHandler) getFingerprints(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getFingerprints").Logger()

	jobs := h.service.Jobs()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(jobs); err != nil {
		logger.Error().Err(err).Msg("Failed to encode jobs")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getFingerprint returns a specific fingerprint job by ID
func (h *JobHandler) getFingerprint(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getFingerprint").Logger()

	vars := mux.Vars(r)
	id := vars["id"]

	job, ok := h.service.GetJob(id)
	if !ok {
		logger.Debug().Str("id", id).Msg("Job not found")
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(job); err != nil {
		logger.Error().Err(err).Msg("Failed to encode job")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
