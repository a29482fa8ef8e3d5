package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/database"
	"github.com/scottpeterman/sshwontdie/internal/fingerprint"
	"github.com/scottpeterman/sshwontdie/internal/models"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// StatusHandler handles system status API endpoints
type StatusHandler struct {
	db        *database.DB
	service   *fingerprint.Service
	startTime time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *database.DB, service *fingerprint.Service) *StatusHandler {
	return &StatusHandler{
		db:        db,
		service:   service,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/status", h.getSystemStatus).Methods("GET")
	r.HandleFunc("/api/status/health", h.getHealthCheck).Methods("GET")
}

// getSystemStatus returns the overall system status
func (h *StatusHandler) getSystemStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getSystemStatus").Logger()

	deviceCount, err := h.db.CountDevices()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count devices")
	}
	dbSize, err := h.db.GetDatabaseSize()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get database size")
	}
	running, completed := h.service.JobCounts()

	status := models.SystemStatus{
		Status:        "ok",
		DeviceCount:   deviceCount,
		RunningJobs:   running,
		CompletedJobs: completed,
		DatabaseSize:  dbSize,
		Version:       Version,
	}
	if runs, err := h.db.GetRecentRuns(1); err == nil && len(runs) > 0 {
		status.LastRun = runs[0].StartTime
	}

	response := map[string]interface{}{
		"status": status,
		"uptime": time.Since(h.startTime).String(),
		"system": map[string]interface{}{
			"goVersion":    runtime.Version(),
			"goArch":       runtime.GOARCH,
			"goOS":         runtime.GOOS,
			"numGoroutine": runtime.NumGoroutine(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error().Err(err).Msg("Failed to encode status")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getHealthCheck returns a minimal liveness response
func (h *StatusHandler) getHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
