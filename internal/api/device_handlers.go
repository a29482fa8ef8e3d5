package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/database"
	"github.com/scottpeterman/sshwontdie/internal/models"
)

// DeviceHandler handles device-related API endpoints
type DeviceHandler struct {
	db *database.DB
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(db *database.DB) *DeviceHandler {
	return &DeviceHandler{db: db}
}

// RegisterRoutes registers the device routes
func (h *DeviceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/devices", h.getDevices).Methods("GET")
	r.HandleFunc("/api/devices/{host}", h.getDevice).Methods("GET")
}

// getDevices returns all known devices
func (h *DeviceHandler) getDevices(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDevices").Logger()

	devices, err := h.db.GetAllDevices()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve devices")
		http.Error(w, "Failed to retrieve devices", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []*models.StoredDevice{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(devices); err != nil {
		logger.Error().Err(err).Msg("Failed to encode devices")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// getDevice returns a specific device by host, with an optional port query
// parameter defaulting to 22
func (h *DeviceHandler) getDevice(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDevice").Logger()

	vars := mux.Vars(r)
	host := vars["host"]

	port := 22
	if portParam := r.URL.Query().Get("port"); portParam != "" {
		parsed, err := strconv.Atoi(portParam)
		if err != nil || parsed <= 0 || parsed > 65535 {
			http.Error(w, "Invalid port", http.StatusBadRequest)
			return
		}
		port = parsed
	}

	device, err := h.db.GetDevice(host, port)
	if err != nil {
		logger.Error().Err(err).Str("host", host).Msg("Failed to retrieve device")
		http.Error(w, "Failed to retrieve device", http.StatusInternalServerError)
		return
	}
	if device == nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(device); err != nil {
		logger.Error().Err(err).Msg("Failed to encode device")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
