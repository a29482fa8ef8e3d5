// tests/integration/integration_test.go
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/scottpeterman/sshwontdie/internal/api"
	"github.com/scottpeterman/sshwontdie/internal/config"
	"github.com/scottpeterman/sshwontdie/internal/database"
	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
	"github.com/scottpeterman/sshwontdie/internal/fingerprint"
	"github.com/scottpeterman/sshwontdie/internal/models"
	"github.com/scottpeterman/sshwontdie/internal/transport"
)

// scriptedDevice emulates a Cisco IOS switch over the transport interface.
type scriptedDevice struct {
	connected bool
	queue     []string
}

func (d *scriptedDevice) Connect(ctx context.Context) error {
	d.connected = true
	d.queue = append(d.queue, "Welcome to switch1\r\nswitch1#")
	return nil
}

func (d *scriptedDevice) Send(text string) error {
	cmd := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(cmd, "show version"):
		d.queue = append(d.queue,
			"Cisco IOS Software, C2960X Software, Version 15.2(2)E6\r\n"+
				"switch1 uptime is 4 weeks, 2 days\r\n"+
				"System serial number: FOC1933S12P\r\n"+
				"switch1#")
	case strings.HasPrefix(cmd, "show running-config"):
		d.queue = append(d.queue, "hostname switch1\r\nswitch1#")
	default:
		d.queue = append(d.queue, "\r\nswitch1#")
	}
	return nil
}

func (d *scriptedDevice) Receive() (string, error) {
	if len(d.queue) > 0 {
		chunk := d.queue[0]
		d.queue = d.queue[1:]
		return chunk, nil
	}
	return "", nil
}

func (d *scriptedDevice) IsAlive() bool { return d.connected }

func (d *scriptedDevice) Close() error {
	d.connected = false
	return nil
}

// setupTestEnvironment wires config, database, fingerprint service, and the
// HTTP router against the scripted device.
func setupTestEnvironment(t *testing.T) (*database.DB, *fingerprint.Service, http.Handler) {
	t.Helper()

	tempDir := t.TempDir()

	cfg := &config.Config{}
	cfg.Server.Port = 8081
	cfg.Database.Path = filepath.Join(tempDir, "data", "test.db")
	cfg.Fingerprint.ConnectTimeoutMS = 1000
	cfg.Fingerprint.CommandTimeoutMS = 2000
	cfg.Fingerprint.PollIntervalMS = 1
	cfg.Fingerprint.QuiescenceMS = 5
	cfg.Fingerprint.MinWaitMS = 5
	cfg.Fingerprint.SettleIntervalMS = 2
	cfg.Fingerprint.RetryDelayMS = 1
	cfg.Fingerprint.Retries = 1

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	factory := func(opts transport.Options) transport.Transport { return &scriptedDevice{} }
	service := fingerprint.New(cfg, db, nil, devicetypes.Defaults(), factory)

	router := mux.NewRouter()
	api.NewJobHandler(service).RegisterRoutes(router)
	api.NewDeviceHandler(db).RegisterRoutes(router)
	api.NewStatusHandler(db, service).RegisterRoutes(router)

	return db, service, router
}

func waitForJob(t *testing.T, service *fingerprint.Service, jobID string) *models.FingerprintJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		job, ok := service.GetJob(jobID)
		if ok && job.Status != models.JobStatusRunning {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatal("Job did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestFingerprintLifecycle drives the full flow through the HTTP API: start
// a job, wait for it, fetch the result, and confirm the device landed in the
// database.
func TestFingerprintLifecycle(t *testing.T) {
	db, service, router := setupTestEnvironment(t)

	body := `{"host":"192.0.2.10","username":"admin","password":"secret"}`
	req := httptest.NewRequest("POST", "/api/fingerprints", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Start status = %d, want 202", rr.Code)
	}
	var accepted map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&accepted); err != nil {
		t.Fatalf("Failed to decode start response: %v", err)
	}

	job := waitForJob(t, service, accepted["id"])
	if job.Status != models.JobStatusCompleted {
		t.Fatalf("Job status = %q (%s), want completed", job.Status, job.ErrorMessage)
	}
	record := job.Record
	if record.DeviceType != devicetypes.CiscoIOS {
		t.Errorf("DeviceType = %v, want CiscoIOS", record.DeviceType)
	}
	if record.DetectedPrompt != "switch1#" {
		t.Errorf("DetectedPrompt = %q", record.DetectedPrompt)
	}
	if record.Version != "15.2(2)E6" {
		t.Errorf("Version = %q", record.Version)
	}
	if record.Hostname != "switch1" {
		t.Errorf("Hostname = %q", record.Hostname)
	}

	// The completed run must be queryable over the API.
	req = httptest.NewRequest("GET", "/api/fingerprints/"+accepted["id"], nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Get job status = %d, want 200", rr.Code)
	}

	// And the device must be persisted.
	device, err := db.GetDevice("192.0.2.10", 22)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device == nil {
		t.Fatal("Device not persisted after successful job")
	}
	if device.DeviceType != "CiscoIOS" || !device.Success {
		t.Errorf("Persisted device wrong: %+v", device)
	}

	// The run must be persisted too.
	run, err := db.GetRun(accepted["id"])
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil || run.Status != models.JobStatusCompleted {
		t.Errorf("Persisted run wrong: %+v", run)
	}

	// Status endpoint reflects the completed work.
	req = httptest.NewRequest("GET", "/api/status", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var response struct {
		Status models.SystemStatus `json:"status"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if response.Status.DeviceCount != 1 {
		t.Errorf("DeviceCount = %d, want 1", response.Status.DeviceCount)
	}
	if response.Status.CompletedJobs != 1 {
		t.Errorf("CompletedJobs = %d, want 1", response.Status.CompletedJobs)
	}
}

// TestRepeatFingerprintUpserts runs two jobs against the same host and
// checks the device table keeps a single row.
func TestRepeatFingerprintUpserts(t *testing.T) {
	db, service, _ := setupTestEnvironment(t)

	for i := 0; i < 2; i++ {
		id := service.StartJob(models.FingerprintParameters{
			Host: "192.0.2.20", Username: "admin", Password: "secret",
		})
		waitForJob(t, service, id)
	}

	count, err := db.CountDevices()
	if err != nil {
		t.Fatalf("CountDevices failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Device count = %d, want 1 after repeat runs", count)
	}
}
