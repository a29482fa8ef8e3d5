// Package database provides database operations for the sshwontdie daemon.
// It handles all interactions with the SQLite database including
// initialization, optimization, and CRUD operations for fingerprint runs
// and devices.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/models"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	Path   string // Exported for integration tests
	logger *zerolog.Logger
	sync.Mutex
}

// New creates a new database connection
func New(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	logger := log.With().Str("component", "database").Logger()

	dbInstance := &DB{
		DB:     db,
		Path:   path,
		logger: &logger,
	}

	if err := dbInstance.initializeDB(); err != nil {
		db.Close()
		return nil, err
	}

	if err := dbInstance.optimizeDB(); err != nil {
		logger.Warn().Err(err).Msg("Failed to set some database optimization parameters")
	}

	return dbInstance, nil
}

// Initialize database schema
func (db *DB) initializeDB() error {
	db.logger.Info().Msg("Initializing database schema")

	schema := `
	-- Fingerprint runs table
	CREATE TABLE IF NOT EXISTS fingerprint_runs (
		id TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		status TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		error_message TEXT,
		record_json TEXT
	);

	-- Devices table
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		device_type TEXT NOT NULL,
		hostname TEXT,
		model TEXT,
		version TEXT,
		serial_number TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		record_json TEXT,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		UNIQUE(host, port)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON fingerprint_runs(host);
	CREATE INDEX IF NOT EXISTS idx_devices_type ON devices(device_type);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

func (db *DB) optimizeDB() error {
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA cache_size=-20000"); err != nil { // Approx 20MB cache
		db.logger.Warn().Err(err).Msg("Failed to set cache_size PRAGMA")
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil { // 10 seconds
		db.logger.Warn().Err(err).Msg("Failed to set busy_timeout PRAGMA")
	}

	return nil
}

// ExecuteWithRetry attempts to execute a function with retries for transient errors
func (db *DB) ExecuteWithRetry(maxRetries int, retryDelay time.Duration, operation func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		// Check if the error is one we should retry
		if strings.Contains(err.Error(), "database is locked") ||
			strings.Contains(err.Error(), "busy") {
			db.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries).
				Msg("Retrying database operation")

			time.Sleep(retryDelay)
			retryDelay = retryDelay * 2
			continue
		}

		// Not a retryable error
		break
	}

	return fmt.Errorf("database operation failed after %d attempts: %w", maxRetries, err)
}

// SaveRun inserts or updates a fingerprint run row.
func (db *DB) SaveRun(job *models.FingerprintJob) error {
	db.Lock()
	defer db.Unlock()

	var recordJSON []byte
	if job.Record != nil {
		data, err := json.Marshal(job.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal device record: %w", err)
		}
		recordJSON = data
	}

	return db.ExecuteWithRetry(3, 100*time.Millisecond, func() error {
		_, err := db.Exec(`
			INSERT INTO fingerprint_runs (id, host, port, status, start_time, end_time, error_message, record_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				end_time = excluded.end_time,
				error_message = excluded.error_message,
				record_json = excluded.record_json`,
			job.ID, job.Host, job.Port, job.Status, job.StartTime, job.EndTime,
			job.ErrorMessage, string(recordJSON))
		return err
	})
}

// GetRun retrieves one fingerprint run by job ID.
func (db *DB) GetRun(id string) (*models.FingerprintJob, error) {
	row := db.QueryRow(`
		SELECT id, host, port, status, start_time, end_time, error_message, record_json
		FROM fingerprint_runs WHERE id = ?`, id)

	var job models.FingerprintJob
	var endTime sql.NullTime
	var errorMessage, recordJSON sql.NullString
	err := row.Scan(&job.ID, &job.Host, &job.Port, &job.Status, &job.StartTime,
		&endTime, &errorMessage, &recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint run: %w", err)
	}

	if endTime.Valid {
		job.EndTime = endTime.Time
	}
	job.ErrorMessage = errorMessage.String
	if recordJSON.Valid && recordJSON.String != "" {
		var record models.DeviceRecord
		if err := json.Unmarshal([]byte(recordJSON.String), &record); err == nil {
			job.Record = &record
		}
	}

	return &job, nil
}

// GetRecentRuns returns the most recent fingerprint runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]*models.FingerprintJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, host, port, status, start_time, end_time, error_message
		FROM fingerprint_runs ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint runs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.FingerprintJob
	for rows.Next() {
		var job models.FingerprintJob
		var endTime sql.NullTime
		var errorMessage sql.NullString
		if err := rows.Scan(&job.ID, &job.Host, &job.Port, &job.Status,
			&job.StartTime, &endTime, &errorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint run: %w", err)
		}
		if endTime.Valid {
			job.EndTime = endTime.Time
		}
		job.ErrorMessage = errorMessage.String
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// SaveDeviceRecord upserts the device row keyed by host and port. The full
// record travels as JSON alongside the indexed summary columns.
func (db *DB) SaveDeviceRecord(record *models.DeviceRecord) error {
	db.Lock()
	defer db.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}
	now := time.Now()

	return db.ExecuteWithRetry(3, 100*time.Millisecond, func() error {
		_, err := db.Exec(`
			INSERT INTO devices (host, port, device_type, hostname, model, version, serial_number, success, record_json, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(host, port) DO UPDATE SET
				device_type = excluded.device_type,
				hostname = excluded.hostname,
				model = excluded.model,
				version = excluded.version,
				serial_number = excluded.serial_number,
				success = excluded.success,
				record_json = excluded.record_json,
				last_seen = excluded.last_seen`,
			record.Host, record.Port, record.DeviceType.String(), record.Hostname,
			record.Model, record.Version, record.SerialNumber, record.Success,
			string(data), now, now)
		return err
	})
}

// GetDevice retrieves one device by host and port.
func (db *DB) GetDevice(host string, port int) (*models.StoredDevice, error) {
	row := db.QueryRow(`
		SELECT id, host, port, device_type, hostname, model, version, serial_number, success, record_json, first_seen, last_seen
		FROM devices WHERE host = ? AND port = ?`, host, port)

	device, err := scanStoredDevice(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// GetAllDevices returns all known devices ordered by host.
func (db *DB) GetAllDevices() ([]*models.StoredDevice, error) {
	rows, err := db.Query(`
		SELECT id, host, port, device_type, hostname, model, version, serial_number, success, record_json, first_seen, last_seen
		FROM devices ORDER BY host, port`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.StoredDevice
	for rows.Next() {
		device, err := scanStoredDevice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	return devices, rows.Err()
}

func scanStoredDevice(scan func(dest ...any) error) (*models.StoredDevice, error) {
	var device models.StoredDevice
	var hostname, model, version, serial, recordJSON sql.NullString
	err := scan(&device.ID, &device.Host, &device.Port, &device.DeviceType,
		&hostname, &model, &version, &serial, &device.Success,
		&recordJSON, &device.FirstSeen, &device.LastSeen)
	if err != nil {
		return nil, err
	}
	device.Hostname = hostname.String
	device.Model = model.String
	device.Version = version.String
	device.SerialNumber = serial.String
	device.RecordJSON = recordJSON.String
	return &device, nil
}

// CountDevices returns the number of known devices.
func (db *DB) CountDevices() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

// GetDatabaseSize returns the database file size in bytes.
func (db *DB) GetDatabaseSize() (int64, error) {
	if db.Path == ":memory:" {
		return 0, nil
	}
	info, err := os.Stat(db.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	return info.Size(), nil
}

// OptimizeDatabase rebuilds the database and refreshes statistics.
func (db *DB) OptimizeDatabase() error {
	db.Lock()
	defer db.Unlock()

	db.logger.Info().Msg("Optimizing database")

	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := db.Exec("REINDEX"); err != nil {
		return fmt.Errorf("failed to reindex database: %w", err)
	}
	if _, err := db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}

	// Refresh PRAGMA settings as they may reset after VACUUM
	if err := db.optimizeDB(); err != nil {
		db.logger.Warn().Err(err).Msg("Failed to reset optimization parameters after vacuum")
	}

	return nil
}
