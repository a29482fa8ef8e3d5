// Package models defines the data structures shared across sshwontdie.
// It contains the device record produced by fingerprinting, the job and
// status types exposed through the API, and the parsed ping result.
package models

import (
	"time"

	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
)

// DeviceRecord accumulates everything learned about a device during one
// fingerprint run. Fields that never matched are left at their zero value.
// The password is carried for reconnects during the run but is never
// serialized.
type DeviceRecord struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`

	DeviceType           devicetypes.DeviceType `json:"deviceType"`
	DetectedPrompt       string                 `json:"detectedPrompt"`
	DisablePagingCommand string                 `json:"disablePagingCommand,omitempty"`

	Hostname     string `json:"hostname,omitempty"`
	Model        string `json:"model,omitempty"`
	Version      string `json:"version,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`

	IsVirtualDevice bool              `json:"isVirtualDevice"`
	Platform        string            `json:"platform,omitempty"`
	Uptime          string            `json:"uptime,omitempty"`
	AdditionalInfo  map[string]string `json:"additionalInfo,omitempty"`

	Interfaces  map[string]string `json:"interfaces,omitempty"`
	IPAddresses []string          `json:"ipAddresses,omitempty"`

	CPUInfo     string `json:"cpuInfo,omitempty"`
	MemoryInfo  string `json:"memoryInfo,omitempty"`
	StorageInfo string `json:"storageInfo,omitempty"`

	CommandOutputs  map[string]string `json:"commandOutputs,omitempty"`
	FingerprintTime time.Time         `json:"fingerprintTime"`
	Success         bool              `json:"success"`
}

// NewDeviceRecord returns an empty record for the given target.
func NewDeviceRecord(host string, port int, username string) *DeviceRecord {
	return &DeviceRecord{
		Host:            host,
		Port:            port,
		Username:        username,
		AdditionalInfo:  make(map[string]string),
		Interfaces:      make(map[string]string),
		CommandOutputs:  make(map[string]string),
		FingerprintTime: time.Now(),
	}
}

// Finalize stamps the completion time and derives the success flag: a run
// succeeded when the family was identified and a prompt was discovered.
func (r *DeviceRecord) Finalize() {
	r.FingerprintTime = time.Now()
	r.Success = r.DeviceType != devicetypes.Unknown && r.DetectedPrompt != ""
}

// FingerprintParameters are the caller-supplied inputs for one fingerprint
// job.
type FingerprintParameters struct {
	Host             string `json:"host"`
	Port             int    `json:"port,omitempty"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ConnectTimeoutMS int    `json:"connectTimeoutMs,omitempty"`
	CommandTimeoutMS int    `json:"commandTimeoutMs,omitempty"`
}

// Job statuses.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
)

// FingerprintJob tracks one asynchronous fingerprint run.
type FingerprintJob struct {
	ID           string        `json:"id"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Status       string        `json:"status"` // running, completed, error
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Record       *DeviceRecord `json:"record,omitempty"`
}

// StoredDevice is a persisted device record row.
type StoredDevice struct {
	ID           int64     `json:"id"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	DeviceType   string    `json:"deviceType"`
	Hostname     string    `json:"hostname,omitempty"`
	Model        string    `json:"model,omitempty"`
	Version      string    `json:"version,omitempty"`
	SerialNumber string    `json:"serialNumber,omitempty"`
	Success      bool      `json:"success"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	RecordJSON   string    `json:"-"`
}

// SystemStatus reports overall daemon health.
type SystemStatus struct {
	Status        string    `json:"status"` // ok, warning, error
	LastRun       time.Time `json:"lastRun"`
	DeviceCount   int       `json:"deviceCount"`
	RunningJobs   int       `json:"runningJobs"`
	CompletedJobs int       `json:"completedJobs"`
	DatabaseSize  int64     `json:"databaseSize"` // in bytes
	Version       string    `json:"version"`
}

// PingResult holds the metrics extracted from ping command output.
type PingResult struct {
	Success           bool      `json:"success"`
	TargetHost        string    `json:"targetHost"`
	PacketsSent       int       `json:"packetsSent"`
	PacketsReceived   int       `json:"packetsReceived"`
	PacketLossPercent float64   `json:"packetLossPercent"`
	RTTMin            float64   `json:"rttMin,omitempty"`
	RTTAvg            float64   `json:"rttAvg,omitempty"`
	RTTMax            float64   `json:"rttMax,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
