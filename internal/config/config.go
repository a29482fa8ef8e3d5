// Package config manages the sshwontdie daemon configuration. It handles
// loading, validating, and providing access to configuration settings from
// YAML files. It includes defaults for all settings and implements
// thread-safe access to configuration values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/scottpeterman/sshwontdie/internal/session"
)

// FingerprintConfig holds the timing and extraction knobs for fingerprint
// runs. Durations are expressed in milliseconds to keep the YAML flat.
type FingerprintConfig struct {
	ConnectTimeoutMS int    `yaml:"connectTimeoutMs"`
	CommandTimeoutMS int    `yaml:"commandTimeoutMs"`
	JobTimeoutMS     int    `yaml:"jobTimeoutMs"`
	PollIntervalMS   int    `yaml:"pollIntervalMs"`
	QuiescenceMS     int    `yaml:"quiescenceMs"`
	MinWaitMS        int    `yaml:"minWaitMs"`
	SettleIntervalMS int    `yaml:"settleIntervalMs"`
	RetryDelayMS     int    `yaml:"retryDelayMs"`
	Retries          int    `yaml:"retries"`
	IPContextWindow  int    `yaml:"ipContextWindow"`
	MaxIPAddresses   int    `yaml:"maxIpAddresses"`
	TranscriptDir    string `yaml:"transcriptDir"`
}

// Timing converts the configured millisecond values into a session timing
// profile. Unset values fall back to the session defaults.
func (f FingerprintConfig) Timing() session.Timing {
	return session.Timing{
		PollInterval:   time.Duration(f.PollIntervalMS) * time.Millisecond,
		Quiescence:     time.Duration(f.QuiescenceMS) * time.Millisecond,
		MinWait:        time.Duration(f.MinWaitMS) * time.Millisecond,
		SettleInterval: time.Duration(f.SettleIntervalMS) * time.Millisecond,
		RetryDelay:     time.Duration(f.RetryDelayMS) * time.Millisecond,
	}
}

// JobTimeout returns the overall per-job deadline.
func (f FingerprintConfig) JobTimeout() time.Duration {
	if f.JobTimeoutMS <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(f.JobTimeoutMS) * time.Millisecond
}

// Config represents the application configuration
type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		Host            string   `yaml:"host"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ReadTimeout     int      `yaml:"readTimeout"`
		WriteTimeout    int      `yaml:"writeTimeout"`
		ShutdownTimeout int      `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Fingerprint FingerprintConfig `yaml:"fingerprint"`

	DeviceTypes struct {
		TablePath string `yaml:"tablePath"`
	} `yaml:"deviceTypes"`

	Database struct {
		Path              string `yaml:"path"`
		MaxConnections    int    `yaml:"maxConnections"`
		EnableForeignKeys bool   `yaml:"enableForeignKeys"`
		JournalMode       string `yaml:"journalMode"`
		SynchronousMode   string `yaml:"synchronousMode"`
	} `yaml:"database"`

	Queue struct {
		Enabled    bool   `yaml:"enabled"`
		URL        string `yaml:"url"`
		Exchange   string `yaml:"exchange"`
		RoutingKey string `yaml:"routingKey"`
	} `yaml:"queue"`

	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		OutputPath string `yaml:"outputPath"`
	} `yaml:"logging"`

	path string
	mu   sync.RWMutex
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		instance = &Config{}
		setDefaults(instance)
	})
	return instance
}

// LoadConfig loads configuration from a YAML file
func (c *Config) LoadConfig(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Save path for potential reloading
	c.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	// Create directories if they don't exist
	dirs := []string{
		c.Fingerprint.TranscriptDir,
		filepath.Dir(c.Database.Path),
	}
	if c.Logging.OutputPath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.OutputPath))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration loaded successfully")
	return nil
}

// Reload reloads the configuration from the file
func (c *Config) Reload() error {
	if c.path == "" {
		return errors.New("configuration was not loaded from a file")
	}
	return c.LoadConfig(c.path)
}

// SaveConfig saves the current configuration to a file
func (c *Config) SaveConfig(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Fingerprint.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("invalid connect timeout: %d", c.Fingerprint.ConnectTimeoutMS)
	}
	if c.Fingerprint.CommandTimeoutMS <= 0 {
		return fmt.Errorf("invalid command timeout: %d", c.Fingerprint.CommandTimeoutMS)
	}
	if c.Fingerprint.Retries < 0 {
		return fmt.Errorf("invalid retry count: %d", c.Fingerprint.Retries)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Queue.Enabled {
		if c.Queue.URL == "" {
			return errors.New("queue URL is required when the queue is enabled")
		}
		if c.Queue.Exchange == "" {
			return errors.New("queue exchange is required when the queue is enabled")
		}
	}

	return nil
}

// setDefaults initializes the configuration with default values
func setDefaults(c *Config) {
	// Server defaults
	c.Server.Port = 8080
	c.Server.Host = "127.0.0.1"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ReadTimeout = 30
	c.Server.WriteTimeout = 30
	c.Server.ShutdownTimeout = 10

	// Fingerprint defaults
	c.Fingerprint.ConnectTimeoutMS = 10000
	c.Fingerprint.CommandTimeoutMS = 15000
	c.Fingerprint.JobTimeoutMS = 300000
	c.Fingerprint.PollIntervalMS = 50
	c.Fingerprint.QuiescenceMS = 300
	c.Fingerprint.MinWaitMS = 500
	c.Fingerprint.SettleIntervalMS = 1000
	c.Fingerprint.RetryDelayMS = 1000
	c.Fingerprint.Retries = 1
	c.Fingerprint.IPContextWindow = 50
	c.Fingerprint.MaxIPAddresses = 5

	// Database defaults
	c.Database.Path = "data/sshwontdie.db"
	c.Database.MaxConnections = 10
	c.Database.EnableForeignKeys = true
	c.Database.JournalMode = "WAL"
	c.Database.SynchronousMode = "NORMAL"

	// Queue defaults
	c.Queue.Exchange = "device.fingerprints"
	c.Queue.RoutingKey = "fingerprint.completed"

	// Logging defaults
	c.Logging.Level = "info"
	c.Logging.Format = "console"
}
