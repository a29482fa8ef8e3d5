// Package fingerprint drives interactive sessions against remote devices to
// identify their operating system family and harvest inventory facts. It
// owns the job lifecycle: connect, discover the prompt, run identification
// commands with retry, classify the accumulated output, and extract fields
// into a device record.
package fingerprint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/config"
	"github.com/scottpeterman/sshwontdie/internal/database"
	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
	"github.com/scottpeterman/sshwontdie/internal/models"
	"github.com/scottpeterman/sshwontdie/internal/queue"
	"github.com/scottpeterman/sshwontdie/internal/session"
	"github.com/scottpeterman/sshwontdie/internal/transport"
)

// Service runs fingerprint jobs. Jobs started through StartJob run on their
// own goroutine and are tracked in memory until the daemon restarts;
// completed records are also persisted through the database layer and,
// when configured, published to the message queue.
type Service struct {
	config    *config.Config
	db        *database.DB
	publisher *queue.Publisher
	table     *devicetypes.Table
	factory   transport.Factory
	extractor *Extractor
	logger    zerolog.Logger

	jobLock sync.Mutex
	jobs    map[string]*models.FingerprintJob
}

// New creates a fingerprint service. The publisher may be nil when queue
// publishing is disabled.
func New(cfg *config.Config, db *database.DB, publisher *queue.Publisher, table *devicetypes.Table, factory transport.Factory) *Service {
	if factory == nil {
		factory = transport.NewSSH
	}
	return &Service{
		config:    cfg,
		db:        db,
		publisher: publisher,
		table:     table,
		factory:   factory,
		extractor: NewExtractor(table, cfg.Fingerprint.IPContextWindow, cfg.Fingerprint.MaxIPAddresses),
		logger:    log.With().Str("component", "fingerprint").Logger(),
		jobs:      make(map[string]*models.FingerprintJob),
	}
}

// StartJob launches an asynchronous fingerprint run and returns its job ID.
func (s *Service) StartJob(params models.FingerprintParameters) string {
	job := &models.FingerprintJob{
		ID:        uuid.New().String(),
		Host:      params.Host,
		Port:      params.Port,
		Status:    models.JobStatusRunning,
		StartTime: time.Now(),
	}
	if job.Port == 0 {
		job.Port = 22
	}

	s.jobLock.Lock()
	s.jobs[job.ID] = job
	s.jobLock.Unlock()

	s.logger.Info().
		Str("jobID", job.ID).
		Str("host", params.Host).
		Int("port", job.Port).
		Msg("Starting fingerprint job")

	go s.runJob(job, params)

	return job.ID
}

// GetJob returns a snapshot of a tracked job by ID. Jobs keep mutating on
// their own goroutine until they finish, so callers get a copy taken under
// the lock, never the tracked struct itself. The attached record is built
// fully before it is set on the job and is read-only from then on, so the
// snapshot can share it.
func (s *Service) GetJob(id string) (*models.FingerprintJob, bool) {
	s.jobLock.Lock()
	defer s.jobLock.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Jobs returns snapshots of all tracked jobs.
func (s *Service) Jobs() []*models.FingerprintJob {
	s.jobLock.Lock()
	defer s.jobLock.Unlock()
	out := make([]*models.FingerprintJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		out = append(out, &snapshot)
	}
	return out
}

// JobCounts returns the number of running and completed jobs.
func (s *Service) JobCounts() (running, completed int) {
	s.jobLock.Lock()
	defer s.jobLock.Unlock()
	for _, job := range s.jobs {
		switch job.Status {
		case models.JobStatusRunning:
			running++
		case models.JobStatusCompleted:
			completed++
		}
	}
	return running, completed
}

func (s *Service) runJob(job *models.FingerprintJob, params models.FingerprintParameters) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Fingerprint.JobTimeout())
	defer cancel()

	record := s.Fingerprint(ctx, params)

	s.jobLock.Lock()
	job.EndTime = time.Now()
	job.Record = record
	if record.Success {
		job.Status = models.JobStatusCompleted
	} else {
		job.Status = models.JobStatusError
		job.ErrorMessage = "device could not be identified"
	}
	s.jobLock.Unlock()

	if err := s.db.SaveRun(job); err != nil {
		s.logger.Error().Err(err).Str("jobID", job.ID).Msg("Failed to save fingerprint run")
	}
	if err := s.db.SaveDeviceRecord(record); err != nil {
		s.logger.Error().Err(err).Str("host", record.Host).Msg("Failed to save device record")
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRecord(record); err != nil {
			s.logger.Error().Err(err).Str("host", record.Host).Msg("Failed to publish device record")
		}
	}

	s.logger.Info().
		Str("jobID", job.ID).
		Str("host", record.Host).
		Str("deviceType", record.DeviceType.String()).
		Bool("success", record.Success).
		Msg("Fingerprint job finished")
}

// Fingerprint runs a complete synchronous fingerprint flow against one
// device and always returns a record. Failures are reported through the
// record's Success flag rather than an error: a host that refuses the
// connection still yields a record describing the attempt.
func (s *Service) Fingerprint(ctx context.Context, params models.FingerprintParameters) *models.DeviceRecord {
	port := params.Port
	if port == 0 {
		port = 22
	}
	record := models.NewDeviceRecord(params.Host, port, params.Username)
	defer record.Finalize()

	connectTimeout := params.ConnectTimeoutMS
	if connectTimeout == 0 {
		connectTimeout = s.config.Fingerprint.ConnectTimeoutMS
	}
	t := s.factory(transport.Options{
		Host:             params.Host,
		Port:             port,
		Username:         params.Username,
		Password:         params.Password,
		ConnectTimeoutMS: connectTimeout,
	})

	sess := session.New(t, s.config.Fingerprint.Timing())
	defer sess.Close()

	if closer := s.attachTranscript(sess, params.Host, port); closer != nil {
		defer closer()
	}

	if err := sess.Connect(ctx); err != nil {
		s.logger.Warn().Err(err).Str("host", params.Host).Msg("Connection failed")
		record.AdditionalInfo["connectionError"] = err.Error()
		return record
	}

	record.DetectedPrompt = sess.DiscoverPrompt()
	s.logger.Debug().
		Str("host", params.Host).
		Str("prompt", record.DetectedPrompt).
		Msg("Prompt discovered")

	// The login banner frequently names the platform outright, so an
	// initial pass over the buffer can settle the family before any
	// identification command runs.
	record.DeviceType = Classify(sess.Buffer().Snapshot())

	commandTimeout := time.Duration(params.CommandTimeoutMS) * time.Millisecond
	if commandTimeout <= 0 {
		commandTimeout = time.Duration(s.config.Fingerprint.CommandTimeoutMS) * time.Millisecond
	}
	retries := s.config.Fingerprint.Retries

	pagingDisabled := false
	if record.DeviceType != devicetypes.Unknown {
		pagingDisabled = s.disablePaging(ctx, sess, record, commandTimeout)
	}

	ran := make(map[string]bool)
	commands := s.commandsFor(record.DeviceType)
	for i := 0; i < len(commands); i++ {
		cmd := commands[i]
		if ran[cmd] {
			continue
		}
		ran[cmd] = true

		result := sess.ExecuteWithRetry(ctx, cmd, commandTimeout, retries)
		record.CommandOutputs[cmd] = result.Output
		if result.Failed() {
			s.logger.Warn().
				Err(result.Err).
				Str("host", params.Host).
				Str("command", cmd).
				Msg("Identification command failed")
			continue
		}

		if record.DeviceType == devicetypes.Unknown {
			record.DeviceType = Classify(sess.Buffer().Snapshot())
			if record.DeviceType != devicetypes.Unknown {
				s.logger.Info().
					Str("host", params.Host).
					Str("deviceType", record.DeviceType.String()).
					Msg("Device family identified")
				if !pagingDisabled {
					pagingDisabled = s.disablePaging(ctx, sess, record, commandTimeout)
				}
				// Switch to the identified family's command list so
				// the rest of the run asks family-specific questions.
				commands = s.commandsFor(record.DeviceType)
				i = -1
			}
		}
	}

	s.extractor.Extract(record, sess.Buffer().Snapshot())

	return record
}

// commandsFor returns the identification commands for a family, or the
// generic probe list when the family is still unknown.
func (s *Service) commandsFor(dt devicetypes.DeviceType) []string {
	if dt == devicetypes.Unknown {
		return devicetypes.GenericIdentificationCommands
	}
	return s.table.IdentificationCommands(dt)
}

// disablePaging sends the family's paging-disable command, if it has one, so
// long command output arrives without --More-- stalls. Reports whether
// paging is now disabled.
func (s *Service) disablePaging(ctx context.Context, sess *session.Session, record *models.DeviceRecord, timeout time.Duration) bool {
	cmd := s.table.DisablePagingCommand(record.DeviceType)
	if cmd == "" {
		return true
	}
	record.DisablePagingCommand = cmd
	result := sess.ExecuteWithRetry(ctx, cmd, timeout, 0)
	if result.Failed() {
		s.logger.Warn().
			Err(result.Err).
			Str("host", record.Host).
			Str("command", cmd).
			Msg("Failed to disable paging")
		return false
	}
	return true
}

// attachTranscript wires the session buffer's sink to a per-run transcript
// file when a transcript directory is configured. Returns a closer for the
// file, or nil when transcripts are disabled or the file cannot be created.
func (s *Service) attachTranscript(sess *session.Session, host string, port int) func() {
	dir := s.config.Fingerprint.TranscriptDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to create transcript directory")
		return nil
	}
	name := fmt.Sprintf("%s_%d_%s.log", host, port, time.Now().Format("20060102T150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		s.logger.Warn().Err(err).Str("file", name).Msg("Failed to create transcript file")
		return nil
	}
	sess.Buffer().SetSink(s.transcriptSink(f, name))
	return func() {
		sess.Buffer().SetSink(nil)
		f.Close()
	}
}

// transcriptSink returns a buffer sink appending chunks to w. A write
// failure is reported once and never interrupts the session.
func (s *Service) transcriptSink(w io.StringWriter, name string) func(string) {
	var warned sync.Once
	return func(chunk string) {
		if _, err := w.WriteString(chunk); err != nil {
			warned.Do(func() {
				s.logger.Warn().Err(err).Str("file", name).Msg("Transcript write failed")
			})
		}
	}
}
