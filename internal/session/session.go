package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/transport"
)

// ErrTimeout marks a command whose output never reached prompt or
// quiescence before the hard deadline. Non-fatal: the partial output is
// still returned.
var ErrTimeout = errors.New("session: command timed out")

// State is the connection state of a session.
type State int

// Session states.
const (
	Disconnected State = iota
	Connected
	ShellActive
)

// Status tags a command result.
type Status int

const (
	// StatusOK means completion was detected via prompt or quiescence.
	StatusOK Status = iota
	// StatusPartial means the hard timeout cut the command off; Output
	// holds whatever arrived before the cutoff.
	StatusPartial
	// StatusFailed means the command could not be executed; Err is set and
	// Output may be empty.
	StatusFailed
)

// Result is the outcome of one command: the text captured between the send
// position and the completion position, plus how completion was reached.
// Callers check Status instead of parsing error text out of Output.
type Result struct {
	Output string
	Status Status
	Err    error
}

// Failed reports whether the command did not execute.
func (r Result) Failed() bool { return r.Status == StatusFailed }

// Session owns one interactive shell: the transport handle, the output
// accumulator, and the discovered prompt. Only one command may be
// outstanding at a time; a Session is not meant to be shared across
// concurrent callers.
type Session struct {
	transport transport.Transport
	buf       *Buffer
	timing    Timing
	logger    zerolog.Logger

	state  State
	prompt string
}

// New creates a session over the given transport. The zero Timing value
// selects production defaults.
func New(t transport.Transport, timing Timing) *Session {
	return &Session{
		transport: t,
		buf:       NewBuffer(),
		timing:    timing.normalize(),
		logger:    log.With().Str("component", "session").Logger(),
	}
}

// Buffer exposes the accumulator, e.g. for classification over everything
// received so far or for attaching a transcript sink.
func (s *Session) Buffer() *Buffer {
	return s.buf
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state
}

// Prompt returns the discovered literal prompt, or "" when none is known.
func (s *Session) Prompt() string {
	return s.prompt
}

// SetPrompt installs a literal prompt for completion detection. Once set it
// is used by exact suffix containment until explicitly replaced.
func (s *Session) SetPrompt(prompt string) {
	s.prompt = prompt
}

// Connect establishes the transport and waits for the shell banner to
// settle. The banner output lands in the accumulator so prompt discovery
// and early classification can inspect it.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		s.state = Disconnected
		return err
	}
	s.state = Connected
	s.settle(s.timing.SettleInterval)
	s.state = ShellActive
	return nil
}

// Close tears down the transport. The accumulator and discovered prompt are
// kept: historical content stays valid across a close.
func (s *Session) Close() {
	if s.state == Disconnected {
		return
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Transport close failed")
	}
	s.state = Disconnected
}

// Reconnect closes and reopens the transport after a channel failure. The
// accumulator's historical content and any discovered prompt survive; only
// the connection state resets.
func (s *Session) Reconnect(ctx context.Context) error {
	s.Close()
	s.timing.Sleep(s.timing.RetryDelay)
	if err := s.transport.Connect(ctx); err != nil {
		return err
	}
	s.state = ShellActive
	return nil
}

// pump drains everything the transport has pending into the accumulator.
// Returns a channel error once the transport reports one.
func (s *Session) pump() error {
	for {
		chunk, err := s.transport.Receive()
		if chunk != "" {
			s.buf.Append(chunk)
		}
		if err != nil {
			return err
		}
		if chunk == "" {
			return nil
		}
	}
}

// settle waits a fixed interval, pumping the transport at each poll so the
// accumulator tracks whatever arrives during the wait.
func (s *Session) settle(d time.Duration) {
	deadline := s.timing.Now().Add(d)
	for s.timing.Now().Before(deadline) {
		if err := s.pump(); err != nil {
			return
		}
		s.timing.Sleep(s.timing.PollInterval)
	}
	s.pump()
}

// Execute sends one command and waits for its output to complete. Completion
// is declared when any of the following holds:
//
//   - the output since the send, right-trimmed, ends with the known prompt
//   - the buffer has not grown for the quiescence window and at least the
//     minimum wait has elapsed since the send
//   - the hard timeout expires (partial output, StatusPartial)
//
// The returned output is exactly the text appended since the send position;
// nothing is ever dropped short of the timeout cutoff.
func (s *Session) Execute(command string, timeout time.Duration) Result {
	if s.state != ShellActive {
		return Result{Status: StatusFailed, Err: fmt.Errorf("%w: shell is not active", transport.ErrChannel)}
	}

	start := s.buf.Len()
	startTime := s.timing.Now()

	payload := command
	if !strings.HasSuffix(payload, "\n") {
		payload += "\n"
	}
	if err := s.transport.Send(payload); err != nil {
		return Result{Status: StatusFailed, Err: err}
	}

	deadline := startTime.Add(timeout)
	lastLen := s.buf.Len()
	lastChange := startTime

	for {
		now := s.timing.Now()
		if !now.Before(deadline) {
			s.logger.Debug().Str("command", command).Msg("Command hit hard timeout, returning partial output")
			return Result{Output: s.buf.Since(start), Status: StatusPartial, Err: ErrTimeout}
		}

		if err := s.pump(); err != nil {
			return Result{Output: s.buf.Since(start), Status: StatusFailed, Err: err}
		}

		cur := s.buf.Len()
		if cur > lastLen {
			lastLen = cur
			lastChange = now
		} else if now.Sub(lastChange) > s.timing.Quiescence && now.Sub(startTime) > s.timing.MinWait {
			// No growth for the quiescence window and the command has had a
			// fair chance to start responding.
			s.logger.Debug().Str("command", command).Msg("Command complete (quiescent)")
			return Result{Output: s.buf.Since(start), Status: StatusOK}
		}

		if s.prompt != "" {
			trimmed := strings.TrimRight(s.buf.Since(start), " \t\r\n")
			if strings.HasSuffix(trimmed, s.prompt) {
				s.logger.Debug().Str("command", command).Msg("Command complete (prompt detected)")
				return Result{Output: s.buf.Since(start), Status: StatusOK}
			}
		}

		s.timing.Sleep(s.timing.PollInterval)
	}
}

// ExecuteWithRetry wraps Execute with bounded retry and reconnect-on-channel-
// failure logic: up to retries+1 attempts. A failure naming the channel or
// connection layer triggers one disconnect-then-reconnect cycle before the
// next attempt; any other failure just waits briefly and retries on the same
// connection. After the final attempt the failed result is returned;
// callers check Result.Status rather than catching anything.
func (s *Session) ExecuteWithRetry(ctx context.Context, command string, timeout time.Duration, retries int) Result {
	var last Result
	for attempt := 0; attempt <= retries; attempt++ {
		last = s.Execute(command, timeout)
		if !last.Failed() {
			return last
		}

		s.logger.Warn().
			Err(last.Err).
			Int("attempt", attempt+1).
			Int("maxAttempts", retries+1).
			Str("command", command).
			Msg("Command attempt failed")

		if attempt == retries {
			break
		}

		s.timing.Sleep(s.timing.RetryDelay)

		if isChannelFailure(last.Err) {
			s.logger.Info().Msg("Channel failure detected, attempting reconnect")
			if err := s.Reconnect(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Reconnect attempt failed")
			}
		}
	}
	return last
}

// isChannelFailure reports whether an error names the channel or connection
// layer. Typed transport errors are checked first; the description test
// covers errors from layers that do not wrap them.
func isChannelFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transport.ErrChannel) || errors.Is(err, transport.ErrConnection) {
		return true
	}
	desc := strings.ToLower(err.Error())
	return strings.Contains(desc, "channel") || strings.Contains(desc, "connection")
}
