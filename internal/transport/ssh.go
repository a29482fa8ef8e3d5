package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// SSHTransport is the production Transport: an SSH connection with a PTY
// shell. A background goroutine drains the shell's stdout into an internal
// queue so Receive never blocks.
type SSHTransport struct {
	opts   Options
	logger zerolog.Logger

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	mu      sync.Mutex
	pending strings.Builder
	readErr error
	closed  bool
}

// NewSSH creates an SSH transport for the given target. Nothing is dialed
// until Connect.
func NewSSH(opts Options) Transport {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Term == "" {
		opts.Term = "xterm"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	return &SSHTransport{
		opts:   opts,
		logger: log.With().Str("component", "transport").Str("host", opts.Host).Logger(),
	}
}

// Connect dials the target, authenticates with the configured password, and
// starts an interactive shell on a PTY.
func (t *SSHTransport) Connect(ctx context.Context) error {
	timeout := time.Duration(t.opts.ConnectTimeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	config := &ssh.ClientConfig{
		User:            t.opts.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(t.opts.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	address := fmt.Sprintf("%s:%d", t.opts.Host, t.opts.Port)
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: failed to dial %s: %v", ErrConnection, address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return fmt.Errorf("%w: authentication failed for %s@%s: %v", ErrConnection, t.opts.Username, address, err)
		}
		return fmt.Errorf("%w: handshake with %s failed: %v", ErrConnection, address, err)
	}
	t.client = ssh.NewClient(sshConn, chans, reqs)

	session, err := t.client.NewSession()
	if err != nil {
		t.client.Close()
		return fmt.Errorf("%w: failed to create session: %v", ErrConnection, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0, // disable echoing
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(t.opts.Term, t.opts.Rows, t.opts.Cols, modes); err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("%w: request for pseudo terminal failed: %v", ErrConnection, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("%w: failed to get stdin pipe: %v", ErrConnection, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("%w: failed to get stdout pipe: %v", ErrConnection, err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("%w: failed to get stderr pipe: %v", ErrConnection, err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		t.client.Close()
		return fmt.Errorf("%w: failed to start shell: %v", ErrConnection, err)
	}

	t.mu.Lock()
	t.session = session
	t.stdin = stdin
	t.closed = false
	t.readErr = nil
	t.pending.Reset()
	t.mu.Unlock()

	go t.drain(stdout)
	go t.drain(stderr)

	t.logger.Info().Str("addr", address).Msg("SSH shell established")
	return nil
}

// drain continuously reads one stream into the pending queue until EOF or
// error. A read failure marks the channel dead.
func (t *SSHTransport) drain(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.pending.Write(buf[:n])
			t.mu.Unlock()
		}
		if err != nil {
			t.mu.Lock()
			if err != io.EOF && t.readErr == nil && !t.closed {
				t.readErr = fmt.Errorf("%w: read failed: %v", ErrChannel, err)
			}
			closed := t.closed
			t.mu.Unlock()
			if err != io.EOF && !closed {
				t.logger.Debug().Err(err).Msg("shell stream closed")
			}
			return
		}
	}
}

// Send writes text to the shell's stdin.
func (t *SSHTransport) Send(text string) error {
	t.mu.Lock()
	stdin := t.stdin
	closed := t.closed
	t.mu.Unlock()

	if closed || stdin == nil {
		return fmt.Errorf("%w: shell is not open", ErrChannel)
	}
	if _, err := stdin.Write([]byte(text)); err != nil {
		return fmt.Errorf("%w: write failed: %v", ErrChannel, err)
	}
	return nil
}

// Receive returns everything read from the shell since the last call. Once
// the reader goroutine has hit a channel error, Receive surfaces it after
// handing over any remaining output.
func (t *SSHTransport) Receive() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.pending.String()
	t.pending.Reset()
	if out == "" && t.readErr != nil {
		return "", t.readErr
	}
	return out, nil
}

// IsAlive reports whether the connection and shell are still usable.
func (t *SSHTransport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && !t.closed && t.readErr == nil
}

// Close shuts down the shell and connection.
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stdin, session, client := t.stdin, t.session, t.client
	t.stdin, t.session, t.client = nil, nil, nil
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if session != nil {
		session.Close()
	}
	if client != nil {
		if err := client.Close(); err != nil {
			return fmt.Errorf("failed to close SSH connection: %w", err)
		}
	}
	t.logger.Debug().Msg("SSH transport closed")
	return nil
}
