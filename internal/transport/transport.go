// Package transport provides the remote-shell capability consumed by the
// session engine. The engine only ever sees the Transport interface: an
// opaque channel that can send text, hand back whatever output has arrived,
// report liveness, and close. The SSH implementation lives in ssh.go.
package transport

import (
	"context"
	"errors"
)

// ErrConnection marks failures to establish the transport. Fatal to the
// session that requested it.
var ErrConnection = errors.New("transport: connection failed")

// ErrChannel marks mid-session failures of an established channel. The
// session layer may attempt one reconnect cycle on these.
var ErrChannel = errors.New("transport: channel failure")

// Options carries the parameters for opening an interactive shell.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// ConnectTimeoutMS bounds connection establishment. Zero means the
	// implementation default.
	ConnectTimeoutMS int

	// Terminal settings for the remote PTY.
	Term string
	Rows int
	Cols int
}

// Transport is an interactive remote shell. Implementations must make
// Receive non-blocking: it returns whatever output has arrived since the
// last call, or an empty string when nothing is pending. A non-nil error
// from Send or Receive wraps ErrChannel once the channel is dead.
type Transport interface {
	// Connect establishes the connection and starts the interactive shell.
	// Errors wrap ErrConnection; authentication failures are reported
	// distinctly in the error text.
	Connect(ctx context.Context) error

	// Send writes text to the remote shell's input.
	Send(text string) error

	// Receive returns output that has arrived since the last call, without
	// blocking. An empty string means nothing is pending.
	Receive() (string, error)

	// IsAlive reports whether the channel is still usable.
	IsAlive() bool

	// Close tears down the shell and the connection. Safe to call twice.
	Close() error
}

// Factory builds transports for fingerprint runs. The daemon wires the SSH
// implementation; tests substitute scripted transports.
type Factory func(opts Options) Transport
