package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/scottpeterman/sshwontdie/internal/transport"
)

// fakeTransport is a scripted transport. Sent text is recorded and the
// respond callback decides which chunks become available for Receive.
type fakeTransport struct {
	connected  bool
	connects   int
	connectErr error
	sendErr    error
	failSends  int
	recvErr    error
	sends      int
	sent       []string
	queue      []string
	respond    func(sent string) []string
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeTransport) Send(text string) error {
	f.sends++
	if f.sendErr != nil && f.failSends != 0 {
		if f.failSends > 0 {
			f.failSends--
		}
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	if f.respond != nil {
		f.queue = append(f.queue, f.respond(text)...)
	}
	return nil
}

func (f *fakeTransport) Receive() (string, error) {
	if len(f.queue) > 0 {
		chunk := f.queue[0]
		f.queue = f.queue[1:]
		return chunk, nil
	}
	return "", f.recvErr
}

func (f *fakeTransport) IsAlive() bool { return f.connected }

func (f *fakeTransport) Close() error {
	f.connected = false
	return nil
}

// virtualClock advances on Sleep instead of waiting, so timing behavior can
// be tested without real delays.
type virtualClock struct {
	now time.Time
}

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func testTiming(clock *virtualClock) Timing {
	return Timing{
		PollInterval:   50 * time.Millisecond,
		Quiescence:     300 * time.Millisecond,
		MinWait:        500 * time.Millisecond,
		SettleInterval: 200 * time.Millisecond,
		RetryDelay:     100 * time.Millisecond,
		Now:            clock.Now,
		Sleep:          clock.Sleep,
	}
}

func newTestSession(t *testing.T, ft *fakeTransport) (*Session, *virtualClock) {
	t.Helper()
	clock := &virtualClock{now: time.Unix(0, 0)}
	sess := New(ft, testTiming(clock))
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return sess, clock
}

func TestExecutePromptCompletion(t *testing.T) {
	ft := &fakeTransport{
		respond: func(sent string) []string {
			if strings.HasPrefix(sent, "show version") {
				return []string{"Cisco IOS Software, Version 15.2\r\n", "router1#"}
			}
			return nil
		},
	}
	sess, _ := newTestSession(t, ft)
	sess.SetPrompt("router1#")

	result := sess.Execute("show version", 10*time.Second)
	if result.Status != StatusOK {
		t.Fatalf("Expected StatusOK, got %v (err: %v)", result.Status, result.Err)
	}
	if !strings.Contains(result.Output, "Version 15.2") {
		t.Errorf("Output missing command response: %q", result.Output)
	}
	if !strings.HasSuffix(strings.TrimSpace(result.Output), "router1#") {
		t.Errorf("Output should end with the prompt: %q", result.Output)
	}
}

func TestExecuteAppendsNewline(t *testing.T) {
	ft := &fakeTransport{
		respond: func(sent string) []string { return []string{"ok\r\nhost#"} },
	}
	sess, _ := newTestSession(t, ft)
	sess.SetPrompt("host#")

	sess.Execute("show clock", 10*time.Second)

	last := ft.sent[len(ft.sent)-1]
	if last != "show clock\n" {
		t.Errorf("Expected newline-terminated command, got %q", last)
	}
}

func TestExecuteQuiescenceCompletion(t *testing.T) {
	// No prompt known: completion must come from the buffer going quiet
	// after the minimum wait.
	ft := &fakeTransport{
		respond: func(sent string) []string {
			return []string{"some output without any prompt\r\n"}
		},
	}
	sess, clock := newTestSession(t, ft)

	start := clock.Now()
	result := sess.Execute("uname -a", 10*time.Second)
	if result.Status != StatusOK {
		t.Fatalf("Expected StatusOK via quiescence, got %v", result.Status)
	}
	elapsed := clock.Now().Sub(start)
	if elapsed < 500*time.Millisecond {
		t.Errorf("Quiescence completed before the minimum wait: %v", elapsed)
	}
	if !strings.Contains(result.Output, "some output") {
		t.Errorf("Output missing response: %q", result.Output)
	}
}

func TestExecuteHardTimeoutReturnsPartial(t *testing.T) {
	ft := &fakeTransport{
		respond: func(sent string) []string {
			return []string{"partial out"}
		},
	}
	sess, _ := newTestSession(t, ft)

	// Timeout below the minimum wait forces the hard deadline path.
	result := sess.Execute("slow command", 400*time.Millisecond)
	if result.Status != StatusPartial {
		t.Fatalf("Expected StatusPartial, got %v", result.Status)
	}
	if !errors.Is(result.Err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", result.Err)
	}
	if result.Output != "partial out" {
		t.Errorf("Partial output not preserved: %q", result.Output)
	}
}

func TestExecuteOutputSlicedPerCommand(t *testing.T) {
	ft := &fakeTransport{
		respond: func(sent string) []string {
			switch {
			case strings.HasPrefix(sent, "first"):
				return []string{"first output\r\nhost#"}
			case strings.HasPrefix(sent, "second"):
				return []string{"second output\r\nhost#"}
			}
			return nil
		},
	}
	sess, _ := newTestSession(t, ft)
	sess.SetPrompt("host#")

	r1 := sess.Execute("first", 10*time.Second)
	r2 := sess.Execute("second", 10*time.Second)

	if strings.Contains(r2.Output, "first output") {
		t.Errorf("Second result contains first command's output: %q", r2.Output)
	}
	if !strings.Contains(r1.Output, "first output") || !strings.Contains(r2.Output, "second output") {
		t.Errorf("Per-command slicing wrong: %q / %q", r1.Output, r2.Output)
	}
	if !strings.Contains(sess.Buffer().Snapshot(), "first output") {
		t.Errorf("Accumulator should retain all history")
	}
}

func TestExecuteWithRetryNonChannelFailure(t *testing.T) {
	ft := &fakeTransport{sendErr: errors.New("write: broken pipe"), failSends: -1}
	sess, _ := newTestSession(t, ft)

	result := sess.ExecuteWithRetry(context.Background(), "show version", time.Second, 1)
	if result.Status != StatusFailed {
		t.Fatalf("Expected StatusFailed, got %v", result.Status)
	}
	// retries=1 means exactly one retry after the initial attempt.
	if ft.sends != 2 {
		t.Errorf("Expected exactly 2 send attempts, got %d", ft.sends)
	}
	// Not a channel-class error, so no reconnect beyond the initial connect.
	if ft.connects != 1 {
		t.Errorf("Expected no reconnects, transport connected %d times", ft.connects)
	}
}

func TestExecuteWithRetryReconnectsOnChannelFailure(t *testing.T) {
	ft := &fakeTransport{
		sendErr:   fmt.Errorf("%w: remote side closed", transport.ErrChannel),
		failSends: -1,
	}
	sess, _ := newTestSession(t, ft)

	result := sess.ExecuteWithRetry(context.Background(), "show version", time.Second, 2)
	if result.Status != StatusFailed {
		t.Fatalf("Expected StatusFailed, got %v", result.Status)
	}
	// Initial connect plus one reconnect per non-final attempt.
	if ft.connects != 3 {
		t.Errorf("Expected 3 connects (1 initial + 2 reconnects), got %d", ft.connects)
	}
}

func TestExecuteWithRetrySucceedsAfterReconnect(t *testing.T) {
	// First send fails with a channel error; after the reconnect the
	// fault clears and the command goes through.
	ft := &fakeTransport{
		respond: func(sent string) []string {
			return []string{"output\r\nhost#"}
		},
	}
	sess, _ := newTestSession(t, ft)
	sess.SetPrompt("host#")
	ft.sendErr = fmt.Errorf("%w: ssh channel torn down", transport.ErrChannel)
	ft.failSends = 1

	result := sess.ExecuteWithRetry(context.Background(), "show version", 10*time.Second, 1)
	if result.Failed() {
		t.Fatalf("Expected eventual success, got failure: %v", result.Err)
	}
	if ft.connects != 2 {
		t.Errorf("Expected one reconnect after channel failure, got %d connects", ft.connects)
	}
	if !strings.Contains(result.Output, "output") {
		t.Errorf("Output missing after retry: %q", result.Output)
	}
}

func TestReconnectPreservesBufferAndPrompt(t *testing.T) {
	ft := &fakeTransport{}
	sess, _ := newTestSession(t, ft)
	sess.SetPrompt("host#")
	sess.Buffer().Append("historical output\r\nhost#")

	if err := sess.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if sess.Prompt() != "host#" {
		t.Errorf("Prompt lost across reconnect: %q", sess.Prompt())
	}
	if !strings.Contains(sess.Buffer().Snapshot(), "historical output") {
		t.Errorf("Buffer content lost across reconnect")
	}
	if sess.State() != ShellActive {
		t.Errorf("Expected ShellActive after reconnect, got %v", sess.State())
	}
}

func TestExecuteWithoutShellFails(t *testing.T) {
	ft := &fakeTransport{}
	clock := &virtualClock{now: time.Unix(0, 0)}
	sess := New(ft, testTiming(clock))

	result := sess.Execute("show version", time.Second)
	if result.Status != StatusFailed {
		t.Fatalf("Expected StatusFailed on disconnected session, got %v", result.Status)
	}
}

func TestIsChannelFailure(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{transport.ErrChannel, true},
		{transport.ErrConnection, true},
		{fmt.Errorf("wrapped: %w", transport.ErrChannel), true},
		{errors.New("SSH channel closed unexpectedly"), true},
		{errors.New("Connection reset by peer"), true},
		{errors.New("invalid command syntax"), false},
		{errors.New("permission denied"), false},
	}
	for _, tc := range cases {
		if got := isChannelFailure(tc.err); got != tc.want {
			t.Errorf("isChannelFailure(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
