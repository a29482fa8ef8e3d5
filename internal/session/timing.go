package session

import "time"

// Timing holds the thresholds and clock used by the polling loops. The
// wall-clock functions are injectable so tests can drive a virtual clock
// instead of real sleeps.
type Timing struct {
	// PollInterval is the pause between accumulator polls.
	PollInterval time.Duration

	// Quiescence is how long the buffer must stay unchanged before a command
	// with no known prompt is considered complete.
	Quiescence time.Duration

	// MinWait is the minimum elapsed time since a command was sent before
	// quiescence may declare completion. Guards against devices that are
	// slow to start responding.
	MinWait time.Duration

	// SettleInterval is the fixed wait after prompt-discovery probes and
	// after the shell first opens.
	SettleInterval time.Duration

	// RetryDelay is the pause between command attempts in the supervisor.
	RetryDelay time.Duration

	Now   func() time.Time
	Sleep func(d time.Duration)
}

// DefaultTiming returns production thresholds on the real clock.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:   50 * time.Millisecond,
		Quiescence:     300 * time.Millisecond,
		MinWait:        500 * time.Millisecond,
		SettleInterval: time.Second,
		RetryDelay:     time.Second,
		Now:            time.Now,
		Sleep:          time.Sleep,
	}
}

// normalize fills in any zero-valued field from the defaults so a partially
// specified Timing is still usable.
func (t Timing) normalize() Timing {
	def := DefaultTiming()
	if t.PollInterval == 0 {
		t.PollInterval = def.PollInterval
	}
	if t.Quiescence == 0 {
		t.Quiescence = def.Quiescence
	}
	if t.MinWait == 0 {
		t.MinWait = def.MinWait
	}
	if t.SettleInterval == 0 {
		t.SettleInterval = def.SettleInterval
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = def.RetryDelay
	}
	if t.Now == nil {
		t.Now = time.Now
	}
	if t.Sleep == nil {
		t.Sleep = time.Sleep
	}
	return t
}
