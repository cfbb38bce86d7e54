// Package conn maintains the notification socket to the development
// server: dial, read frames, and reconnect with bounded exponential backoff
// for as long as the page lives.
package conn

import (
	"errors"
	"fmt"
	"time"
)

// State is the connection lifecycle state.
type State int

const (
	Connecting State = iota
	Open
	ClosedPendingRetry
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case ClosedPendingRetry:
		return "closed_pending_retry"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Trigger is a socket lifecycle event fed to the Machine.
type Trigger int

const (
	OpenSucceeded Trigger = iota
	FrameReceived
	CloseObserved
	ErrorObserved
	RetryTimerFired
)

func (t Trigger) String() string {
	switch t {
	case OpenSucceeded:
		return "open_succeeded"
	case FrameReceived:
		return "frame_received"
	case CloseObserved:
		return "close_observed"
	case ErrorObserved:
		return "error_observed"
	case RetryTimerFired:
		return "retry_timer_fired"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Retry delay bounds.
const (
	InitialDelay = 500 * time.Millisecond
	MaxDelay     = 8 * time.Second
)

// ErrInvalidTransition is returned by Fire when the trigger is not
// accepted in the current state.
var ErrInvalidTransition = errors.New("conn: invalid transition")

// Machine is the connection state machine. It owns the retry delay: every
// close or error schedules a retry after the current delay, then doubles it
// up to MaxDelay; every successful open resets it to InitialDelay.
// A Machine is not safe for concurrent use.
type Machine struct {
	state State
	delay time.Duration
}

// NewMachine returns a Machine in Connecting with the initial delay.
func NewMachine() *Machine {
	return &Machine{state: Connecting, delay: InitialDelay}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Delay returns the delay the next retry will wait.
func (m *Machine) Delay() time.Duration { return m.delay }

// Fire applies t. When t moves the machine to ClosedPendingRetry, wait is
// how long to sleep before firing RetryTimerFired. An invalid trigger
// leaves the machine unchanged.
func (m *Machine) Fire(t Trigger) (wait time.Duration, err error) {
	switch {
	case m.state == Connecting && t == OpenSucceeded:
		m.state = Open
		m.delay = InitialDelay

	case m.state == Open && t == FrameReceived:

	case (m.state == Connecting || m.state == Open) && (t == CloseObserved || t == ErrorObserved):
		m.state = ClosedPendingRetry
		wait = m.delay
		m.delay = min(m.delay*2, MaxDelay)

	case m.state == ClosedPendingRetry && t == RetryTimerFired:
		m.state = Connecting

	default:
		return 0, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, t, m.state)
	}
	return wait, nil
}
