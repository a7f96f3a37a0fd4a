package animator

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// State of an animation run.
type State int

const (
	// Idle means no route has been started.
	Idle State = iota
	// Advancing means the ticker is active and waypoints remain.
	Advancing
	// Completed means every waypoint has been reached and the ticker is stopped.
	Completed
	// Stopped means the run was cancelled before completion.
	Stopped
)

var stateNames = map[State]string{
	Idle:      "idle",
	Advancing: "advancing",
	Completed: "completed",
	Stopped:   "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode selects how positions are emitted between waypoints.
type Mode int

const (
	// ModeJump snaps the position to each waypoint on tick.
	ModeJump Mode = iota
	// ModeInterpolate emits eased intermediate samples before reaching the waypoint.
	ModeInterpolate
)

// ParseMode resolves a configured mode name.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "jump":
		return ModeJump, nil
	case "", "interpolate":
		return ModeInterpolate, nil
	default:
		return ModeJump, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, name)
	}
}

// TraceMode tells Start what to do with the trace of a previous run.
type TraceMode int

const (
	// TraceFresh replaces the trace with the new route's start position.
	TraceFresh TraceMode = iota
	// TraceContinue keeps the previous trace and appends the new start position.
	TraceContinue
)

// ParseTraceMode resolves "fresh" or "continue".
func ParseTraceMode(name string) (TraceMode, error) {
	switch name {
	case "", "fresh":
		return TraceFresh, nil
	case "continue":
		return TraceContinue, nil
	default:
		return TraceFresh, fmt.Errorf("%w: unknown trace mode %q", ErrInvalidConfig, name)
	}
}

var (
	// ErrInvalidConfig is wrapped by every configuration rejection.
	ErrInvalidConfig = errors.New("invalid animator configuration")
	// ErrRunning is returned when starting an animator that is still advancing.
	ErrRunning = errors.New("animator is already running")
)

// ConfigError describes a rejected option or route.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Frame is one emitted marker position.
type Frame struct {
	Position orb.Point `json:"position"`
	// Waypoint is the index of the waypoint being approached or reached.
	Waypoint int `json:"waypoint"`
	// Progress is the eased progress towards Waypoint in [0..1].
	Progress float64 `json:"progress"`
	// Arrived is set when Position equals the waypoint and the trace was appended.
	Arrived bool `json:"arrived"`
}

// Sink receives frames synchronously from the animation goroutine.
// The next tick is not processed until Sink returns. Sink must not call Stop.
type Sink func(Frame)

// Snapshot is a consistent copy of the animator state.
type Snapshot struct {
	State    State       `json:"state"`
	Index    int         `json:"index"`
	Position orb.Point   `json:"position"`
	Trace    []orb.Point `json:"trace"`
	Route    []orb.Point `json:"route"`
}

// clock abstracts time so runs can be driven deterministically.
type clock interface {
	Ticker(d time.Duration) (<-chan time.Time, func())
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
