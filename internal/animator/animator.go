// Package animator moves a marker along a route on a fixed-period ticker,
// recording every reached waypoint in an append-only trace.
package animator

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshard/internal/geo"
)

// Options configures the animation timing.
type Options struct {
	// Tick is the period between waypoints.
	Tick time.Duration
	// Duration is how long interpolation towards a waypoint takes; must not exceed Tick.
	Duration time.Duration
	// Frames is the number of samples emitted per step in interpolate mode, arrival included.
	Frames int
	Mode   Mode
	Easing geo.Easing
}

// Animator runs one route at a time. It is safe for concurrent use.
type Animator struct {
	opts  Options
	sink  Sink
	clock clock

	mu       sync.Mutex
	state    State
	route    []orb.Point
	index    int
	position orb.Point
	trace    []orb.Point
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an idle animator. Options are validated by Start.
// sink may be nil when consumers only poll Snapshot.
func New(opts Options, sink Sink) *Animator {
	if opts.Easing == nil {
		opts.Easing = geo.EaseLinear
	}
	if sink == nil {
		sink = func(Frame) {}
	}

	return &Animator{
		opts:  opts,
		sink:  sink,
		clock: realClock{},
	}
}

// Validate checks the options and the route.
func (o Options) Validate(route []orb.Point) error {
	if len(route) == 0 {
		return &ConfigError{Field: "route", Reason: "is empty"}
	}
	if o.Tick <= 0 {
		return &ConfigError{Field: "tick", Reason: "must be positive"}
	}
	if o.Mode == ModeInterpolate {
		if o.Duration <= 0 {
			return &ConfigError{Field: "duration", Reason: "must be positive"}
		}
		if o.Duration > o.Tick {
			return &ConfigError{Field: "duration", Reason: "must not exceed tick"}
		}
		if o.Frames < 1 {
			return &ConfigError{Field: "frames", Reason: "must be at least 1"}
		}
	}

	return nil
}

// Start begins animating route. The first waypoint is the start position:
// it becomes the current position and is seeded into the trace, and the
// next waypoint index is 1. TraceFresh discards the previous trace,
// TraceContinue appends to it.
//
// The run ends when the last waypoint is reached, Stop is called or ctx ends.
// A single-waypoint route completes immediately, emitting its only frame
// from the calling goroutine.
func (a *Animator) Start(ctx context.Context, route []orb.Point, mode TraceMode) error {
	if err := a.opts.Validate(route); err != nil {
		return err
	}

	a.mu.Lock()
	if a.state == Advancing {
		a.mu.Unlock()
		return ErrRunning
	}
	prev := a.done
	a.mu.Unlock()

	// the previous goroutine may still be delivering its last frame
	if prev != nil {
		<-prev
	}

	a.mu.Lock()
	if a.state == Advancing {
		a.mu.Unlock()
		return ErrRunning
	}

	start := route[0]
	a.route = slices.Clone(route)
	a.index = 1
	a.position = start

	switch {
	case mode == TraceContinue && len(a.trace) > 0:
		if !a.trace[len(a.trace)-1].Equal(start) {
			a.trace = append(a.trace, start)
		}
	default:
		a.trace = []orb.Point{start}
	}

	// nothing to advance to: the start is the last waypoint
	if len(route) == 1 {
		a.state = Completed
		a.cancel = nil
		a.done = make(chan struct{})
		close(a.done)
		a.mu.Unlock()

		a.sink(Frame{Position: start, Waypoint: 0, Progress: 1, Arrived: true})
		log.Debug().Int("waypoints", 1).Msg("Animation completed")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.state = Advancing
	done := a.done
	a.mu.Unlock()

	log.Debug().
		Int("waypoints", len(route)).
		Dur("tick", a.opts.Tick).
		Bool("continue", mode == TraceContinue).
		Msg("Animation started")

	go a.run(runCtx, done)

	return nil
}

// Stop cancels the current run and waits until no more frames can be emitted.
// Position and trace stay exactly as last emitted. Stopping a run that is not
// advancing is a no-op.
func (a *Animator) Stop() {
	a.mu.Lock()
	if a.state != Advancing {
		a.mu.Unlock()
		return
	}
	a.state = Stopped
	a.cancel()
	done := a.done
	a.mu.Unlock()

	<-done

	log.Debug().Msg("Animation stopped")
}

// Done returns a channel closed when the current run ends.
// Before the first Start it is already closed.
func (a *Animator) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.done
}

// State returns the current state.
func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns a consistent copy of the animator state.
func (a *Animator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		State:    a.state,
		Index:    a.index,
		Position: a.position,
		Trace:    slices.Clone(a.trace),
		Route:    slices.Clone(a.route),
	}
}

func (a *Animator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	a.sink(Frame{Position: a.route0(), Waypoint: 0, Progress: 1, Arrived: true})

	ticks, stop := a.clock.Ticker(a.opts.Tick)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.halt()
			return
		case <-ticks:
			if !a.step(ctx) {
				return
			}
		}
	}
}

func (a *Animator) route0() orb.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route[0]
}

// step advances towards the next waypoint. It reports whether the run continues.
func (a *Animator) step(ctx context.Context) bool {
	a.mu.Lock()
	if a.state != Advancing {
		a.mu.Unlock()
		return false
	}
	if a.index >= len(a.route) {
		a.state = Completed
		a.mu.Unlock()
		log.Debug().Msg("Animation completed")
		return false
	}
	from, to, target := a.position, a.route[a.index], a.index
	a.mu.Unlock()

	if a.opts.Mode == ModeInterpolate {
		interval := a.opts.Duration / time.Duration(a.opts.Frames)
		for i := 1; i < a.opts.Frames; i++ {
			select {
			case <-ctx.Done():
				a.halt()
				return false
			case <-a.clock.After(interval):
			}

			progress := a.opts.Easing(float64(i) / float64(a.opts.Frames))
			if !a.move(Frame{Position: geo.Lerp(from, to, progress), Waypoint: target, Progress: progress}) {
				return false
			}
		}

		select {
		case <-ctx.Done():
			a.halt()
			return false
		case <-a.clock.After(interval):
		}
	}

	return a.arrive(to, target)
}

// move sets an intermediate position and emits it.
func (a *Animator) move(f Frame) bool {
	a.mu.Lock()
	if a.state != Advancing {
		a.mu.Unlock()
		return false
	}
	a.position = f.Position
	a.mu.Unlock()

	a.sink(f)
	return true
}

// arrive reaches waypoint target, appends it to the trace and completes the
// run when it was the last one.
func (a *Animator) arrive(to orb.Point, target int) bool {
	a.mu.Lock()
	if a.state != Advancing {
		a.mu.Unlock()
		return false
	}
	a.position = to
	a.trace = append(a.trace, to)
	a.index++
	last := a.index >= len(a.route)
	if last {
		a.state = Completed
	}
	a.mu.Unlock()

	a.sink(Frame{Position: to, Waypoint: target, Progress: 1, Arrived: true})

	if last {
		log.Debug().Int("waypoints", target+1).Msg("Animation completed")
		return false
	}
	return true
}

// halt records a cancellation coming from the parent context.
func (a *Animator) halt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Advancing {
		a.state = Stopped
	}
}
