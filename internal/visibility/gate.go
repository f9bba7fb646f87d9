package visibility

import (
	"lazythumb/internal/eventloop"
)

const (
	// DefaultMargin starts work this many distance units before the target
	// scrolls into view.
	DefaultMargin = 200
	// DefaultThreshold is the minimal visible fraction that counts as visible.
	DefaultThreshold = 0.01
)

// Options tune when a Gate considers its target visible.
type Options struct {
	Margin    float64
	Threshold float64
}

// DefaultOptions returns the margin and threshold used by the service.
func DefaultOptions() Options {
	return Options{Margin: DefaultMargin, Threshold: DefaultThreshold}
}

// Admits reports whether e counts as visible.
func (o Options) Admits(e Entry) bool {
	if e.Ratio > 0 && e.Ratio >= o.Threshold {
		return true
	}
	// A negative margin shrinks the viewport, so an intersecting target
	// (distance 0) still has to clear the threshold.
	return e.Distance <= o.Margin
}

// Gate is a one-shot visibility trigger bound to an event loop.
// All of its state is owned by the loop.
type Gate struct {
	loop       *eventloop.Loop
	opts       Options
	fire       func()
	disconnect func()
	fired      bool
	closed     bool
}

// Open starts observing target on src. fire runs on loop, at most once,
// after the first admitted entry; the observation is disconnected first.
//
// Open must be called from loop.
func Open(loop *eventloop.Loop, src Source, target string, opts Options, fire func()) *Gate {
	g := &Gate{loop: loop, opts: opts, fire: fire}
	g.disconnect = src.Observe(target, func(e Entry) {
		loop.Post(func() { g.handle(e) })
	})
	return g
}

func (g *Gate) handle(e Entry) {
	if g.closed || !g.opts.Admits(e) {
		return
	}
	g.fired = true
	g.close()
	g.fire()
}

// Fired reports whether the gate has fired.
func (g *Gate) Fired() bool {
	return g.fired
}

// Cancel disconnects the observation without firing. Must be called from the loop.
func (g *Gate) Cancel() {
	g.close()
}

func (g *Gate) close() {
	if g.closed {
		return
	}
	g.closed = true
	if g.disconnect != nil {
		g.disconnect()
		g.disconnect = nil
	}
}
