package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lazythumb/internal/eventloop"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
	"lazythumb/internal/metrics"
)

var (
	// ErrDeadline is the outcome error of a run that hit Config.Deadline.
	ErrDeadline = errors.New("extractor: deadline exceeded")
	// ErrEmptyFrame is the outcome error when the retry also captured nothing.
	ErrEmptyFrame = errors.New("extractor: empty frame after retry")
)

// State is the extractor state.
type State int

const (
	Idle State = iota
	MetadataLoading
	Seeking
	FrameReady
	Captured
	TimedOut
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MetadataLoading:
		return "metadata_loading"
	case Seeking:
		return "seeking"
	case FrameReady:
		return "frame_ready"
	case Captured:
		return "captured"
	case TimedOut:
		return "timed_out"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Captured || s == TimedOut || s == Errored
}

// Outcome is reported once when a run reaches a terminal state.
type Outcome struct {
	State    State
	Payload  string
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Params describe one run.
type Params struct {
	Loop    *eventloop.Loop
	Factory media.Factory
	Encoder media.Encoder
	URL     string
	Config  Config
	Log     logging.Logger

	// OnState observes every state change, on the loop.
	OnState func(State)
	// OnDone is called exactly once with the terminal outcome, on the loop.
	// It is not called after Abort.
	OnDone func(Outcome)
}

// Run is one extraction. All methods must be called on the run's loop.
type Run struct {
	p       Params
	cfg     Config
	started time.Time

	el     media.Element
	remove func()
	// cmds runs Play, Pause and Frame in order off the loop. A run issues at
	// most cmdQueue of them, so sends never block.
	cmds chan func()

	state    State
	attempts int
	released bool

	deadline  *eventloop.Timer
	seekTimer *eventloop.Timer
	burst     *eventloop.Timer
}

type inputKind int

const (
	inMetadata inputKind = iota
	inSeeked
	inMediaError
	inSeekTimeout
	inBurstDone
	inFrame
	inDeadline
)

const cmdQueue = 4

// input is everything that can move a run forward.
type input struct {
	kind     inputKind
	duration time.Duration
	payload  string
	empty    bool
	err      error
}

// Start creates the element, registers the listener, arms the deadline and
// requests the load. It must be called on p.Loop. An error means no element
// could be created and nothing was started.
func Start(ctx context.Context, p Params) (*Run, error) {
	el, err := p.Factory.NewElement(ctx)
	if err != nil {
		return nil, fmt.Errorf("create media element: %w", err)
	}

	r := &Run{
		p:       p,
		cfg:     p.Config.WithDefaults(),
		started: time.Now(),
		el:      el,
		cmds:    make(chan func(), cmdQueue),
		state:   Idle,
	}
	metrics.ExtractorInFlight.Inc()
	go r.runCommands(r.cmds)

	r.remove = el.AddListener(r.onEvent)
	r.deadline = p.Loop.AfterFunc(r.cfg.Deadline, func() { r.dispatch(input{kind: inDeadline}) })

	r.setState(MetadataLoading)
	el.Load(p.URL)
	return r, nil
}

// onEvent runs on whatever goroutine the element uses.
func (r *Run) onEvent(ev media.Event) {
	in := input{duration: ev.Duration, err: ev.Err}
	switch ev.Kind {
	case media.LoadedMetadata:
		in.kind = inMetadata
	case media.Seeked:
		in.kind = inSeeked
	case media.Error:
		in.kind = inMediaError
		if in.err == nil {
			in.err = errors.New("media error")
		}
	default:
		return
	}
	r.p.Loop.Post(func() { r.dispatch(in) })
}

// dispatch is the only place state changes.
func (r *Run) dispatch(in input) {
	if r.released || r.state.Terminal() {
		return
	}

	switch in.kind {
	case inDeadline:
		r.finish(TimedOut, "", ErrDeadline)

	case inMediaError:
		r.finish(Errored, "", in.err)

	case inMetadata:
		if r.state != MetadataLoading {
			return
		}
		target := r.cfg.SeekTarget(in.duration)
		r.p.Log.Debug("metadata loaded (duration %s), seeking to %s", in.duration, target)
		r.setState(Seeking)
		r.seekTimer = r.p.Loop.AfterFunc(r.cfg.SeekTimeout, func() { r.dispatch(input{kind: inSeekTimeout}) })
		r.el.Seek(target)

	case inSeeked, inSeekTimeout:
		if r.state != Seeking {
			return
		}
		r.seekTimer.Stop()
		if in.kind == inSeekTimeout {
			metrics.ExtractorSeekFallbacks.Inc()
			r.p.Log.Debug("seek did not complete within %s, capturing current frame", r.cfg.SeekTimeout)
		}
		r.setState(FrameReady)
		r.capture()

	case inBurstDone:
		if r.state != FrameReady {
			return
		}
		el := r.el
		r.cmds <- func() { el.Pause() }
		r.capture()

	case inFrame:
		if r.state != FrameReady {
			return
		}
		switch {
		case in.err != nil:
			r.finish(Errored, "", in.err)
		case !in.empty:
			r.finish(Captured, in.payload, nil)
		case r.attempts < maxAttempts:
			metrics.ExtractorRetries.Inc()
			r.p.Log.Debug("empty frame, playing %s before retrying", r.cfg.PlayBurst)
			el := r.el
			r.cmds <- func() { el.Play() }
			r.burst = r.p.Loop.AfterFunc(r.cfg.PlayBurst, func() { r.dispatch(input{kind: inBurstDone}) })
		default:
			r.finish(Errored, "", ErrEmptyFrame)
		}
	}
}

// runCommands executes element commands until the run is released. A
// decoder backend may block in any of them; the loop, and with it the
// deadline and Abort, never waits on one.
func (r *Run) runCommands(cmds <-chan func()) {
	for fn := range cmds {
		fn()
	}
}

// capture grabs and encodes the current frame off the loop and posts the
// result back.
func (r *Run) capture() {
	r.attempts++
	el, enc, loop := r.el, r.p.Encoder, r.p.Loop

	r.cmds <- func() {
		in := input{kind: inFrame}
		img, err := el.Frame()
		switch {
		case err != nil:
			in.err = err
		case media.IsEmpty(img):
			in.empty = true
		default:
			in.payload, in.err = enc.Encode(img)
		}
		loop.Post(func() { r.dispatch(in) })
	}
}

func (r *Run) setState(s State) {
	r.state = s
	if r.p.OnState != nil {
		r.p.OnState(s)
	}
}

func (r *Run) finish(s State, payload string, err error) {
	r.release()
	r.setState(s)

	elapsed := time.Since(r.started)
	metrics.ExtractorRunsTotal.WithLabelValues(s.String()).Inc()
	metrics.ExtractorDuration.WithLabelValues(s.String()).Observe(elapsed.Seconds())

	if err != nil {
		r.p.Log.Debug("extraction ended %s after %s: %v", s, elapsed.Round(time.Millisecond), err)
	} else {
		r.p.Log.Debug("extraction ended %s after %s", s, elapsed.Round(time.Millisecond))
	}

	if r.p.OnDone != nil {
		r.p.OnDone(Outcome{State: s, Payload: payload, Err: err, Attempts: r.attempts, Elapsed: elapsed})
	}
}

// release stops every timer, removes the listener and closes the element.
func (r *Run) release() {
	if r.released {
		return
	}
	r.released = true

	r.deadline.Stop()
	r.seekTimer.Stop()
	r.burst.Stop()

	r.remove()
	close(r.cmds)
	if err := r.el.Close(); err != nil {
		r.p.Log.Debug("closing media element: %v", err)
	}
	metrics.ExtractorInFlight.Dec()
}

// Abort releases the run's resources without reporting an outcome. It is a
// no-op once the run has finished.
func (r *Run) Abort() {
	r.release()
}

// State returns the current state.
func (r *Run) State() State {
	return r.state
}

// Attempts returns the number of capture attempts so far (at most 2).
func (r *Run) Attempts() int {
	return r.attempts
}
