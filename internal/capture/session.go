package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lazythumb/internal/cache"
	"lazythumb/internal/eventloop"
	"lazythumb/internal/extractor"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
	"lazythumb/internal/metrics"
	"lazythumb/internal/visibility"
)

// cacheTimeout bounds each cache call made from a session.
const cacheTimeout = 5 * time.Second

// Deps are the collaborators shared by sessions.
type Deps struct {
	Cache      cache.Store
	Factory    media.Factory
	Encoder    media.Encoder
	Visibility visibility.Source
}

// Options configure one session.
type Options struct {
	// Target is the visibility target. Defaults to the session id.
	Target    string
	Gate      visibility.Options
	Extractor extractor.Config
	// OnReady receives the payload at most once, on success, cache hit or
	// external poster. It runs on the session loop and must not block.
	OnReady func(payload string)
	Log     logging.Logger
}

// Session orchestrates one thumbnail for one mounted surface.
type Session struct {
	id   string
	ref  MediaReference
	deps Deps
	opts Options
	loop *eventloop.Loop
	log  logging.Logger

	mounted atomic.Bool

	// Owned by the loop.
	state       State
	phase       Phase
	gate        *visibility.Gate
	run         *extractor.Run
	inProgress  bool
	attempts    int
	deadline    time.Time
	payload     string
	source      Source
	extractions int
	readySent   bool
	mountedAt   time.Time

	mu   sync.Mutex
	snap Snapshot

	done     chan struct{}
	doneOnce sync.Once
}

// Mount creates a session and runs the generation path once, as a surface
// does when it mounts. It returns after that first step.
func Mount(id string, ref MediaReference, deps Deps, opts Options) *Session {
	if opts.Target == "" {
		opts.Target = id
	}
	s := &Session{
		id:        id,
		ref:       ref,
		deps:      deps,
		opts:      opts,
		loop:      eventloop.New(),
		log:       opts.Log.With("session", id),
		state:     Unstarted,
		phase:     GateWaiting,
		mountedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.mounted.Store(true)

	metrics.SessionsActive.Inc()
	metrics.SessionsMountedTotal.Inc()
	s.log.Debug("mounted %s", ref.URL)

	s.loop.Do(s.generate)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Generate requests generation again. It is suppressed while a request is
// pending or in flight and after the session completed.
func (s *Session) Generate() {
	s.loop.Post(s.generate)
}

func (s *Session) generate() {
	if !s.mounted.Load() {
		return
	}
	if s.state != Unstarted || s.inProgress {
		s.log.Debug("generate suppressed in state %s", s.state)
		return
	}

	if s.ref.ExternalPoster != "" {
		s.succeed(s.ref.ExternalPoster, SourcePoster)
		return
	}

	s.setState(WaitingForVisibility, GateWaiting)
	s.gate = visibility.Open(s.loop, s.deps.Visibility, s.opts.Target, s.opts.Gate, s.onVisible)
}

func (s *Session) onVisible() {
	if !s.mounted.Load() {
		return
	}
	s.gate = nil
	metrics.GateFiresTotal.Inc()
	s.setState(CheckingCache, s.phase)

	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	r, err := s.deps.Cache.Get(ctx, s.ref.URL)
	cancel()

	switch {
	case err == nil:
		s.succeed(r.Payload, SourceCache)
		return
	case !errors.Is(err, cache.ErrNotFound):
		s.log.Debug("cache read failed, generating: %v", err)
	}
	s.extract()
}

func (s *Session) extract() {
	if s.inProgress {
		return
	}
	s.inProgress = true
	s.extractions++

	cfg := s.opts.Extractor.WithDefaults()
	s.deadline = time.Now().Add(cfg.Deadline)
	s.setState(Extracting, Loading)

	run, err := extractor.Start(context.Background(), extractor.Params{
		Loop:    s.loop,
		Factory: s.deps.Factory,
		Encoder: s.deps.Encoder,
		URL:     s.ref.URL,
		Config:  cfg,
		Log:     s.log,
		OnState: s.onExtractorState,
		OnDone:  s.onExtracted,
	})
	if err != nil {
		s.inProgress = false
		s.fail(err)
		return
	}
	s.run = run
}

func (s *Session) onExtractorState(st extractor.State) {
	if !s.mounted.Load() {
		return
	}
	switch st {
	case extractor.MetadataLoading:
		s.setState(Extracting, Loading)
	case extractor.Seeking:
		s.setState(Extracting, Seeking)
	case extractor.FrameReady:
		s.setState(Extracting, Capturing)
	}
}

func (s *Session) onExtracted(o extractor.Outcome) {
	s.inProgress = false
	s.run = nil
	s.attempts = o.Attempts
	if !s.mounted.Load() {
		return
	}

	if o.State != extractor.Captured {
		s.fail(o.Err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	err := s.deps.Cache.Put(ctx, s.ref.URL, o.Payload)
	cancel()
	if err != nil {
		reason := "error"
		if errors.Is(err, cache.ErrQuotaExceeded) {
			reason = "quota"
		}
		metrics.CacheWriteFailures.WithLabelValues(reason).Inc()
		s.log.Debug("cache write skipped: %v", err)
	}

	s.succeed(o.Payload, SourceGenerated)
}

func (s *Session) succeed(payload string, src Source) {
	s.payload = payload
	s.source = src
	s.setState(Done, Succeeded)
	s.record(outcomeFor(src))

	if !s.readySent && s.opts.OnReady != nil {
		s.readySent = true
		s.opts.OnReady(payload)
	}
	s.closeDone()
}

func (s *Session) fail(err error) {
	s.log.Debug("no thumbnail for %s: %v", s.ref.URL, err)
	s.setState(DoneNoThumbnail, Failed)
	s.record("failed")
	s.closeDone()
}

func outcomeFor(src Source) string {
	switch src {
	case SourcePoster:
		return "poster"
	case SourceCache:
		return "cache_hit"
	default:
		return "captured"
	}
}

func (s *Session) record(outcome string) {
	metrics.SessionOutcomes.WithLabelValues(outcome).Inc()
	metrics.SessionDuration.WithLabelValues(outcome).Observe(time.Since(s.mountedAt).Seconds())
}

func (s *Session) setState(st State, ph Phase) {
	s.state = st
	s.phase = ph
	s.publish()
}

func (s *Session) publish() {
	snap := Snapshot{
		ID:             s.id,
		URL:            s.ref.URL,
		ExternalPoster: s.ref.ExternalPoster,
		State:          s.state,
		Phase:          s.phase,
		Attempts:       s.attempts,
		Deadline:       s.deadline,
		Payload:        s.payload,
		Source:         s.source,
		Extractions:    s.extractions,
		Mounted:        s.mounted.Load(),
		MountedAt:      s.mountedAt,
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns the latest published state. Safe from any goroutine.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Done is closed when the session reaches a terminal state or is unmounted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Unmount stops the session. The gate subscription and any extraction are
// released before Unmount returns; later callbacks are ignored. Safe to call
// more than once, from any goroutine except the session's own callbacks.
func (s *Session) Unmount() {
	if !s.mounted.CompareAndSwap(true, false) {
		return
	}
	s.loop.Do(s.teardown)
	s.loop.Close()

	metrics.SessionsActive.Dec()
	s.closeDone()
}

func (s *Session) teardown() {
	if s.gate != nil {
		s.gate.Cancel()
		s.gate = nil
	}
	if s.run != nil {
		s.run.Abort()
		s.run = nil
	}
	s.inProgress = false

	if s.state.Terminal() {
		s.publish()
		return
	}
	s.log.Debug("unmounted during %s", s.phase)
	s.phase = Abandoned
	s.publish()
	s.record("abandoned")
}
