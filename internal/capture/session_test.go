package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lazythumb/internal/cache"
	"lazythumb/internal/extractor"
	"lazythumb/internal/media"
	"lazythumb/internal/media/mediatest"
	"lazythumb/internal/visibility"
)

func fastExtractor() extractor.Config {
	return extractor.Config{
		Deadline:    300 * time.Millisecond,
		SeekTimeout: 50 * time.Millisecond,
		PlayBurst:   10 * time.Millisecond,
	}
}

type testEnv struct {
	viewport *visibility.Viewport
	store    *cache.MemoryStore
	factory  *mediatest.Factory
	deps     Deps
}

func newTestEnv() *testEnv {
	e := &testEnv{
		viewport: visibility.NewViewport(),
		store:    cache.NewMemoryStore(0),
		factory:  mediatest.NewFactory(),
	}
	e.deps = Deps{
		Cache:      e.store,
		Factory:    e.factory,
		Encoder:    media.NewJPEGEncoder(),
		Visibility: e.viewport,
	}
	return e
}

// readyRecorder collects OnReady payloads.
type readyRecorder struct {
	mu       sync.Mutex
	payloads []string
}

func (r *readyRecorder) record(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *readyRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func (e *testEnv) mount(t *testing.T, id string, ref MediaReference, rec *readyRecorder) *Session {
	t.Helper()
	opts := Options{Extractor: fastExtractor()}
	if rec != nil {
		opts.OnReady = rec.record
	}
	s := Mount(id, ref, e.deps, opts)
	t.Cleanup(s.Unmount)
	return s
}

func (e *testEnv) show(id string) {
	e.viewport.Report(id, visibility.Entry{Ratio: 1})
}

func waitDone(t *testing.T, s *Session, within time.Duration) Snapshot {
	t.Helper()
	select {
	case <-s.Done():
		return s.Snapshot()
	case <-time.After(within):
		t.Fatalf("session not done within %s: %+v", within, s.Snapshot())
		return Snapshot{}
	}
}

func waitPhase(t *testing.T, s *Session, want Phase, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for s.Snapshot().Phase != want {
		if time.Now().After(deadline) {
			t.Fatalf("phase %s not reached, at %s", want, s.Snapshot().Phase)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSessionGeneratesOnVisibility(t *testing.T) {
	e := newTestEnv()
	rec := &readyRecorder{}
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, rec)

	if snap := s.Snapshot(); snap.State != WaitingForVisibility || snap.Phase != GateWaiting {
		t.Fatalf("after mount = %s/%s, want waiting_for_visibility/gate_waiting", snap.State, snap.Phase)
	}
	if e.factory.Created() != 0 {
		t.Fatal("extraction started before the surface was visible")
	}

	e.show("s1")
	snap := waitDone(t, s, time.Second)

	if snap.State != Done || snap.Phase != Succeeded || snap.Source != SourceGenerated {
		t.Errorf("final = %s/%s/%q, want done/succeeded/generated", snap.State, snap.Phase, snap.Source)
	}
	if e.factory.Created() != 1 {
		t.Errorf("extractor runs = %d, want 1", e.factory.Created())
	}

	got := rec.got()
	if len(got) != 1 || !strings.HasPrefix(got[0], "data:image/jpeg;base64,") {
		t.Errorf("OnReady payloads = %d, want one jpeg data URI", len(got))
	}

	cached, err := e.store.Get(context.Background(), "a.mp4")
	if err != nil {
		t.Fatalf("cache has no entry for a.mp4: %v", err)
	}
	if cached.Payload != got[0] {
		t.Error("cached payload differs from the delivered payload")
	}
	if e.viewport.Observers("s1") != 0 {
		t.Error("visibility observer still connected after firing")
	}
}

func TestSessionCacheHit(t *testing.T) {
	e := newTestEnv()
	if err := e.store.Put(context.Background(), "a.mp4", "data:image/jpeg;base64,CACHED"); err != nil {
		t.Fatal(err)
	}
	rec := &readyRecorder{}
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, rec)

	e.show("s1")
	snap := waitDone(t, s, time.Second)

	if snap.State != Done || snap.Source != SourceCache {
		t.Errorf("final = %s/%q, want done from cache", snap.State, snap.Source)
	}
	if e.factory.Created() != 0 {
		t.Errorf("extractor invoked %d times on a cache hit", e.factory.Created())
	}
	if got := rec.got(); len(got) != 1 || got[0] != "data:image/jpeg;base64,CACHED" {
		t.Errorf("OnReady = %v, want the cached payload", got)
	}
}

func TestSessionNeverLoadingSourceFails(t *testing.T) {
	e := newTestEnv()
	e.factory.Script("broken.mp4", mediatest.Script{NoMetadata: true})
	rec := &readyRecorder{}
	s := e.mount(t, "s1", MediaReference{URL: "broken.mp4"}, rec)

	start := time.Now()
	e.show("s1")
	snap := waitDone(t, s, 3*fastExtractor().Deadline)

	if snap.State != DoneNoThumbnail || snap.Phase != Failed {
		t.Errorf("final = %s/%s, want done_no_thumbnail/failed", snap.State, snap.Phase)
	}
	if elapsed := time.Since(start); elapsed < fastExtractor().Deadline {
		t.Errorf("failed after %s, before the deadline", elapsed)
	}
	if got := rec.got(); len(got) != 0 {
		t.Errorf("OnReady called on failure: %v", got)
	}
	if v := View(snap); v.Kind != KindPlaceholder || !v.PlayOverlay {
		t.Errorf("view = %+v, want placeholder with play overlay", v)
	}
	if _, err := e.store.Get(context.Background(), "broken.mp4"); !errors.Is(err, cache.ErrNotFound) {
		t.Error("failure must not write the cache")
	}
	if e.factory.Open() != 0 || e.factory.Listeners() != 0 {
		t.Error("failed extraction leaked its element")
	}
}

func TestSessionExternalPoster(t *testing.T) {
	e := newTestEnv()
	rec := &readyRecorder{}
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4", ExternalPoster: "poster.jpg"}, rec)

	// The poster resolves during Mount, without waiting for visibility.
	snap := s.Snapshot()
	if snap.State != Done || snap.Source != SourcePoster || snap.Payload != "poster.jpg" {
		t.Errorf("after mount = %+v, want done with poster", snap)
	}
	if got := rec.got(); len(got) != 1 || got[0] != "poster.jpg" {
		t.Errorf("OnReady = %v, want [poster.jpg]", got)
	}
	if e.factory.Created() != 0 {
		t.Error("extractor invoked despite an external poster")
	}
	if e.viewport.Observers("s1") != 0 {
		t.Error("poster sessions should never observe visibility")
	}
}

func TestSessionPosterWinsOverCache(t *testing.T) {
	e := newTestEnv()
	_ = e.store.Put(context.Background(), "a.mp4", "cached")
	rec := &readyRecorder{}
	e.mount(t, "s1", MediaReference{URL: "a.mp4", ExternalPoster: "poster.jpg"}, rec)
	e.show("s1")

	time.Sleep(20 * time.Millisecond)
	if got := rec.got(); len(got) != 1 || got[0] != "poster.jpg" {
		t.Errorf("OnReady = %v, want only the poster", got)
	}
	if e.factory.Created() != 0 {
		t.Error("extractor invoked despite an external poster")
	}
}

func TestSecondMountHitsCache(t *testing.T) {
	e := newTestEnv()

	first := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, nil)
	e.show("s1")
	waitDone(t, first, time.Second)
	first.Unmount()

	second := e.mount(t, "s2", MediaReference{URL: "a.mp4"}, nil)
	e.show("s2")
	snap := waitDone(t, second, time.Second)

	if snap.Source != SourceCache {
		t.Errorf("second session source = %q, want cache", snap.Source)
	}
	if e.factory.Created() != 1 {
		t.Errorf("extractor runs = %d, want 1 across both sessions", e.factory.Created())
	}
}

func TestSessionAtMostOneExtraction(t *testing.T) {
	e := newTestEnv()
	e.factory.Script("slow.mp4", mediatest.Script{Duration: time.Second, Latency: 30 * time.Millisecond})
	s := e.mount(t, "s1", MediaReference{URL: "slow.mp4"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Flicker in and out of view while re-requesting generation.
			if i%2 == 0 {
				e.show("s1")
			} else {
				e.viewport.Report("s1", visibility.Entry{Distance: 5000})
			}
			s.Generate()
		}(i)
	}
	wg.Wait()

	snap := waitDone(t, s, time.Second)
	if e.factory.Created() != 1 || snap.Extractions != 1 {
		t.Errorf("extractions = %d (elements %d), want exactly 1", snap.Extractions, e.factory.Created())
	}
}

func TestGenerateAfterDoneIsSuppressed(t *testing.T) {
	e := newTestEnv()
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, nil)
	e.show("s1")
	waitDone(t, s, time.Second)

	s.Generate()
	s.Generate()
	time.Sleep(20 * time.Millisecond)

	if e.factory.Created() != 1 {
		t.Errorf("extractor runs = %d, want 1", e.factory.Created())
	}
}

func TestUnmountDuringSeeking(t *testing.T) {
	e := newTestEnv()
	e.factory.Script("a.mp4", mediatest.Script{Duration: time.Second, NoSeeked: true})

	rec := &readyRecorder{}
	opts := Options{Extractor: fastExtractor(), OnReady: rec.record}
	opts.Extractor.SeekTimeout = time.Second
	s := Mount("s1", MediaReference{URL: "a.mp4"}, e.deps, opts)

	e.show("s1")
	waitPhase(t, s, Seeking, time.Second)

	s.Unmount()

	if n := e.factory.Listeners(); n != 0 {
		t.Errorf("%d media listeners left after unmount", n)
	}
	if n := e.factory.Open(); n != 0 {
		t.Errorf("%d media elements left open after unmount", n)
	}
	if n := e.viewport.Observers("s1"); n != 0 {
		t.Errorf("%d visibility observers left after unmount", n)
	}

	snap := s.Snapshot()
	if snap.Phase != Abandoned || snap.Mounted {
		t.Errorf("after unmount = %s mounted=%v, want abandoned and unmounted", snap.Phase, snap.Mounted)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after unmount")
	}

	// The seek timeout and deadline would have fired by now.
	time.Sleep(fastExtractor().Deadline + 50*time.Millisecond)
	if got := rec.got(); len(got) != 0 {
		t.Errorf("OnReady called after unmount: %v", got)
	}
	if s.Snapshot().State.Terminal() {
		t.Error("a late callback moved an unmounted session")
	}

	s.Unmount() // idempotent
}

func TestUnmountWhileDecoderHangs(t *testing.T) {
	e := newTestEnv()
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })
	e.factory.Script("stuck.mp4", mediatest.Script{Duration: time.Second, EmptyFrames: 1, Hang: hang})

	opts := Options{Extractor: fastExtractor()}
	opts.Extractor.Deadline = 5 * time.Second
	s := Mount("s1", MediaReference{URL: "stuck.mp4"}, e.deps, opts)

	e.show("s1")
	deadline := time.Now().Add(time.Second)
	for len(e.factory.Elements()) == 0 || e.factory.Elements()[0].Plays() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("play burst never started")
		}
		time.Sleep(2 * time.Millisecond)
	}

	unmounted := make(chan struct{})
	go func() {
		s.Unmount()
		close(unmounted)
	}()
	select {
	case <-unmounted:
	case <-time.After(time.Second):
		t.Fatal("Unmount blocked behind a hung decoder")
	}
	if n := e.factory.Open(); n != 0 {
		t.Errorf("%d media elements left open after unmount", n)
	}
}

func TestUnmountBeforeVisible(t *testing.T) {
	e := newTestEnv()
	s := Mount("s1", MediaReference{URL: "a.mp4"}, e.deps, Options{Extractor: fastExtractor()})

	if e.viewport.Observers("s1") != 1 {
		t.Fatalf("observers = %d, want 1 while waiting", e.viewport.Observers("s1"))
	}
	s.Unmount()

	if e.viewport.Observers("s1") != 0 {
		t.Error("gate still observing after unmount")
	}
	e.show("s1")
	time.Sleep(20 * time.Millisecond)
	if e.factory.Created() != 0 {
		t.Error("extraction started after unmount")
	}
	if s.Snapshot().Phase != Abandoned {
		t.Errorf("phase = %s, want abandoned", s.Snapshot().Phase)
	}
}

func TestUnmountIgnoresLateEvents(t *testing.T) {
	e := newTestEnv()
	e.factory.Script("a.mp4", mediatest.Script{Duration: time.Second, Latency: 50 * time.Millisecond})
	rec := &readyRecorder{}
	s := Mount("s1", MediaReference{URL: "a.mp4"}, e.deps, Options{Extractor: fastExtractor(), OnReady: rec.record})

	e.show("s1")
	waitPhase(t, s, Loading, time.Second)
	s.Unmount()

	time.Sleep(150 * time.Millisecond)
	if got := rec.got(); len(got) != 0 {
		t.Errorf("OnReady = %v after unmount", got)
	}
	if _, err := e.store.Get(context.Background(), "a.mp4"); !errors.Is(err, cache.ErrNotFound) {
		t.Error("cache written after unmount")
	}
}

func TestQuotaExceededStillDelivers(t *testing.T) {
	e := newTestEnv()
	e.store = cache.NewMemoryStore(10)
	e.deps.Cache = e.store
	rec := &readyRecorder{}
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, rec)

	e.show("s1")
	snap := waitDone(t, s, time.Second)

	if snap.State != Done {
		t.Errorf("state = %s, want done despite the full cache", snap.State)
	}
	if len(rec.got()) != 1 {
		t.Error("OnReady not called when the cache write failed")
	}
	if _, err := e.store.Get(context.Background(), "a.mp4"); !errors.Is(err, cache.ErrNotFound) {
		t.Error("over-quota payload was stored")
	}
}

type unreadableStore struct {
	*cache.MemoryStore
}

func (unreadableStore) Get(context.Context, string) (cache.Result, error) {
	return cache.Result{}, errors.New("storage unavailable")
}

func TestCacheReadErrorFallsBackToGeneration(t *testing.T) {
	e := newTestEnv()
	e.deps.Cache = unreadableStore{cache.NewMemoryStore(0)}
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, nil)

	e.show("s1")
	if snap := waitDone(t, s, time.Second); snap.Source != SourceGenerated {
		t.Errorf("source = %q, want generated", snap.Source)
	}
}

func TestElementCreationFailure(t *testing.T) {
	e := newTestEnv()
	e.factory.FailCreate(errors.New("decoder pool exhausted"))
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, nil)

	e.show("s1")
	if snap := waitDone(t, s, time.Second); snap.State != DoneNoThumbnail {
		t.Errorf("state = %s, want done_no_thumbnail", snap.State)
	}
}

func TestSnapshotTracksExtraction(t *testing.T) {
	e := newTestEnv()
	e.factory.Script("a.mp4", mediatest.Script{Duration: time.Second, EmptyFrames: 1})
	s := e.mount(t, "s1", MediaReference{URL: "a.mp4"}, nil)

	before := time.Now()
	e.show("s1")
	snap := waitDone(t, s, time.Second)

	if snap.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 after one retry", snap.Attempts)
	}
	if snap.Deadline.Before(before) || snap.Deadline.After(before.Add(fastExtractor().Deadline+time.Second)) {
		t.Errorf("deadline %v not within the run bound", snap.Deadline)
	}
	if snap.ID != "s1" || snap.URL != "a.mp4" || !snap.Mounted {
		t.Errorf("identity fields = %+v", snap)
	}
}
