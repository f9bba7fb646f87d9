package eventloop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestPostRunsInOrder(t *testing.T) {
	l := New()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	l.Do(func() {})

	if len(got) != 100 {
		t.Fatalf("ran %d callbacks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
}

func TestPostFromManyGoroutinesIsSerialized(t *testing.T) {
	l := New()
	defer l.Close()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()
	l.Do(func() {})

	if maxActive != 1 {
		t.Errorf("max concurrent callbacks = %d, want 1", maxActive)
	}
}

func TestPostFromInsideLoop(t *testing.T) {
	l := New()
	defer l.Close()

	done := make(chan struct{})
	l.Post(func() {
		for i := 0; i < 10; i++ {
			l.Post(func() {})
		}
		l.Post(func() { close(done) })
	})

	waitClosed(t, done, "nested posts")
}

func TestPostAfterClose(t *testing.T) {
	l := New()
	l.Close()
	waitClosed(t, l.Done(), "loop exit")

	if l.Post(func() { t.Error("callback ran after Close") }) {
		t.Error("Post after Close returned true")
	}

	// Do after Close must not block.
	l.Do(func() { t.Error("Do ran after Close") })
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New()
	l.Close()
	l.Close()
	waitClosed(t, l.Done(), "loop exit")
}

func TestAfterFuncRunsOnLoop(t *testing.T) {
	l := New()
	defer l.Close()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	waitClosed(t, fired, "timer")
}

func TestTimerStop(t *testing.T) {
	l := New()
	defer l.Close()

	var ran atomic.Bool
	tm := l.AfterFunc(20*time.Millisecond, func() { ran.Store(true) })
	tm.Stop()

	time.Sleep(60 * time.Millisecond)
	l.Do(func() {})

	if ran.Load() {
		t.Error("stopped timer callback ran")
	}
}

func TestTimerStopDropsQueuedCallback(t *testing.T) {
	l := New()
	defer l.Close()

	var ran atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})

	// Hold the loop so the timer's callback queues up behind this one.
	l.Post(func() {
		close(started)
		<-release
	})
	waitClosed(t, started, "holding callback")
	tm := l.AfterFunc(time.Millisecond, func() { ran.Store(true) })

	deadline := time.Now().Add(time.Second)
	for l.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l.Pending() == 0 {
		t.Fatal("timer callback never queued")
	}

	tm.Stop()
	close(release)
	l.Do(func() {})

	if ran.Load() {
		t.Error("queued timer callback ran after Stop")
	}
}

func TestNilTimerStop(t *testing.T) {
	var tm *Timer
	tm.Stop()
}
