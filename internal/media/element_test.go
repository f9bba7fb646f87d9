package media

import (
	"image"
	"sync"
	"testing"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want bool
	}{
		{"nil", nil, true},
		{"zero rect", image.NewRGBA(image.Rectangle{}), true},
		{"zero width", image.NewRGBA(image.Rect(0, 0, 0, 10)), true},
		{"zero height", image.NewRGBA(image.Rect(0, 0, 10, 0)), true},
		{"one pixel", image.NewRGBA(image.Rect(0, 0, 1, 1)), false},
		{"offset origin", image.NewRGBA(image.Rect(5, 5, 15, 10)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmpty(tt.img); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventKindString(t *testing.T) {
	tests := map[EventKind]string{
		LoadedMetadata: "loadedmetadata",
		Seeked:         "seeked",
		Error:          "error",
		EventKind(0):   "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("EventKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestEmitterAddRemove(t *testing.T) {
	var e Emitter
	var got []EventKind

	remove := e.Add(func(ev Event) { got = append(got, ev.Kind) })
	if e.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", e.Len())
	}

	e.Emit(Event{Kind: Seeked})
	remove()
	remove() // second call is harmless
	e.Emit(Event{Kind: Error})

	if e.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", e.Len())
	}
	if len(got) != 1 || got[0] != Seeked {
		t.Errorf("received %v, want [seeked]", got)
	}
}

func TestEmitterClose(t *testing.T) {
	var e Emitter
	calls := 0
	remove := e.Add(func(Event) { calls++ })

	e.Close()
	e.Emit(Event{Kind: Seeked})
	if calls != 0 {
		t.Errorf("listener called %d times after Close", calls)
	}

	// Listeners that were never removed are still visible.
	if e.Len() != 1 {
		t.Errorf("Len() after Close = %d, want 1", e.Len())
	}
	remove()
	if e.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", e.Len())
	}

	e.Add(func(Event) { calls++ })
	if e.Len() != 0 {
		t.Error("Add after Close must not register")
	}
}

func TestEmitterListenerMayRemoveItself(t *testing.T) {
	var e Emitter
	var remove func()
	calls := 0
	remove = e.Add(func(Event) {
		calls++
		remove()
	})

	e.Emit(Event{Kind: Seeked})
	e.Emit(Event{Kind: Seeked})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEmitterConcurrent(t *testing.T) {
	var e Emitter
	var mu sync.Mutex
	count := 0
	e.Add(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit(Event{Kind: Seeked})
			e.Add(func(Event) {})()
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}
