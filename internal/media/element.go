package media

import (
	"context"
	"image"
	"sync"
	"time"
)

// EventKind identifies a media event.
type EventKind int

const (
	// LoadedMetadata fires once the duration and dimensions are known.
	LoadedMetadata EventKind = iota + 1
	// Seeked fires when a Seek has completed.
	Seeked
	// Error fires on decode, network or process failure.
	Error
)

func (k EventKind) String() string {
	switch k {
	case LoadedMetadata:
		return "loadedmetadata"
	case Seeked:
		return "seeked"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to element listeners.
type Event struct {
	Kind EventKind
	// Duration is set on LoadedMetadata. Zero or negative means unknown.
	Duration time.Duration
	// Err is set on Error.
	Err error
}

// Listener receives element events. It may be called on any goroutine.
type Listener func(Event)

// Element is a decoding context for a single media source.
//
// Load and Seek return immediately; completion is reported through events.
// Play, Pause and Frame may wait on the decoder and must be called off any
// loop that also runs deadlines. Close must not wait on the decoder. After
// Close no listener is invoked and every process or page owned by the
// element is released.
type Element interface {
	AddListener(fn Listener) (remove func())
	Load(src string)
	Seek(pos time.Duration)
	Play()
	Pause()
	// Frame returns the frame at the current position. The image may be
	// empty when nothing has been decoded yet.
	Frame() (image.Image, error)
	Close() error
}

// Factory creates elements.
type Factory interface {
	NewElement(ctx context.Context) (Element, error)
}

// IsEmpty reports whether img has zero width or height.
func IsEmpty(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}

// emptyFrame is returned before anything has been decoded.
func emptyFrame() image.Image {
	return image.NewRGBA(image.Rectangle{})
}

// Emitter is a listener registry shared by Element implementations.
// The zero value is ready to use.
type Emitter struct {
	mu        sync.Mutex
	listeners map[int]Listener
	next      int
	closed    bool
}

// Add registers fn and returns a function that removes it. Removing twice is
// harmless. Adding to a closed emitter registers nothing.
func (e *Emitter) Add(fn Listener) (remove func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return func() {}
	}
	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.next
	e.next++
	e.listeners[id] = fn

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to every current listener, outside the lock.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fns := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Close suppresses later events. Listeners stay registered until their
// remover runs, so Len still exposes listeners nobody removed.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}
