// Package mediatest provides a scripted in-memory media.Factory for tests.
package mediatest

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"lazythumb/internal/media"
)

// Script controls how elements loaded with a given URL behave.
type Script struct {
	// Duration reported with LoadedMetadata. Zero means unknown.
	Duration time.Duration
	// LoadError, when set, is emitted instead of LoadedMetadata.
	LoadError error
	// NoMetadata suppresses every load event.
	NoMetadata bool
	// NoSeeked suppresses Seeked events.
	NoSeeked bool
	// EmptyFrames is the number of leading Frame calls returning an empty image.
	EmptyFrames int
	// FrameErr is returned by Frame.
	FrameErr error
	// Latency delays every event.
	Latency time.Duration
	// Hang, when non-nil, makes Play and Pause block until it is closed,
	// like a decoder that stopped answering.
	Hang <-chan struct{}
}

// Factory creates scripted elements. Unknown URLs use Default.
type Factory struct {
	Default Script

	mu       sync.Mutex
	scripts  map[string]Script
	elements []*Element
	err      error
}

// NewFactory returns a factory whose unscripted URLs load and seek promptly
// with a 10s duration.
func NewFactory() *Factory {
	return &Factory{
		Default: Script{Duration: 10 * time.Second},
		scripts: make(map[string]Script),
	}
}

// Script sets the behaviour for url.
func (f *Factory) Script(url string, s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[url] = s
}

// FailCreate makes NewElement return err.
func (f *Factory) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// NewElement implements media.Factory.
func (f *Factory) NewElement(_ context.Context) (media.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	e := &Element{factory: f}
	f.elements = append(f.elements, e)
	return e, nil
}

func (f *Factory) scriptFor(url string) Script {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.scripts[url]; ok {
		return s
	}
	return f.Default
}

// Elements returns every element created so far.
func (f *Factory) Elements() []*Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Element(nil), f.elements...)
}

// Created returns the number of elements created.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.elements)
}

// Open returns the number of elements not yet closed.
func (f *Factory) Open() int {
	n := 0
	for _, e := range f.Elements() {
		if !e.Closed() {
			n++
		}
	}
	return n
}

// Listeners returns the total number of listeners still registered.
func (f *Factory) Listeners() int {
	n := 0
	for _, e := range f.Elements() {
		n += e.Listeners()
	}
	return n
}

// Element is a scripted media.Element.
type Element struct {
	factory *Factory
	events  media.Emitter

	mu     sync.Mutex
	script Script
	src    string
	seeks  []time.Duration
	plays  int
	pauses int
	frames int
	closed bool
}

func (e *Element) AddListener(fn media.Listener) func() {
	return e.events.Add(fn)
}

func (e *Element) emit(ev media.Event, latency time.Duration) {
	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		e.events.Emit(ev)
	}()
}

func (e *Element) Load(src string) {
	s := e.factory.scriptFor(src)

	e.mu.Lock()
	e.src = src
	e.script = s
	e.mu.Unlock()

	switch {
	case s.NoMetadata:
	case s.LoadError != nil:
		e.emit(media.Event{Kind: media.Error, Err: s.LoadError}, s.Latency)
	default:
		e.emit(media.Event{Kind: media.LoadedMetadata, Duration: s.Duration}, s.Latency)
	}
}

func (e *Element) Seek(pos time.Duration) {
	e.mu.Lock()
	e.seeks = append(e.seeks, pos)
	s := e.script
	e.mu.Unlock()

	if !s.NoSeeked {
		e.emit(media.Event{Kind: media.Seeked}, s.Latency)
	}
}

func (e *Element) Play() {
	e.mu.Lock()
	e.plays++
	hang := e.script.Hang
	e.mu.Unlock()
	if hang != nil {
		<-hang
	}
}

func (e *Element) Pause() {
	e.mu.Lock()
	e.pauses++
	hang := e.script.Hang
	e.mu.Unlock()
	if hang != nil {
		<-hang
	}
}

func (e *Element) Frame() (image.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, media.ErrClosed
	}
	if e.script.FrameErr != nil {
		return nil, e.script.FrameErr
	}
	e.frames++
	if e.frames <= e.script.EmptyFrames {
		return image.NewRGBA(image.Rectangle{}), nil
	}
	return Frame(), nil
}

func (e *Element) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.events.Close()
	return nil
}

// Src returns the loaded URL.
func (e *Element) Src() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// Seeks returns the requested seek positions.
func (e *Element) Seeks() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.seeks...)
}

// Plays returns the number of Play calls.
func (e *Element) Plays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plays
}

// Pauses returns the number of Pause calls.
func (e *Element) Pauses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauses
}

// Closed reports whether Close was called.
func (e *Element) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Listeners returns the number of registered listeners.
func (e *Element) Listeners() int {
	return e.events.Len()
}

// Frame returns a small non-empty test frame.
func Frame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 28), B: 128, A: 255})
		}
	}
	return img
}
