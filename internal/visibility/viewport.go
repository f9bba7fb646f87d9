package visibility

import (
	"sync"
)

// Entry is one intersection observation for a target.
type Entry struct {
	// Ratio is the visible fraction of the target, 0..1.
	Ratio float64 `json:"ratio"`
	// Distance is the gap between the target and the viewport edge.
	// It is 0 while the target intersects the viewport.
	Distance float64 `json:"distance"`
}

// Source delivers intersection entries for targets.
type Source interface {
	// Observe registers fn for entries reported against target and returns
	// a function that removes the registration. Calling it more than once is safe.
	Observe(target string, fn func(Entry)) (disconnect func())
}

type observer struct {
	fn func(Entry)
}

// Viewport is an in-process Source fed by Report.
type Viewport struct {
	mu        sync.Mutex
	observers map[string]map[*observer]struct{}
}

// NewViewport creates an empty Viewport.
func NewViewport() *Viewport {
	return &Viewport{observers: make(map[string]map[*observer]struct{})}
}

// Observe implements Source.
func (v *Viewport) Observe(target string, fn func(Entry)) func() {
	o := &observer{fn: fn}

	v.mu.Lock()
	set, ok := v.observers[target]
	if !ok {
		set = make(map[*observer]struct{})
		v.observers[target] = set
	}
	set[o] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if set, ok := v.observers[target]; ok {
				delete(set, o)
				if len(set) == 0 {
					delete(v.observers, target)
				}
			}
		})
	}
}

// Report delivers e to every observer of target. Observers are called
// outside the viewport's lock, on the caller's goroutine. It returns the
// number of observers notified.
func (v *Viewport) Report(target string, e Entry) int {
	v.mu.Lock()
	set := v.observers[target]
	fns := make([]func(Entry), 0, len(set))
	for o := range set {
		fns = append(fns, o.fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
	return len(fns)
}

// Observers returns the number of live observations for target.
func (v *Viewport) Observers(target string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.observers[target])
}

// Total returns the number of live observations across all targets.
func (v *Viewport) Total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, set := range v.observers {
		n += len(set)
	}
	return n
}

// AlwaysVisible is a Source that reports every target as fully visible as
// soon as it is observed. Command line generation uses it.
type AlwaysVisible struct{}

// Observe implements Source.
func (AlwaysVisible) Observe(_ string, fn func(Entry)) func() {
	fn(Entry{Ratio: 1})
	return func() {}
}
