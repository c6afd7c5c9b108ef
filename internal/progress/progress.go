// Package progress carries completion percentages from long-running work to
// whoever is watching it.
package progress

import (
	"math"
	"sync"
	"sync/atomic"
)

// Sink accepts a completion percentage in [0, 100].
type Sink interface {
	Report(pct float64)
}

// Func adapts a plain function to a Sink.
type Func func(pct float64)

func (f Func) Report(pct float64) { f(pct) }

// Nop discards reports.
var Nop Sink = Func(func(float64) {})

// Multi fans a report out to several sinks. Nil sinks are ignored.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return Func(func(pct float64) {
		for _, s := range out {
			s.Report(pct)
		}
	})
}

// Tracker holds the shared progress scalar of the current run.
// One goroutine writes, any number read. Within a run the value never
// decreases; Reset starts a new run at 0.
type Tracker struct {
	bits atomic.Uint64

	mu        sync.Mutex
	listeners []func(float64)
}

// NewTracker returns a tracker at 0.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Value returns the current percentage.
func (t *Tracker) Value() float64 {
	return math.Float64frombits(t.bits.Load())
}

// Reset sets the value back to 0 and notifies listeners.
func (t *Tracker) Reset() {
	t.bits.Store(math.Float64bits(0))
	t.notify(0)
}

// Report records pct if it moves the value forward. Out-of-range values are
// clamped; NaN is ignored.
func (t *Tracker) Report(pct float64) {
	if math.IsNaN(pct) {
		return
	}
	pct = clamp(pct)
	for {
		old := t.bits.Load()
		if pct <= math.Float64frombits(old) {
			return
		}
		if t.bits.CompareAndSwap(old, math.Float64bits(pct)) {
			t.notify(pct)
			return
		}
	}
}

// Subscribe registers fn to be called on every change. fn runs on the
// reporting goroutine and must not block.
func (t *Tracker) Subscribe(fn func(pct float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tracker) notify(pct float64) {
	t.mu.Lock()
	listeners := t.listeners
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(pct)
	}
}

func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
