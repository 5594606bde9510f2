// Package flowcontrol implements the backpressure primitive shared by every
// worker: sources write to sinks; a sink that cannot accept a write
// reports so, and FlowController records which sources fed it and pauses
// them until the sink signals it has drained.
package flowcontrol

import (
	"sync"
	"time"

	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

// Sink accepts values of type T. Write returns false when the sink cannot
// currently accept the value (full, rate-limited, etc); the caller must
// not drop the value and must retry once the sink becomes writable again.
type Sink[T any] interface {
	Write(value T) bool
}

// Source produces values and can be paused/resumed by a FlowController.
// Disabling read-readiness means the source stops invoking its registered
// callback until re-enabled.
type Source interface {
	SetReadEnabled(enabled bool)
}

// FlowController tracks, for every sink that has reported "full", the set
// of sources that fed it, and pauses/resumes them as the sink's state
// changes. One FlowController is owned per worker event loop.
type FlowController struct {
	mu        sync.Mutex
	log       logpkg.Logger
	blockers  map[any]*sinkState // keyed by sink identity
	warnAfter time.Duration

	backpressureApplied uint64
	backpressureLifted  uint64
}

type sinkState struct {
	sources   map[Source]struct{}
	blockedAt time.Time
}

// New returns a FlowController. warnAfter configures how long a source may
// stay blocked before a warning is logged; zero or a negative value
// selects the one-second default.
func New(log logpkg.Logger, warnAfter time.Duration) *FlowController {
	if warnAfter <= 0 {
		warnAfter = time.Second
	}
	return &FlowController{
		log:       log.WithComponent("flowcontrol"),
		blockers:  make(map[any]*sinkState),
		warnAfter: warnAfter,
	}
}

// Write attempts source -> sink delivery of value. On failure, it records
// the source as blocked on the sink and disables the source's read
// readiness. On success it calls NotifyDrained(sink): a write succeeding is
// itself evidence the sink has room again, so any source still paused on it
// from an earlier refusal is resumed.
func Write[T any](fc *FlowController, source Source, sink Sink[T], value T) bool {
	if sink.Write(value) {
		fc.NotifyDrained(sink)
		return true
	}
	fc.applyBackpressure(sink, source)
	return false
}

func (fc *FlowController) applyBackpressure(sink any, source Source) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	st, ok := fc.blockers[sink]
	if !ok {
		st = &sinkState{sources: make(map[Source]struct{}), blockedAt: time.Now()}
		fc.blockers[sink] = st
	}
	if _, already := st.sources[source]; !already {
		st.sources[source] = struct{}{}
		source.SetReadEnabled(false)
		fc.backpressureApplied++
		fc.log.Debug("source paused", logpkg.Str("reason", "sink full"))
	}
}

// NotifyDrained resumes every source that was paused on sink. Write calls
// this automatically the moment a write to sink next succeeds; callers with
// an independent readiness signal (e.g. a queue draining below its
// high-water mark without an intervening Write) may also call it directly.
func (fc *FlowController) NotifyDrained(sink any) {
	fc.mu.Lock()
	st, ok := fc.blockers[sink]
	if !ok {
		fc.mu.Unlock()
		return
	}
	delete(fc.blockers, sink)
	sources := make([]Source, 0, len(st.sources))
	for s := range st.sources {
		sources = append(sources, s)
	}
	fc.backpressureLifted++
	fc.mu.Unlock()

	for _, s := range sources {
		s.SetReadEnabled(true)
	}
	fc.log.Debug("sources resumed", logpkg.Int("count", len(sources)))
}

// Stats returns cumulative backpressure-applied/lifted counters.
func (fc *FlowController) Stats() (applied, lifted uint64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.backpressureApplied, fc.backpressureLifted
}

// CheckStalls logs a warning for every sink that has been continuously
// blocked longer than warnAfter. Intended to be called from Tick().
func (fc *FlowController) CheckStalls(now time.Time) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for sink, st := range fc.blockers {
		if now.Sub(st.blockedAt) >= fc.warnAfter {
			fc.log.Warn("sink blocked beyond threshold",
				logpkg.Any("sink", sink),
				logpkg.Str("blocked_for", now.Sub(st.blockedAt).String()))
		}
	}
}
