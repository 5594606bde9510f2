// Package tower runs one topictailer.Tailer as a single-owner goroutine,
// since its exported methods are meant to be called from one goroutine
// only. Grounded on the prior single-node runtime's
// internal/services/streams/service.go StreamSubscribe worker-goroutine
// pattern, reworked from a per-subscriber writer into a single command
// loop that serializes every Tailer call plus its periodic Tick.
//
// A logstorage.Storage instance registers its delivery callbacks against
// exactly one set of handlers (RegisterHandlers is a one-shot call), so
// it can safely back only one Tailer. A Worker therefore owns one
// Storage instance and the disjoint subset of logs it stores; a
// multi-worker deployment runs one Worker per storage shard, each with
// its own Storage and its own Tailer, and routes a topic to its owning
// Worker by (Router.Route(topic) % number of workers) — see Pool.
package tower

import (
	"context"
	"time"

	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage"
	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/AlexxNica/RocketSpeed/internal/router"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
	"github.com/AlexxNica/RocketSpeed/internal/transport"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

// Worker owns one Tailer and runs every call to it through a single
// goroutine's command loop.
type Worker struct {
	name    string
	tailer  *topictailer.Tailer
	cmds    chan func()
	tick    time.Duration
	done    chan struct{}
	stopped chan struct{}
}

// NewWorker builds a Worker around a fresh Tailer. name identifies this
// worker in metrics and log fields.
func NewWorker(name string, opts topictailer.Options, storage logstorage.Storage, route router.Router, trans transport.Transport, cache *datacache.Cache, log logpkg.Logger, tick time.Duration, restartSeed int64) *Worker {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	w := &Worker{
		name:    name,
		tailer:  topictailer.New(opts, storage, route, trans, cache, log.WithField("worker", name), restartSeed),
		cmds:    make(chan func(), 256),
		tick:    tick,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	return w
}

// Run executes the command loop until ctx is done. Call it from its own
// goroutine; Stop (or ctx cancellation) ends it.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case fn := <-w.cmds:
			fn()
		case now := <-ticker.C:
			w.tailer.Tick(now)
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (w *Worker) Stop() {
	close(w.done)
	<-w.stopped
}

// do runs fn on the worker's goroutine and waits for it to complete.
func (w *Worker) do(fn func()) {
	reply := make(chan struct{})
	w.cmds <- func() {
		fn()
		close(reply)
	}
	<-reply
}

// Subscribe adds sub to topic starting at startSeqno (0 meaning tail).
func (w *Worker) Subscribe(sub model.SubscriberID, topic model.TopicUUID, startSeqno model.SeqNo) (err error) {
	w.do(func() { err = w.tailer.Subscribe(sub, topic, startSeqno) })
	return
}

// Unsubscribe removes sub.
func (w *Worker) Unsubscribe(sub model.SubscriberID) (err error) {
	w.do(func() { err = w.tailer.Unsubscribe(sub) })
	return
}

// UnsubscribeStream removes every subscription belonging to stream.
func (w *Worker) UnsubscribeStream(stream model.StreamID) (err error) {
	w.do(func() { err = w.tailer.UnsubscribeStream(stream) })
	return
}

// Statistics returns a snapshot of this worker's counters.
func (w *Worker) Statistics() (s topictailer.Stats) {
	w.do(func() { s = w.tailer.Statistics() })
	return
}

// LogInfo returns a short diagnostic string for log.
func (w *Worker) LogInfo(log model.LogID) (info string) {
	w.do(func() { info = w.tailer.LogInfo(log) })
	return
}

// CacheUsage reports current cache byte usage.
func (w *Worker) CacheUsage() (n int) {
	w.do(func() { n = w.tailer.CacheUsage() })
	return
}

// SetCacheCapacity resizes the shared data cache.
func (w *Worker) SetCacheCapacity(bytes int) {
	w.do(func() { w.tailer.SetCacheCapacity(bytes) })
}

// ClearCache empties the shared data cache.
func (w *Worker) ClearCache() {
	w.do(func() { w.tailer.ClearCache() })
}

// Name returns the worker's identifying label.
func (w *Worker) Name() string { return w.name }
