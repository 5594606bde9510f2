package topictailer

import (
	"container/heap"
	"math/rand"
	"time"

	"github.com/AlexxNica/RocketSpeed/internal/logreader"
)

// restartEvent fires when reader is due for a periodic restart.
type restartEvent struct {
	at     time.Time
	reader *logreader.Reader
}

type restartHeap []restartEvent

func (h restartHeap) Len() int            { return len(h) }
func (h restartHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h restartHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *restartHeap) Push(x interface{}) { *h = append(*h, x.(restartEvent)) }
func (h *restartHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// restartSet tracks, per reader, the next time it is due for a periodic
// restart at a random interval in [min, max], keyed by
// restart time so Tick can pop due events in O(log n).
type restartSet struct {
	min, max time.Duration
	rng      *rand.Rand
	events   restartHeap
}

func newRestartSet(min, max time.Duration, seed int64) *restartSet {
	if min <= 0 {
		min = 30 * time.Second
	}
	if max <= 0 || max < min {
		max = 60 * time.Second
	}
	return &restartSet{min: min, max: max, rng: rand.New(rand.NewSource(seed))}
}

func (s *restartSet) jitter() time.Duration {
	if s.max <= s.min {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int63n(int64(s.max-s.min)))
}

// schedule arms (or re-arms) r's next restart relative to now.
func (s *restartSet) schedule(r *logreader.Reader, now time.Time) {
	heap.Push(&s.events, restartEvent{at: now.Add(s.jitter()), reader: r})
}

// popDue removes and returns every reader whose restart time has arrived.
func (s *restartSet) popDue(now time.Time) []*logreader.Reader {
	var due []*logreader.Reader
	for len(s.events) > 0 && !s.events[0].at.After(now) {
		ev := heap.Pop(&s.events).(restartEvent)
		due = append(due, ev.reader)
	}
	return due
}
