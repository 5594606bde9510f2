package tower

import (
	"context"
	"errors"
	"sync"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/AlexxNica/RocketSpeed/internal/router"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
)

// ErrNoWorker is returned when a topic routes to a log no configured
// worker owns (a misconfigured partition count).
var ErrNoWorker = errors.New("tower: no worker owns this topic's log")

// Pool fans subscribe/unsubscribe calls out to the Worker owning a
// topic's log, by routing the topic (Router.Route) and then sharding the
// resulting log id across len(workers) partitions. Each Worker's Storage
// must hold exactly the logs that shard assignment implies.
type Pool struct {
	route   router.Router
	workers []*Worker

	mu   sync.Mutex
	subs map[model.SubscriberID]int // subscriber -> worker index, for Unsubscribe
}

// NewPool builds a Pool over workers, routing by route. workers[i] must
// own every log l for which int(l)%len(workers) == i.
func NewPool(route router.Router, workers []*Worker) *Pool {
	return &Pool{route: route, workers: workers, subs: make(map[model.SubscriberID]int)}
}

// Run starts every worker's command loop and blocks until ctx is done,
// then stops them all.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Wait()
}

func (p *Pool) workerFor(topic model.TopicUUID) (*Worker, error) {
	log, err := p.route.Route(topic)
	if err != nil {
		return nil, err
	}
	if len(p.workers) == 0 {
		return nil, ErrNoWorker
	}
	idx := int(uint64(log) % uint64(len(p.workers)))
	return p.workers[idx], nil
}

// Subscribe routes topic to its owning worker and subscribes sub there.
func (p *Pool) Subscribe(sub model.SubscriberID, topic model.TopicUUID, startSeqno model.SeqNo) error {
	w, err := p.workerFor(topic)
	if err != nil {
		return err
	}
	if err := w.Subscribe(sub, topic, startSeqno); err != nil {
		return err
	}
	p.mu.Lock()
	p.subs[sub] = p.indexOf(w)
	p.mu.Unlock()
	return nil
}

func (p *Pool) indexOf(w *Worker) int {
	for i, ww := range p.workers {
		if ww == w {
			return i
		}
	}
	return -1
}

// Unsubscribe removes sub from whichever worker it was last subscribed
// through.
func (p *Pool) Unsubscribe(sub model.SubscriberID) error {
	p.mu.Lock()
	idx, ok := p.subs[sub]
	delete(p.subs, sub)
	p.mu.Unlock()
	if !ok {
		return topictailer.ErrNotSubscribed
	}
	return p.workers[idx].Unsubscribe(sub)
}

// UnsubscribeStream removes stream's subscriptions from every worker, since
// a single stream's subscriptions may have been routed to different
// workers over its lifetime.
func (p *Pool) UnsubscribeStream(stream model.StreamID) error {
	var firstErr error
	for _, w := range p.workers {
		if err := w.UnsubscribeStream(stream); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.mu.Lock()
	for sub := range p.subs {
		if sub.Stream == stream {
			delete(p.subs, sub)
		}
	}
	p.mu.Unlock()
	return firstErr
}

// Workers returns the pool's workers, for admin endpoints that iterate
// per-worker statistics.
func (p *Pool) Workers() []*Worker { return p.workers }
