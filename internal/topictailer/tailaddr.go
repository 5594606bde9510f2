package topictailer

import "github.com/AlexxNica/RocketSpeed/internal/model"

// findCoordinator de-duplicates and caps concurrent find-latest-seqno
// requests: multiple tail-subscribers on the same log
// share one in-flight request, and the total in-flight count is bounded,
// with excess requests queued until a slot frees.
type findCoordinator struct {
	maxInFlight int
	inFlight    map[model.LogID]*pendingFind
	queue       []queuedFind
}

type pendingFind struct {
	callbacks []func(seqno model.SeqNo, ok bool)
}

type queuedFind struct {
	log model.LogID
	cb  func(seqno model.SeqNo, ok bool)
}

func newFindCoordinator(maxInFlight int) *findCoordinator {
	if maxInFlight <= 0 {
		maxInFlight = 100
	}
	return &findCoordinator{maxInFlight: maxInFlight, inFlight: make(map[model.LogID]*pendingFind)}
}

// request registers cb for log's find-latest-seqno result. It returns true
// if the caller must now actually issue the storage request; false means
// either an identical request is already in flight (cb will be invoked
// when it completes) or the concurrency cap was hit (cb is queued).
func (f *findCoordinator) request(log model.LogID, cb func(seqno model.SeqNo, ok bool)) bool {
	if p, ok := f.inFlight[log]; ok {
		p.callbacks = append(p.callbacks, cb)
		return false
	}
	if len(f.inFlight) >= f.maxInFlight {
		f.queue = append(f.queue, queuedFind{log: log, cb: cb})
		return false
	}
	f.inFlight[log] = &pendingFind{callbacks: []func(model.SeqNo, bool){cb}}
	return true
}

// complete resolves log's in-flight request with (seqno, ok), invoking
// every waiting callback, then admits as many queued requests as the cap
// allows. Returns the logs the caller must now issue storage requests for.
func (f *findCoordinator) complete(log model.LogID, seqno model.SeqNo, ok bool) []model.LogID {
	p, exists := f.inFlight[log]
	if !exists {
		return nil
	}
	delete(f.inFlight, log)
	for _, cb := range p.callbacks {
		cb(seqno, ok)
	}

	var toStart []model.LogID
	for len(f.inFlight) < f.maxInFlight && len(f.queue) > 0 {
		q := f.queue[0]
		f.queue = f.queue[1:]
		if existing, ok := f.inFlight[q.log]; ok {
			existing.callbacks = append(existing.callbacks, q.cb)
			continue
		}
		f.inFlight[q.log] = &pendingFind{callbacks: []func(model.SeqNo, bool){q.cb}}
		toStart = append(toStart, q.log)
	}
	return toStart
}

// InFlightCount reports the number of distinct logs with a find-latest
// request currently outstanding (for diagnostics).
func (f *findCoordinator) InFlightCount() int { return len(f.inFlight) }

// QueuedCount reports the number of requests waiting on the concurrency cap.
func (f *findCoordinator) QueuedCount() int { return len(f.queue) }
