// Package topictailer implements the per-worker orchestrator:
// subscribe/unsubscribe flow, record and gap dispatch, reader assignment
// and merging. Grounded on original_source's
// src/controltower/topic_tailer.cc (AddSubscriber, SendLogRecord,
// SendGapRecord, Tick, RestartEvents) and the prior single-node runtime's
// single-owner pattern in internal/services/streams/service.go: one
// Tailer instance owns all state for the logs assigned to its worker,
// and its exported methods are meant to be called from that worker's
// single goroutine only.
package topictailer

import (
	"errors"
	"time"

	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	"github.com/AlexxNica/RocketSpeed/internal/flowcontrol"
	"github.com/AlexxNica/RocketSpeed/internal/logreader"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage"
	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/AlexxNica/RocketSpeed/internal/router"
	"github.com/AlexxNica/RocketSpeed/internal/topicmanager"
	"github.com/AlexxNica/RocketSpeed/internal/transport"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

// ErrNotSubscribed is returned by Unsubscribe for an unknown subscriber.
var ErrNotSubscribed = errors.New("topictailer: subscriber not found")

// Options configures a Tailer.
type Options struct {
	ReadersPerRoom           int
	MaxSubscriptionLag       model.SeqNo
	MaxFindTimeRequests      int
	MinReaderRestartDuration time.Duration
	MaxReaderRestartDuration time.Duration
	BackpressureWarnAfter    time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadersPerRoom <= 0 {
		o.ReadersPerRoom = 2
	}
	if o.MaxSubscriptionLag <= 0 {
		o.MaxSubscriptionLag = 10000
	}
	if o.MaxFindTimeRequests <= 0 {
		o.MaxFindTimeRequests = 100
	}
	if o.MinReaderRestartDuration <= 0 {
		o.MinReaderRestartDuration = 30 * time.Second
	}
	if o.MaxReaderRestartDuration <= 0 {
		o.MaxReaderRestartDuration = 60 * time.Second
	}
	return o
}

// Stats is a snapshot of per-worker counters (original_source's
// topic_tailer.h Stats struct, plus a CacheReentries counter the
// struct itself lacks).
type Stats struct {
	RecordsDelivered    uint64
	GapsDelivered       uint64
	BumpsDelivered      uint64
	CacheReentries      uint64
	BackpressureApplied uint64
	BackpressureLifted  uint64
	Cache               datacache.Stats
}

// subState records which (topic, log) a live subscription is on, so
// Unsubscribe can find its way back to the TopicManager and LogReader.
type subState struct {
	topic model.TopicUUID
	log   model.LogID
}

// sendJob bundles one Transport.Send call as a flowcontrol.Sink value.
type sendJob struct {
	subs []model.SubscriberID
	msg  model.Message
}

type transportSink struct {
	t transport.Transport
}

func (s transportSink) Write(job sendJob) bool { return s.t.Send(job.subs, job.msg) }

// readerSource is the flowcontrol.Source identity for one LogReader.
// deliver consults enabled before attempting a send, so a reader paused by
// FlowController stops driving the transport sink until NotifyDrained
// flips it back on; storage-level read pausing (stopping the underlying
// logstorage.Storage callback from firing at all) is not implemented, so
// a paused reader's records still flow through onRecord/onGap and are
// cached, just not delivered until resumed.
type readerSource struct {
	enabled bool
}

func (s *readerSource) SetReadEnabled(enabled bool) { s.enabled = enabled }

// Tailer is the per-worker orchestrator.
type Tailer struct {
	opts    Options
	log     logpkg.Logger
	storage logstorage.Storage
	route   router.Router
	trans   transport.Transport
	cache   *datacache.Cache
	fc      *flowcontrol.FlowController
	sink    transportSink

	readers []*logreader.Reader
	pending *logreader.Reader
	sources map[logreader.ID]*readerSource

	owners map[model.LogID]map[*logreader.Reader]struct{}
	topics map[model.LogID]*topicmanager.Manager

	storageIDByReader map[logreader.ID]logstorage.ReaderID
	readerByStorageID map[logstorage.ReaderID]*logreader.Reader

	subs     map[model.SubscriberID]subState
	byStream map[model.StreamID]map[model.SubscriberID]struct{}

	// cacheQueue parks subscriptions that backed off during a DataCache.Read,
	// one pending resume position per subscriber per log. Backed by
	// ObservableMap so a subscriber that backs off repeatedly before it is
	// ever resumed still occupies exactly one slot, not one per backoff.
	cacheQueue map[model.LogID]*flowcontrol.ObservableMap[model.SubscriberID, model.SeqNo]

	finder   *findCoordinator
	restarts *restartSet

	stats Stats
}

// New constructs a Tailer. storage's delivery callbacks are registered
// against this Tailer's onRecord/onGap handlers.
func New(opts Options, storage logstorage.Storage, route router.Router, trans transport.Transport, cache *datacache.Cache, log logpkg.Logger, restartSeed int64) *Tailer {
	opts = opts.withDefaults()
	t := &Tailer{
		opts:              opts,
		log:               log.WithComponent("topictailer"),
		storage:           storage,
		route:             route,
		trans:             trans,
		cache:             cache,
		fc:                flowcontrol.New(log, opts.BackpressureWarnAfter),
		sink:              transportSink{t: trans},
		pending:           logreader.NewPendingReader(),
		sources:           make(map[logreader.ID]*readerSource),
		owners:            make(map[model.LogID]map[*logreader.Reader]struct{}),
		topics:            make(map[model.LogID]*topicmanager.Manager),
		storageIDByReader: make(map[logreader.ID]logstorage.ReaderID),
		readerByStorageID: make(map[logstorage.ReaderID]*logreader.Reader),
		subs:              make(map[model.SubscriberID]subState),
		byStream:          make(map[model.StreamID]map[model.SubscriberID]struct{}),
		cacheQueue:        make(map[model.LogID]*flowcontrol.ObservableMap[model.SubscriberID, model.SeqNo]),
		finder:            newFindCoordinator(opts.MaxFindTimeRequests),
		restarts:          newRestartSet(opts.MinReaderRestartDuration, opts.MaxReaderRestartDuration, restartSeed),
	}
	for i := 0; i < opts.ReadersPerRoom; i++ {
		r := logreader.New(logreader.ID(i))
		t.readers = append(t.readers, r)
		t.sources[r.ID()] = &readerSource{enabled: true}
		t.restarts.schedule(r, time.Now())
	}
	t.sources[t.pending.ID()] = &readerSource{enabled: true}
	storage.RegisterHandlers(t.onRecord, t.onGap)
	return t
}

func (t *Tailer) topicManagerFor(log model.LogID) *topicmanager.Manager {
	tm, ok := t.topics[log]
	if !ok {
		tm = topicmanager.New()
		t.topics[log] = tm
	}
	return tm
}

func (t *Tailer) deliver(targets []model.SubscriberID, msg model.Message, source Source) bool {
	if len(targets) == 0 {
		return true
	}
	if rs, ok := source.(*readerSource); ok && !rs.enabled {
		// Already known paused on this sink: skip the Send attempt rather
		// than thrash the transport with a write we expect to be refused.
		return false
	}
	ok := flowcontrol.Write(t.fc, source, t.sink, sendJob{subs: targets, msg: msg})
	applied, lifted := t.fc.Stats()
	t.stats.BackpressureApplied, t.stats.BackpressureLifted = applied, lifted
	return ok
}

// Source aliases flowcontrol.Source so callers outside this package don't
// need to import internal/flowcontrol directly.
type Source = flowcontrol.Source

// Subscribe adds sub to topic, assigning or reusing a reader.
func (t *Tailer) Subscribe(sub model.SubscriberID, topic model.TopicUUID, startSeqno model.SeqNo) error {
	log, err := t.route.Route(topic)
	if err != nil {
		t.trans.Send([]model.SubscriberID{sub}, model.Status(sub, topic, model.StatusRouterMiss))
		return err
	}

	if startSeqno == model.TailSeqno {
		return t.subscribeAtTail(sub, topic, log)
	}
	return t.subscribeFrom(sub, topic, log, startSeqno)
}

func (t *Tailer) subscribeAtTail(sub model.SubscriberID, topic model.TopicUUID, log model.LogID) error {
	cb := func(tail model.SeqNo, ok bool) {
		if !ok {
			t.trans.Send([]model.SubscriberID{sub}, model.Status(sub, topic, model.StatusNotFound))
			return
		}
		if tail > model.TailSeqno+1 {
			t.trans.Send([]model.SubscriberID{sub}, model.Gap(sub, topic, model.GapBenign, 1, tail-1))
		}
		startAt := tail
		if !t.storage.CanSubscribePastEnd() && startAt > 0 {
			startAt--
		}
		t.subscribeFrom(sub, topic, log, startAt)
		for r := range t.owners[log] {
			r.SuggestTailSeqno(log, tail)
		}
	}
	if t.finder.request(log, cb) {
		t.storage.FindLatestSeqno(log, func(seqno model.SeqNo, ok bool) { t.onFindLatestComplete(log, seqno, ok) })
	}
	return nil
}

func (t *Tailer) onFindLatestComplete(log model.LogID, seqno model.SeqNo, ok bool) {
	toStart := t.finder.complete(log, seqno, ok)
	for _, l := range toStart {
		t.storage.FindLatestSeqno(l, func(s model.SeqNo, k bool) { t.onFindLatestComplete(l, s, k) })
	}
}

func (t *Tailer) subscribeFrom(sub model.SubscriberID, topic model.TopicUUID, log model.LogID, from model.SeqNo) error {
	cur := from
	for {
		reentered := cur != from
		outcome := t.cache.Read(log, topic, cur, func(item datacache.Item) bool {
			return t.deliverCacheItem(sub, topic, item)
		})
		switch outcome.Kind {
		case datacache.NoneRead:
			if reentered {
				t.stats.CacheReentries++
			}
			return t.assignReader(sub, topic, log, cur)
		case datacache.ReadBackoff:
			t.cacheQueueFor(log).Write(sub, outcome.NewFrom)
			return nil
		case datacache.ReadContinue:
			cur = outcome.NewFrom
			return t.assignReader(sub, topic, log, cur)
		}
	}
}

func (t *Tailer) deliverCacheItem(sub model.SubscriberID, topic model.TopicUUID, item datacache.Item) bool {
	var msg model.Message
	if item.IsGap {
		msg = model.Gap(sub, topic, item.GapType, item.From, item.To)
	} else {
		msg = model.Deliver(sub, topic, 0, item.Seqno, item.Payload)
	}
	return t.trans.Send([]model.SubscriberID{sub}, msg)
}

// assignReader picks or opens the reader that will serve sub.
func (t *Tailer) assignReader(sub model.SubscriberID, topic model.TopicUUID, log model.LogID, from model.SeqNo) error {
	for r := range t.owners[log] {
		if next, err := r.GetNextSequenceNumber(log); err == nil && next >= from {
			return t.startOnReader(r, sub, topic, log, from)
		}
	}

	var chosen *logreader.Reader
	for _, r := range t.readers {
		if chosen == nil ||
			r.OpenLogCount() < chosen.OpenLogCount() ||
			(r.OpenLogCount() == chosen.OpenLogCount() && r.SubscriptionCost(log) < chosen.SubscriptionCost(log)) {
			chosen = r
		}
	}
	if chosen == nil {
		chosen = t.pending
	}
	return t.startOnReader(chosen, sub, topic, log, from)
}

func (t *Tailer) startOnReader(r *logreader.Reader, sub model.SubscriberID, topic model.TopicUUID, log model.LogID, from model.SeqNo) error {
	res := r.StartReading(topic, log, from)
	if res.NeedsStorageOpen && !r.IsVirtual() {
		sid, firstOpen := t.storageReaderFor(r, res.FirstOpen)
		if err := t.storage.StartReading(log, res.FromSeqno, sid, firstOpen); err != nil {
			return err
		}
	}
	if _, ok := t.owners[log]; !ok {
		t.owners[log] = make(map[*logreader.Reader]struct{})
	}
	t.owners[log][r] = struct{}{}

	tm := t.topicManagerFor(log)
	tm.AddSubscriber(topic, from, sub)
	t.subs[sub] = subState{topic: topic, log: log}
	if _, ok := t.byStream[sub.Stream]; !ok {
		t.byStream[sub.Stream] = make(map[model.SubscriberID]struct{})
	}
	t.byStream[sub.Stream][sub] = struct{}{}
	return nil
}

func (t *Tailer) storageReaderFor(r *logreader.Reader, firstOpen bool) (logstorage.ReaderID, bool) {
	if sid, ok := t.storageIDByReader[r.ID()]; ok {
		return sid, false
	}
	sid := t.storage.OpenReader()
	t.storageIDByReader[r.ID()] = sid
	t.readerByStorageID[sid] = r
	return sid, firstOpen
}

// onRecord dispatches a delivered record to its interested subscribers.
func (t *Tailer) onRecord(log model.LogID, seqno model.SeqNo, topic model.TopicUUID, payload []byte, readerID logstorage.ReaderID) {
	r, ok := t.readerByStorageID[readerID]
	if !ok {
		return
	}
	t.cache.StoreData(log, seqno, topic, payload)
	t.resumeCacheQueue(log)

	prev, isTail, err := r.ProcessRecord(log, seqno, topic)
	if err != nil {
		t.log.Warn("dropping record", logpkg.Str("error", err.Error()), logpkg.Any("log", log), logpkg.Any("seqno", seqno))
		return
	}
	tm := t.topics[log]
	if tm == nil {
		return
	}
	src := t.sources[r.ID()]

	var targets []model.SubscriberID
	tm.VisitSubscribers(topic, 1, seqno, func(s model.SubscriberID, next model.SeqNo) {
		targets = append(targets, s)
	})
	if len(targets) > 0 {
		msg := model.Deliver(model.SubscriberID{}, topic, prev, seqno, payload)
		if t.deliver(targets, msg, src) {
			for _, s := range targets {
				tm.UpdateSubscriber(topic, s, seqno+1)
			}
		}
		t.stats.RecordsDelivered++
	}

	if isTail {
		var tailTargets []model.SubscriberID
		tm.VisitSubscribers(topic, model.TailSeqno, model.TailSeqno, func(s model.SubscriberID, next model.SeqNo) {
			tailTargets = append(tailTargets, s)
		})
		if len(tailTargets) > 0 {
			tailMsg := model.Deliver(model.SubscriberID{}, topic, 0, seqno, payload)
			if t.deliver(tailTargets, tailMsg, src) {
				for _, s := range tailTargets {
					tm.UpdateSubscriber(topic, s, seqno+1)
				}
			}
		}
	}

	r.BumpLagging(log, seqno, t.opts.MaxSubscriptionLag, func(bumpTopic model.TopicUUID, oldNext model.SeqNo) {
		var bumpTargets []model.SubscriberID
		tm.VisitSubscribers(bumpTopic, oldNext, seqno, func(s model.SubscriberID, next model.SeqNo) {
			bumpTargets = append(bumpTargets, s)
		})
		if len(bumpTargets) > 0 {
			msg := model.Gap(model.SubscriberID{}, bumpTopic, model.GapBenign, oldNext, seqno)
			if t.deliver(bumpTargets, msg, src) {
				for _, s := range bumpTargets {
					tm.UpdateSubscriber(bumpTopic, s, seqno+1)
				}
				t.stats.BumpsDelivered++
			}
		}
	})
}

// onGap dispatches a delivered gap to its interested subscribers.
func (t *Tailer) onGap(log model.LogID, gapType model.GapType, from, to model.SeqNo, readerID logstorage.ReaderID) {
	r, ok := t.readerByStorageID[readerID]
	if !ok {
		return
	}
	if err := r.ValidateGap(log, from); err != nil {
		t.log.Warn("dropping invalid gap", logpkg.Str("error", err.Error()))
		return
	}
	t.cache.StoreGap(log, gapType, from, to)
	t.resumeCacheQueue(log)

	tm := t.topics[log]
	src := t.sources[r.ID()]
	if tm != nil {
		tm.VisitTopics(func(topic model.TopicUUID) {
			prev := r.ProcessGap(log, topic, to)
			var targets []model.SubscriberID
			tm.VisitSubscribers(topic, prev+1, to, func(s model.SubscriberID, next model.SeqNo) {
				targets = append(targets, s)
			})
			if len(targets) > 0 {
				msg := model.Gap(model.SubscriberID{}, topic, gapType, prev, to)
				if t.deliver(targets, msg, src) {
					for _, s := range targets {
						tm.UpdateSubscriber(topic, s, to+1)
					}
				}
				t.stats.GapsDelivered++
			}
		})
	}

	if gapType.Malignant() {
		r.FlushHistory(log, to+1)
	} else {
		r.ProcessBenignGap(log, to)
	}
}

// Unsubscribe removes sub from every topic it was subscribed to.
func (t *Tailer) Unsubscribe(sub model.SubscriberID) error {
	st, ok := t.subs[sub]
	if !ok {
		return ErrNotSubscribed
	}
	delete(t.subs, sub)
	if set, ok := t.byStream[sub.Stream]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(t.byStream, sub.Stream)
		}
	}

	t.removeFromCacheQueue(st.log, sub)

	lastSubscriberOnTopic := true
	if tm, ok := t.topics[st.log]; ok {
		tm.RemoveSubscriber(st.topic, sub)
		lastSubscriberOnTopic = !tm.HasTopic(st.topic)
		if tm.TopicCount() == 0 {
			delete(t.topics, st.log)
		}
	}

	if lastSubscriberOnTopic {
		for r := range t.owners[st.log] {
			if !r.IsLogOpen(st.log) {
				continue
			}
			if closed := r.StopReading(st.topic, st.log); closed {
				if !r.IsVirtual() {
					if sid, ok := t.storageIDByReader[r.ID()]; ok {
						t.storage.StopReading(st.log, sid)
					}
				}
				delete(t.owners[st.log], r)
			}
		}
	}
	if len(t.owners[st.log]) == 0 {
		delete(t.owners, st.log)
	} else {
		t.tryMergeLog(st.log)
	}
	return nil
}

func (t *Tailer) cacheQueueFor(log model.LogID) *flowcontrol.ObservableMap[model.SubscriberID, model.SeqNo] {
	q, ok := t.cacheQueue[log]
	if !ok {
		q = flowcontrol.NewObservableMap[model.SubscriberID, model.SeqNo](nil)
		t.cacheQueue[log] = q
	}
	return q
}

func (t *Tailer) removeFromCacheQueue(log model.LogID, sub model.SubscriberID) {
	if q, ok := t.cacheQueue[log]; ok {
		q.Delete(sub)
	}
}

// UnsubscribeStream removes every subscription belonging to stream.
func (t *Tailer) UnsubscribeStream(stream model.StreamID) error {
	set, ok := t.byStream[stream]
	if !ok {
		return nil
	}
	subs := make([]model.SubscriberID, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	for _, s := range subs {
		t.Unsubscribe(s)
	}
	return nil
}

// tryMergeLog merges any reader open on log that
// is behind or equal into one that is ahead or equal.
func (t *Tailer) tryMergeLog(log model.LogID) {
	owners := t.owners[log]
	if len(owners) < 2 {
		return
	}
	for src := range owners {
		for dst := range owners {
			if src == dst {
				continue
			}
			if src.IsLogOpen(log) && dst.IsLogOpen(log) && src.CanMergeInto(dst, log) {
				src.MergeInto(dst, log)
				if !src.IsLogOpen(log) {
					if !src.IsVirtual() {
						if sid, ok := t.storageIDByReader[src.ID()]; ok {
							t.storage.StopReading(log, sid)
						}
					}
					delete(owners, src)
				}
			}
		}
	}
}

// resumeCacheQueue retries every subscription parked on log's
// cache_readers queue, advancing each from its
// recorded new_from.
func (t *Tailer) resumeCacheQueue(log model.LogID) {
	q, ok := t.cacheQueue[log]
	if !ok {
		return
	}
	for {
		sub, from, ok := q.ReadOne()
		if !ok {
			break
		}
		st, ok := t.subs[sub]
		if !ok {
			continue
		}
		t.subscribeFrom(sub, st.topic, log, from)
	}
}

// Tick drives time-based processing: bump checks already happen inline on
// record delivery, so Tick covers reader restarts, stall warnings, and
// retrying any subscriptions parked on the cache_readers queue.
func (t *Tailer) Tick(now time.Time) {
	t.fc.CheckStalls(now)
	for log := range t.cacheQueue {
		t.resumeCacheQueue(log)
	}
	for _, r := range t.restarts.popDue(now) {
		t.restartReader(r, now)
		t.restarts.schedule(r, now)
	}
}

func (t *Tailer) restartReader(r *logreader.Reader, now time.Time) {
	if r.IsVirtual() {
		return
	}
	sid, ok := t.storageIDByReader[r.ID()]
	if !ok {
		return
	}
	for log, owners := range t.owners {
		if _, open := owners[r]; !open {
			continue
		}
		next, err := r.GetNextSequenceNumber(log)
		if err != nil {
			continue
		}
		t.storage.StopReading(log, sid)
		t.storage.StartReading(log, next, sid, false)
	}
}

// Statistics returns a snapshot of per-worker counters.
func (t *Tailer) Statistics() Stats {
	applied, lifted := t.fc.Stats()
	s := t.stats
	s.BackpressureApplied = applied
	s.BackpressureLifted = lifted
	s.Cache = t.cache.GetStatistics()
	return s
}

// LogInfo renders diagnostics for every reader with log open.
func (t *Tailer) LogInfo(log model.LogID) string {
	info := ""
	for r := range t.owners[log] {
		if info != "" {
			info += "; "
		}
		info += r.LogInfo(log)
	}
	if info == "" {
		return "log not open on this worker"
	}
	return info
}

// CacheUsage returns current cache bytes in use.
func (t *Tailer) CacheUsage() int { return t.cache.GetUsage() }

// SetCacheCapacity adjusts the cache's byte budget.
func (t *Tailer) SetCacheCapacity(bytes int) { t.cache.SetCapacity(bytes) }

// ClearCache drops all cached blocks.
func (t *Tailer) ClearCache() { t.cache.ClearCache() }
