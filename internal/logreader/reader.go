// Package logreader implements the LogReader component:
// per-log reader state, sequence-order validation, per-topic prev_seqno
// chaining, and lagging-topic bumping. Grounded directly on
// original_source's src/controltower/topic_tailer.cc embedded LogReader
// class; method bodies follow its control flow, translated to Go's
// explicit error-return idiom in place of assertions.
package logreader

import (
	"errors"
	"fmt"

	"github.com/AlexxNica/RocketSpeed/internal/linkedmap"
	"github.com/AlexxNica/RocketSpeed/internal/model"
)

// Errors surfaced by Reader operations. These are logged and dropped by
// the caller (internal/topictailer), never propagated to subscribers.
var (
	ErrLogNotOpen = errors.New("logreader: log is not open on this reader")
	ErrOutOfOrder = errors.New("logreader: seqno does not follow last_read")
	ErrInvalidGap = errors.New("logreader: gap does not start at last_read+1")
)

// ID identifies a Reader instance within a TopicTailer's fixed pool.
type ID int

type topicState struct {
	next model.SeqNo
	// delivered is false until a record or gap has actually chained
	// through this entry. StartReading seeds next to the raw
	// subscribed/reseek seqno, which is not a previously delivered
	// position, so the first ProcessRecord/ProcessGap call must report
	// prevSeqno == 0 regardless of what next was seeded to.
	delivered bool
}

// logState is one log's worth of reader state.
type logState struct {
	startSeqno model.SeqNo
	lastRead   model.SeqNo
	tailSeqno  model.SeqNo // 0 == not yet known
	topics     *linkedmap.LinkedMap[model.TopicUUID, *topicState]
}

// Reader owns state for zero or more open logs. A worker's TopicTailer
// keeps a fixed pool of these (readers_per_room) plus one "pending"
// Reader (IsVirtual() == true) for subscriptions still being served from
// cache.
type Reader struct {
	id      ID
	virtual bool
	logs    map[model.LogID]*logState
}

// New returns a Reader with the given pool identity.
func New(id ID) *Reader {
	return &Reader{id: id, logs: make(map[model.LogID]*logState)}
}

// NewPendingReader returns the per-worker virtual reader that holds
// subscriptions awaiting cache service or a free real reader.
func NewPendingReader() *Reader {
	return &Reader{id: -1, virtual: true, logs: make(map[model.LogID]*logState)}
}

// ID returns this reader's pool identity.
func (r *Reader) ID() ID { return r.id }

// IsVirtual reports whether this is the pending reader.
func (r *Reader) IsVirtual() bool { return r.virtual }

// IsLogOpen reports whether log has been opened on this reader.
func (r *Reader) IsLogOpen(log model.LogID) bool {
	_, ok := r.logs[log]
	return ok
}

// OpenLogCount returns the number of logs currently open on this reader,
// used for the "fewest open logs" reader-assignment tie-break.
func (r *Reader) OpenLogCount() int { return len(r.logs) }

// GetNextSequenceNumber returns last_read+1 for log, or an error if the
// log is not open.
func (r *Reader) GetNextSequenceNumber(log model.LogID) (model.SeqNo, error) {
	ls, ok := r.logs[log]
	if !ok {
		return 0, ErrLogNotOpen
	}
	return ls.lastRead + 1, nil
}

// GetTailSeqnoEstimate returns the reader's current tail estimate for
// log, which may be 0 (unknown).
func (r *Reader) GetTailSeqnoEstimate(log model.LogID) model.SeqNo {
	ls, ok := r.logs[log]
	if !ok {
		return 0
	}
	return ls.tailSeqno
}

// StartResult tells the caller (TopicTailer) what storage action, if any,
// StartReading requires.
type StartResult struct {
	// NeedsStorageOpen is true if the caller must call
	// logstorage.Storage.StartReading (a genuinely new log, or a reseek
	// of an already-open one).
	NeedsStorageOpen bool
	// FirstOpen is true only for a genuinely new log (never previously
	// opened on this reader), matching logstorage.Storage's firstOpen bit.
	FirstOpen bool
	// FromSeqno is the seqno storage.StartReading should be called with
	// when NeedsStorageOpen is true.
	FromSeqno model.SeqNo
}

// StartReading opens log if new; if seqno is behind what has already been
// read, it triggers a reseek and flushes per-topic history.
// Otherwise it registers or adjusts topic's tracked next_seqno.
func (r *Reader) StartReading(topic model.TopicUUID, log model.LogID, seqno model.SeqNo) StartResult {
	ls, open := r.logs[log]
	if !open {
		ls = &logState{
			startSeqno: seqno,
			lastRead:   seqno - 1,
			topics:     linkedmap.New[model.TopicUUID, *topicState](),
		}
		r.logs[log] = ls
		ls.topics.Set(topic, &topicState{next: seqno})
		return StartResult{NeedsStorageOpen: true, FirstOpen: true, FromSeqno: seqno}
	}

	if seqno < ls.lastRead+1 {
		r.flushHistoryLocked(ls, seqno)
		ls.topics.Set(topic, &topicState{next: seqno})
		return StartResult{NeedsStorageOpen: true, FirstOpen: false, FromSeqno: seqno}
	}

	if ts, exists := ls.topics.Get(topic); exists {
		if seqno < ts.next {
			ts.next = seqno
		}
	} else {
		ls.topics.Set(topic, &topicState{next: seqno})
	}
	return StartResult{NeedsStorageOpen: false}
}

// StopReading removes topic from log's tracked set. Returns true if the
// caller must now call logstorage.Storage.StopReading because no topics
// remain open on this log.
func (r *Reader) StopReading(topic model.TopicUUID, log model.LogID) (logNowEmpty bool) {
	ls, ok := r.logs[log]
	if !ok {
		return false
	}
	ls.topics.Delete(topic)
	if ls.topics.Len() == 0 {
		delete(r.logs, log)
		return true
	}
	return false
}

// ProcessRecord validates and applies a delivered record. prevSeqno is the
// topic's previously recorded next_seqno, or 0 if this is the first
// record ever seen for the topic on this reader. isTail is true only when
// the reader already had a nonzero tail estimate and seqno reached it
// (Open Question 1: an unset tail is never advanced here).
func (r *Reader) ProcessRecord(log model.LogID, seqno model.SeqNo, topic model.TopicUUID) (prevSeqno model.SeqNo, isTail bool, err error) {
	ls, ok := r.logs[log]
	if !ok {
		return 0, false, ErrLogNotOpen
	}
	if seqno != ls.lastRead+1 {
		return 0, false, fmt.Errorf("%w: log=%d seqno=%d last_read=%d", ErrOutOfOrder, log, seqno, ls.lastRead)
	}
	ls.lastRead = seqno

	if ls.tailSeqno != 0 {
		if seqno >= ls.tailSeqno {
			isTail = true
		}
		if seqno+1 > ls.tailSeqno {
			ls.tailSeqno = seqno + 1
		}
	}

	if ts, exists := ls.topics.Get(topic); exists {
		if ts.delivered {
			prevSeqno = ts.next
		} else {
			prevSeqno = 0
			ts.delivered = true
		}
		ts.next = seqno + 1
		ls.topics.MoveToBack(topic)
	} else {
		prevSeqno = 0
	}
	return prevSeqno, isTail, nil
}

// ValidateGap reports whether a gap starting at from may be applied to
// log's current state.
func (r *Reader) ValidateGap(log model.LogID, from model.SeqNo) error {
	ls, ok := r.logs[log]
	if !ok {
		return ErrLogNotOpen
	}
	if from != ls.lastRead+1 {
		return fmt.Errorf("%w: log=%d from=%d last_read=%d", ErrInvalidGap, log, from, ls.lastRead)
	}
	return nil
}

// ProcessGap returns 0 if this is the first record or gap ever chained
// through topic's entry on this reader, otherwise topic's previous
// next_seqno, and advances next_seqno to to+1, without touching last_read
// (the caller must separately call ProcessBenignGap or FlushHistory
// exactly once per gap). Only applies to topics currently tracked;
// untracked topics return prevSeqno == 0 without creating an entry.
func (r *Reader) ProcessGap(log model.LogID, topic model.TopicUUID, to model.SeqNo) (prevSeqno model.SeqNo) {
	ls, ok := r.logs[log]
	if !ok {
		return 0
	}
	ts, exists := ls.topics.Get(topic)
	if !exists {
		return 0
	}
	if ts.delivered {
		prevSeqno = ts.next
	} else {
		prevSeqno = 0
		ts.delivered = true
	}
	ts.next = to + 1
	ls.topics.MoveToBack(topic)
	return prevSeqno
}

// ProcessBenignGap advances last_read to to without touching any topic's
// tracked state.
func (r *Reader) ProcessBenignGap(log model.LogID, to model.SeqNo) {
	if ls, ok := r.logs[log]; ok {
		ls.lastRead = to
	}
}

// FlushHistory drops all per-topic tracking for log and forces
// start_seqno = seqno, last_read = seqno-1. Used on a malignant gap
// and on reseek (StartReading).
func (r *Reader) FlushHistory(log model.LogID, seqno model.SeqNo) {
	ls, ok := r.logs[log]
	if !ok {
		return
	}
	r.flushHistoryLocked(ls, seqno)
}

func (r *Reader) flushHistoryLocked(ls *logState, seqno model.SeqNo) {
	ls.topics = linkedmap.New[model.TopicUUID, *topicState]()
	ls.startSeqno = seqno
	ls.lastRead = seqno - 1
}

// SuggestTailSeqno raises the tail estimate toward max(last_read+1,
// seqno). Called after an asynchronous find-latest-seqno response.
func (r *Reader) SuggestTailSeqno(log model.LogID, seqno model.SeqNo) {
	ls, ok := r.logs[log]
	if !ok {
		return
	}
	candidate := ls.lastRead + 1
	if seqno > candidate {
		candidate = seqno
	}
	if candidate > ls.tailSeqno {
		ls.tailSeqno = candidate
	}
}

// BumpLagging repeatedly bumps the oldest (least-recently-touched) topic
// on log while its next_seqno + maxLag < now, invoking onBump once per
// bumped topic with its pre-bump next_seqno.
func (r *Reader) BumpLagging(log model.LogID, now model.SeqNo, maxLag model.SeqNo, onBump func(topic model.TopicUUID, oldNext model.SeqNo)) {
	ls, ok := r.logs[log]
	if !ok {
		return
	}
	for {
		topic, ts, ok := ls.topics.Front()
		if !ok {
			return
		}
		if ts.next+maxLag >= now {
			return
		}
		onBump(topic, ts.next)
		ts.next = now + 1
		ls.topics.MoveToBack(topic)
	}
}

// SubscriptionCost estimates the fan-out cost of this reader on log (its
// topic count there), used as a tie-break among readers with the same
// number of open logs when a new subscription is assigned
// (original_source's LogReader::SubscriptionCost).
func (r *Reader) SubscriptionCost(log model.LogID) int {
	ls, ok := r.logs[log]
	if !ok {
		return 0
	}
	return ls.topics.Len()
}

// CanMergeInto reports whether this reader's state for log can be merged
// into target's, i.e. target is at or ahead of this reader on that log
// (Open Question 2's decision: the narrower "equal or ahead" rule).
func (r *Reader) CanMergeInto(target *Reader, log model.LogID) bool {
	src, ok := r.logs[log]
	if !ok {
		return false
	}
	dst, ok := target.logs[log]
	if !ok {
		return false
	}
	return dst.lastRead >= src.lastRead
}

// MergeInto transfers log's topic tracking from this reader into target,
// then drops log from this reader. The caller must separately call
// logstorage.Storage.StopReading for this reader's copy of log.
func (r *Reader) MergeInto(target *Reader, log model.LogID) {
	src, ok := r.logs[log]
	if !ok {
		return
	}
	dst := target.logs[log]
	src.topics.Each(func(topic model.TopicUUID, ts *topicState) {
		if _, exists := dst.topics.Get(topic); !exists {
			dst.topics.Set(topic, ts)
		}
	})
	delete(r.logs, log)
}

// LogInfo renders a human-readable summary of log's state for
// diagnostics (original_source's LogReader::GetLogInfo).
func (r *Reader) LogInfo(log model.LogID) string {
	ls, ok := r.logs[log]
	if !ok {
		return fmt.Sprintf("log %d: not open on reader %d", log, r.id)
	}
	return fmt.Sprintf("log %d: reader=%d start=%d last_read=%d tail=%d topics=%d",
		log, r.id, ls.startSeqno, ls.lastRead, ls.tailSeqno, ls.topics.Len())
}
