// Package memlog is an in-memory logstorage.Storage implementation used by
// tests and by "tower serve --storage=memory". Grounded on the prior single-node runtime's
// internal/eventlog package shape (an Append-with-notify-channel log per
// (namespace, topic, partition)) but reworked into a reader-registration
// model: logstorage.Storage is a consumed external collaborator that must
// push records to readers asynchronously, rather than a single owner
// polling Read().
package memlog

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/AlexxNica/RocketSpeed/internal/logstorage"
	"github.com/AlexxNica/RocketSpeed/internal/model"
)

type record struct {
	seqno   model.SeqNo
	topic   model.TopicUUID
	payload []byte
}

type gapEntry struct {
	from, to model.SeqNo
	gapType  model.GapType
}

// logState holds the append-only history of one log: an ordered sequence
// of records and gaps, plus the set of readers currently subscribed.
type logState struct {
	mu      sync.Mutex
	records []record
	gaps    []gapEntry
	readers map[logstorage.ReaderID]*readerState
}

type readerState struct {
	from      model.SeqNo
	firstOpen bool
}

// Storage is an in-memory, goroutine-safe LogStorage. Appends synchronously
// fan out to every active reader on that log via the registered handlers.
type Storage struct {
	mu       sync.Mutex
	logs     map[model.LogID]*logState
	nextID   uint64
	onRecord logstorage.RecordHandler
	onGap    logstorage.GapHandler

	canPastEnd bool
}

// New returns an empty Storage. canSubscribePastEnd controls the
// CanSubscribePastEnd() capability bit.
func New(canSubscribePastEnd bool) *Storage {
	return &Storage{logs: make(map[model.LogID]*logState), canPastEnd: canSubscribePastEnd}
}

func (s *Storage) RegisterHandlers(onRecord logstorage.RecordHandler, onGap logstorage.GapHandler) {
	s.onRecord = onRecord
	s.onGap = onGap
}

func (s *Storage) CanSubscribePastEnd() bool { return s.canPastEnd }

func (s *Storage) OpenReader() logstorage.ReaderID {
	id := atomic.AddUint64(&s.nextID, 1)
	return logstorage.ReaderID(id)
}

func (s *Storage) logFor(log model.LogID) *logState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.logs[log]
	if !ok {
		ls = &logState{readers: make(map[logstorage.ReaderID]*readerState)}
		s.logs[log] = ls
	}
	return ls
}

// StartReading registers reader on log and immediately replays any
// already-appended records at or after from. Gaps injected earlier with
// AppendGap are not replayed.
func (s *Storage) StartReading(log model.LogID, from model.SeqNo, reader logstorage.ReaderID, firstOpen bool) error {
	ls := s.logFor(log)
	ls.mu.Lock()
	ls.readers[reader] = &readerState{from: from, firstOpen: firstOpen}
	records := append([]record(nil), ls.records...)
	ls.mu.Unlock()

	for _, r := range records {
		if r.seqno >= from {
			s.onRecord(log, r.seqno, r.topic, r.payload, reader)
		}
	}
	return nil
}

// StopReading removes reader from log.
func (s *Storage) StopReading(log model.LogID, reader logstorage.ReaderID) error {
	ls := s.logFor(log)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.readers, reader)
	return nil
}

// FindLatestSeqno resolves synchronously (but invoked as if async, per the
// interface) to one past the highest appended seqno, or 1 for an empty
// log (tail sentinel semantics: the first record to ever be written would
// be seqno 1).
func (s *Storage) FindLatestSeqno(log model.LogID, cb logstorage.FindLatestSeqnoCallback) {
	ls := s.logFor(log)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.records) == 0 {
		cb(1, true)
		return
	}
	last := ls.records[len(ls.records)-1].seqno
	cb(last+1, true)
}

// FailFindLatestSeqno is a test hook: it reports failure to cb at once,
// in place of a seqno. It leaves no state behind, so later
// FindLatestSeqno calls are unaffected.
func (s *Storage) FailFindLatestSeqno(log model.LogID, cb logstorage.FindLatestSeqnoCallback) {
	cb(0, false)
}

// Append writes record(s) to log in seqno order, fanning out to every
// active reader whose from has already been passed.
func (s *Storage) Append(log model.LogID, topic model.TopicUUID, seqno model.SeqNo, payload []byte) {
	ls := s.logFor(log)
	ls.mu.Lock()
	ls.records = append(ls.records, record{seqno: seqno, topic: topic, payload: payload})
	readers := make([]logstorage.ReaderID, 0, len(ls.readers))
	for id, rs := range ls.readers {
		if seqno >= rs.from {
			readers = append(readers, id)
		}
	}
	ls.mu.Unlock()

	sort.Slice(readers, func(i, j int) bool { return readers[i] < readers[j] })
	for _, id := range readers {
		s.onRecord(log, seqno, topic, payload, id)
	}
}

// AppendGap injects a gap notification on log, fanned out to every active
// reader.
func (s *Storage) AppendGap(log model.LogID, gapType model.GapType, from, to model.SeqNo) {
	ls := s.logFor(log)
	ls.mu.Lock()
	ls.gaps = append(ls.gaps, gapEntry{from: from, to: to, gapType: gapType})
	readers := make([]logstorage.ReaderID, 0, len(ls.readers))
	for id := range ls.readers {
		readers = append(readers, id)
	}
	ls.mu.Unlock()

	sort.Slice(readers, func(i, j int) bool { return readers[i] < readers[j] })
	for _, id := range readers {
		s.onGap(log, gapType, from, to, id)
	}
}
