// Package pebblelog is a cockroachdb/pebble-backed logstorage.Storage
// implementation, used by "tower serve --storage=pebble". Grounded on
// the prior single-node runtime's internal/storage/pebble (DB.Open/Set/Get/NewIter) and
// internal/eventlog/keys.go's big-endian sortable key layout, reworked
// from a single-writer/single-reader poll model into the reader-
// registration push model logstorage.Storage requires: StartReading
// replays durable history to the new reader's registered handler, then
// every subsequent Append fans out live to all readers past from.
package pebblelog

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/AlexxNica/RocketSpeed/internal/logstorage"
	"github.com/AlexxNica/RocketSpeed/internal/model"
	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
)

// Key layout (byte-wise, lexicographically sortable):
//   log/{log_id_be8}/e/{seqno_be8}   -> ns_len_be8 ++ ns ++ name_len_be8 ++ name ++ payload
var (
	logPrefix = []byte("log/")
	entrySeg  = []byte("/e/")
)

func entryKey(log model.LogID, seqno model.SeqNo) []byte {
	k := make([]byte, 0, len(logPrefix)+8+len(entrySeg)+8)
	k = append(k, logPrefix...)
	k = appendBE8(k, uint64(log))
	k = append(k, entrySeg...)
	k = appendBE8(k, uint64(seqno))
	return k
}

func entryPrefix(log model.LogID) []byte {
	k := make([]byte, 0, len(logPrefix)+8+len(entrySeg))
	k = append(k, logPrefix...)
	k = appendBE8(k, uint64(log))
	k = append(k, entrySeg...)
	return k
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func encodeValue(topic model.TopicUUID, payload []byte) []byte {
	ns, name := []byte(topic.Namespace), []byte(topic.Name)
	v := make([]byte, 0, 8+len(ns)+len(name)+len(payload))
	v = appendBE8(v, uint64(len(ns)))
	v = append(v, ns...)
	v = appendBE8(v, uint64(len(name)))
	v = append(v, name...)
	v = append(v, payload...)
	return v
}

func decodeValue(v []byte) (model.TopicUUID, []byte) {
	nsLen := binary.BigEndian.Uint64(v[0:8])
	v = v[8:]
	ns := string(v[:nsLen])
	v = v[nsLen:]
	nameLen := binary.BigEndian.Uint64(v[0:8])
	v = v[8:]
	name := string(v[:nameLen])
	payload := v[nameLen:]
	return model.TopicUUID{Namespace: ns, Name: name}, append([]byte(nil), payload...)
}

type readerState struct {
	from model.SeqNo
}

type logState struct {
	mu      sync.Mutex
	readers map[logstorage.ReaderID]*readerState
	// lastSeqno caches the highest appended seqno so FindLatestSeqno
	// avoids a full iterator seek-to-last on the hot path.
	lastSeqno model.SeqNo
	hasLast   bool
}

// Storage is a durable, goroutine-safe LogStorage backed by one Pebble
// database shared across all logs (namespaced by the log id prefix).
type Storage struct {
	db *pebblestore.DB

	mu     sync.Mutex
	logs   map[model.LogID]*logState
	nextID uint64

	onRecord logstorage.RecordHandler
	onGap    logstorage.GapHandler

	canPastEnd bool
}

// Open opens (or creates) the Pebble database at dir and returns a
// Storage over it. Caller must call Close when done.
func Open(opts pebblestore.Options, canSubscribePastEnd bool) (*Storage, error) {
	db, err := pebblestore.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, logs: make(map[model.LogID]*logState), canPastEnd: canSubscribePastEnd}, nil
}

// Close closes the underlying Pebble database.
func (s *Storage) Close() error { return s.db.Close() }

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

// StartReading registers reader on log and replays durable history at or
// after from from Pebble, in seqno order.
func (s *Storage) StartReading(log model.LogID, from model.SeqNo, reader logstorage.ReaderID, firstOpen bool) error {
	ls := s.logFor(log)
	ls.mu.Lock()
	ls.readers[reader] = &readerState{from: from}
	ls.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(log, from),
		UpperBound: append(entryPrefix(log), 0xff),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	type pending struct {
		seqno   model.SeqNo
		topic   model.TopicUUID
		payload []byte
	}
	var replay []pending
	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		seqno := model.SeqNo(binary.BigEndian.Uint64(key[len(key)-8:]))
		topic, payload := decodeValue(iter.Value())
		replay = append(replay, pending{seqno: seqno, topic: topic, payload: payload})
	}
	for _, p := range replay {
		s.onRecord(log, p.seqno, p.topic, p.payload, reader)
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

// FindLatestSeqno resolves to one past the highest durably appended
// seqno, or 1 for an empty log.
func (s *Storage) FindLatestSeqno(log model.LogID, cb logstorage.FindLatestSeqnoCallback) {
	ls := s.logFor(log)
	ls.mu.Lock()
	if ls.hasLast {
		last := ls.lastSeqno
		ls.mu.Unlock()
		cb(last+1, true)
		return
	}
	ls.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix(log),
		UpperBound: append(entryPrefix(log), 0xff),
	})
	if err != nil {
		cb(0, false)
		return
	}
	defer iter.Close()
	if !iter.Last() {
		cb(1, true)
		return
	}
	key := iter.Key()
	last := model.SeqNo(binary.BigEndian.Uint64(key[len(key)-8:]))
	cb(last+1, true)
}

// Append durably writes one record to log and fans out live to every
// reader whose from has already been passed. Record persistence is the
// Pilot's (append-side) concern in the real system;
// this method stands in for it so the reference storage is runnable.
func (s *Storage) Append(log model.LogID, topic model.TopicUUID, seqno model.SeqNo, payload []byte) error {
	if err := s.db.Set(entryKey(log, seqno), encodeValue(topic, payload)); err != nil {
		return err
	}

	ls := s.logFor(log)
	ls.mu.Lock()
	ls.lastSeqno = seqno
	ls.hasLast = true
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
	return nil
}

// AppendGap injects a gap notification on log, fanned out live to every
// currently registered reader (gaps are not persisted: a reader that
// starts after a gap was announced has, by definition, started at or
// after the gap's end and will simply see no record in that range).
func (s *Storage) AppendGap(log model.LogID, gapType model.GapType, from, to model.SeqNo) {
	ls := s.logFor(log)
	ls.mu.Lock()
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
