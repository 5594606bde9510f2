// Package logstorage defines the LogStorage external collaborator:
// the append-only log engine the Control Tower tails. The
// engine itself is out of scope; this package specifies the contract and
// ships two reference implementations (memlog, pebblelog) so the rest of
// the module is runnable and testable.
package logstorage

import "github.com/AlexxNica/RocketSpeed/internal/model"

// ReaderID identifies one open reader; delivery callbacks are tagged with
// it so the tailer can route them back to the LogReader that opened them.
type ReaderID uint64

// RecordHandler is invoked for every record delivered to a reader.
type RecordHandler func(log model.LogID, seqno model.SeqNo, topic model.TopicUUID, payload []byte, reader ReaderID)

// GapHandler is invoked for every gap reported to a reader.
type GapHandler func(log model.LogID, gapType model.GapType, from, to model.SeqNo, reader ReaderID)

// FindLatestSeqnoCallback receives the result of an asynchronous
// find-latest-seqno request: ok is false on storage failure.
type FindLatestSeqnoCallback func(seqno model.SeqNo, ok bool)

// Storage is the contract the tailer requires of the underlying log
// engine.
type Storage interface {
	// OpenReader allocates a ReaderID the storage will use on every
	// subsequent callback for reads started through it.
	OpenReader() ReaderID

	// StartReading begins (or resumes) delivering log from a given seqno
	// on reader. firstOpen distinguishes a brand new reader from a
	// restart of an existing one.
	StartReading(log model.LogID, from model.SeqNo, reader ReaderID, firstOpen bool) error

	// StopReading stops reader's delivery for log. No further callbacks
	// for (log, reader) are made once this returns.
	StopReading(log model.LogID, reader ReaderID) error

	// FindLatestSeqno asynchronously resolves the current tail of log.
	FindLatestSeqno(log model.LogID, cb FindLatestSeqnoCallback)

	// CanSubscribePastEnd reports whether StartReading may be called with
	// a seqno equal to the not-yet-written tail (vs. requiring tail-1).
	CanSubscribePastEnd() bool

	// RegisterHandlers installs the delivery callbacks. Must be called
	// once before any reader is opened.
	RegisterHandlers(onRecord RecordHandler, onGap GapHandler)
}
