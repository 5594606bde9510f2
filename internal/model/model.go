// Package model defines the core value types shared by every Control Tower
// component: log and sequence identifiers, topic names, subscriber
// identities, gap types, and the delivered-message sum type.
package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// LogID names an underlying append-only log. Opaque outside of routing.
type LogID uint64

// SeqNo is a monotonically increasing position within one log. Zero is a
// sentinel meaning "the current tail" and never appears on a real record.
type SeqNo uint64

// TailSeqno is the sentinel value for "subscribe at tail".
const TailSeqno SeqNo = 0

// TopicUUID is a canonical (namespace, name) pair addressing one topic.
type TopicUUID struct {
	Namespace string
	Name      string
}

// String renders the topic as "namespace/name".
func (t TopicUUID) String() string {
	return t.Namespace + "/" + t.Name
}

// Hash returns a 64-bit routing hash, stable across processes. Used by
// internal/router to map a topic onto a log.
func (t TopicUUID) Hash() uint64 {
	return xxh3.HashString(t.Namespace + "\x00" + t.Name)
}

// IsSystem reports whether this topic lives in a namespace the cache
// treats specially (see TowerOptions.CacheDataFromSystemNamespaces).
func (t TopicUUID) IsSystem() bool {
	return len(t.Namespace) > 0 && t.Namespace[0] == '.'
}

// StreamID identifies one subscriber connection (one Transport stream).
type StreamID uuid.UUID

// NewStreamID generates a fresh random stream identifier.
func NewStreamID() StreamID {
	return StreamID(uuid.New())
}

// String renders the canonical UUID form.
func (s StreamID) String() string {
	return uuid.UUID(s).String()
}

// SubscriberID uniquely identifies one subscription: a stream plus a
// per-stream handle chosen by the caller (what the original source
// calls CopilotSub).
type SubscriberID struct {
	Stream StreamID
	Handle uint64
}

// String renders "stream:handle".
func (s SubscriberID) String() string {
	return fmt.Sprintf("%s:%d", s.Stream, s.Handle)
}

// GapType classifies why a range of sequence numbers is absent.
type GapType int

const (
	// GapBenign means no record was ever written in this range; cursors may
	// advance freely.
	GapBenign GapType = iota
	// GapRetention means data existed but has been trimmed by retention.
	GapRetention
	// GapDataLoss means data existed and was lost irrecoverably.
	GapDataLoss
)

// String renders the gap type name.
func (g GapType) String() string {
	switch g {
	case GapBenign:
		return "Benign"
	case GapRetention:
		return "Retention"
	case GapDataLoss:
		return "DataLoss"
	default:
		return "Unknown"
	}
}

// Malignant reports whether the gap type represents unrecoverable loss,
// which requires flushing per-topic history.
func (g GapType) Malignant() bool {
	return g == GapRetention || g == GapDataLoss
}

// SubscriptionStatus reports the outcome of a subscribe attempt when it
// cannot simply be satisfied by normal delivery.
type SubscriptionStatus int

const (
	// StatusOK means the subscription was accepted.
	StatusOK SubscriptionStatus = iota
	// StatusNotFound means an async tail lookup failed.
	StatusNotFound
	// StatusRouterMiss means no log could be found for the topic.
	StatusRouterMiss
)

// MessageKind tags the variant held by a Message.
type MessageKind int

const (
	// MessageDeliver carries a record.
	MessageDeliver MessageKind = iota
	// MessageGap carries a gap notification.
	MessageGap
	// MessageStatus carries a subscription status update.
	MessageStatus
)

// Message is the closed sum type sent to Transport.
type Message struct {
	Kind MessageKind
	Sub  SubscriberID
	Topic TopicUUID

	// Deliver fields.
	PrevSeqno SeqNo
	Seqno     SeqNo
	Payload   []byte

	// Gap fields.
	GapType GapType
	From    SeqNo
	To      SeqNo

	// Status fields.
	Status SubscriptionStatus
}

// Deliver constructs a MessageDeliver.
func Deliver(sub SubscriberID, topic TopicUUID, prev, seqno SeqNo, payload []byte) Message {
	return Message{Kind: MessageDeliver, Sub: sub, Topic: topic, PrevSeqno: prev, Seqno: seqno, Payload: payload}
}

// Gap constructs a MessageGap.
func Gap(sub SubscriberID, topic TopicUUID, gapType GapType, from, to SeqNo) Message {
	return Message{Kind: MessageGap, Sub: sub, Topic: topic, GapType: gapType, From: from, To: to}
}

// Status constructs a MessageStatus.
func Status(sub SubscriberID, topic TopicUUID, status SubscriptionStatus) Message {
	return Message{Kind: MessageStatus, Sub: sub, Topic: topic, Status: status}
}
