// Package topicmanager implements the per-log subscriber tracking
// component. Grounded on original_source's
// src/controltower/topic.h / topic.cc (AddSubscriber/RemoveSubscriber/
// VisitSubscribers), reworked to the range-visit contract the newer
// topic_tailer.cc design requires.
package topicmanager

import "github.com/AlexxNica/RocketSpeed/internal/model"

// TailSeqno is the special next_expected_seqno value meaning "subscribed
// at tail"; it matches only a visit with from == to == TailSeqno.
const TailSeqno = model.TailSeqno

type subscriberEntry struct {
	sub  model.SubscriberID
	next model.SeqNo
}

// Manager tracks, per topic on one log, the set of (SubscriberID,
// next_expected_seqno) pairs. Not safe for concurrent use; each log is
// owned by exactly one worker.
type Manager struct {
	topics map[model.TopicUUID]map[model.SubscriberID]model.SeqNo
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{topics: make(map[model.TopicUUID]map[model.SubscriberID]model.SeqNo)}
}

// AddSubscriber adds or updates sub's next_expected_seqno on topic.
// Returns true if sub was not previously subscribed to topic.
func (m *Manager) AddSubscriber(topic model.TopicUUID, seqno model.SeqNo, sub model.SubscriberID) bool {
	subs, ok := m.topics[topic]
	if !ok {
		subs = make(map[model.SubscriberID]model.SeqNo)
		m.topics[topic] = subs
	}
	_, existed := subs[sub]
	subs[sub] = seqno
	return !existed
}

// RemoveSubscriber removes sub from topic. Returns true if it was present.
// Deletes the topic entirely once its last subscriber is gone.
func (m *Manager) RemoveSubscriber(topic model.TopicUUID, sub model.SubscriberID) bool {
	subs, ok := m.topics[topic]
	if !ok {
		return false
	}
	if _, present := subs[sub]; !present {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(m.topics, topic)
	}
	return true
}

// VisitSubscribers invokes fn exactly once for every subscriber of topic
// whose next_expected_seqno lies in [from, to], with one exception: the
// TailSeqno (0) key only matches a visit with from == to == TailSeqno.
func (m *Manager) VisitSubscribers(topic model.TopicUUID, from, to model.SeqNo, fn func(sub model.SubscriberID, next model.SeqNo)) {
	subs, ok := m.topics[topic]
	if !ok {
		return
	}
	tailVisit := from == TailSeqno && to == TailSeqno
	for sub, next := range subs {
		if next == TailSeqno {
			if tailVisit {
				fn(sub, next)
			}
			continue
		}
		if next >= from && next <= to {
			fn(sub, next)
		}
	}
}

// UpdateSubscriber sets sub's next_expected_seqno on topic without
// changing membership semantics; used after delivering a record/gap to
// advance the subscriber's cursor. No-op if sub is not subscribed.
func (m *Manager) UpdateSubscriber(topic model.TopicUUID, sub model.SubscriberID, next model.SeqNo) {
	if subs, ok := m.topics[topic]; ok {
		if _, present := subs[sub]; present {
			subs[sub] = next
		}
	}
}

// HasTopic reports whether topic currently has at least one subscriber.
func (m *Manager) HasTopic(topic model.TopicUUID) bool {
	_, ok := m.topics[topic]
	return ok
}

// VisitTopics enumerates every topic with at least one subscriber.
func (m *Manager) VisitTopics(fn func(topic model.TopicUUID)) {
	for topic := range m.topics {
		fn(topic)
	}
}

// TopicCount returns the number of topics with at least one subscriber.
func (m *Manager) TopicCount() int {
	return len(m.topics)
}

// SubscriberCount returns the total number of (topic, subscriber) pairs
// tracked.
func (m *Manager) SubscriberCount() int {
	n := 0
	for _, subs := range m.topics {
		n += len(subs)
	}
	return n
}
