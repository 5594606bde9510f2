package topicmanager

import (
	"testing"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/stretchr/testify/require"
)

func sub(handle uint64) model.SubscriberID {
	return model.SubscriberID{Stream: model.NewStreamID(), Handle: handle}
}

func TestAddRemoveSubscriber(t *testing.T) {
	m := New()
	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	a := sub(1)

	require.True(t, m.AddSubscriber(topic, 1, a))
	require.False(t, m.AddSubscriber(topic, 5, a)) // update, not new
	require.True(t, m.RemoveSubscriber(topic, a))
	require.False(t, m.RemoveSubscriber(topic, a))
}

func TestVisitSubscribersRange(t *testing.T) {
	m := New()
	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	a, b, c := sub(1), sub(2), sub(3)
	m.AddSubscriber(topic, 1, a)
	m.AddSubscriber(topic, 5, b)
	m.AddSubscriber(topic, 20, c)

	var visited []model.SubscriberID
	m.VisitSubscribers(topic, 1, 10, func(s model.SubscriberID, next model.SeqNo) {
		visited = append(visited, s)
	})
	require.ElementsMatch(t, []model.SubscriberID{a, b}, visited)
}

func TestVisitSubscribersTailOnlyMatchesTailVisit(t *testing.T) {
	m := New()
	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	tailSub := sub(1)
	m.AddSubscriber(topic, model.TailSeqno, tailSub)

	var visited []model.SubscriberID
	m.VisitSubscribers(topic, 1, 100, func(s model.SubscriberID, next model.SeqNo) {
		visited = append(visited, s)
	})
	require.Empty(t, visited)

	m.VisitSubscribers(topic, model.TailSeqno, model.TailSeqno, func(s model.SubscriberID, next model.SeqNo) {
		visited = append(visited, s)
	})
	require.Equal(t, []model.SubscriberID{tailSub}, visited)
}

func TestUpdateSubscriberAdvancesCursor(t *testing.T) {
	m := New()
	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	a := sub(1)
	m.AddSubscriber(topic, 1, a)
	m.UpdateSubscriber(topic, a, 2)

	var next model.SeqNo
	m.VisitSubscribers(topic, 2, 2, func(s model.SubscriberID, n model.SeqNo) { next = n })
	require.Equal(t, model.SeqNo(2), next)
}

func TestVisitTopicsEnumeratesNonEmpty(t *testing.T) {
	m := New()
	t1 := model.TopicUUID{Namespace: "ns", Name: "a"}
	t2 := model.TopicUUID{Namespace: "ns", Name: "b"}
	m.AddSubscriber(t1, 1, sub(1))
	b := sub(2)
	m.AddSubscriber(t2, 1, b)
	m.RemoveSubscriber(t2, b)

	var topics []model.TopicUUID
	m.VisitTopics(func(topic model.TopicUUID) { topics = append(topics, topic) })
	require.Equal(t, []model.TopicUUID{t1}, topics)
}
