package memtransport

import (
	"testing"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSendDeliversToRegisteredSubscriber(t *testing.T) {
	tr := New(4)
	sub := model.SubscriberID{Stream: model.NewStreamID(), Handle: 1}
	ch := tr.Register(sub)

	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	msg := model.Deliver(sub, topic, 0, 1, []byte("hi"))
	ok := tr.Send([]model.SubscriberID{sub}, msg)
	require.True(t, ok)

	got := <-ch
	require.Equal(t, model.SeqNo(1), got.Seqno)
}

func TestSendRefusesWhenFull(t *testing.T) {
	tr := New(1)
	sub := model.SubscriberID{Stream: model.NewStreamID(), Handle: 1}
	tr.Register(sub)
	topic := model.TopicUUID{Namespace: "ns", Name: "t"}

	ok1 := tr.Send([]model.SubscriberID{sub}, model.Deliver(sub, topic, 0, 1, nil))
	require.True(t, ok1)
	ok2 := tr.Send([]model.SubscriberID{sub}, model.Deliver(sub, topic, 1, 2, nil))
	require.False(t, ok2)
}

func TestUnregisterDropsDelivery(t *testing.T) {
	tr := New(4)
	sub := model.SubscriberID{Stream: model.NewStreamID(), Handle: 1}
	tr.Register(sub)
	tr.Unregister(sub)

	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	ok := tr.Send([]model.SubscriberID{sub}, model.Deliver(sub, topic, 0, 1, nil))
	require.True(t, ok)
}
