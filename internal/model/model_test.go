package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicUUIDHashStable(t *testing.T) {
	topic := TopicUUID{Namespace: "ns", Name: "orders"}
	h1 := topic.Hash()
	h2 := TopicUUID{Namespace: "ns", Name: "orders"}.Hash()
	require.Equal(t, h1, h2)

	other := TopicUUID{Namespace: "ns", Name: "orders2"}
	require.NotEqual(t, h1, other.Hash())
}

func TestTopicUUIDNoCollisionAcrossBoundary(t *testing.T) {
	a := TopicUUID{Namespace: "ns", Name: "xtopic"}
	b := TopicUUID{Namespace: "nsx", Name: "topic"}
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestGapTypeMalignant(t *testing.T) {
	require.False(t, GapBenign.Malignant())
	require.True(t, GapRetention.Malignant())
	require.True(t, GapDataLoss.Malignant())
}

func TestSubscriberIDString(t *testing.T) {
	sub := SubscriberID{Stream: NewStreamID(), Handle: 42}
	require.Contains(t, sub.String(), ":42")
}

func TestTopicUUIDIsSystem(t *testing.T) {
	require.True(t, TopicUUID{Namespace: ".system", Name: "x"}.IsSystem())
	require.False(t, TopicUUID{Namespace: "user", Name: "x"}.IsSystem())
}
