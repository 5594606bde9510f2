package router

import (
	"testing"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/stretchr/testify/require"
)

func TestRouteIsStable(t *testing.T) {
	r := NewHashRouter(100, 8)
	topic := model.TopicUUID{Namespace: "ns", Name: "orders"}

	log1, err := r.Route(topic)
	require.NoError(t, err)
	log2, err := r.Route(topic)
	require.NoError(t, err)
	require.Equal(t, log1, log2)
}

func TestRouteDistributesAcrossLogs(t *testing.T) {
	r := NewHashRouter(1, 4)
	seen := make(map[model.LogID]bool)
	for i := 0; i < 200; i++ {
		topic := model.TopicUUID{Namespace: "ns", Name: string(rune('a' + i%26))}
		log, err := r.Route(topic)
		require.NoError(t, err)
		seen[log] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestRouteNoLogsErrors(t *testing.T) {
	r := NewHashRouter(1, 0)
	_, err := r.Route(model.TopicUUID{Namespace: "ns", Name: "x"})
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestReconfigureBumpsVersion(t *testing.T) {
	r := NewHashRouter(1, 2)
	v0 := r.Version()
	r.Reconfigure([]model.LogID{5, 6, 7})
	require.Greater(t, r.Version(), v0)
}
