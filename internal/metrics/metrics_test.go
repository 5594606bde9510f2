package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
	"github.com/stretchr/testify/require"
)

func TestObserveAndHandler(t *testing.T) {
	r := New()

	prev := topictailer.Stats{}
	cur := topictailer.Stats{
		RecordsDelivered: 5,
		GapsDelivered:    1,
		Cache:            datacache.Stats{CacheHits: 3, CacheInserts: 5},
	}
	r.Observe("worker-0", prev, cur)
	r.SetCacheUsage("worker-0", 4096)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "tower_records_delivered_total"))
	require.True(t, strings.Contains(body, `worker="worker-0"`))
}

func TestPebbleHookRecordsLabeledObservations(t *testing.T) {
	r := New()
	hook := r.NewPebbleHook("log_shard_0")
	hook.ObserveRead(time.Millisecond, 128)
	hook.ObserveWrite(time.Millisecond, 64)
	hook.ObserveBatchCommit(time.Millisecond, 2, 256)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `tower_pebble_read_bytes_total{db="log_shard_0"} 128`))
	require.True(t, strings.Contains(body, `tower_pebble_write_bytes_total{db="log_shard_0"} 64`))
	require.True(t, strings.Contains(body, `tower_pebble_batch_commit_bytes_total{db="log_shard_0"} 256`))
}

func TestObserveIsMonotonicDelta(t *testing.T) {
	r := New()
	s1 := topictailer.Stats{RecordsDelivered: 10}
	s2 := topictailer.Stats{RecordsDelivered: 7} // a restart resetting the snapshot must not go backwards
	r.Observe("w", topictailer.Stats{}, s1)
	r.Observe("w", s1, s2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "tower_records_delivered_total{worker=\"w\"} 10"))
}
