package tower

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	"github.com/AlexxNica/RocketSpeed/internal/logstorage/memlog"
	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/AlexxNica/RocketSpeed/internal/router"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
	"github.com/AlexxNica/RocketSpeed/internal/transport/memtransport"
	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
)

func newTestWorker(t *testing.T) (*Worker, *memlog.Storage, *memtransport.Transport) {
	t.Helper()
	storage := memlog.New(true)
	trans := memtransport.New(16)
	cache := datacache.New(0, 1024, 10, false)
	route := router.NewHashRouter(1, 1)
	log := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	w := NewWorker("w0", topictailer.Options{}, storage, route, trans, cache, log, 10*time.Millisecond, 1)
	return w, storage, trans
}

func TestWorkerSubscribeDeliversRecord(t *testing.T) {
	w, storage, trans := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() { cancel(); w.Stop() }()

	topic := model.TopicUUID{Namespace: "ns", Name: "t"}
	sub := model.SubscriberID{Stream: model.StreamID(uuid.New()), Handle: 1}
	ch := trans.Register(sub)
	defer trans.Unregister(sub)

	require.NoError(t, w.Subscribe(sub, topic, 1))
	storage.Append(1, topic, 1, []byte("hello"))

	select {
	case msg := <-ch:
		require.Equal(t, model.MessageDeliver, msg.Kind)
		require.Equal(t, []byte("hello"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	require.NoError(t, w.Unsubscribe(sub))
	stats := w.Statistics()
	require.Equal(t, uint64(1), stats.RecordsDelivered)
}

func TestPoolRoutesAcrossWorkers(t *testing.T) {
	route := router.NewHashRouter(0, 4)
	log := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))

	var workers []*Worker
	var storages []*memlog.Storage
	trans := memtransport.New(16)
	for i := 0; i < 2; i++ {
		storage := memlog.New(true)
		cache := datacache.New(0, 1024, 10, false)
		workers = append(workers, NewWorker(string(rune('a'+i)), topictailer.Options{}, storage, route, trans, cache, log, 10*time.Millisecond, int64(i)))
		storages = append(storages, storage)
	}
	pool := NewPool(route, workers)
	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)
	defer cancel()

	topic := model.TopicUUID{Namespace: "ns", Name: "sharded"}
	logID, err := route.Route(topic)
	require.NoError(t, err)
	owner := int(uint64(logID) % 2)

	sub := model.SubscriberID{Stream: model.StreamID(uuid.New()), Handle: 1}
	ch := trans.Register(sub)
	defer trans.Unregister(sub)

	require.NoError(t, pool.Subscribe(sub, topic, 1))
	storages[owner].Append(logID, topic, 1, []byte("payload"))

	select {
	case msg := <-ch:
		require.Equal(t, []byte("payload"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	require.NoError(t, pool.Unsubscribe(sub))
}
