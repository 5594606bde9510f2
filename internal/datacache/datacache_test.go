package datacache

import (
	"testing"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/stretchr/testify/require"
)

func topic(name string) model.TopicUUID {
	return model.TopicUUID{Namespace: "ns", Name: name}
}

func TestStoreAndReadData(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	c.StoreData(1, 1, topic("a"), []byte("one"))
	c.StoreData(1, 2, topic("a"), []byte("two"))

	var got []model.SeqNo
	out := c.Read(1, topic("a"), 1, func(item Item) bool {
		got = append(got, item.Seqno)
		return true
	})
	require.Equal(t, ReadContinue, out.Kind)
	require.Equal(t, model.SeqNo(3), out.NewFrom)
	require.Equal(t, []model.SeqNo{1, 2}, got)
}

func TestReadUnknownLogReturnsNoneRead(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	out := c.Read(42, topic("a"), 1, func(item Item) bool { return true })
	require.Equal(t, NoneRead, out.Kind)
}

func TestReadHonorsBackpressure(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	c.StoreData(1, 1, topic("a"), []byte("one"))
	c.StoreData(1, 2, topic("a"), []byte("two"))
	c.StoreData(1, 3, topic("a"), []byte("three"))

	var got []model.SeqNo
	out := c.Read(1, topic("a"), 1, func(item Item) bool {
		got = append(got, item.Seqno)
		return len(got) < 2
	})
	require.Equal(t, ReadBackoff, out.Kind)
	require.Equal(t, []model.SeqNo{1, 2}, got)
	require.Equal(t, model.SeqNo(3), out.NewFrom)
}

func TestStoreDataIdempotentOnSeqno(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	c.StoreData(1, 5, topic("a"), []byte("first"))
	c.StoreData(1, 5, topic("a"), []byte("duplicate"))

	var payloads [][]byte
	c.Read(1, topic("a"), 1, func(item Item) bool {
		payloads = append(payloads, item.Payload)
		return true
	})
	require.Len(t, payloads, 1)
	require.Equal(t, []byte("first"), payloads[0])
}

func TestGapDeliveredRegardlessOfTopic(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	c.StoreGap(1, model.GapRetention, 1, 10)

	var gaps []Item
	out := c.Read(1, topic("anything"), 1, func(item Item) bool {
		gaps = append(gaps, item)
		return true
	})
	require.Equal(t, ReadContinue, out.Kind)
	require.Len(t, gaps, 1)
	require.True(t, gaps[0].IsGap)
	require.Equal(t, model.GapRetention, gaps[0].GapType)
}

func TestEvictionDropsLeastRecentlyUsedBlock(t *testing.T) {
	c := New(30, 1, 10, false) // capacity holds one block but not two
	c.StoreData(1, 1, topic("a"), []byte("x"))
	c.StoreData(1, 2, topic("a"), []byte("y"))

	require.False(t, c.HasEntry(1, 1))
	require.True(t, c.HasEntry(1, 2))
}

func TestSystemNamespaceNotAdmittedByDefault(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	sys := model.TopicUUID{Namespace: ".sys", Name: "ctrl"}
	c.StoreData(1, 1, sys, []byte("x"))
	require.False(t, c.HasEntry(1, 1))
}

func TestSystemNamespaceAdmittedWhenConfigured(t *testing.T) {
	c := New(1<<20, 16, 10, true)
	sys := model.TopicUUID{Namespace: ".sys", Name: "ctrl"}
	c.StoreData(1, 1, sys, []byte("x"))
	require.True(t, c.HasEntry(1, 1))
}

func TestClearCacheRemovesEverything(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	c.StoreData(1, 1, topic("a"), []byte("x"))
	c.ClearCache()
	require.Equal(t, 0, c.GetUsage())
	out := c.Read(1, topic("a"), 1, func(item Item) bool { return true })
	require.Equal(t, NoneRead, out.Kind)
}

func TestSetCapacityEvictsImmediately(t *testing.T) {
	c := New(1<<20, 16, 10, false)
	c.StoreData(1, 1, topic("a"), []byte("x"))
	c.SetCapacity(0)
	require.Equal(t, 0, c.GetUsage())
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	c := New(0, 16, 10, false)
	c.StoreData(1, 1, topic("a"), []byte("x"))
	out := c.Read(1, topic("a"), 1, func(item Item) bool { return true })
	require.Equal(t, NoneRead, out.Kind)
}

func TestBlockBloomFilterSizedByBitsPerMsgTimesBlockSize(t *testing.T) {
	f := newBlockBloomFilter(16, 10)
	require.Equal(t, uint(160), f.Cap())

	bigger := newBlockBloomFilter(16, 20)
	require.Equal(t, uint(320), bigger.Cap())
	require.Greater(t, bigger.K(), f.K())
}

func TestNewBlockGetsABloomFilterSizedFromCacheOptions(t *testing.T) {
	c := New(1<<20, 32, 20, false)
	b := c.newBlock(1)
	require.Equal(t, uint(640), b.bloom.Cap())
}
