// Package datacache implements the bounded, block-structured record cache.
// Grounded on original_source's
// src/controltower/data_cache.h (StoreData/StoreGap/VisitCache, LRU
// eviction at block granularity, per-block Bloom filter over topics).
package datacache

import (
	"container/list"
	"math"
	"sync"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/bits-and-blooms/bloom/v3"
)

// ReadKind tags the outcome of a Read call.
type ReadKind int

const (
	// NoneRead means no cached data exists at or after the requested seqno.
	NoneRead ReadKind = iota
	// ReadContinue means the cache was scanned to the end of what it has;
	// NewFrom is the next seqno not served by the cache.
	ReadContinue
	// ReadBackoff means the visitor applied backpressure; NewFrom is the
	// next seqno to resume from once the caller is ready again.
	ReadBackoff
)

// ReadOutcome is the CacheRead sum type.
type ReadOutcome struct {
	Kind    ReadKind
	NewFrom model.SeqNo
}

// Item is a single cached record or gap, passed to a Read visitor.
type Item struct {
	IsGap   bool
	Seqno   model.SeqNo
	Payload []byte
	GapType model.GapType
	From    model.SeqNo
	To      model.SeqNo
}

// Visitor is invoked once per matching item in seqno order. Returning
// false signals backpressure: Read stops and reports ReadBackoff.
type Visitor func(item Item) bool

type entry struct {
	isGap   bool
	seqno   model.SeqNo
	topic   model.TopicUUID
	payload []byte
	gapType model.GapType
	from    model.SeqNo
	to      model.SeqNo
}

func (e entry) maxSeqno() model.SeqNo {
	if e.isGap {
		return e.to
	}
	return e.seqno
}

// block holds up to cache_block_size records/gaps for one log, in seqno
// order, plus a Bloom filter over the topics its records touch.
type block struct {
	log      model.LogID
	entries  []entry
	bloom    *bloom.BloomFilter
	bytes    int
	maxSeqno model.SeqNo
	hasGap   bool
	lruEl    *list.Element
}

func (b *block) addBytes(n int) { b.bytes += n }

// Stats mirrors original_source's DataCache::Stats counters.
type Stats struct {
	CacheHits           uint64
	CacheMisses         uint64
	CacheInserts        uint64
	BloomHits           uint64
	BloomMisses         uint64
	BloomInserts        uint64
	BloomFalsePositives uint64
}

// Cache is a per-tower-worker bounded cache of recently seen log records.
// Not safe for concurrent use across workers.
type Cache struct {
	mu sync.Mutex

	capacityBytes int
	usedBytes     int
	blockSize     int
	bitsPerMsg    uint
	admitSystem   bool

	logs map[model.LogID][]*block
	lru  *list.List // front = least recently used

	stats Stats
}

// New returns a Cache. capacityBytes == 0 disables the cache entirely
// (every Store is a no-op, every Read returns NoneRead), matching the
// zero cache_size default.
func New(capacityBytes, blockSize int, bitsPerMsg uint, admitSystemNamespaces bool) *Cache {
	if blockSize <= 0 {
		blockSize = 1024
	}
	if bitsPerMsg == 0 {
		bitsPerMsg = 10
	}
	return &Cache{
		capacityBytes: capacityBytes,
		blockSize:     blockSize,
		bitsPerMsg:    bitsPerMsg,
		admitSystem:   admitSystemNamespaces,
		logs:          make(map[model.LogID][]*block),
		lru:           list.New(),
	}
}

func (c *Cache) disabled() bool { return c.capacityBytes <= 0 }

// shouldAdmit applies the system-namespace bypass.
func (c *Cache) shouldAdmit(topic model.TopicUUID) bool {
	if c.admitSystem {
		return true
	}
	return !topic.IsSystem()
}

func (c *Cache) currentBlock(log model.LogID) *block {
	blocks := c.logs[log]
	if len(blocks) == 0 {
		return nil
	}
	last := blocks[len(blocks)-1]
	if len(last.entries) >= c.blockSize {
		return nil
	}
	return last
}

func (c *Cache) newBlock(log model.LogID) *block {
	b := &block{log: log, bloom: newBlockBloomFilter(c.blockSize, c.bitsPerMsg)}
	b.lruEl = c.lru.PushBack(b)
	c.logs[log] = append(c.logs[log], b)
	return b
}

// newBlockBloomFilter sizes the per-block filter to bitsPerMsg*blockSize
// bits, matching the bits-per-element budget rather than a
// NewWithEstimates(n, fp) guess that ignores bitsPerMsg entirely. k is
// the optimal hash count for that many bits over blockSize elements:
// k = (m/n)*ln(2) = bitsPerMsg*ln(2).
func newBlockBloomFilter(blockSize int, bitsPerMsg uint) *bloom.BloomFilter {
	m := bitsPerMsg * uint(blockSize)
	k := uint(math.Round(float64(bitsPerMsg) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return bloom.New(m, k)
}

// StoreData inserts one record, idempotent on (log, seqno): a seqno at or
// behind the log's already-stored tail is ignored.
func (c *Cache) StoreData(log model.LogID, seqno model.SeqNo, topic model.TopicUUID, payload []byte) {
	if c.disabled() || !c.shouldAdmit(topic) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if blocks := c.logs[log]; len(blocks) > 0 {
		if seqno <= blocks[len(blocks)-1].maxSeqno {
			return
		}
	}

	b := c.currentBlock(log)
	if b == nil {
		b = c.newBlock(log)
	}
	e := entry{seqno: seqno, topic: topic, payload: payload}
	b.entries = append(b.entries, e)
	b.maxSeqno = seqno
	b.bloom.Add([]byte(topic.String()))
	c.stats.BloomInserts++
	size := len(payload) + len(topic.String()) + 16
	b.addBytes(size)
	c.usedBytes += size
	c.stats.CacheInserts++
	c.lru.MoveToBack(b.lruEl)

	c.evictLocked()
}

// StoreGap inserts one gap notification, visible to any topic's Read.
func (c *Cache) StoreGap(log model.LogID, gapType model.GapType, from, to model.SeqNo) {
	if c.disabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if blocks := c.logs[log]; len(blocks) > 0 {
		if from <= blocks[len(blocks)-1].maxSeqno {
			return
		}
	}

	b := c.currentBlock(log)
	if b == nil {
		b = c.newBlock(log)
	}
	e := entry{isGap: true, gapType: gapType, from: from, to: to}
	b.entries = append(b.entries, e)
	b.maxSeqno = to
	b.hasGap = true
	size := 24
	b.addBytes(size)
	c.usedBytes += size
	c.stats.CacheInserts++
	c.lru.MoveToBack(b.lruEl)

	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for c.usedBytes > c.capacityBytes && c.lru.Len() > 0 {
		front := c.lru.Front()
		b := front.Value.(*block)
		c.lru.Remove(front)
		c.usedBytes -= b.bytes
		blocks := c.logs[b.log]
		for i, bb := range blocks {
			if bb == b {
				c.logs[b.log] = append(blocks[:i], blocks[i+1:]...)
				break
			}
		}
		if len(c.logs[b.log]) == 0 {
			delete(c.logs, b.log)
		}
	}
}

// Read scans blocks for log forward from fromSeqno and invokes visitor
// for every record on topic and every gap, in seqno order.
func (c *Cache) Read(log model.LogID, topic model.TopicUUID, fromSeqno model.SeqNo, visitor Visitor) ReadOutcome {
	c.mu.Lock()
	blocks := append([]*block(nil), c.logs[log]...)
	c.mu.Unlock()

	if len(blocks) == 0 {
		c.recordMiss()
		return ReadOutcome{Kind: NoneRead}
	}

	served := false
	newFrom := fromSeqno
	topicBytes := []byte(topic.String())

	for _, b := range blocks {
		if b.maxSeqno < fromSeqno {
			continue
		}
		c.mu.Lock()
		c.lru.MoveToBack(b.lruEl)
		c.mu.Unlock()

		mayContainTopic := b.bloom.Test(topicBytes)
		if mayContainTopic {
			c.recordBloomHit()
		} else {
			c.recordBloomMiss()
		}
		if !mayContainTopic && !b.hasGap {
			continue
		}

		for _, e := range b.entries {
			if e.maxSeqno() < fromSeqno {
				continue
			}
			var item Item
			if e.isGap {
				if e.to < fromSeqno {
					continue
				}
				item = Item{IsGap: true, GapType: e.gapType, From: e.from, To: e.to}
			} else {
				if e.topic != topic || e.seqno < fromSeqno {
					continue
				}
				item = Item{Seqno: e.seqno, Payload: e.payload}
			}
			served = true
			c.recordHit()
			if !visitor(item) {
				return ReadOutcome{Kind: ReadBackoff, NewFrom: maxSeqNo(newFrom, e.maxSeqno()+1)}
			}
			newFrom = maxSeqNo(newFrom, e.maxSeqno()+1)
		}
	}

	if !served {
		return ReadOutcome{Kind: NoneRead}
	}
	return ReadOutcome{Kind: ReadContinue, NewFrom: newFrom}
}

func maxSeqNo(a, b model.SeqNo) model.SeqNo {
	if a > b {
		return a
	}
	return b
}

func (c *Cache) recordHit()  { c.mu.Lock(); c.stats.CacheHits++; c.mu.Unlock() }
func (c *Cache) recordMiss() { c.mu.Lock(); c.stats.CacheMisses++; c.mu.Unlock() }
func (c *Cache) recordBloomHit() {
	c.mu.Lock()
	c.stats.BloomHits++
	c.mu.Unlock()
}
func (c *Cache) recordBloomMiss() {
	c.mu.Lock()
	c.stats.BloomMisses++
	c.mu.Unlock()
}

// Erase drops every block for log.
func (c *Cache) Erase(log model.LogID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.logs[log] {
		c.lru.Remove(b.lruEl)
		c.usedBytes -= b.bytes
	}
	delete(c.logs, log)
}

// ClearCache drops every block for every log.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = make(map[model.LogID][]*block)
	c.lru.Init()
	c.usedBytes = 0
}

// SetCapacity changes the byte budget, evicting immediately if the cache
// is now over capacity.
func (c *Cache) SetCapacity(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacityBytes = bytes
	c.evictLocked()
}

// GetCapacity returns the current byte budget.
func (c *Cache) GetCapacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacityBytes
}

// GetUsage returns current bytes in use.
func (c *Cache) GetUsage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// GetStatistics returns a snapshot of cache counters.
func (c *Cache) GetStatistics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HasEntry reports whether the cache holds, for log, a record with this
// exact seqno or a gap whose range covers it.
func (c *Cache) HasEntry(log model.LogID, seqno model.SeqNo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.logs[log] {
		for _, e := range b.entries {
			if (!e.isGap && e.seqno == seqno) || (e.isGap && e.from <= seqno && seqno <= e.to) {
				return true
			}
		}
	}
	return false
}
