package flowcontrol

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RetryLaterSink wraps an underlying Sink and, on a failed write, schedules
// a retry after delay via onRetry instead of relying solely on
// FlowController's resume-on-drain signal. Grounded on original_source's
// notion of a sink that asks the caller to retry after a specified delay.
type RetryLaterSink[T any] struct {
	inner   Sink[T]
	delay   time.Duration
	onRetry func(value T, after time.Duration)
}

// NewRetryLaterSink builds a RetryLaterSink around inner. onRetry is
// invoked with the value and delay whenever inner refuses a write; the
// caller is expected to re-attempt the write after that delay (e.g. via a
// timer registered on the worker's event loop).
func NewRetryLaterSink[T any](inner Sink[T], delay time.Duration, onRetry func(value T, after time.Duration)) *RetryLaterSink[T] {
	return &RetryLaterSink[T]{inner: inner, delay: delay, onRetry: onRetry}
}

// Write attempts inner.Write; on refusal it schedules a retry and reports
// refusal to the caller (so FlowController still records the dependency).
func (s *RetryLaterSink[T]) Write(value T) bool {
	if s.inner.Write(value) {
		return true
	}
	if s.onRetry != nil {
		s.onRetry(value, s.delay)
	}
	return false
}

// RateLimiterSink gates an inner sink at N writes per time window, using
// golang.org/x/time/rate's token bucket.
type RateLimiterSink[T any] struct {
	inner   Sink[T]
	limiter *rate.Limiter
}

// NewRateLimiterSink allows n writes per window, with a burst of n.
func NewRateLimiterSink[T any](inner Sink[T], n int, window time.Duration) *RateLimiterSink[T] {
	r := rate.Every(window / time.Duration(n))
	return &RateLimiterSink[T]{inner: inner, limiter: rate.NewLimiter(r, n)}
}

// Write reports false (refuse, do not consume a token) if the rate limiter
// has no tokens available right now; otherwise delegates to inner.
func (s *RateLimiterSink[T]) Write(value T) bool {
	if !s.limiter.Allow() {
		return false
	}
	return s.inner.Write(value)
}

// ObservableMap coalesces pending writes per key: writing (k, v) overwrites
// any not-yet-read pending value for k, guaranteeing at most one pending
// value per key. Used to bound per-topic delivery queues when a downstream
// subscriber is slow.
type ObservableMap[K comparable, V any] struct {
	mu      sync.Mutex
	pending map[K]V
	order   []K
	onReady func()
}

// NewObservableMap returns an empty ObservableMap. onReady, if non-nil, is
// invoked (outside the lock) whenever a write transitions the map from
// empty to non-empty, so the owner can enable read-readiness as a Source.
func NewObservableMap[K comparable, V any](onReady func()) *ObservableMap[K, V] {
	return &ObservableMap[K, V]{pending: make(map[K]V), onReady: onReady}
}

// Write sets the pending value for k, coalescing with any existing pending
// write for the same key.
func (m *ObservableMap[K, V]) Write(k K, v V) {
	m.mu.Lock()
	_, existed := m.pending[k]
	m.pending[k] = v
	if !existed {
		m.order = append(m.order, k)
	}
	wasEmpty := len(m.order) == 1 && !existed
	m.mu.Unlock()
	if wasEmpty && m.onReady != nil {
		m.onReady()
	}
}

// ReadOne pops the oldest pending (key, value) pair, in first-written
// order. Returns false if the map is empty.
func (m *ObservableMap[K, V]) ReadOne() (K, V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	k := m.order[0]
	m.order = m.order[1:]
	v := m.pending[k]
	delete(m.pending, k)
	return k, v, true
}

// Len reports the number of distinct pending keys.
func (m *ObservableMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Delete drops k's pending value, if any, reporting whether it existed.
func (m *ObservableMap[K, V]) Delete(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[k]; !ok {
		return false
	}
	delete(m.pending, k)
	for i, key := range m.order {
		if key == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}
