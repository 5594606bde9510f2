package flowcontrol

import (
	"testing"
	"time"

	logpkg "github.com/AlexxNica/RocketSpeed/pkg/log"
	"github.com/stretchr/testify/require"
)

func testLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
}

type fakeSource struct {
	enabled bool
}

func (s *fakeSource) SetReadEnabled(enabled bool) { s.enabled = enabled }

type boolSink struct {
	accept bool
	writes []int
}

func (s *boolSink) Write(v int) bool {
	if s.accept {
		s.writes = append(s.writes, v)
	}
	return s.accept
}

func TestWritePausesSourceOnFullSink(t *testing.T) {
	fc := New(testLogger(), time.Second)
	src := &fakeSource{enabled: true}
	sink := &boolSink{accept: false}

	ok := Write[int](fc, src, sink, 42)
	require.False(t, ok)
	require.False(t, src.enabled)

	applied, _ := fc.Stats()
	require.Equal(t, uint64(1), applied)
}

func TestNotifyDrainedResumesSources(t *testing.T) {
	fc := New(testLogger(), time.Second)
	src := &fakeSource{enabled: true}
	sink := &boolSink{accept: false}

	Write[int](fc, src, sink, 1)
	require.False(t, src.enabled)

	fc.NotifyDrained(sink)
	require.True(t, src.enabled)

	_, lifted := fc.Stats()
	require.Equal(t, uint64(1), lifted)
}

func TestWriteResumesPausedSourceOnNextSuccess(t *testing.T) {
	fc := New(testLogger(), time.Second)
	src := &fakeSource{enabled: true}
	sink := &boolSink{accept: false}

	Write[int](fc, src, sink, 1)
	require.False(t, src.enabled)

	sink.accept = true
	ok := Write[int](fc, src, sink, 2)
	require.True(t, ok)
	require.True(t, src.enabled)

	_, lifted := fc.Stats()
	require.Equal(t, uint64(1), lifted)
}

func TestWriteSucceedsPassesThrough(t *testing.T) {
	fc := New(testLogger(), time.Second)
	src := &fakeSource{enabled: true}
	sink := &boolSink{accept: true}

	ok := Write[int](fc, src, sink, 7)
	require.True(t, ok)
	require.Equal(t, []int{7}, sink.writes)
	require.True(t, src.enabled)
}

func TestObservableMapCoalesces(t *testing.T) {
	var readyCount int
	om := NewObservableMap[string, int](func() { readyCount++ })

	om.Write("a", 1)
	om.Write("a", 2)
	om.Write("b", 3)

	require.Equal(t, 2, om.Len())
	require.Equal(t, 1, readyCount)

	k, v, ok := om.ReadOne()
	require.True(t, ok)
	require.Equal(t, "a", k)
	require.Equal(t, 2, v)

	k, v, ok = om.ReadOne()
	require.True(t, ok)
	require.Equal(t, "b", k)
	require.Equal(t, 3, v)

	_, _, ok = om.ReadOne()
	require.False(t, ok)
}

func TestObservableMapDeleteRemovesPendingKey(t *testing.T) {
	om := NewObservableMap[string, int](nil)
	om.Write("a", 1)
	om.Write("b", 2)

	require.True(t, om.Delete("a"))
	require.False(t, om.Delete("a"))
	require.Equal(t, 1, om.Len())

	k, v, ok := om.ReadOne()
	require.True(t, ok)
	require.Equal(t, "b", k)
	require.Equal(t, 2, v)
}

func TestRetryLaterSinkSchedulesRetry(t *testing.T) {
	var retried bool
	var retriedDelay time.Duration
	inner := &boolSink{accept: false}
	sink := NewRetryLaterSink[int](inner, 50*time.Millisecond, func(value int, after time.Duration) {
		retried = true
		retriedDelay = after
	})

	ok := sink.Write(5)
	require.False(t, ok)
	require.True(t, retried)
	require.Equal(t, 50*time.Millisecond, retriedDelay)
}

func TestRateLimiterSinkLimits(t *testing.T) {
	inner := &boolSink{accept: true}
	sink := NewRateLimiterSink[int](inner, 2, time.Second)

	require.True(t, sink.Write(1))
	require.True(t, sink.Write(2))
	require.False(t, sink.Write(3))
}
