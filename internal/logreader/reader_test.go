package logreader

import (
	"testing"

	"github.com/AlexxNica/RocketSpeed/internal/model"
	"github.com/stretchr/testify/require"
)

func topic(name string) model.TopicUUID {
	return model.TopicUUID{Namespace: "ns", Name: name}
}

func TestStartReadingFirstOpen(t *testing.T) {
	r := New(0)
	res := r.StartReading(topic("a"), 1, 5)
	require.True(t, res.NeedsStorageOpen)
	require.True(t, res.FirstOpen)
	require.Equal(t, model.SeqNo(5), res.FromSeqno)

	next, err := r.GetNextSequenceNumber(1)
	require.NoError(t, err)
	require.Equal(t, model.SeqNo(5), next)
}

func TestStartReadingSameLogNoReseekNeeded(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 5)
	res := r.StartReading(topic("b"), 1, 10)
	require.False(t, res.NeedsStorageOpen)
}

func TestStartReadingReseekWhenBehind(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 10)
	_, _, err := r.ProcessRecord(1, 10, topic("a"))
	require.NoError(t, err)

	res := r.StartReading(topic("b"), 1, 3)
	require.True(t, res.NeedsStorageOpen)
	require.False(t, res.FirstOpen)
	require.Equal(t, model.SeqNo(3), res.FromSeqno)
}

func TestProcessRecordChainsPrevSeqno(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)

	prev, _, err := r.ProcessRecord(1, 1, topic("a"))
	require.NoError(t, err)
	require.Equal(t, model.SeqNo(0), prev)

	prev, _, err = r.ProcessRecord(1, 2, topic("a"))
	require.NoError(t, err)
	require.Equal(t, model.SeqNo(2), prev)
}

func TestProcessRecordOutOfOrder(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)
	_, _, err := r.ProcessRecord(1, 5, topic("a"))
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestProcessRecordLogNotOpen(t *testing.T) {
	r := New(0)
	_, _, err := r.ProcessRecord(99, 1, topic("a"))
	require.ErrorIs(t, err, ErrLogNotOpen)
}

func TestTailSeqnoNotAdvancedWhenUnset(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)
	_, isTail, err := r.ProcessRecord(1, 1, topic("a"))
	require.NoError(t, err)
	require.False(t, isTail)
	require.Equal(t, model.SeqNo(0), r.GetTailSeqnoEstimate(1))
}

func TestSuggestTailSeqnoThenIsTailReported(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)
	r.SuggestTailSeqno(1, 3)
	require.Equal(t, model.SeqNo(3), r.GetTailSeqnoEstimate(1))

	_, isTail, err := r.ProcessRecord(1, 1, topic("a"))
	require.NoError(t, err)
	require.False(t, isTail)

	_, _, _ = r.ProcessRecord(1, 2, topic("a"))
	_, isTail, err = r.ProcessRecord(1, 3, topic("a"))
	require.NoError(t, err)
	require.True(t, isTail)
}

func TestProcessGapAndBenignGap(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)
	require.NoError(t, r.ValidateGap(1, 1))

	prev := r.ProcessGap(1, topic("a"), 10)
	require.Equal(t, model.SeqNo(0), prev)
	r.ProcessBenignGap(1, 10)

	next, err := r.GetNextSequenceNumber(1)
	require.NoError(t, err)
	require.Equal(t, model.SeqNo(11), next)

	require.NoError(t, r.ValidateGap(1, 11))
	prev = r.ProcessGap(1, topic("a"), 20)
	require.Equal(t, model.SeqNo(11), prev)
}

func TestFlushHistoryOnMalignantGap(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)
	r.ProcessRecord(1, 1, topic("a"))

	r.FlushHistory(1, 21)
	next, err := r.GetNextSequenceNumber(1)
	require.NoError(t, err)
	require.Equal(t, model.SeqNo(21), next)

	prev, _, err := r.ProcessRecord(1, 21, topic("a"))
	require.NoError(t, err)
	require.Equal(t, model.SeqNo(0), prev)
}

func TestBumpLagging(t *testing.T) {
	r := New(0)
	r.StartReading(topic("t"), 1, 1)
	r.StartReading(topic("v"), 1, 200)

	var bumped []model.TopicUUID
	r.BumpLagging(1, 150, 100, func(tp model.TopicUUID, oldNext model.SeqNo) {
		bumped = append(bumped, tp)
	})
	require.Equal(t, []model.TopicUUID{topic("t")}, bumped)
}

func TestStopReadingClosesLogWhenEmpty(t *testing.T) {
	r := New(0)
	r.StartReading(topic("a"), 1, 1)
	closed := r.StopReading(topic("a"), 1)
	require.True(t, closed)
	require.False(t, r.IsLogOpen(1))
}

func TestCanMergeIntoAheadOrEqual(t *testing.T) {
	a := New(0)
	b := New(1)
	a.StartReading(topic("t"), 1, 1)
	b.StartReading(topic("u"), 1, 1)

	a.ProcessRecord(1, 1, topic("t"))
	b.ProcessRecord(1, 1, topic("u"))
	b.ProcessRecord(1, 2, topic("u"))

	require.True(t, a.CanMergeInto(b, 1))
	require.False(t, b.CanMergeInto(a, 1))
}

func TestMergeIntoTransfersTopics(t *testing.T) {
	a := New(0)
	b := New(1)
	a.StartReading(topic("t"), 1, 1)
	b.StartReading(topic("u"), 1, 1)
	b.ProcessRecord(1, 1, topic("u"))

	a.MergeInto(b, 1)
	require.False(t, a.IsLogOpen(1))
	require.True(t, b.IsLogOpen(1))
}

func TestIsVirtualPendingReader(t *testing.T) {
	p := NewPendingReader()
	require.True(t, p.IsVirtual())
	r := New(0)
	require.False(t, r.IsVirtual())
}
