package linkedmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.True(t, m.Delete("a"))
	_, ok = m.Get("a")
	require.False(t, ok)
	require.Equal(t, 1, m.Len())
}

func TestOrderingMoveToBack(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	k, _, ok := m.Front()
	require.True(t, ok)
	require.Equal(t, "a", k)

	m.MoveToBack("a")
	k, _, ok = m.Front()
	require.True(t, ok)
	require.Equal(t, "b", k)
}

func TestSetExistingMovesToBack(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 10)

	k, v, ok := m.Front()
	require.True(t, ok)
	require.Equal(t, "b", k)
	require.Equal(t, 2, v)

	v, ok = m.Get("a")
	require.True(t, ok)
	require.Equal(t, 10, v)
}

func TestPopFront(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	k, v, ok := m.PopFront()
	require.True(t, ok)
	require.Equal(t, "a", k)
	require.Equal(t, 1, v)
	require.Equal(t, 1, m.Len())

	k, _, ok = m.Front()
	require.True(t, ok)
	require.Equal(t, "b", k)
}

func TestEachVisitsInOrder(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 5; i++ {
		m.Set(i, i*i)
	}
	var seen []int
	m.Each(func(k, v int) { seen = append(seen, k) })
	require.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestEmptyFront(t *testing.T) {
	m := New[string, int]()
	_, _, ok := m.Front()
	require.False(t, ok)
	_, _, ok = m.PopFront()
	require.False(t, ok)
}
