package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_WriteDrain(t *testing.T) {
	rb := NewRingBuffer[int](4)

	for i := 0; i < 3; i++ {
		assert.True(t, rb.Write(i))
	}
	assert.Equal(t, 3, rb.Size())

	got := rb.Drain()
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 0, rb.Size())
}

func TestRingBuffer_DropOldestOnOverflow(t *testing.T) {
	rb := NewRingBuffer[int](3)

	for i := 0; i < 5; i++ {
		rb.Write(i)
	}

	require.Equal(t, 3, rb.Size())
	assert.Equal(t, []int{2, 3, 4}, rb.Drain())
	assert.EqualValues(t, 2, rb.OverflowCount())
}

func TestRingBuffer_PeekDoesNotConsume(t *testing.T) {
	rb := NewRingBuffer[string](2)
	rb.Write("a")
	rb.Write("b")

	v, ok := rb.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, rb.Size())
}

func TestRingBuffer_DrainN(t *testing.T) {
	rb := NewRingBuffer[int](10)
	for i := 0; i < 5; i++ {
		rb.Write(i)
	}

	first := rb.DrainN(2)
	assert.Equal(t, []int{0, 1}, first)
	assert.Equal(t, 3, rb.Size())

	rest := rb.DrainN(10)
	assert.Equal(t, []int{2, 3, 4}, rest)
	assert.Equal(t, 0, rb.Size())
}

func TestRingBuffer_MetricsInvariant(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 0; i < 10; i++ {
		rb.Write(i)
	}
	rb.DrainN(2)

	m := rb.GetMetrics()
	assert.EqualValues(t, m.Written, m.Drained+int64(rb.Size())+m.Overwritten)
}

func TestRingBuffer_EmptyDrainAndPeek(t *testing.T) {
	rb := NewRingBuffer[int](2)
	assert.Nil(t, rb.Drain())
	_, ok := rb.Peek()
	assert.False(t, ok)
}

func TestRingBuffer_SnapshotDoesNotConsume(t *testing.T) {
	rb := NewRingBuffer[int](4)
	rb.Write(1)
	rb.Write(2)

	snap := rb.Snapshot()
	assert.Equal(t, []int{1, 2}, snap)
	assert.Equal(t, 2, rb.Size())

	snap[0] = 99
	snap2 := rb.Snapshot()
	assert.Equal(t, []int{1, 2}, snap2, "mutating a snapshot must not affect the buffer")
}
