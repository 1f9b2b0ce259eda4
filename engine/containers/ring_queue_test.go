package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	assert.True(t, rq.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.Equal(t, 3, rq.Len())

	head, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, head)
	assert.Equal(t, 3, rq.Len(), "Peek does not consume")

	for i := 1; i <= 3; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rq.IsEmpty())
}

func TestRingQueueBounds(t *testing.T) {
	rq := NewRingQueue[string](2)

	_, err := rq.Dequeue()
	assert.Error(t, err, "dequeue from empty")
	_, err = rq.Peek()
	assert.Error(t, err)

	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	assert.True(t, rq.IsFull())
	assert.Error(t, rq.Enqueue("c"), "enqueue past capacity")
}

func TestRingQueueWrapAround(t *testing.T) {
	rq := NewRingQueue[int](3)

	// Cycle more elements than the capacity so the indices wrap.
	for i := 0; i < 10; i++ {
		require.NoError(t, rq.Enqueue(i))
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rq.IsEmpty())
}
