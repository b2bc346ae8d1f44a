package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndRead(t *testing.T) {
	s := New[string](4, nil)

	s.BlockAppend([]string{"a", "b"}, []float32{1.0, 2.0})

	size, sum := s.SafeSize()
	require.Equal(t, 2, size)
	require.InDelta(t, 3.0, sum, 1e-9)

	assert.Equal(t, "a", s.GetElementAndMark(0))
	assert.Equal(t, "b", s.GetElementAndMark(1))

	w, id := s.GetWeight(1)
	assert.Equal(t, float32(2.0), w)
	assert.Equal(t, 1, id)
}

func TestStore_BlockAppendWaitsForSpace(t *testing.T) {
	s := New[int](2, nil)
	s.BlockAppend([]int{1, 2}, []float32{1, 1})

	done := make(chan struct{})
	go func() {
		s.BlockAppend([]int{3}, []float32{1})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("block_append should have blocked on a full buffer")
	default:
	}

	s.BlockPop(1)
	<-done

	size, _ := s.SafeSize()
	assert.Equal(t, 2, size)
}

func TestStore_PopMarksEvicted(t *testing.T) {
	s := New[int](4, nil)
	s.BlockAppend([]int{1, 2, 3}, []float32{1, 1, 1})

	s.BlockPop(2)

	assert.True(t, s.slots[0].evicted)
	assert.True(t, s.slots[1].evicted)
	assert.False(t, s.slots[2].evicted)

	size, sum := s.SafeSize()
	assert.Equal(t, 1, size)
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestStore_UpdateSkipsEvictedSlots(t *testing.T) {
	s := New[int](4, nil)
	s.BlockAppend([]int{1, 2}, []float32{1, 1})

	_, idA := s.GetWeight(0)
	_, idB := s.GetWeight(1)

	s.BlockPop(1) // evicts idA's slot

	s.Update([]int{idA, idB}, []float32{99, 5})

	_, sum := s.SafeSize()
	// idA's update must have been skipped: only idB's +4 delta applied.
	assert.InDelta(t, 5.0, sum, 1e-9)
}

func TestStore_ConcurrentAppendOrderPreservesTail(t *testing.T) {
	s := New[int](1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.BlockAppend([]int{i}, []float32{1})
		}(i)
	}
	wg.Wait()

	size, sum := s.SafeSize()
	assert.Equal(t, 50, size)
	assert.InDelta(t, 50.0, sum, 1e-9)
}

func TestStore_AppendBlockPopInterleave(t *testing.T) {
	s := New[int](8, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.BlockAppend([]int{i}, []float32{1})
		}
	}()

	popped := 0
	for popped < 100 {
		if size, _ := s.SafeSize(); size > 0 {
			s.BlockPop(1)
			popped++
		}
	}
	wg.Wait()

	size, sum := s.SafeSize()
	assert.Equal(t, 0, size)
	assert.InDelta(t, 0.0, sum, 1e-6)
}

func TestStore_MismatchedWeightsPanics(t *testing.T) {
	s := New[int](4, nil)
	assert.Panics(t, func() {
		s.BlockAppend([]int{1, 2}, []float32{1})
	})
}
