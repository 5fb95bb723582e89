package buffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/spec"
)

func rec(action int) Record {
	return Record{Transition: Transition{Action: action}}
}

func actions(rs []Record) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Transition.Action
	}
	return out
}

func TestNewRingBufferValidation(t *testing.T) {
	_, err := NewRingBuffer(0, PolicyFIFO, 1)
	assert.True(t, errors.Is(err, spec.ErrInvalidValue))

	_, err = NewRingBuffer(4, "lifo", 1)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestFromSpec(t *testing.T) {
	rb, err := FromSpec(agent.MemorySpec{Type: "ring_buffer", Capacity: spec.CountOf(3)}, PolicyFIFO, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, rb.Capacity())

	_, err = FromSpec(agent.MemorySpec{Type: "prioritized-replay", Capacity: spec.CountOf(3)}, PolicyFIFO, 1)
	assert.True(t, errors.Is(err, spec.ErrUnknownType))
}

func TestInsertEvictsOldest(t *testing.T) {
	rb, err := NewRingBuffer(3, PolicyFIFO, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, rb.Insert(rec(i)))
	}
	assert.True(t, rb.Insert(rec(3)))
	assert.Equal(t, 2, rb.InsertBatch([]Record{rec(4), rec(5)}))

	assert.Equal(t, []int{3, 4, 5}, actions(rb.Snapshot()))
	stats := rb.Stats()
	assert.Equal(t, Stats{Size: 3, Capacity: 3, Policy: PolicyFIFO, Inserted: 6, Evictions: 3}, stats)
}

func TestDequeuePolicies(t *testing.T) {
	rb, err := NewRingBuffer(4, PolicyFIFO, 1)
	require.NoError(t, err)
	rb.InsertBatch([]Record{rec(1), rec(2), rec(3), rec(4), rec(5)})

	r, err := rb.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Transition.Action)

	require.NoError(t, rb.SetPolicy(PolicyFreshness))
	r, err = rb.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 5, r.Transition.Action)

	assert.Equal(t, []int{3, 4}, actions(rb.Snapshot()))
	assert.ErrorIs(t, rb.SetPolicy("random"), ErrInvalidPolicy)

	rb.Dequeue()
	rb.Dequeue()
	_, err = rb.Dequeue()
	assert.ErrorIs(t, err, ErrBufferEmpty)
}

func TestSample(t *testing.T) {
	rb, err := NewRingBuffer(8, PolicyFIFO, 42)
	require.NoError(t, err)

	_, err = rb.Sample(2)
	assert.ErrorIs(t, err, ErrBufferEmpty)

	rb.InsertBatch([]Record{rec(10), rec(11), rec(12)})
	_, err = rb.Sample(0)
	assert.True(t, errors.Is(err, spec.ErrInvalidValue))
	_, err = rb.Sample(9)
	assert.True(t, errors.Is(err, spec.ErrInvalidValue))
	_, err = rb.Sample(1_000_000_000)
	assert.True(t, errors.Is(err, spec.ErrInvalidValue))

	sample, err := rb.Sample(8)
	require.NoError(t, err)
	require.Len(t, sample, 8)
	for _, r := range sample {
		assert.Contains(t, []int{10, 11, 12}, r.Transition.Action)
	}
	assert.Equal(t, 3, rb.Size(), "sampling must not remove records")
}

func TestProperty_RingBufferKeepsNewest(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(rt, "capacity")
		n := rapid.IntRange(0, 64).Draw(rt, "inserts")

		rb, err := NewRingBuffer(capacity, PolicyFIFO, 7)
		require.NoError(rt, err)
		for i := 0; i < n; i++ {
			rb.Insert(rec(i))
		}

		keep := n
		if keep > capacity {
			keep = capacity
		}
		want := make([]int, 0, keep)
		for i := n - keep; i < n; i++ {
			want = append(want, i)
		}
		assert.Equal(rt, keep, rb.Size())
		assert.Equal(rt, want, actions(rb.Snapshot()))
		assert.Equal(rt, uint64(n-keep), rb.Stats().Evictions)
	})
}
