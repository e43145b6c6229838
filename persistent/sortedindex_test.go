package persistent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkowalski/hybridindex/record"
)

func buildData(n int) []record.Record {
	data := make([]record.Record, n)
	for i := 0; i < n; i++ {
		data[i] = record.Record{Key: uint64(i + 1), Value: uint64((i + 1) * 10)}
	}
	return data
}

func TestSortedIndex_BuildThenLookup(t *testing.T) {
	idx := NewSortedIndex()
	err := idx.Build(context.Background(), []record.Record{{Key: 1, Value: 10}, {Key: 2, Value: 20}, {Key: 3, Value: 30}}, 2)
	require.NoError(t, err)

	got := idx.EqualityLookup(2)
	require.Equal(t, record.OutcomeFound, got.Outcome)
	assert.Equal(t, uint64(20), got.Value)

	got = idx.EqualityLookup(4)
	assert.Equal(t, record.OutcomeNotFound, got.Outcome)
}

func TestSortedIndex_BuildTwiceErrors(t *testing.T) {
	idx := NewSortedIndex()
	require.NoError(t, idx.Build(context.Background(), buildData(10), 4))
	err := idx.Build(context.Background(), buildData(10), 4)
	assert.Error(t, err)
}

func TestSortedIndex_ParallelBuildPreservesOrder(t *testing.T) {
	idx := NewSortedIndex()
	data := buildData(10_000)
	require.NoError(t, idx.Build(context.Background(), data, 8))

	assert.Equal(t, 10_000, idx.Len())
	for _, i := range []int{1, 100, 5000, 9999, 10000} {
		got := idx.EqualityLookup(uint64(i))
		require.Equal(t, record.OutcomeFound, got.Outcome, "key %d", i)
		assert.Equal(t, uint64(i*10), got.Value)
	}
}

func TestSortedIndex_InsertAfterBuild(t *testing.T) {
	idx := NewSortedIndex()
	require.NoError(t, idx.Build(context.Background(), []record.Record{{Key: 1, Value: 10}, {Key: 3, Value: 30}}, 1))

	idx.Insert(record.Record{Key: 2, Value: 20})
	assert.Equal(t, 3, idx.Len())

	got := idx.EqualityLookup(2)
	assert.Equal(t, uint64(20), got.Value)

	// overwrite
	idx.Insert(record.Record{Key: 2, Value: 21})
	assert.Equal(t, 3, idx.Len())
	got = idx.EqualityLookup(2)
	assert.Equal(t, uint64(21), got.Value)
}

func TestSortedIndex_RangeQuery(t *testing.T) {
	idx := NewSortedIndex()
	require.NoError(t, idx.Build(context.Background(), buildData(8), 2))

	sum := idx.RangeQuery(2, 6)
	// keys 2..6 -> values 20+30+40+50+60 = 200
	assert.Equal(t, uint64(200), sum)
}

func TestSortedIndex_EmptyBuild(t *testing.T) {
	idx := NewSortedIndex()
	require.NoError(t, idx.Build(context.Background(), nil, 4))
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, record.OutcomeNotFound, idx.EqualityLookup(1).Outcome)
}
