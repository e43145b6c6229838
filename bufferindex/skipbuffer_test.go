package bufferindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkowalski/hybridindex/record"
)

func TestSkipBuffer_InsertAndLookup(t *testing.T) {
	b := NewSkipBuffer(16)

	b.Insert(record.Record{Key: 5, Value: 50})
	b.Insert(record.Record{Key: 7, Value: 70})

	got := b.EqualityLookup(5)
	require.Equal(t, record.OutcomeFound, got.Outcome)
	assert.Equal(t, uint64(50), got.Value)

	got = b.EqualityLookup(7)
	assert.Equal(t, uint64(70), got.Value)

	assert.Equal(t, 2, b.Len())
}

func TestSkipBuffer_LookupMissing(t *testing.T) {
	b := NewSkipBuffer(16)
	got := b.EqualityLookup(999)
	assert.Equal(t, record.OutcomeNotFound, got.Outcome)
}

func TestSkipBuffer_OverwriteExistingKey(t *testing.T) {
	b := NewSkipBuffer(16)
	b.Insert(record.Record{Key: 1, Value: 10})
	b.Insert(record.Record{Key: 1, Value: 11})

	assert.Equal(t, 1, b.Len())
	got := b.EqualityLookup(1)
	assert.Equal(t, uint64(11), got.Value)
}

func TestSkipBuffer_RangeQuery(t *testing.T) {
	b := NewSkipBuffer(16)
	for i := uint64(1); i <= 8; i++ {
		b.Insert(record.Record{Key: i, Value: i * 10})
	}

	sum := b.RangeQuery(2, 6)
	// 2+3+4+5+6 -> values 20+30+40+50+60 = 200
	assert.Equal(t, uint64(200), sum)
}

func TestSkipBuffer_Export_SortedByKey(t *testing.T) {
	b := NewSkipBuffer(16)
	order := []uint64{5, 1, 3, 2, 4}
	for _, k := range order {
		b.Insert(record.Record{Key: k, Value: k})
	}

	exported := b.Export()
	require.Len(t, exported, 5)
	for i := 1; i < len(exported); i++ {
		assert.Less(t, exported[i-1].Key, exported[i].Key)
	}
}

func TestSkipBuffer_Clear(t *testing.T) {
	b := NewSkipBuffer(16)
	b.Insert(record.Record{Key: 1, Value: 1})
	b.Insert(record.Record{Key: 2, Value: 2})
	require.Equal(t, 2, b.Len())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, record.OutcomeNotFound, b.EqualityLookup(1).Outcome)
}

func TestSkipBuffer_GrowsBeyondInitialCapacity(t *testing.T) {
	b := NewSkipBuffer(4)
	const n = 5000
	for i := uint64(0); i < n; i++ {
		b.Insert(record.Record{Key: i, Value: i})
	}

	assert.Equal(t, n, b.Len())
	for i := uint64(0); i < n; i += 777 {
		got := b.EqualityLookup(i)
		require.Equal(t, record.OutcomeFound, got.Outcome)
		assert.Equal(t, i, got.Value)
	}
}

func TestSkipBuffer_EmptyExport(t *testing.T) {
	b := NewSkipBuffer(4)
	assert.Empty(t, b.Export())
	assert.Equal(t, uint64(0), b.RangeQuery(0, 100))
}

var _ Index = (*SkipBuffer)(nil)
