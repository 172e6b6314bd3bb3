package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/echook/telemetry-manager-go/pkg/model"
)

func entry(ts int64, speed float64) Entry {
	return Entry{Packet: model.Packet{
		model.KeyTime:  float64(ts),
		model.KeySpeed: speed,
	}}
}

func timestamps(entries []Entry) []int64 {
	ret := make([]int64, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, e.Timestamp())
	}
	return ret
}

func TestBuffer_MergeDedupesAndSorts(t *testing.T) {
	b := NewBuffer()
	b.Merge([]Entry{
		entry(3000, 1),
		entry(1000, 2),
		entry(2000, 3),
		entry(1000, 4), // duplicate timestamp, later entry wins
	}, Replace)

	assert.Equal(t, []int64{1000, 2000, 3000}, timestamps(b.Snapshot()))
	assert.Equal(t, 4.0, b.Snapshot()[0].Packet[model.KeySpeed])
}

func TestBuffer_CapacityEvictsOldestOnLiveIngest(t *testing.T) {
	b := NewBuffer(WithCapacity(3))
	for _, ts := range []int64{1000, 2000, 3000, 4000} {
		b.Upsert(entry(ts, 1))
	}

	assert.Equal(t, []int64{2000, 3000, 4000}, timestamps(b.Snapshot()))
	assert.True(t, b.Truncated())
}

func TestBuffer_MergeTruncatesPostSort(t *testing.T) {
	b := NewBuffer(WithCapacity(2))
	b.Merge([]Entry{entry(1000, 1), entry(3000, 2), entry(2000, 3)}, Replace)

	assert.Equal(t, []int64{2000, 3000}, timestamps(b.Snapshot()))
	assert.True(t, b.Truncated())
}

func TestBuffer_PrependMergesWithExisting(t *testing.T) {
	b := NewBuffer()
	b.Upsert(entry(5000, 1))
	b.Upsert(entry(6000, 2))

	b.Merge([]Entry{entry(3000, 3), entry(4000, 4), entry(5000, 9)}, Prepend)

	assert.Equal(t, []int64{3000, 4000, 5000, 6000}, timestamps(b.Snapshot()))
	// batch entry wins on a timestamp collision
	assert.Equal(t, 9.0, b.Snapshot()[2].Packet[model.KeySpeed])
}

func TestBuffer_ReplaceDiscardsExisting(t *testing.T) {
	b := NewBuffer(WithCapacity(2))
	b.Merge([]Entry{entry(1000, 1), entry(2000, 2), entry(3000, 3)}, Replace)
	assert.True(t, b.Truncated())

	b.Merge([]Entry{entry(9000, 5)}, Replace)
	assert.Equal(t, []int64{9000}, timestamps(b.Snapshot()))
	assert.False(t, b.Truncated())
}

func TestBuffer_UpsertReplacesSameTimestamp(t *testing.T) {
	b := NewBuffer()
	b.Upsert(entry(1000, 1))
	b.Upsert(entry(1000, 2))

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2.0, b.Snapshot()[0].Packet[model.KeySpeed])
}

func TestBuffer_UpsertLatePacketKeepsOrder(t *testing.T) {
	b := NewBuffer()
	b.Upsert(entry(1000, 1))
	b.Upsert(entry(3000, 2))
	b.Upsert(entry(2000, 3))

	assert.Equal(t, []int64{1000, 2000, 3000}, timestamps(b.Snapshot()))
}

func TestBuffer_Timestamps(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, int64(0), b.OldestTimestamp())
	assert.Equal(t, int64(0), b.LatestTimestamp())

	b.Upsert(entry(1000, 1))
	b.Upsert(entry(2000, 2))
	assert.Equal(t, int64(1000), b.OldestTimestamp())
	assert.Equal(t, int64(2000), b.LatestTimestamp())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Truncated())
}
