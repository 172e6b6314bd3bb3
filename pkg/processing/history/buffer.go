package history

import (
	"cmp"
	"slices"

	"github.com/samber/lo"

	"github.com/echook/telemetry-manager-go/pkg/model"
)

// DefaultCapacity caps the buffer when no explicit capacity is configured.
const DefaultCapacity = 10000

// Entry is one buffered reading: the scaled packet plus the track name,
// which is the only non-numeric value the loggers send.
type Entry struct {
	Packet    model.Packet `json:"packet"`
	TrackName string       `json:"trackName,omitempty"`
}

func (e Entry) Timestamp() int64 {
	return e.Packet.Timestamp()
}

// MergeMode controls how a batch is combined with the buffer content.
type MergeMode int

const (
	// Replace discards the current content in favor of the batch.
	Replace MergeMode = iota
	// Prepend merges the batch with the current content. Despite the name
	// the position is determined by timestamp, so this also covers filling
	// gaps at the tail.
	Prepend
)

// Buffer keeps scaled packets ordered by timestamp with exactly one entry
// per distinct timestamp. It is not safe for concurrent use, callers
// serialize access.
type Buffer struct {
	entries   []Entry
	capacity  int
	truncated bool
}

type BufferOption func(b *Buffer)

func WithCapacity(capacity int) BufferOption {
	return func(b *Buffer) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

func NewBuffer(opts ...BufferOption) *Buffer {
	ret := &Buffer{
		entries:  make([]Entry, 0),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Upsert adds a single live entry. The common case is an append, packets
// arriving with a known timestamp replace the earlier entry and late
// packets are inserted at their position. Oldest entries are evicted when
// the capacity is exceeded.
func (b *Buffer) Upsert(entry Entry) {
	ts := entry.Timestamp()
	n := len(b.entries)
	switch {
	case n == 0 || ts > b.entries[n-1].Timestamp():
		b.entries = append(b.entries, entry)
	default:
		idx, found := slices.BinarySearchFunc(b.entries, entry,
			func(a, e Entry) int {
				return cmp.Compare(a.Timestamp(), e.Timestamp())
			})
		if found {
			b.entries[idx] = entry
		} else {
			b.entries = slices.Insert(b.entries, idx, entry)
		}
	}
	b.evictOldest()
}

// Merge combines a batch with the buffer, deduplicating on timestamp with
// the batch winning, and re-sorts the result. If the capacity is still
// exceeded after sorting, the oldest entries are dropped.
func (b *Buffer) Merge(entries []Entry, mode MergeMode) {
	merged := make(map[int64]Entry, len(b.entries)+len(entries))
	if mode == Prepend {
		for _, e := range b.entries {
			merged[e.Timestamp()] = e
		}
	}
	for _, e := range entries {
		merged[e.Timestamp()] = e
	}
	b.entries = lo.Values(merged)
	slices.SortFunc(b.entries, func(a, e Entry) int {
		return cmp.Compare(a.Timestamp(), e.Timestamp())
	})
	if mode == Replace {
		b.truncated = false
	}
	b.evictOldest()
}

func (b *Buffer) evictOldest() {
	if over := len(b.entries) - b.capacity; over > 0 {
		b.entries = slices.Delete(b.entries, 0, over)
		b.truncated = true
	}
}

// Snapshot returns a copy of the buffered entries in timestamp order.
// The packets themselves are shared, callers must not modify them.
func (b *Buffer) Snapshot() []Entry {
	return slices.Clone(b.entries)
}

func (b *Buffer) Len() int {
	return len(b.entries)
}

// Truncated reports whether entries have been evicted since the last
// replace. Exposed so a UI can warn that the view is incomplete.
func (b *Buffer) Truncated() bool {
	return b.truncated
}

func (b *Buffer) Clear() {
	b.entries = make([]Entry, 0)
	b.truncated = false
}

// OldestTimestamp returns the first buffered timestamp, 0 when empty.
func (b *Buffer) OldestTimestamp() int64 {
	if len(b.entries) == 0 {
		return 0
	}
	return b.entries[0].Timestamp()
}

// LatestTimestamp returns the last buffered timestamp, 0 when empty.
func (b *Buffer) LatestTimestamp() int64 {
	if len(b.entries) == 0 {
		return 0
	}
	return b.entries[len(b.entries)-1].Timestamp()
}
