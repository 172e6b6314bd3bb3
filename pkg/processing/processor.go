package processing

import (
	"sync"
	"time"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/processing/history"
	"github.com/echook/telemetry-manager-go/pkg/processing/race"
	"github.com/echook/telemetry-manager-go/pkg/processing/scale"
)

// DefaultStaleDuration marks the live data stale when no packet arrived
// for this long.
const DefaultStaleDuration = time.Minute

// Processor owns the shared telemetry state: the scaled live packet, the
// history buffer and the race sessions. All mutation funnels through
// ProcessLive/ProcessBatch, guarded by one mutex.
type Processor struct {
	mu            sync.Mutex
	units         model.Units
	buffer        *history.Buffer
	raceProcessor *race.SessionProcessor
	latest        model.Packet
	latestArrival time.Time
	paused        bool
	staleDuration time.Duration
	log           *log.Logger
	now           func() time.Time
}

type ProcessorOption func(p *Processor)

func WithUnits(units model.Units) ProcessorOption {
	return func(p *Processor) {
		p.units = units
	}
}

func WithCapacity(capacity int) ProcessorOption {
	return func(p *Processor) {
		p.buffer = history.NewBuffer(history.WithCapacity(capacity))
	}
}

func WithStaleDuration(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.staleDuration = d
		}
	}
}

func WithLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		p.log = logger
	}
}

func NewProcessor(opts ...ProcessorOption) *Processor {
	ret := &Processor{
		units:         model.DefaultUnits(),
		buffer:        history.NewBuffer(),
		raceProcessor: race.NewSessionProcessor(),
		staleDuration: DefaultStaleDuration,
		log:           log.Default().Named("processing"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// ProcessLive ingests one live record: scale, buffer, reduce. While paused
// records are dropped entirely, they are not queued for later.
func (p *Processor) ProcessLive(raw model.RawRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	pkt, trackName := raw.Normalize()
	if pkt.Timestamp() == 0 {
		p.log.Debug("dropping record without timestamp")
		return
	}
	scaled := scale.Scale(pkt, p.units)
	p.buffer.Upsert(history.Entry{Packet: scaled, TrackName: trackName})
	p.raceProcessor.ProcessPacket(scaled, trackName)
	p.latest = scaled
	p.latestArrival = p.now()
}

// ProcessBatch merges historical records into the buffer and rebuilds the
// race sessions by replaying the merged buffer in timestamp order. The
// replay is required: the new-race heuristic depends on packet order, so
// an incremental update after an out-of-order merge would drift.
func (p *Processor) ProcessBatch(raws []model.RawRecord, mode history.MergeMode) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]history.Entry, 0, len(raws))
	for _, raw := range raws {
		pkt, trackName := raw.Normalize()
		if pkt.Timestamp() == 0 {
			continue
		}
		entries = append(entries, history.Entry{
			Packet:    scale.Scale(pkt, p.units),
			TrackName: trackName,
		})
	}
	p.buffer.Merge(entries, mode)
	p.rebuildSessions()
	return len(entries)
}

// caller holds the lock
func (p *Processor) rebuildSessions() {
	entries := p.buffer.Snapshot()
	packets := make([]model.Packet, len(entries))
	tracks := make([]string, len(entries))
	for i, e := range entries {
		packets[i] = e.Packet
		tracks[i] = e.TrackName
	}
	p.raceProcessor.Sessions = race.Replay(packets, tracks)
}

// Pause stops live ingestion. Packets arriving while paused are lost.
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-enables live ingestion and returns the latest buffered
// timestamp so the caller can fetch the missed gap.
func (p *Processor) Resume() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return p.buffer.LatestTimestamp()
}

func (p *Processor) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetUnits changes the display units. Since the buffer only retains scaled
// values, all state derived from packets is invalidated, the caller is
// expected to refetch. Reports whether state was cleared.
func (p *Processor) SetUnits(units model.Units) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.units == units {
		return false
	}
	p.units = units
	p.buffer.Clear()
	p.raceProcessor.Reset()
	p.latest = nil
	return true
}

func (p *Processor) Units() model.Units {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.units
}

// Snapshot returns the buffered entries in timestamp order.
func (p *Processor) Snapshot() []history.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Snapshot()
}

// Sessions returns the current race session map. The map is rebuilt on
// every change, callers treat it as read-only.
func (p *Processor) Sessions() model.SessionMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raceProcessor.Sessions
}

// Latest returns the last scaled live packet, nil if none arrived yet.
func (p *Processor) Latest() model.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Stale reports whether no live packet arrived within the stale duration.
func (p *Processor) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latestArrival.IsZero() {
		return true
	}
	return p.now().Sub(p.latestArrival) > p.staleDuration
}

// Truncated reports whether buffer entries have been evicted.
func (p *Processor) Truncated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Truncated()
}

// LatestBuffered returns the newest buffered timestamp, 0 when empty.
func (p *Processor) LatestBuffered() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.LatestTimestamp()
}

// OldestBuffered returns the oldest buffered timestamp, 0 when empty.
func (p *Processor) OldestBuffered() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.OldestTimestamp()
}
