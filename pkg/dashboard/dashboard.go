package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aarondl/opt/null"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/fetch"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/processing"
	"github.com/echook/telemetry-manager-go/pkg/processing/history"
)

// Dashboard is the headless client core: it streams live records into a
// Processor and backfills history through the fetch client.
type Dashboard struct {
	processor *processing.Processor
	client    *fetch.Client
	loader    *fetch.Loader
	liveURL   string
	dialer    dialer
	log       *log.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu       sync.Mutex
	lastLoad *rangeRequest
}

// rangeRequest remembers the active bulk window so a unit change can
// replay it.
type rangeRequest struct {
	start int64
	end   null.Val[int64]
}

type Option func(d *Dashboard)

func WithProcessor(processor *processing.Processor) Option {
	return func(d *Dashboard) {
		d.processor = processor
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(d *Dashboard) {
		d.log = logger
	}
}

func WithReconnectDelay(min, max time.Duration) Option {
	return func(d *Dashboard) {
		d.reconnectMin = min
		d.reconnectMax = max
	}
}

func New(liveURL string, client *fetch.Client, opts ...Option) *Dashboard {
	ret := &Dashboard{
		processor:    processing.NewProcessor(),
		client:       client,
		loader:       fetch.NewLoader(client),
		liveURL:      liveURL,
		dialer:       defaultDialer{},
		log:          log.Default().Named("dashboard"),
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Processor exposes the underlying state for rendering layers.
func (d *Dashboard) Processor() *processing.Processor {
	return d.processor
}

// LoadRange replaces the buffered history with the records between start
// and the optional end. A load that gets superseded by a newer one leaves
// the state unchanged.
func (d *Dashboard) LoadRange(ctx context.Context, start int64, end null.Val[int64]) (int, error) {
	return ignoreSuperseded(d.load(ctx, start, end, history.Replace, true))
}

// LoadDay loads a full calendar day (UTC), day formatted as 2006-01-02.
func (d *Dashboard) LoadDay(ctx context.Context, day string) (int, error) {
	dayStart, err := time.ParseInLocation(time.DateOnly, day, time.UTC)
	if err != nil {
		return 0, err
	}
	start := dayStart.UnixMilli()
	end := dayStart.Add(24 * time.Hour).UnixMilli()
	return d.LoadRange(ctx, start, null.From(end))
}

// LoadEarlier extends the buffered window backwards by span. It merges
// into the existing buffer instead of replacing it.
func (d *Dashboard) LoadEarlier(ctx context.Context, span time.Duration) (int, error) {
	oldest := d.processor.OldestBuffered()
	if oldest == 0 {
		return 0, errors.New("no history loaded yet")
	}
	start := oldest - span.Milliseconds()
	return ignoreSuperseded(d.load(ctx, start, null.From(oldest-1), history.Prepend, false))
}

// load fetches a window and applies it to the processor. The generation
// is re-checked under the apply lock, so a batch that got superseded
// while in flight can never clobber the result of a newer load.
func (d *Dashboard) load(
	ctx context.Context, start int64, end null.Val[int64], mode history.MergeMode, remember bool,
) (int, error) {
	gen := d.loader.Begin()
	records, err := d.loader.Load(ctx, gen, start, end)
	if err != nil {
		if errors.Is(err, fetch.ErrSuperseded) {
			d.log.Debug("dropping superseded load", log.Int64("start", start))
		}
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loader.Current(gen) {
		d.log.Debug("dropping superseded load", log.Int64("start", start))
		return 0, fetch.ErrSuperseded
	}
	count := d.processor.ProcessBatch(records, mode)
	if remember {
		d.lastLoad = &rangeRequest{start: start, end: end}
	}
	return count, nil
}

// ignoreSuperseded maps a superseded load to a no-op result.
func ignoreSuperseded(count int, err error) (int, error) {
	if errors.Is(err, fetch.ErrSuperseded) {
		return 0, nil
	}
	return count, err
}

// Pause stops live ingestion; packets arriving while paused are lost.
func (d *Dashboard) Pause() {
	d.processor.Pause()
}

// Resume restarts live ingestion and backfills the window covering the
// pause in a single fetch.
func (d *Dashboard) Resume(ctx context.Context) (int, error) {
	last := d.processor.Resume()
	if last == 0 {
		return 0, nil
	}
	return ignoreSuperseded(d.load(ctx, last, null.Val[int64]{}, history.Prepend, false))
}

// SetUnits switches display units. Buffered values carry the old scaling,
// so the state is cleared and the active bulk window reloaded under a
// fresh generation.
func (d *Dashboard) SetUnits(ctx context.Context, units model.Units) (int, error) {
	if !d.processor.SetUnits(units) {
		return 0, nil
	}
	d.mu.Lock()
	last := d.lastLoad
	d.mu.Unlock()
	if last == nil {
		return 0, nil
	}
	return d.LoadRange(ctx, last.start, last.end)
}
