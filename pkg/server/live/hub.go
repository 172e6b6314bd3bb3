package live

import (
	"context"
	"errors"
	"sync"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy"
	"github.com/echook/telemetry-manager-go/pkg/service"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

// records without a timestamp cannot be archived or merged, they are rejected
var ErrNoTimestamp = errors.New("record has no timestamp")

// Hub receives records from the data loggers, archives them and fans them
// out to live subscribers through the configured proxy.
type Hub struct {
	ingest       *service.IngestService
	proxy        proxy.DataProxy
	lookup       *utils.ChannelLookup
	l            *log.Logger
	maxClients   int
	printRecords bool
	mutex        sync.Mutex
	clients      map[string]int
}

type Option func(*Hub)

func WithLogger(l *log.Logger) Option {
	return func(h *Hub) {
		h.l = l
	}
}

// WithMaxClientsPerChannel limits concurrent live subscribers per channel.
// Zero means no limit.
func WithMaxClientsPerChannel(n int) Option {
	return func(h *Hub) {
		h.maxClients = n
	}
}

// WithPrintRecords logs each incoming record payload on debug level.
func WithPrintRecords(arg bool) Option {
	return func(h *Hub) {
		h.printRecords = arg
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewHub(
	ingestService *service.IngestService,
	dataProxy proxy.DataProxy,
	lookup *utils.ChannelLookup,
	opts ...Option,
) *Hub {
	ret := &Hub{
		ingest:  ingestService,
		proxy:   dataProxy,
		lookup:  lookup,
		l:       log.Default().Named("live"),
		clients: make(map[string]int),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Ingest coerces one record, archives it and fans it out. Unknown channels
// are registered on first contact.
func (h *Hub) Ingest(ctx context.Context, channelName string, raw model.RawRecord) error {
	rec := raw.Canonical()
	if rec.Timestamp() == 0 {
		return ErrNoTimestamp
	}
	if h.printRecords {
		h.l.Debug("got record", log.String("channel", channelName), log.Any("rec", rec))
	}
	cd, err := h.lookup.GetChannel(channelName)
	if err != nil {
		var channel *model.Channel
		if channel, err = h.ingest.RegisterChannel(ctx, channelName); err != nil {
			return err
		}
		cd = h.lookup.AddChannel(channel)
		if pErr := h.proxy.PublishChannelRegistered(cd); pErr != nil {
			h.l.Warn("could not announce channel",
				log.String("channel", channelName), log.ErrorField(pErr))
		}
		h.l.Info("channel registered", log.String("channel", channelName))
	}
	if err = h.ingest.RecordPacket(ctx, cd.Channel, rec); err != nil {
		return err
	}
	if trackName, ok := rec[model.KeyTrackName].(string); ok && cd.UpdateTrackName(trackName) {
		if uErr := h.ingest.UpdateTrackName(ctx, cd.Channel, trackName); uErr != nil {
			h.l.Warn("could not update track name", log.ErrorField(uErr))
		}
	}
	cd.Publish(rec)
	if pErr := h.proxy.PublishRecord(channelName, rec); pErr != nil {
		h.l.Warn("could not relay record",
			log.String("channel", channelName), log.ErrorField(pErr))
	}
	return nil
}

func (h *Hub) acquireSlot(channelName string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.maxClients > 0 && h.clients[channelName] >= h.maxClients {
		return false
	}
	h.clients[channelName]++
	return true
}

func (h *Hub) releaseSlot(channelName string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.clients[channelName] > 1 {
		h.clients[channelName]--
	} else {
		delete(h.clients, channelName)
	}
}
