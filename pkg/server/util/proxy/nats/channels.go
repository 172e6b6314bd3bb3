package nats

import (
	"context"
	"errors"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

type (
	// GlobalChannels is a cluster wide channel registry kept in the NATS KV
	// store. It is used during initialization of the NatsProxy.
	// The purpose is to enable instances that are started later to be able
	// to deliver data as well.
	GlobalChannels struct {
		kv       jetstream.KeyValue
		channels map[string]*model.Channel
		mutex    sync.Mutex
		l        *log.Logger
		rev      uint64
	}
)

func NewGlobalChannels(kv jetstream.KeyValue, l *log.Logger) (*GlobalChannels, error) {
	ret := &GlobalChannels{
		kv:       kv,
		mutex:    sync.Mutex{},
		channels: make(map[string]*model.Channel),
		l:        l,
	}
	if err := ret.setupListener(); err != nil {
		return nil, err
	}
	return ret, nil
}

//nolint:whitespace // editor/linter issue
func (g *GlobalChannels) CurrentLiveChannels() (
	lookup map[string]*model.Channel,
	err error,
) {
	var kve jetstream.KeyValueEntry
	if kve, err = g.kv.Get(context.Background(), "channels"); err != nil {
		// fresh bucket, nothing registered yet
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return map[string]*model.Channel{}, nil
		}
		return nil, err
	}
	if err = json.Unmarshal(kve.Value(), &lookup); err != nil {
		return nil, err
	}
	return lookup, nil
}

// register watcher on kv store
func (g *GlobalChannels) setupListener() error {
	w, err := g.kv.Watch(context.Background(), "channels")
	if err != nil {
		return err
	}
	go func() {
		for kve := range w.Updates() {
			if kve == nil {
				g.l.Debug("watchChannelData nil")
				continue
			}
			g.l.Debug("watchChannelData",
				log.Int("value-len", len(kve.Value())),
				log.String("op", kve.Operation().String()),
				log.Uint64("rev", kve.Revision()),
			)
			g.rev = kve.Revision()
			var incomingData map[string]*model.Channel
			if err = json.Unmarshal(kve.Value(), &incomingData); err == nil {
				g.mutex.Lock()
				g.channels = incomingData
				g.mutex.Unlock()
				g.l.Debug("channels updated", log.Any("channels", incomingData))
			} else {
				g.l.Error("error unmarshalling channel data", log.ErrorField(err))
			}
		}
		g.l.Debug("channelData watch done")
	}()
	return nil
}

// called when this instance starts ingesting a channel
func (g *GlobalChannels) RegisterChannel(c *model.Channel) {
	g.l.Debug("RegisterChannel", log.String("name", c.Name))
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.channels[c.Name] = c
	g.writeLookup()
}

// called on the ingesting instance when a channel goes away
func (g *GlobalChannels) UnregisterChannel(name string) {
	g.l.Debug("UnregisterChannel", log.String("name", name))
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.channels, name)
	g.writeLookup()
}

// caller holds the lock
func (g *GlobalChannels) writeLookup() {
	data, err := json.Marshal(g.channels)
	if err != nil {
		g.l.Error("error marshaling channel data", log.ErrorField(err))
		return
	}
	var rev uint64
	if g.rev == 0 {
		rev, err = g.kv.Put(context.Background(), "channels", data)
	} else {
		rev, err = g.kv.Update(context.Background(), "channels", data, g.rev)
	}
	if err != nil {
		g.l.Error("error writing channel data", log.ErrorField(err))
	} else {
		g.l.Debug("channel data written", log.Uint64("rev", rev))
		g.rev = rev
	}
}
