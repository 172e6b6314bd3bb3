package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/utils/broadcast"
)

var ErrChannelNotFound = errors.New("channel not found")

// sourceBuffer absorbs short fan-out stalls so ingest never blocks on a
// slow hub. Records beyond that are dropped.
const sourceBuffer = 32

// watchdogInterval is how often the lookup checks for stale channels.
const watchdogInterval = 10 * time.Second

type ChannelData struct {
	Channel   *model.Channel
	Broadcast broadcast.BroadcastServer[model.RawRecord]

	source   chan model.RawRecord
	mutex    sync.Mutex
	latest   model.RawRecord
	lastSeen time.Time
	closed   bool
}

// Publish records the arrival and hands the record to the broadcast hub.
func (c *ChannelData) Publish(rec model.RawRecord) {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.latest = rec
	c.lastSeen = time.Now()
	c.mutex.Unlock()
	select {
	case c.source <- rec:
	default:
	}
}

// Latest returns the most recent record published on this channel.
func (c *ChannelData) Latest() model.RawRecord {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.latest
}

func (c *ChannelData) LastSeen() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastSeen
}

// UpdateTrackName stores a changed track name, reporting whether it changed.
func (c *ChannelData) UpdateTrackName(trackName string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if trackName == "" || c.Channel.TrackName == trackName {
		return false
	}
	c.Channel.TrackName = trackName
	return true
}

func (c *ChannelData) close() {
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()
	c.Broadcast.Close()
}

type (
	// ChannelLookup keeps track of the channels currently live on this
	// instance. The hub and the stale watchdog access it concurrently.
	ChannelLookup struct {
		mutex         sync.RWMutex
		lookup        map[string]*ChannelData
		staleDuration time.Duration
		onRemoveCB    func(channelName string)
	}
	LookupOption func(*ChannelLookup)
)

// WithStaleDuration sets how long a channel may stay silent before the
// watchdog closes it.
func WithStaleDuration(d time.Duration) LookupOption {
	return func(c *ChannelLookup) {
		if d > 0 {
			c.staleDuration = d
		}
	}
}

func NewChannelLookup(opts ...LookupOption) *ChannelLookup {
	ret := &ChannelLookup{
		lookup:        make(map[string]*ChannelData),
		staleDuration: time.Minute,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// SetOnRemoveCB registers a callback invoked when the watchdog removes a
// stale channel.
func (c *ChannelLookup) SetOnRemoveCB(cb func(channelName string)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onRemoveCB = cb
}

// AddChannel registers a channel and creates its broadcast hub. Adding an
// already known channel returns the existing entry.
func (c *ChannelLookup) AddChannel(channel *model.Channel) *ChannelData {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if cd, ok := c.lookup[channel.Name]; ok {
		return cd
	}
	source := make(chan model.RawRecord, sourceBuffer)
	cd := &ChannelData{
		Channel:   channel,
		Broadcast: broadcast.NewBroadcastServer(channel.Name, "live", source),
		source:    source,
		lastSeen:  time.Now(),
	}
	c.lookup[channel.Name] = cd
	return cd
}

func (c *ChannelLookup) GetChannel(name string) (*ChannelData, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if cd, ok := c.lookup[name]; ok {
		return cd, nil
	}
	return nil, ErrChannelNotFound
}

// RemoveChannel closes the broadcast hub and removes the entry.
func (c *ChannelLookup) RemoveChannel(name string) {
	c.mutex.Lock()
	cd, ok := c.lookup[name]
	delete(c.lookup, name)
	c.mutex.Unlock()
	if ok {
		cd.close()
	}
}

func (c *ChannelLookup) Channels() []*model.Channel {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	ret := make([]*model.Channel, 0, len(c.lookup))
	for _, v := range c.lookup {
		ret = append(ret, v.Channel)
	}
	return ret
}

// Stale returns the names of channels without traffic for at least maxAge.
func (c *ChannelLookup) Stale(maxAge time.Duration) []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	ret := make([]string, 0)
	for name, v := range c.lookup {
		if time.Since(v.LastSeen()) >= maxAge {
			ret = append(ret, name)
		}
	}
	return ret
}

// RunWatchdog removes channels that went silent until ctx is done.
func (c *ChannelLookup) RunWatchdog(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range c.Stale(c.staleDuration) {
				log.Info("closing stale channel", log.String("channel", name))
				c.mutex.RLock()
				cb := c.onRemoveCB
				c.mutex.RUnlock()
				if cb != nil {
					cb(name)
				}
				c.RemoveChannel(name)
			}
		}
	}
}

func (c *ChannelLookup) Clear() {
	c.mutex.Lock()
	old := c.lookup
	c.lookup = make(map[string]*ChannelData)
	c.mutex.Unlock()
	for _, cd := range old {
		cd.close()
	}
}
