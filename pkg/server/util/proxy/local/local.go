package local

import (
	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

// DataProxy implementation based on the local ChannelLookup
type (
	LocalProxy struct {
		proxy.EmptyProxy
		lookup *utils.ChannelLookup
		l      *log.Logger
	}
	Option func(*LocalProxy)
)

// NewLocalProxy creates a single instance fan-out over the channel lookup
func NewLocalProxy(lookup *utils.ChannelLookup, opts ...Option) *LocalProxy {
	ret := &LocalProxy{
		lookup: lookup,
		l:      log.Default().Named("proxy.local"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func WithLogger(arg *log.Logger) Option {
	return func(l *LocalProxy) {
		l.l = arg
	}
}

// the lookup already knows the channel, nothing to announce
func (l *LocalProxy) PublishChannelRegistered(cd *utils.ChannelData) error {
	return nil
}

func (l *LocalProxy) PublishChannelUnregistered(channelName string) error {
	return nil
}

// records reach local subscribers through the lookup's broadcast hub
func (l *LocalProxy) PublishRecord(channelName string, rec model.RawRecord) error {
	return nil
}

// this method is called when the watchdog detects a stale channel and deletes it
func (l *LocalProxy) DeleteChannelCallback(channelName string) {
	l.l.Debug("DeleteChannelCallback", log.String("channel", channelName))
}

func (l *LocalProxy) LiveChannels() []*model.Channel {
	return l.lookup.Channels()
}

func (l *LocalProxy) GetChannel(name string) (*model.Channel, error) {
	cd, err := l.lookup.GetChannel(name)
	if err != nil {
		return nil, proxy.ErrChannelNotFound
	}
	return cd.Channel, nil
}

//nolint:whitespace // false positive
func (l *LocalProxy) SubscribeRecords(name string) (
	d <-chan model.RawRecord,
	q chan<- struct{},
	err error,
) {
	cd, err := l.lookup.GetChannel(name)
	if err != nil {
		return nil, nil, proxy.ErrChannelNotFound
	}
	sourceChan := cd.Broadcast.Subscribe()
	quitChan := make(chan struct{})

	go func() {
		l.l.Debug("records waiting on quitChan", log.String("channel", name))
		<-quitChan
		l.l.Debug("records quitChan was closed", log.String("channel", name))
		cd.Broadcast.CancelSubscription(sourceChan)
	}()

	return sourceChan, quitChan, nil
}

func (l *LocalProxy) LatestRecord(name string) model.RawRecord {
	cd, err := l.lookup.GetChannel(name)
	if err != nil {
		return nil
	}
	return cd.Latest()
}
