package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

type (
	NatsProxy struct {
		proxy.EmptyProxy
		ctx  context.Context
		conn *nats.Conn
		// holds channels over all cluster members
		channels map[string]*channelContainer
		// holds channels ingested by the local cluster member
		localChannels  map[string]*utils.ChannelData
		l              *log.Logger
		mutex          sync.Mutex
		onUnregisterCB func(channelName string)
		subRegister    *nats.Subscription
		subUnregister  *nats.Subscription
		kv             jetstream.KeyValue
		globalChannels *GlobalChannels
	}
	Option           func(*NatsProxy)
	channelContainer struct {
		channel *model.Channel
		bcst    *recordBroadcaster
	}
)

func NewNatsProxy(conn *nats.Conn, opts ...Option) (*NatsProxy, error) {
	ret := &NatsProxy{
		conn:          conn,
		ctx:           context.Background(),
		channels:      make(map[string]*channelContainer),
		localChannels: make(map[string]*utils.ChannelData),
		l:             log.Default().Named("nats"),
		mutex:         sync.Mutex{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	if err := ret.setupSubscriptions(); err != nil {
		return nil, err
	}
	if err := ret.setupKV(); err != nil {
		return nil, err
	}
	if err := ret.setupGlobalChannels(); err != nil {
		return nil, err
	}

	return ret, nil
}

func WithContext(ctx context.Context) Option {
	return func(n *NatsProxy) {
		n.ctx = ctx
	}
}

func WithLogger(l *log.Logger) Option {
	return func(n *NatsProxy) {
		n.l = l
	}
}

func (n *NatsProxy) Close() {
	n.conn.Close()
}

// this method is called when the watchdog detects a stale channel and deletes it
//
//nolint:errcheck // by design
func (n *NatsProxy) DeleteChannelCallback(channelName string) {
	n.PublishChannelUnregistered(channelName)
}

func (n *NatsProxy) SetOnUnregisterCB(cb func(channelName string)) {
	n.onUnregisterCB = cb
}

func (n *NatsProxy) PublishChannelRegistered(cd *utils.ChannelData) error {
	data, err := json.Marshal(cd.Channel)
	if err != nil {
		return err
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.localChannels[cd.Channel.Name] = cd
	n.globalChannels.RegisterChannel(cd.Channel)
	return n.conn.Publish("channel.registered", data)
}

func (n *NatsProxy) PublishChannelUnregistered(channelName string) error {
	n.globalChannels.UnregisterChannel(channelName)
	return n.conn.Publish("channel.unregistered", []byte(channelName))
}

// PublishRecord relays a record to all cluster members and keeps the most
// recent one in the KV store for late joiners.
func (n *NatsProxy) PublishRecord(channelName string, rec model.RawRecord) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	if err := n.conn.Publish(fmt.Sprintf("telemetry.%s", channelName), data); err != nil {
		return err
	}
	rev, err := n.kv.Put(
		context.Background(),
		fmt.Sprintf("latest.%s", channelName),
		data)
	n.l.Debug("latest put",
		log.String("key", fmt.Sprintf("latest.%s", channelName)),
		log.Int("dataLen", len(data)),
		log.ErrorField(err), log.Uint64("rev", rev))
	return err
}

func (n *NatsProxy) LiveChannels() []*model.Channel {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	channels := make([]*model.Channel, 0, len(n.channels))
	for _, c := range n.channels {
		channels = append(channels, c.channel)
	}
	return channels
}

func (n *NatsProxy) GetChannel(name string) (*model.Channel, error) {
	if c, err := n.getChannel(name); err != nil {
		return nil, err
	} else {
		return c.channel, nil
	}
}

//nolint:whitespace,gocritic // false positive
func (n *NatsProxy) SubscribeRecords(name string) (
	d <-chan model.RawRecord,
	q chan<- struct{},
	err error,
) {
	if c, err := n.getChannel(name); err != nil {
		return nil, nil, err
	} else if c.bcst == nil {
		return nil, nil, fmt.Errorf("no broadcaster for channel %s", name)
	} else {
		dataChan, quitChan := c.bcst.createChannels()
		return dataChan, quitChan, nil
	}
}

func (n *NatsProxy) LatestRecord(name string) model.RawRecord {
	entry, err := n.kv.Get(
		context.Background(),
		fmt.Sprintf("latest.%s", name))
	if err != nil {
		n.l.Debug("no latest record", log.String("channel", name), log.ErrorField(err))
		return nil
	}
	rec, pErr := model.ParseRawRecord(entry.Value())
	if pErr != nil {
		n.l.Error("error parsing latest record", log.ErrorField(pErr))
		return nil
	}
	return rec
}

func (n *NatsProxy) getChannel(name string) (*channelContainer, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if ret, ok := n.channels[name]; ok {
		return ret, nil
	}
	return nil, proxy.ErrChannelNotFound
}

func (n *NatsProxy) setupSubscriptions() error {
	var err error
	if n.subRegister, err = n.conn.Subscribe("channel.registered",
		func(msg *nats.Msg) { n.handleIncomingChannelRegistered(msg) },
	); err != nil {
		return err
	}
	if n.subUnregister, err = n.conn.Subscribe("channel.unregistered",
		func(msg *nats.Msg) { n.handleIncomingChannelUnregistered(msg) },
	); err != nil {
		return err
	}
	return nil
}

func (n *NatsProxy) handleIncomingChannelRegistered(msg *nats.Msg) {
	var channel model.Channel
	if uErr := json.Unmarshal(msg.Data, &channel); uErr != nil {
		n.l.Error("error unmarshalling channel.registered", log.ErrorField(uErr))
		return
	}
	n.l.Debug("received channel registered", log.String("channel", channel.Name))
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.channels[channel.Name] = &channelContainer{
		channel: &channel,
		bcst:    createRecordBroadcaster(channel.Name, n.conn, n.l),
	}
}

func (n *NatsProxy) handleIncomingChannelUnregistered(msg *nats.Msg) {
	name := string(msg.Data)
	n.l.Debug("received channel unregistered", log.String("channel", name))
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.onUnregisterCB != nil {
		n.onUnregisterCB(name)
	}

	// cleanup local broadcasters
	if c, ok := n.channels[name]; ok && c.bcst != nil {
		c.bcst.close()
	}
	delete(n.channels, name)

	delete(n.localChannels, name)
}

func (n *NatsProxy) setupKV() error {
	var js jetstream.JetStream
	var err error
	if js, err = jetstream.New(n.conn); err != nil {
		return err
	}
	n.kv, err = js.CreateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket: "echook-telemetry",
		TTL:    time.Hour * 24,
	})
	return err
}

// this will load all live channels from the NATS KV store and add them to the
// channels map. This is called during startup and ensures this instance can
// provide data for all live channels
func (n *NatsProxy) setupGlobalChannels() (err error) {
	if n.globalChannels, err = NewGlobalChannels(n.kv, n.l.Named("global")); err != nil {
		return err
	}
	var curChannels map[string]*model.Channel
	if curChannels, err = n.globalChannels.CurrentLiveChannels(); err != nil {
		return err
	}
	for k, v := range curChannels {
		n.channels[k] = &channelContainer{
			channel: v,
			bcst:    createRecordBroadcaster(v.Name, n.conn, n.l),
		}
	}
	return nil
}
