package proxy

import (
	"errors"
	"fmt"

	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

type (
	// PublishProxy is the interface for distributing data arriving from the
	// data loggers. The records are kept in their raw wire form, scaling is
	// a client side concern.
	PublishProxy interface {
		// handles the registration of a new channel
		PublishChannelRegistered(cd *utils.ChannelData) error
		// handles the unregistration of a channel
		PublishChannelUnregistered(channelName string) error
		// this method is used by the instance processing the incoming data
		// the purpose is to distribute the records to all subscribers
		PublishRecord(channelName string, rec model.RawRecord) error
	}

	DataProxy interface {
		PublishProxy
		LiveChannels() []*model.Channel

		// returns the channel for the given name
		GetChannel(name string) (*model.Channel, error)

		// subscribe to the record stream of a channel
		// the returned channel is the provider for outgoing live messages
		SubscribeRecords(name string) (
			dataChan <-chan model.RawRecord,
			quitChan chan<- struct{},
			err error,
		)
		// the most recent record seen on a channel, nil if none
		LatestRecord(name string) model.RawRecord
		// performs cleanup
		Close()
	}

	EmptyProxy struct{}
)

var ErrChannelNotFound = errors.New("channel not found")

func (e EmptyProxy) PublishChannelRegistered(cd *utils.ChannelData) error {
	return fmt.Errorf("PublishChannelRegistered not implemented")
}

func (e EmptyProxy) PublishChannelUnregistered(channelName string) error {
	return fmt.Errorf("PublishChannelUnregistered not implemented")
}

func (e EmptyProxy) PublishRecord(channelName string, rec model.RawRecord) error {
	return fmt.Errorf("PublishRecord not implemented")
}

func (e EmptyProxy) GetChannel(name string) (*model.Channel, error) {
	return nil, fmt.Errorf("GetChannel not implemented")
}

//nolint:whitespace // false positive
func (e EmptyProxy) SubscribeRecords(name string) (
	d <-chan model.RawRecord,
	q chan<- struct{},
	err error,
) {
	return nil, nil, fmt.Errorf("SubscribeRecords not implemented")
}

func (e EmptyProxy) LatestRecord(name string) model.RawRecord {
	return nil
}

func (e EmptyProxy) LiveChannels() []*model.Channel {
	return nil
}

func (e EmptyProxy) Close() {
}
