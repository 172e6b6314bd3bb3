package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/utils/broadcast"
)

// we have one broadcaster per channel which subscribes to the nats subject.
// records are distributed within this instance via our own broadcast server
type recordBroadcaster struct {
	channelName string
	l           *log.Logger
	bs          broadcast.BroadcastServer[model.RawRecord]
	quitChan    chan struct{}
}

//nolint:whitespace // editor/linter issue
func createRecordBroadcaster(
	channelName string,
	conn *nats.Conn,
	l *log.Logger,
) *recordBroadcaster {
	logger := l.Named("bcst")
	dataChan := make(chan model.RawRecord)
	quitChan := make(chan struct{})
	bs := broadcast.NewBroadcastServer(channelName, "nats.records", dataChan)
	subj := fmt.Sprintf("telemetry.%s", channelName)
	sub, err := conn.Subscribe(subj, func(msg *nats.Msg) {
		rec, uErr := model.ParseRawRecord(msg.Data)
		if uErr != nil {
			logger.Error("error unmarshalling record",
				log.String("channel", channelName),
				log.ErrorField(uErr))
			return
		}
		logger.Debug("received record", log.String("channel", channelName))
		dataChan <- rec
	})
	if err != nil {
		logger.Error("error subscribing to records",
			log.String("subject", subj),
			log.ErrorField(err))
		return nil
	}
	go func() {
		logger.Debug("waiting on quitChan", log.String("channel", channelName))
		<-quitChan
		logger.Debug("quit received for nats subscr", log.String("channel", channelName))
		bs.Close()

		if sub != nil && sub.IsValid() {
			if err := sub.Unsubscribe(); err != nil {
				logger.Debug("error unsubscribing",
					log.String("sub", sub.Subject),
					log.ErrorField(err))
			} else {
				logger.Debug("unsubscribed",
					log.String("sub", sub.Subject),
				)
			}
		}
	}()
	return &recordBroadcaster{
		channelName: channelName,
		l:           logger,
		bs:          bs,
		quitChan:    quitChan,
	}
}

//nolint:whitespace // editor/linter issue
func (rb *recordBroadcaster) createChannels() (
	dataChan <-chan model.RawRecord,
	quitChan chan struct{},
) {
	dataChan = rb.bs.Subscribe()
	quitChan = make(chan struct{})

	go func() {
		rb.l.Debug("records waiting on quitChan", log.String("channel", rb.channelName))
		<-quitChan
		rb.l.Debug("records quitChan was closed", log.String("channel", rb.channelName))
		// the broadcaster may be already closed if the channel was unregistered
		if bs := rb.bs; bs != nil {
			bs.CancelSubscription(dataChan)
		}
	}()
	return dataChan, quitChan
}

func (rb *recordBroadcaster) close() {
	close(rb.quitChan)
}
