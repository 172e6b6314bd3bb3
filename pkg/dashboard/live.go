package dashboard

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

// dialer abstracts the websocket handshake so tests can inject streams.
type dialer interface {
	DialContext(ctx context.Context, urlStr string) (liveConn, error)
}

type liveConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type defaultDialer struct{}

func (defaultDialer) DialContext(ctx context.Context, urlStr string) (liveConn, error) {
	//nolint:bodyclose // handshake response body is closed by the library
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Run streams live records into the processor until ctx is canceled,
// reconnecting with exponential backoff when the stream drops.
func (d *Dashboard) Run(ctx context.Context) error {
	delay := d.reconnectMin
	for {
		count, err := d.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if count > 0 {
			delay = d.reconnectMin
		}
		if err != nil {
			d.log.Warn("live stream interrupted",
				log.ErrorField(err), log.String("retryIn", delay.String()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, d.reconnectMax)
	}
}

func (d *Dashboard) stream(ctx context.Context) (int, error) {
	conn, err := d.dialer.DialContext(ctx, d.liveURL)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// unblocks the read when ctx is canceled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	d.log.Debug("live stream connected", log.String("url", d.liveURL))
	count := 0
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return count, err
		}
		record, err := model.ParseRawRecord(payload)
		if err != nil {
			d.log.Warn("discarding malformed live record", log.ErrorField(err))
			continue
		}
		d.processor.ProcessLive(record)
		count++
	}
}
