package live

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	// loggers and dashboards are not browsers, origin checks add nothing here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is the middleman between a websocket subscriber and the record
// stream of a channel
type client struct {
	conn     *websocket.Conn
	dataChan <-chan model.RawRecord
	quitChan chan<- struct{}
	onClose  func()
	l        *log.Logger
}

//nolint:whitespace // editor/linter issue
func newClient(
	conn *websocket.Conn,
	dataChan <-chan model.RawRecord,
	quitChan chan<- struct{},
	onClose func(),
	l *log.Logger,
) *client {
	return &client{
		conn:     conn,
		dataChan: dataChan,
		quitChan: quitChan,
		onClose:  onClose,
		l:        l,
	}
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// readPump discards inbound messages. It exists to process pong control
// frames and to notice when the subscriber goes away.
func (c *client) readPump() {
	defer func() {
		close(c.quitChan)
		c.conn.Close()
		c.onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.l.Error("failed to set read deadline", log.ErrorField(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.l.Debug("subscriber read error", log.ErrorField(err))
			}
			return
		}
	}
}

// writePump forwards records from the stream to the websocket connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case rec, ok := <-c.dataChan:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// the hub closed the stream
				//nolint:errcheck // best effort close
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := rec.Marshal()
			if err != nil {
				c.l.Error("error marshalling record", log.ErrorField(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
