package live

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

// HandleLive upgrades the request and streams the channel's records until
// the subscriber goes away.
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	dataChan, quitChan, err := h.proxy.SubscribeRecords(name)
	if err != nil {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	if !h.acquireSlot(name) {
		close(quitChan)
		http.Error(w, "too many clients", http.StatusTooManyRequests)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.releaseSlot(name)
		close(quitChan)
		h.l.Warn("upgrade failed", log.String("channel", name), log.ErrorField(err))
		return
	}
	h.l.Debug("live subscriber connected", log.String("channel", name))
	newClient(conn, dataChan, quitChan, func() { h.releaseSlot(name) }, h.l).start()
}

// HandleIngest accepts a single record per POST, or a continuous record
// stream when the logger asks for a websocket upgrade.
func (h *Hub) HandleIngest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	if websocket.IsWebSocketUpgrade(r) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.l.Warn("upgrade failed", log.String("channel", name), log.ErrorField(err))
			return
		}
		h.l.Debug("ingest stream connected", log.String("channel", name))
		h.serveIngestStream(r.Context(), conn, name)
		return
	}

	var raw model.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "malformed record", http.StatusBadRequest)
		return
	}
	if err := h.Ingest(r.Context(), name, raw); err != nil {
		if errors.Is(err, ErrNoTimestamp) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.l.Error("ingest failed", log.String("channel", name), log.ErrorField(err))
		http.Error(w, "could not store record", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveIngestStream reads records off the websocket until the logger
// disconnects. Bad records are dropped, archive errors do not end the
// stream.
func (h *Hub) serveIngestStream(ctx context.Context, conn *websocket.Conn, name string) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.l.Error("failed to set read deadline", log.ErrorField(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.l.Debug("ingest stream closed",
				log.String("channel", name), log.ErrorField(err))
			return
		}
		raw, pErr := model.ParseRawRecord(data)
		if pErr != nil {
			h.l.Warn("dropping malformed record",
				log.String("channel", name), log.ErrorField(pErr))
			continue
		}
		if iErr := h.Ingest(ctx, name, raw); iErr != nil {
			h.l.Warn("could not ingest record",
				log.String("channel", name), log.ErrorField(iErr))
		}
	}
}
