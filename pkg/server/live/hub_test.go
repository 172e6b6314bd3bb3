//nolint:thelper,funlen,errcheck // ok for this test code
package live

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"gotest.tools/v3/assert"

	"github.com/echook/telemetry-manager-go/pkg/model"
	channelrepos "github.com/echook/telemetry-manager-go/pkg/repository/channel"
	telemetryrepos "github.com/echook/telemetry-manager-go/pkg/repository/telemetry"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy/local"
	"github.com/echook/telemetry-manager-go/pkg/service"
	"github.com/echook/telemetry-manager-go/pkg/utils"
	"github.com/echook/telemetry-manager-go/testsupport/basedata"
	"github.com/echook/telemetry-manager-go/testsupport/testdb"
)

func newTestHub(t *testing.T, opts ...Option) (*Hub, *pgxpool.Pool, *local.LocalProxy) {
	pool := testdb.InitTestDb()
	lookup := utils.NewChannelLookup()
	t.Cleanup(lookup.Clear)
	p := local.NewLocalProxy(lookup)
	hub := NewHub(service.InitIngestService(pool), p, lookup, opts...)
	return hub, pool, p
}

func testRouter(hub *Hub) http.Handler {
	router := chi.NewRouter()
	router.Route("/api/v1/channels/{channel}", func(r chi.Router) {
		r.Get("/live", hub.HandleLive)
		r.Post("/ingest", hub.HandleIngest)
		r.Get("/ingest", hub.HandleIngest)
	})
	return router
}

func wsURL(server *httptest.Server, suffix string) string {
	return strings.Replace(server.URL, "http", "ws", 1) + suffix
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestIngestRegistersChannelAndArchives(t *testing.T) {
	hub, pool, _ := newTestHub(t)
	ctx := context.Background()

	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleRecord(1000)))
	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleRecord(2000)))

	channel, err := channelrepos.LoadByName(ctx, pool, "car-7")
	assert.NilError(t, err)
	records, err := telemetryrepos.LoadRange(ctx, pool, channel.ID, 0, 0, 10, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(records), 2)
}

func TestIngestCoercesWireFormat(t *testing.T) {
	hub, pool, _ := newTestHub(t)
	ctx := context.Background()

	raw := model.RawRecord{"timestamp": "3000", "speed": "8.4", "Lat": "50.1"}
	assert.NilError(t, hub.Ingest(ctx, "car-7", raw))

	channel, err := channelrepos.LoadByName(ctx, pool, "car-7")
	assert.NilError(t, err)
	records, err := telemetryrepos.LoadRange(ctx, pool, channel.ID, 3000, 3000, 10, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0]["time"], float64(3000))
	assert.Equal(t, records[0]["speed"], 8.4)
	assert.Equal(t, records[0]["lat"], 50.1)
}

func TestIngestRejectsRecordWithoutTimestamp(t *testing.T) {
	hub, _, _ := newTestHub(t)

	err := hub.Ingest(context.Background(), "car-7", model.RawRecord{"speed": 8.4})
	assert.ErrorIs(t, err, ErrNoTimestamp)
}

func TestIngestUpdatesTrackName(t *testing.T) {
	hub, pool, _ := newTestHub(t)
	ctx := context.Background()

	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleLapRecord(60000, 1, 55.1)))

	channel, err := channelrepos.LoadByName(ctx, pool, "car-7")
	assert.NilError(t, err)
	assert.Equal(t, channel.TrackName, "Goodwood")
}

func TestIngestFansOutToSubscribers(t *testing.T) {
	hub, _, p := newTestHub(t)
	ctx := context.Background()

	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleRecord(1000)))
	dataChan, quitChan, err := p.SubscribeRecords("car-7")
	assert.NilError(t, err)
	defer close(quitChan)

	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleRecord(2000)))
	select {
	case rec := <-dataChan:
		assert.Equal(t, rec.Timestamp(), int64(2000))
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the record")
	}
}

func TestHandleIngestPost(t *testing.T) {
	hub, pool, _ := newTestHub(t)
	server := httptest.NewServer(testRouter(hub))
	defer server.Close()

	body, err := basedata.SampleRecord(1000).Marshal()
	assert.NilError(t, err)
	//nolint:noctx // ok for test
	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/channels/car-7/ingest", server.URL),
		"application/json",
		strings.NewReader(string(body)))
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNoContent)

	channel, err := channelrepos.LoadByName(context.Background(), pool, "car-7")
	assert.NilError(t, err)
	latest, err := telemetryrepos.LoadLatest(context.Background(), pool, channel.ID)
	assert.NilError(t, err)
	assert.Equal(t, latest.Timestamp(), int64(1000))
}

func TestHandleIngestPostRejectsBadRecords(t *testing.T) {
	hub, _, _ := newTestHub(t)
	server := httptest.NewServer(testRouter(hub))
	defer server.Close()

	post := func(body string) int {
		//nolint:noctx // ok for test
		resp, err := http.Post(
			fmt.Sprintf("%s/api/v1/channels/car-7/ingest", server.URL),
			"application/json",
			strings.NewReader(body))
		assert.NilError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, post("not json"), http.StatusBadRequest)
	assert.Equal(t, post(`{"speed": 8.4}`), http.StatusBadRequest)
}

func TestHandleIngestStream(t *testing.T) {
	hub, pool, _ := newTestHub(t)
	server := httptest.NewServer(testRouter(hub))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(server, "/api/v1/channels/car-7/ingest"), nil)
	assert.NilError(t, err)
	defer conn.Close()

	for ts := int64(1000); ts <= 2000; ts += 1000 {
		data, mErr := basedata.SampleRecord(ts).Marshal()
		assert.NilError(t, mErr)
		assert.NilError(t, conn.WriteMessage(websocket.TextMessage, data))
	}

	waitFor(t, func() bool {
		channel, lErr := channelrepos.LoadByName(context.Background(), pool, "car-7")
		if lErr != nil {
			return false
		}
		records, lErr := telemetryrepos.LoadRange(
			context.Background(), pool, channel.ID, 0, 0, 10, 0)
		return lErr == nil && len(records) == 2
	})
}

func TestHandleLiveStreamsRecords(t *testing.T) {
	hub, _, _ := newTestHub(t)
	server := httptest.NewServer(testRouter(hub))
	defer server.Close()
	ctx := context.Background()

	// channel becomes known with the first record
	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleRecord(1000)))

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(server, "/api/v1/channels/car-7/live"), nil)
	assert.NilError(t, err)
	defer conn.Close()

	assert.NilError(t, hub.Ingest(ctx, "car-7", basedata.SampleRecord(2000)))

	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	assert.NilError(t, err)
	var rec model.RawRecord
	assert.NilError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, rec.Timestamp(), int64(2000))
}

func TestHandleLiveUnknownChannel(t *testing.T) {
	hub, _, _ := newTestHub(t)
	server := httptest.NewServer(testRouter(hub))
	defer server.Close()

	//nolint:bodyclose // resp body is closed by the dialer
	_, resp, err := websocket.DefaultDialer.Dial(
		wsURL(server, "/api/v1/channels/unknown/live"), nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestHandleLiveLimitsClients(t *testing.T) {
	hub, _, _ := newTestHub(t, WithMaxClientsPerChannel(1))
	server := httptest.NewServer(testRouter(hub))
	defer server.Close()

	assert.NilError(t, hub.Ingest(context.Background(), "car-7", basedata.SampleRecord(1000)))

	first, _, err := websocket.DefaultDialer.Dial(
		wsURL(server, "/api/v1/channels/car-7/live"), nil)
	assert.NilError(t, err)
	defer first.Close()

	//nolint:bodyclose // resp body is closed by the dialer
	_, resp, err := websocket.DefaultDialer.Dial(
		wsURL(server, "/api/v1/channels/car-7/live"), nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, resp.StatusCode, http.StatusTooManyRequests)
}
