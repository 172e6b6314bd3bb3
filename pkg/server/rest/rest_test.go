//nolint:thelper,errcheck,noctx // ok for this test code
package rest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aarondl/opt/null"
	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"gotest.tools/v3/assert"

	"github.com/echook/telemetry-manager-go/pkg/fetch"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/server/live"
	"github.com/echook/telemetry-manager-go/pkg/server/util/proxy/local"
	"github.com/echook/telemetry-manager-go/pkg/service"
	"github.com/echook/telemetry-manager-go/pkg/utils"
	"github.com/echook/telemetry-manager-go/testsupport/basedata"
	"github.com/echook/telemetry-manager-go/testsupport/testdb"
)

type testEnv struct {
	api    *httptest.Server
	hub    *live.Hub
	lookup *utils.ChannelLookup
	pool   *pgxpool.Pool
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	pool := testdb.InitTestDb()
	lookup := utils.NewChannelLookup()
	t.Cleanup(lookup.Clear)
	p := local.NewLocalProxy(lookup)
	hub := live.NewHub(service.InitIngestService(pool), p, lookup)
	srv := NewServer(service.InitHistoryService(pool), hub, p, opts...)
	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)
	return &testEnv{api: api, hub: hub, lookup: lookup, pool: pool}
}

func (env *testEnv) ingest(t *testing.T, ts ...int64) {
	for _, cur := range ts {
		err := env.hub.Ingest(context.Background(),
			basedata.SampleChannelName(), basedata.SampleRecord(cur))
		assert.NilError(t, err)
	}
}

func (env *testEnv) channelURL(suffix string) string {
	return fmt.Sprintf("%s/api/v1/channels/%s/%s",
		env.api.URL, basedata.SampleChannelName(), suffix)
}

func getJSON(t *testing.T, url string, target any) int {
	resp, err := http.Get(url)
	assert.NilError(t, err)
	defer resp.Body.Close()
	if target != nil && resp.StatusCode == http.StatusOK {
		assert.NilError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

//nolint:whitespace // can't make both editor and linter happy
func postRecord(
	t *testing.T,
	url string,
	rec model.RawRecord,
	decorate func(*http.Request),
) int {
	buf, err := json.Marshal(rec)
	assert.NilError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}
	resp, err := http.DefaultClient.Do(req)
	assert.NilError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.api.URL + "/healthz")
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChannelsListing(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000)

	var ret []struct {
		Name string `json:"name"`
		Live bool   `json:"live"`
	}
	status := getJSON(t, env.api.URL+"/api/v1/channels", &ret)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, len(ret))
	assert.Equal(t, basedata.SampleChannelName(), ret[0].Name)
	assert.Equal(t, true, ret[0].Live)

	env.lookup.RemoveChannel(basedata.SampleChannelName())
	ret = nil
	status = getJSON(t, env.api.URL+"/api/v1/channels", &ret)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, len(ret))
	assert.Equal(t, false, ret[0].Live)
}

func TestHistoryPaging(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000, 2000, 3000, 4000, 5000)

	page := func(num int) []model.RawRecord {
		var ret []model.RawRecord
		url := env.channelURL(
			fmt.Sprintf("history?start=0&page=%d&pageSize=2", num))
		status := getJSON(t, url, &ret)
		assert.Equal(t, http.StatusOK, status)
		return ret
	}

	records := page(1)
	assert.Equal(t, 2, len(records))
	assert.Equal(t, int64(1000), records[0].Timestamp())
	assert.Equal(t, int64(2000), records[1].Timestamp())

	records = page(3)
	assert.Equal(t, 1, len(records))
	assert.Equal(t, int64(5000), records[0].Timestamp())

	records = page(4)
	assert.Equal(t, 0, len(records))
}

func TestHistoryRange(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000, 2000, 3000, 4000, 5000)

	var records []model.RawRecord
	status := getJSON(t, env.channelURL("history?start=2000&end=4000"), &records)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, len(records))
	assert.Equal(t, int64(2000), records[0].Timestamp())
	assert.Equal(t, int64(4000), records[2].Timestamp())
}

func TestHistoryUnknownChannel(t *testing.T) {
	env := newTestEnv(t)
	status := getJSON(t, env.api.URL+"/api/v1/channels/ghost/history", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHistoryRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000)
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, env.channelURL("history?start=abc"), nil))
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, env.channelURL("history?page=0"), nil))
	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, env.channelURL("history?pageSize=-1"), nil))
}

func TestDays(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, basedata.TestTime().UnixMilli())

	var days []string
	status := getJSON(t, env.channelURL("days"), &days)
	assert.Equal(t, http.StatusOK, status)
	assert.DeepEqual(t, []string{"2026-04-28"}, days)
}

func TestDaysUnknownChannel(t *testing.T) {
	env := newTestEnv(t)
	status := getJSON(t, env.api.URL+"/api/v1/channels/ghost/days", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLatestFromLiveChannel(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000, 2000)

	var rec model.RawRecord
	status := getJSON(t, env.channelURL("latest"), &rec)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2000), rec.Timestamp())
}

func TestLatestFallsBackToArchive(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000)
	env.lookup.RemoveChannel(basedata.SampleChannelName())

	var rec model.RawRecord
	status := getJSON(t, env.channelURL("latest"), &rec)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1000), rec.Timestamp())
}

func TestLatestNoData(t *testing.T) {
	env := newTestEnv(t)
	status := getJSON(t, env.api.URL+"/api/v1/channels/ghost/latest", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIngestTokenGate(t *testing.T) {
	env := newTestEnv(t, WithIngestToken("secret"))
	url := env.channelURL("ingest")
	rec := basedata.SampleRecord(1000)

	assert.Equal(t, http.StatusUnauthorized, postRecord(t, url, rec, nil))
	assert.Equal(t, http.StatusUnauthorized,
		postRecord(t, url, rec, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer wrong")
		}))
	assert.Equal(t, http.StatusNoContent,
		postRecord(t, url, rec, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer secret")
		}))
}

func TestIngestLoggerVersionGate(t *testing.T) {
	env := newTestEnv(t, WithMinLoggerVersion("1.2.0"))
	url := env.channelURL("ingest")
	rec := basedata.SampleRecord(1000)

	assert.Equal(t, http.StatusForbidden, postRecord(t, url, rec, nil))
	assert.Equal(t, http.StatusForbidden,
		postRecord(t, url, rec, func(r *http.Request) {
			r.Header.Set(versionHeader, "1.1.9")
		}))
	assert.Equal(t, http.StatusNoContent,
		postRecord(t, url, rec, func(r *http.Request) {
			r.Header.Set(versionHeader, "1.2.0")
		}))
	assert.Equal(t, http.StatusNoContent,
		postRecord(t, url, rec, func(r *http.Request) {
			r.Header.Set(versionHeader, "v1.3.0")
		}))
}

// the API must serve the paging contract the fetch client relies on
func TestFetchClientRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t, 1000, 2000, 3000, 4000, 5000)

	client := fetch.NewClient(env.api.URL, basedata.SampleChannelName(),
		fetch.WithPageSize(2))

	records, err := client.FetchRange(context.Background(), 0, null.Val[int64]{})
	assert.NilError(t, err)
	assert.Equal(t, 5, len(records))
	assert.Equal(t, int64(1000), records[0].Timestamp())
	assert.Equal(t, int64(5000), records[4].Timestamp())

	latest, err := client.Latest(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, int64(5000), latest.Timestamp())

	missing := fetch.NewClient(env.api.URL, "ghost")
	latest, err = missing.Latest(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, latest == nil)
}
