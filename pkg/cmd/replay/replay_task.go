package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/config"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

// loggers emit small records, anything beyond this is a broken file
const maxLineSize = 1024 * 1024

type ReplayTask struct {
	channelName   string
	speed         int
	fastForward   time.Duration
	loggerVersion string
	conn          *websocket.Conn
}

type TaskOption func(*ReplayTask)

// WithSpeed sets the replay speed. 1 replays in real time, 0 sends the
// records as fast as possible.
func WithSpeed(arg int) TaskOption {
	return func(t *ReplayTask) {
		t.speed = arg
	}
}

// WithFastForward replays the given leading duration with max speed.
func WithFastForward(arg time.Duration) TaskOption {
	return func(t *ReplayTask) {
		t.fastForward = arg
	}
}

// WithLoggerVersion sets the version announced on connect. Servers with a
// version gate reject the replay when this is missing or too old.
func WithLoggerVersion(arg string) TaskOption {
	return func(t *ReplayTask) {
		t.loggerVersion = arg
	}
}

func NewReplayTask(channelName string, opts ...TaskOption) *ReplayTask {
	ret := &ReplayTask{channelName: channelName, speed: 1}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Replay loads the recording and streams it to the server.
func (t *ReplayTask) Replay(ctx context.Context, fileName string) error {
	records, err := loadRecords(fileName)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no usable records in file")
	}
	log.Info("Replaying recording",
		log.String("file", fileName),
		log.String("channel", t.channelName),
		log.Int("records", len(records)))

	if err = t.connect(ctx); err != nil {
		return err
	}
	defer t.conn.Close()
	go t.readPump()

	return t.sendRecords(ctx, records)
}

// loadRecords reads one record per line, skipping lines the server would
// reject anyway.
func loadRecords(fileName string) ([]model.RawRecord, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	ret := []model.RawRecord{}
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		rec, pErr := model.ParseRawRecord(data)
		if pErr != nil {
			log.Warn("skipping malformed record",
				log.Int("line", line), log.ErrorField(pErr))
			continue
		}
		if rec.Timestamp() == 0 {
			log.Warn("skipping record without timestamp", log.Int("line", line))
			continue
		}
		ret = append(ret, rec)
	}
	return ret, scanner.Err()
}

func (t *ReplayTask) connect(ctx context.Context) error {
	header := http.Header{}
	if config.Token != "" {
		header.Set("Authorization", "Bearer "+config.Token)
	}
	if t.loggerVersion != "" {
		header.Set("X-Logger-Version", t.loggerVersion)
	}
	url := ingestURL(config.URL, t.channelName)
	log.Debug("Connecting", log.String("url", url))
	//nolint:bodyclose // handshake response body is closed by the library
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			log.Error("handshake rejected",
				log.String("status", resp.Status), log.ErrorField(err))
		}
		return err
	}
	t.conn = conn
	return nil
}

// readPump discards inbound messages. It exists to process ping control
// frames and to notice when the server goes away.
func (t *ReplayTask) readPump() {
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			log.Debug("connection closed", log.ErrorField(err))
			return
		}
	}
}

//nolint:cyclop // by design
func (t *ReplayTask) sendRecords(ctx context.Context, records []model.RawRecord) error {
	ffUntil := time.Time{}
	if t.fastForward > 0 {
		ffUntil = time.UnixMilli(records[0].Timestamp()).Add(t.fastForward)
	}
	lastTs := time.Time{}
	for i, rec := range records {
		nextTs := time.UnixMilli(rec.Timestamp())
		if wait := t.pacingDelay(lastTs, nextTs, ffUntil); wait > 0 {
			log.Debug("Sleeping",
				log.Time("time", nextTs),
				log.Duration("wait", wait),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		lastTs = nextTs

		data, mErr := rec.Marshal()
		if mErr != nil {
			log.Warn("skipping record", log.Int("idx", i), log.ErrorField(mErr))
			continue
		}
		if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
		if (i+1)%1000 == 0 {
			log.Info("Progress", log.Int("sent", i+1), log.Int("total", len(records)))
		}
	}
	log.Info("Replay done", log.Int("records", len(records)))
	return nil
}

// pacingDelay computes how long to wait before sending the record with
// timestamp nextTs.
func (t *ReplayTask) pacingDelay(lastTs, nextTs, ffUntil time.Time) time.Duration {
	if lastTs.IsZero() || t.speed <= 0 {
		return 0
	}
	if !ffUntil.IsZero() && !nextTs.After(ffUntil) {
		return 0
	}
	delta := nextTs.Sub(lastTs)
	if delta <= 0 {
		return 0
	}
	return time.Duration(int(delta.Nanoseconds()) / t.speed)
}

func ingestURL(baseURL, channelName string) string {
	wsBase := strings.Replace(baseURL, "http", "ws", 1)
	return wsBase + "/api/v1/channels/" + channelName + "/ingest"
}
