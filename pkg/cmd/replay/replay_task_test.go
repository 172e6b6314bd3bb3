package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestLoadRecords(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rec.jsonl")
	content := `{"time": 1000, "speed": 5.5}

{"timestamp": 2000, "speed": 6}
not json
{"speed": 7}
{"time": 3000, "speed": 7.5}
`
	assert.NilError(t, os.WriteFile(file, []byte(content), 0o600))

	records, err := loadRecords(file)
	assert.NilError(t, err)
	assert.Equal(t, len(records), 3)
	assert.Equal(t, records[0].Timestamp(), int64(1000))
	assert.Equal(t, records[1].Timestamp(), int64(2000))
	assert.Equal(t, records[2].Timestamp(), int64(3000))
}

func TestLoadRecordsMissingFile(t *testing.T) {
	_, err := loadRecords(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Assert(t, err != nil)
}

func TestPacingDelay(t *testing.T) {
	base := time.UnixMilli(10_000)
	tests := []struct {
		name    string
		task    *ReplayTask
		lastTs  time.Time
		nextTs  time.Time
		ffUntil time.Time
		want    time.Duration
	}{
		{
			name:   "first record",
			task:   NewReplayTask("car-7"),
			nextTs: base,
			want:   0,
		},
		{
			name:   "real time",
			task:   NewReplayTask("car-7"),
			lastTs: base,
			nextTs: base.Add(500 * time.Millisecond),
			want:   500 * time.Millisecond,
		},
		{
			name:   "double speed",
			task:   NewReplayTask("car-7", WithSpeed(2)),
			lastTs: base,
			nextTs: base.Add(500 * time.Millisecond),
			want:   250 * time.Millisecond,
		},
		{
			name:   "max speed",
			task:   NewReplayTask("car-7", WithSpeed(0)),
			lastTs: base,
			nextTs: base.Add(500 * time.Millisecond),
			want:   0,
		},
		{
			name:    "within fast forward window",
			task:    NewReplayTask("car-7"),
			lastTs:  base,
			nextTs:  base.Add(500 * time.Millisecond),
			ffUntil: base.Add(time.Minute),
			want:    0,
		},
		{
			name:    "past fast forward window",
			task:    NewReplayTask("car-7"),
			lastTs:  base,
			nextTs:  base.Add(500 * time.Millisecond),
			ffUntil: base.Add(100 * time.Millisecond),
			want:    500 * time.Millisecond,
		},
		{
			name:   "timestamps going backwards",
			task:   NewReplayTask("car-7"),
			lastTs: base,
			nextTs: base.Add(-time.Second),
			want:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.task.pacingDelay(tt.lastTs, tt.nextTs, tt.ffUntil), tt.want)
		})
	}
}

func TestIngestURL(t *testing.T) {
	assert.Equal(t, ingestURL("http://localhost:8080", "car-7"),
		"ws://localhost:8080/api/v1/channels/car-7/ingest")
	assert.Equal(t, ingestURL("https://telemetry.echook.org", "car-7"),
		"wss://telemetry.echook.org/api/v1/channels/car-7/ingest")
}
