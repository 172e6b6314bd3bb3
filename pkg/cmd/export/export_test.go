package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/echook/telemetry-manager-go/pkg/model"
)

func TestWriteCSV(t *testing.T) {
	records := []model.RawRecord{
		{"time": 1000.0, "speed": 5.5, "voltage": "24.2"},
		{"time": 2000.0, "speed": 6.0, "temp1": 30.25, "trackName": "Goodwood"},
	}
	var buf bytes.Buffer
	assert.NilError(t, writeCSV(&buf, records))

	got, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	assert.NilError(t, err)
	want := [][]string{
		{"time", "speed", "temp1", "voltage", "trackName"},
		{"1000", "5.5", "", "24.2", ""},
		{"2000", "6", "30.25", "", "Goodwood"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected CSV output: %s", diff)
	}
}

func TestWriteCSVOmitsTrackNameColumn(t *testing.T) {
	records := []model.RawRecord{
		{"time": 1000.0, "speed": 5.5},
	}
	var buf bytes.Buffer
	assert.NilError(t, writeCSV(&buf, records))

	got, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	assert.NilError(t, err)
	want := [][]string{
		{"time", "speed"},
		{"1000", "5.5"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected CSV output: %s", diff)
	}
}

func TestParseTimeArg(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    int64
		wantErr bool
	}{
		{
			name: "epoch millis",
			arg:  "1714295412000",
			want: 1714295412000,
		},
		{
			name: "rfc3339",
			arg:  "2026-04-28T11:10:12Z",
			want: time.Date(2026, 4, 28, 11, 10, 12, 0, time.UTC).UnixMilli(),
		},
		{
			name: "date only",
			arg:  "2026-04-28",
			want: time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
		{
			name:    "garbage",
			arg:     "yesterday",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimeArg(tt.arg)
			if tt.wantErr {
				assert.Assert(t, err != nil)
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
		})
	}
}
