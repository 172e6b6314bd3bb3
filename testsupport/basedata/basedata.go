package basedata

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echook/telemetry-manager-go/pkg/model"
	channelrepos "github.com/echook/telemetry-manager-go/pkg/repository/channel"
	telemetryrepos "github.com/echook/telemetry-manager-go/pkg/repository/telemetry"
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2026-04-28T11:10:12Z")
	return t
}

func SampleChannelName() string {
	return "car-7"
}

// SampleRecord is a full logger packet as it arrives on the wire.
func SampleRecord(ts int64) model.RawRecord {
	return model.RawRecord{
		"time":         float64(ts),
		"speed":        8.4,
		"voltage":      24.1,
		"voltageLower": 11.9,
		"current":      14.2,
		"ampHours":     2.1,
		"rpm":          1800.0,
		"throttle":     80.0,
		"temp1":        31.5,
		"temp2":        28.0,
		"lat":          52.6308,
		"lon":          -1.1315,
	}
}

// SampleLapRecord carries the lap summary emitted at a lap boundary.
func SampleLapRecord(ts int64, lap int, lapTime float64) model.RawRecord {
	record := SampleRecord(ts)
	record["currentLap"] = float64(lap)
	record["lapVolts"] = 23.5
	record["lapAmps"] = 10.1
	record["lapRPM"] = 1800.0
	record["lapSpeed"] = 8.2
	record["lapAmpHours"] = 0.4
	record["lapTime"] = lapTime
	record["lapEfficiency"] = 55.0
	record["trackName"] = "Goodwood"
	return record
}

// CreateSampleChannel registers the sample channel with a few records.
func CreateSampleChannel(db *pgxpool.Pool) *model.Channel {
	ctx := context.Background()
	var sampleChannel *model.Channel
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		var err error
		if sampleChannel, err = channelrepos.Ensure(ctx, tx, SampleChannelName()); err != nil {
			return err
		}
		base := TestTime().UnixMilli()
		for i := 0; i < 3; i++ {
			record := SampleRecord(base + int64(i)*1000)
			if err = telemetryrepos.Create(ctx, tx, sampleChannel.ID, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("createSampleChannel: %v\n", err)
	}

	return sampleChannel
}
