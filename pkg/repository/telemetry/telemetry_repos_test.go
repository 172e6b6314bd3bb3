//nolint:dupl,funlen,errcheck //ok for this test code
package telemetry

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gotest.tools/v3/assert"

	"github.com/echook/telemetry-manager-go/pkg/model"
	channelrepos "github.com/echook/telemetry-manager-go/pkg/repository/channel"
	"github.com/echook/telemetry-manager-go/testsupport/basedata"
	"github.com/echook/telemetry-manager-go/testsupport/testdb"
)

// seeds a channel with records at ts 1000..5000
func setupSampleData(db *pgxpool.Pool) *model.Channel {
	ctx := context.Background()
	var sample *model.Channel
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		var err error
		if sample, err = channelrepos.Ensure(ctx, tx, basedata.SampleChannelName()); err != nil {
			return err
		}
		for ts := int64(1000); ts <= 5000; ts += 1000 {
			if err = Create(ctx, tx, sample.ID, basedata.SampleRecord(ts)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("setupSampleData: %v\n", err)
	}
	return sample
}

func timestamps(records []model.RawRecord) []int64 {
	ret := make([]int64, len(records))
	for i, record := range records {
		ret[i] = record.Timestamp()
	}
	return ret
}

func TestCreateReplacesSameTimestamp(t *testing.T) {
	pool := testdb.InitTestDb()
	sample := setupSampleData(pool)
	ctx := context.Background()

	replacement := basedata.SampleRecord(3000)
	replacement["speed"] = 99.0
	assert.NilError(t, Create(ctx, pool, sample.ID, replacement))

	got, err := LoadRange(ctx, pool, sample.ID, 3000, 3000, 10, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0]["speed"], 99.0)

	// still 5 records overall
	all, err := LoadRange(ctx, pool, sample.ID, 0, 0, 100, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(all), 5)
}

func TestLoadRange(t *testing.T) {
	pool := testdb.InitTestDb()
	sample := setupSampleData(pool)
	ctx := context.Background()

	type args struct {
		start, end    int64
		limit, offset int
	}
	tests := []struct {
		name string
		args args
		want []int64
	}{
		{
			name: "full range first page",
			args: args{start: 0, end: 0, limit: 2, offset: 0},
			want: []int64{1000, 2000},
		},
		{
			name: "full range second page",
			args: args{start: 0, end: 0, limit: 2, offset: 2},
			want: []int64{3000, 4000},
		},
		{
			name: "full range short page",
			args: args{start: 0, end: 0, limit: 2, offset: 4},
			want: []int64{5000},
		},
		{
			name: "bounded window",
			args: args{start: 2000, end: 4000, limit: 100, offset: 0},
			want: []int64{2000, 3000, 4000},
		},
		{
			name: "empty window",
			args: args{start: 6000, end: 0, limit: 100, offset: 0},
			want: []int64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadRange(ctx, pool, sample.ID,
				tt.args.start, tt.args.end, tt.args.limit, tt.args.offset)
			assert.NilError(t, err)
			assert.DeepEqual(t, timestamps(got), tt.want)
		})
	}
}

func TestLoadRangeRoundtripsRecord(t *testing.T) {
	pool := testdb.InitTestDb()
	sample := setupSampleData(pool)
	ctx := context.Background()

	got, err := LoadRange(ctx, pool, sample.ID, 1000, 1000, 1, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(got), 1)
	assert.DeepEqual(t, got[0], basedata.SampleRecord(1000))
}

func TestLoadDays(t *testing.T) {
	pool := testdb.InitTestDb()
	ctx := context.Background()
	sample, err := channelrepos.Ensure(ctx, pool, basedata.SampleChannelName())
	assert.NilError(t, err)

	// two records on 2026-04-28, one on 2026-04-29 (UTC)
	day1 := time.Date(2026, 4, 28, 10, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2026, 4, 29, 10, 0, 0, 0, time.UTC).UnixMilli()
	assert.NilError(t, Create(ctx, pool, sample.ID, basedata.SampleRecord(day1)))
	assert.NilError(t, Create(ctx, pool, sample.ID, basedata.SampleRecord(day1+1000)))
	assert.NilError(t, Create(ctx, pool, sample.ID, basedata.SampleRecord(day2)))

	days, err := LoadDays(ctx, pool, sample.ID)
	assert.NilError(t, err)
	assert.DeepEqual(t, days, []string{"2026-04-28", "2026-04-29"})
}

func TestLoadLatest(t *testing.T) {
	pool := testdb.InitTestDb()
	sample := setupSampleData(pool)
	ctx := context.Background()

	got, err := LoadLatest(ctx, pool, sample.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.Timestamp(), int64(5000))
}

func TestDeleteByChannelId(t *testing.T) {
	pool := testdb.InitTestDb()
	sample := setupSampleData(pool)
	ctx := context.Background()

	count, err := DeleteByChannelId(ctx, pool, sample.ID)
	assert.NilError(t, err)
	assert.Equal(t, count, 5)

	_, err = LoadLatest(ctx, pool, sample.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
