package service

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echook/telemetry-manager-go/pkg/model"
	channelrepos "github.com/echook/telemetry-manager-go/pkg/repository/channel"
	telemetryrepos "github.com/echook/telemetry-manager-go/pkg/repository/telemetry"
)

// HistoryService serves archived telemetry.
type HistoryService struct {
	pool *pgxpool.Pool
}

func InitHistoryService(pool *pgxpool.Pool) *HistoryService {
	historyService := HistoryService{pool: pool}
	return &historyService
}

func (s *HistoryService) Channels(ctx context.Context) ([]*model.Channel, error) {
	return channelrepos.LoadAll(ctx, s.pool)
}

func (s *HistoryService) Channel(ctx context.Context, name string) (
	*model.Channel, error,
) {
	return channelrepos.LoadByName(ctx, s.pool, name)
}

// LoadRange returns archived records of a channel in ascending timestamp
// order. end <= 0 means no upper bound.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *HistoryService) LoadRange(
	ctx context.Context,
	name string,
	start, end int64,
	limit, offset int,
) ([]model.RawRecord, error) {
	channel, err := channelrepos.LoadByName(ctx, s.pool, name)
	if err != nil {
		return nil, err
	}
	return telemetryrepos.LoadRange(ctx, s.pool, channel.ID, start, end, limit, offset)
}

// Days returns the UTC calendar days for which records exist.
func (s *HistoryService) Days(ctx context.Context, name string) ([]string, error) {
	channel, err := channelrepos.LoadByName(ctx, s.pool, name)
	if err != nil {
		return nil, err
	}
	return telemetryrepos.LoadDays(ctx, s.pool, channel.ID)
}

// Latest returns the newest archived record of a channel.
func (s *HistoryService) Latest(ctx context.Context, name string) (
	model.RawRecord, error,
) {
	channel, err := channelrepos.LoadByName(ctx, s.pool, name)
	if err != nil {
		return nil, err
	}
	return telemetryrepos.LoadLatest(ctx, s.pool, channel.ID)
}
