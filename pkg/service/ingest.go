package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	channelrepos "github.com/echook/telemetry-manager-go/pkg/repository/channel"
	telemetryrepos "github.com/echook/telemetry-manager-go/pkg/repository/telemetry"
)

// IngestService writes incoming telemetry to the archive.
type IngestService struct {
	pool *pgxpool.Pool
}

func InitIngestService(pool *pgxpool.Pool) *IngestService {
	ingestService := IngestService{pool: pool}
	return &ingestService
}

// RegisterChannel makes sure the channel exists and returns it.
func (s *IngestService) RegisterChannel(ctx context.Context, name string) (
	*model.Channel, error,
) {
	var ret *model.Channel
	if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		ret, err = channelrepos.Ensure(ctx, tx.Conn(), name)
		return err
	}); err != nil {
		return nil, err
	}
	return ret, nil
}

// RecordPacket archives one record. A later record with the same timestamp
// replaces the stored one.
func (s *IngestService) RecordPacket(
	ctx context.Context, channel *model.Channel, rec model.RawRecord,
) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return telemetryrepos.Create(ctx, tx.Conn(), channel.ID, rec)
	})
}

// UpdateTrackName persists a track name reported by the logger.
func (s *IngestService) UpdateTrackName(
	ctx context.Context, channel *model.Channel, trackName string,
) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		num, err := channelrepos.UpdateTrackName(ctx, tx.Conn(), channel.ID, trackName)
		if err != nil {
			return err
		}
		log.Debug("updated track name",
			log.String("channel", channel.Name),
			log.String("trackName", trackName),
			log.Int("num", num))
		return nil
	})
}

// DeleteChannel removes a channel and its archived telemetry.
func (s *IngestService) DeleteChannel(ctx context.Context, channel *model.Channel) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		num, err := telemetryrepos.DeleteByChannelId(ctx, tx.Conn(), channel.ID)
		if err != nil {
			return err
		}
		log.Debug("Deleted telemetry", log.Int("num", num))

		_, err = channelrepos.DeleteById(ctx, tx.Conn(), channel.ID)
		return err
	})
}
