//nolint:whitespace //can't make both the linter and editor happy :(
package telemetry

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/repository"
)

// Create stores a record under its packet timestamp. A record for an
// already stored timestamp replaces the earlier entry.
func Create(
	ctx context.Context,
	conn repository.Querier,
	channelID uuid.UUID,
	record model.RawRecord,
) error {
	_, err := conn.Exec(ctx,
		`insert into telemetry (channel_id, ts, data) values ($1,$2,$3)
		 on conflict (channel_id, ts) do update set data=excluded.data`,
		channelID, record.Timestamp(), record)
	if err != nil {
		return err
	}
	return nil
}

// LoadRange returns records with start <= ts (and ts <= end when end > 0)
// ordered by ts. limit and offset page through large ranges.
func LoadRange(
	ctx context.Context,
	conn repository.Querier,
	channelID uuid.UUID,
	start, end int64,
	limit, offset int,
) ([]model.RawRecord, error) {
	sql := fmt.Sprintf("%s where channel_id=$1 and ts >= $2", selector)
	args := []interface{}{channelID, start}
	if end > 0 {
		sql += " and ts <= $3"
		args = append(args, end)
	}
	sql += fmt.Sprintf(" order by ts asc limit %d offset %d", limit, offset)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]model.RawRecord, 0)
	for rows.Next() {
		var item model.RawRecord
		if err := rows.Scan(&item); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// LoadDays returns the UTC calendar days for which records exist.
func LoadDays(
	ctx context.Context,
	conn repository.Querier,
	channelID uuid.UUID,
) ([]string, error) {
	rows, err := conn.Query(ctx,
		`select distinct to_char(to_timestamp(ts/1000.0) at time zone 'UTC', 'YYYY-MM-DD')
		 from telemetry where channel_id=$1 order by 1 asc`,
		channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		ret = append(ret, day)
	}
	return ret, rows.Err()
}

// LoadLatest returns the newest record, pgx.ErrNoRows when none exist.
func LoadLatest(
	ctx context.Context,
	conn repository.Querier,
	channelID uuid.UUID,
) (model.RawRecord, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where channel_id=$1 order by ts desc limit 1", selector),
		channelID)
	var item model.RawRecord
	if err := row.Scan(&item); err != nil {
		return nil, err
	}
	return item, nil
}

// deletes all entries for a channel, returns number of rows deleted.
func DeleteByChannelId(
	ctx context.Context,
	conn repository.Querier,
	channelID uuid.UUID,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"delete from telemetry where channel_id=$1", channelID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`select data from telemetry`)
