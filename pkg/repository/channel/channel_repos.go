//nolint:whitespace //can't make both the linter and editor happy :(
package channel

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/repository"
)

func Create(ctx context.Context, conn repository.Querier, channel *model.Channel) error {
	_, err := conn.Exec(ctx,
		"insert into channel (id, name, track_name) values ($1,$2,$3)",
		channel.ID, channel.Name, channel.TrackName)
	if err != nil {
		return err
	}
	return nil
}

// Ensure returns the channel with the given name, creating it on first use.
func Ensure(
	ctx context.Context,
	conn repository.Querier,
	name string,
) (*model.Channel, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	row := conn.QueryRow(ctx,
		`insert into channel (id, name) values ($1,$2)
		 on conflict (name) do update set name=excluded.name
		 returning `+columns,
		id, name)
	var item model.Channel
	if err := scan(&item, row); err != nil {
		return nil, err
	}
	return &item, nil
}

func LoadByName(
	ctx context.Context,
	conn repository.Querier,
	name string,
) (*model.Channel, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where name=$1", selector), name)
	var item model.Channel
	if err := scan(&item, row); err != nil {
		return nil, err
	}
	return &item, nil
}

func LoadAll(
	ctx context.Context,
	conn repository.Querier,
) ([]*model.Channel, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s order by name asc", selector))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*model.Channel, 0)
	for rows.Next() {
		var item model.Channel
		if err := scan(&item, rows); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, rows.Err()
}

// UpdateTrackName stores the track name reported by the logger, returns
// number of rows updated.
func UpdateTrackName(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
	trackName string,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"update channel set track_name=$1 where id=$2", trackName, id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteById(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from channel where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const (
	columns  = string(`id, name, track_name, created_at`)
	selector = "select " + columns + " from channel"
)

func scan(e *model.Channel, row pgx.Row) error {
	return row.Scan(&e.ID, &e.Name, &e.TrackName, &e.CreatedAt)
}
