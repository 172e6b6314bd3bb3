package testdb

import (
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	tcpg "github.com/echook/telemetry-manager-go/testsupport/tcpostgres"
)

// InitTestDb hands out a pool for a migrated, empty test database. An
// external database via TESTDB_URL takes precedence over the throwaway
// container.
func InitTestDb() *pgxpool.Pool {
	var pool *pgxpool.Pool
	if os.Getenv("TESTDB_URL") != "" {
		pool = tcpg.SetupExternalTestDb()
	} else {
		pool = tcpg.SetupTestDb()
	}
	tcpg.ClearAllTables(pool)
	return pool
}
