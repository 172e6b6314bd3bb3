//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/echook/telemetry-manager-go/pkg/db/migrate"
	database "github.com/echook/telemetry-manager-go/pkg/db/postgres"
)

// create a pg connection pool for the telemetry testdatabase
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		log.Fatal(err)
	}
	container, err := SetupPostgres(ctx,
		WithPort(port.Port()),
		WithInitialDatabase("postgres", "password", "postgres"),
		WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
		WithName("telemetry-manager-test"),
	)
	if err != nil {
		log.Fatal(err)
	}
	containerPort, _ := container.MappedPort(ctx, port)
	host, _ := container.Host(ctx)
	dbUrl := fmt.Sprintf("postgresql://postgres:password@%s:%s/postgres",
		host, containerPort.Port())

	return poolForUrl(dbUrl)
}

// create a pg connection pool for an already running database,
// configured via TESTDB_URL
func SetupExternalTestDb() *pgxpool.Pool {
	return poolForUrl(os.Getenv("TESTDB_URL"))
}

func poolForUrl(dbUrl string) *pgxpool.Pool {
	if err := migrate.MigrateDb(dbUrl); err != nil {
		log.Fatal(err)
	}
	return database.InitWithUrl(dbUrl)
}

func ClearChannelTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from channel")
}

func ClearTelemetryTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from telemetry")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearTelemetryTable(pool)
	ClearChannelTable(pool)
}
