// Package testutil provides test helpers including container management.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nscott/gridlock/internal/config"
	"github.com/nscott/gridlock/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: All game tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id            BIGSERIAL    PRIMARY KEY,
			username      VARCHAR(64)  NOT NULL UNIQUE,
			password_hash TEXT         NOT NULL,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts (username);

		CREATE TABLE IF NOT EXISTS game_states (
			player_id  BIGINT        PRIMARY KEY REFERENCES accounts (id) ON DELETE CASCADE,
			room       VARCHAR(64)   NOT NULL,
			mission    VARCHAR(64)   NOT NULL,
			money      NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (money >= 0),
			experience BIGINT        NOT NULL DEFAULT 0 CHECK (experience >= 0),
			level      INTEGER       NOT NULL DEFAULT 1 CHECK (level >= 1),
			created_at TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS inventory_items (
			player_id  BIGINT      NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
			item_id    VARCHAR(64) NOT NULL,
			quantity   INTEGER     NOT NULL CHECK (quantity >= 1),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (player_id, item_id)
		);

		CREATE TABLE IF NOT EXISTS player_statistics (
			player_id               BIGINT        PRIMARY KEY REFERENCES accounts (id) ON DELETE CASCADE,
			puzzles_solved          INTEGER       NOT NULL DEFAULT 0,
			rooms_visited           INTEGER       NOT NULL DEFAULT 0,
			total_money_earned      NUMERIC(12,2) NOT NULL DEFAULT 0,
			total_experience_earned BIGINT        NOT NULL DEFAULT 0,
			updated_at              TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS alarm_states (
			player_id  BIGINT      PRIMARY KEY REFERENCES accounts (id) ON DELETE CASCADE,
			level      INTEGER     NOT NULL DEFAULT 0 CHECK (level >= 0 AND level <= 10),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS alarm_history (
			id              UUID        PRIMARY KEY,
			player_id       BIGINT      NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
			occurred_at     TIMESTAMPTZ NOT NULL,
			reason          VARCHAR(64) NOT NULL,
			puzzle_id       VARCHAR(64),
			mission_id      VARCHAR(64),
			resulting_level INTEGER     NOT NULL CHECK (resulting_level >= 0 AND resulting_level <= 10)
		);
		CREATE INDEX IF NOT EXISTS idx_alarm_history_player_time
			ON alarm_history (player_id, occurred_at DESC);

		CREATE TABLE IF NOT EXISTS puzzle_attempts (
			player_id     BIGINT      NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
			puzzle_id     VARCHAR(64) NOT NULL,
			attempts_used INTEGER     NOT NULL DEFAULT 0 CHECK (attempts_used >= 0),
			completed     INTEGER[]   NOT NULL DEFAULT '{}',
			done          BOOLEAN     NOT NULL DEFAULT FALSE,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (player_id, puzzle_id)
		);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// NewPool starts a PostgreSQL container, applies the schema, and returns
// the raw pool. Cleanup is registered on t.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc.RawPool
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pc.Config.User, pc.Config.Password,
		pc.Config.Host, pc.Config.Port,
		pc.Config.Name, pc.Config.SSLMode,
	)
}
