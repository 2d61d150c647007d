package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// setupPostgresContainer creates and configures a Postgres test container
// and returns a pool connected to it. It does not apply the event/consumer
// schema; the suite's BeforeSuite runs testSchema for that.
func setupPostgresContainer(ctx context.Context) (*pgxpool.Pool, testcontainers.Container, error) {
	password, err := generateRandomPassword(16)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate password: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": password,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, err
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		return nil, nil, err
	}
	port, err := postgresC.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, err
	}

	dsn := fmt.Sprintf("postgres://postgres:%s@%s:%s/postgres?sslmode=disable", password, host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}

	return pool, postgresC, nil
}

const testSchema = `
CREATE TABLE IF NOT EXISTS event (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    aggregate TEXT NOT NULL,
    version   INTEGER NOT NULL,
    data      BYTEA NOT NULL,
    metadata  BYTEA NULL,
    topic     TEXT NOT NULL,
    tenant    TEXT NULL,
    timestamp BIGINT NOT NULL,
    UNIQUE (aggregate, version)
);
CREATE INDEX IF NOT EXISTS event_topic_tenant_order_idx
    ON event (topic, tenant, timestamp, version, id);
CREATE TABLE IF NOT EXISTS consumer (
    id         TEXT PRIMARY KEY,
    worker_id  TEXT NOT NULL,
    cursor     TEXT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
