package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres is a handle on a Postgres container started through testcontainers.
type Postgres struct {
	*postgres.PostgresContainer

	ConnectionDSN  string
	PostgresConfig *pgx.ConnConfig
}

// NewPostgres creates and starts a new Postgres container,
// then returns a handle to said container to manage its lifecycle.
func NewPostgres(ctx context.Context) (*Postgres, error) {
	withContext := func(msg string, err error) error {
		return fmt.Errorf("container.NewPostgres: %s, %w", msg, err)
	}

	c, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("journal"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("notasecret"),
		testcontainers.WithWaitStrategy(
			//nolint:mnd // It's ok to use a magic number here.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, withContext("failed to run new container", err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, withContext("failed to get connection dsn", err)
	}

	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, withContext("failed to parse pgx config from dsn", err)
	}

	return &Postgres{
		PostgresContainer: c,
		ConnectionDSN:     dsn,
		PostgresConfig:    config,
	}, nil
}
