package postgres_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Used to bring in the driver for sql.Open.
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/internal/container"
	"github.com/get-eventually/go-journal/internal/journaltest"
	"github.com/get-eventually/go-journal/postgres"
)

func TestJournal(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	ctx := context.Background()

	c, err := container.NewPostgres(ctx)
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, c.Terminate(ctx)) })

	db, err := sql.Open("pgx", c.ConnectionDSN)
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(db))
	// Migrations must be idempotent.
	require.NoError(t, postgres.RunMigrations(db))
	require.NoError(t, db.Close())

	conn, err := pgxpool.New(ctx, c.ConnectionDSN)
	require.NoError(t, err)

	t.Cleanup(conn.Close)

	j := postgres.NewJournal(conn, postgres.WithPartitionCapacity(journaltest.Capacity))
	assert.Equal(t, journaltest.Capacity, j.Capacity())

	journaltest.Run(j)(t)

	t.Run("conflicting writes return a SequenceConflictError", func(t *testing.T) {
		require.NoError(t, j.Write(ctx, journaltest.Records("conflicting", 1, 2)...))

		err := j.Write(ctx, journaltest.Records("conflicting", 2, 3)...)

		var conflictErr journal.SequenceConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, journal.SequenceConflictError{StreamID: "conflicting", Expected: 1, Actual: 2}, conflictErr)
	})
}
