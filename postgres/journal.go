package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/partition"
	"github.com/get-eventually/go-journal/scan"
)

var (
	_ partition.Catalog = &Journal{}
	_ partition.Probe   = &Journal{}
	_ scan.Store        = &Journal{}
)

var journalColumns = []string{"stream_id", "partition_nr", "sequence_nr", "serializer_id", "manifest", "payload"}

// Journal is a journal storage implementation targeted to PostgreSQL databases.
//
// The implementation uses "journal_streams" and "journal" as its
// operational tables, partitioned by (stream_id, partition_nr).
// Writes are transactional.
type Journal struct {
	conn     *pgxpool.Pool
	capacity uint64
}

// NewJournal returns a new Journal using the provided connection pool.
func NewJournal(conn *pgxpool.Pool, options ...Option[*Journal]) *Journal {
	j := &Journal{
		conn:     conn,
		capacity: journal.DefaultPartitionCapacity,
	}

	for _, opt := range options {
		opt.apply(j)
	}

	return j
}

// Capacity returns the partition capacity of the Journal.
func (j *Journal) Capacity() uint64 { return j.capacity }

// StreamIDs implements the partition.Catalog interface.
// Stream ids are returned in the order they have been first written.
func (j *Journal) StreamIDs(ctx context.Context) ([]string, error) {
	rows, err := j.conn.Query(ctx, `SELECT stream_id FROM journal_streams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres.Journal: failed to query journal streams, %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres.Journal: failed to read journal streams, %w", err)
	}

	return ids, nil
}

// HighestSequenceNr implements the partition.Probe interface.
func (j *Journal) HighestSequenceNr(ctx context.Context, streamID string) (uint64, error) {
	var highest int64

	err := j.conn.QueryRow(ctx,
		`SELECT highest_sequence_nr FROM journal_streams WHERE stream_id = $1`,
		streamID,
	).Scan(&highest)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("postgres.Journal: failed to probe stream %q, %w", streamID, err)
	}

	return uint64(highest), nil //nolint:gosec // The column has a non-negative check.
}

// ScanPartition implements the scan.Store interface.
//
// A connection is acquired from the pool for the whole scan,
// and released on every exit path.
func (j *Journal) ScanPartition(ctx context.Context, r journal.PartitionRange, stream journal.RecordStream) error {
	defer close(stream)

	conn, err := j.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres.Journal: failed to acquire connection, %w", err)
	}

	defer conn.Release()

	//nolint:gosec // Sequence numbers and partition indexes fit in a BIGINT.
	rows, err := conn.Query(ctx,
		`SELECT sequence_nr, serializer_id, manifest, payload FROM journal
		WHERE stream_id = $1 AND partition_nr = $2 AND sequence_nr BETWEEN $3 AND $4
		ORDER BY sequence_nr`,
		r.StreamID, int64(r.PartitionIndex), int64(r.From), int64(r.To),
	)
	if err != nil {
		return fmt.Errorf("postgres.Journal: failed to query journal table, %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			sequenceNr int64
			record     journal.RawRecord
		)

		if err := rows.Scan(&sequenceNr, &record.SerializerID, &record.Manifest, &record.Payload); err != nil {
			return fmt.Errorf("postgres.Journal: failed to scan next row, %w", err)
		}

		record.Key = r.KeyOf(uint64(sequenceNr)) //nolint:gosec // The column has a positive check.

		select {
		case stream <- record:
		case <-ctx.Done():
			return fmt.Errorf("postgres.Journal: context error, %w", ctx.Err())
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres.Journal: failed while reading rows, %w", err)
	}

	return nil
}

// Write appends the records to the journal, in a single transaction.
//
// Records of each stream must continue the stream from its highest committed
// sequence number, or a journal.SequenceConflictError is returned and nothing is written.
// The partition index is computed from the Journal capacity.
func (j *Journal) Write(ctx context.Context, records ...journal.RawRecord) error {
	writes, err := journal.GroupByStream(records)
	if err != nil {
		return fmt.Errorf("postgres.Journal: failed to write records, %w", err)
	}

	err = runTransaction(ctx, j.conn, func(ctx context.Context, tx pgx.Tx) error {
		for _, w := range writes {
			if err := j.write(ctx, tx, w); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres.Journal: failed to write records, %w", err)
	}

	return nil
}

//nolint:gosec // Sequence numbers and partition indexes fit in a BIGINT.
func (j *Journal) write(ctx context.Context, tx pgx.Tx, w journal.StreamWrite) error {
	_, err := tx.Exec(ctx,
		`CALL advance_journal_stream($1::TEXT, $2::BIGINT, $3::BIGINT)`,
		w.StreamID, int64(w.First()-1), int64(w.Last()),
	)

	if conflictErr, ok := isSequenceConflictError(w.StreamID, err); ok {
		return conflictErr
	}

	if err != nil {
		return fmt.Errorf("failed to advance stream %q, %w", w.StreamID, err)
	}

	rows := make([][]any, 0, len(w.Records))
	for _, record := range w.Records {
		rows = append(rows, []any{
			w.StreamID,
			int64(journal.PartitionIndexOf(record.Key.SequenceNr, j.capacity)),
			int64(record.Key.SequenceNr),
			record.SerializerID,
			record.Manifest,
			record.Payload,
		})
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"journal"}, journalColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to copy records of stream %q, %w", w.StreamID, err)
	}

	return nil
}
