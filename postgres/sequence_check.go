package postgres

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/get-eventually/go-journal"
)

var sequenceConflictErrorRegex = regexp.MustCompile(
	`journal stream sequence check failed, expected: (?P<expected>\d+), got: (?P<got>\d+)`,
)

func isSequenceConflictError(streamID string, err error) (journal.SequenceConflictError, bool) {
	var pgErr *pgconn.PgError

	if err == nil || !errors.As(err, &pgErr) {
		return journal.SequenceConflictError{}, false
	}

	matches := sequenceConflictErrorRegex.FindStringSubmatch(pgErr.Message)
	if len(matches) == 0 {
		return journal.SequenceConflictError{}, false
	}

	expected, err := strconv.ParseUint(matches[sequenceConflictErrorRegex.SubexpIndex("expected")], 10, 64)
	if err != nil {
		return journal.SequenceConflictError{}, false
	}

	got, err := strconv.ParseUint(matches[sequenceConflictErrorRegex.SubexpIndex("got")], 10, 64)
	if err != nil {
		return journal.SequenceConflictError{}, false
	}

	return journal.SequenceConflictError{
		StreamID: streamID,
		Expected: expected,
		Actual:   got,
	}, true
}
