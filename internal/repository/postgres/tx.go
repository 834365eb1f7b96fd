// Package postgres implements the Persistence Layer against PostgreSQL:
// typed per-entity repositories plus transactional bulk upsert with
// deadlock retry, grounded on the teacher's internal/datanorm.Importer
// multi-row-insert-with-retry idiom and internal/repository/postgres
// dynamic SET-clause builder.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by get_by_id/get_by_name/delete_by_id operations
// when no matching row exists.
var ErrNotFound = errors.New("postgres: not found")

// maxDeadlockRetries bounds the number of times a batch is resubmitted
// after a deadlock before the batch is surfaced as failed.
const maxDeadlockRetries = 3

// withTx runs fn inside a transaction, retrying the whole transaction on
// deadlock up to maxDeadlockRetries times with linear backoff, bounded by
// the caller's context (the Persistence Layer's TRANSACTION_TIMEOUT). Any
// other error rolls back and is returned immediately; fn's error, if any
// non-deadlock, is also rolled back.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxDeadlockRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		err = fn(tx)
		if err == nil {
			return tx.Commit()
		}

		_ = tx.Rollback()
		lastErr = err

		if isDeadlock(err) && attempt < maxDeadlockRetries {
			select {
			case <-time.After(time.Duration(100*(attempt+1)) * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return err
	}
	return lastErr
}

func isDeadlock(err error) bool {
	return err != nil && strings.Contains(err.Error(), "deadlock")
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}
