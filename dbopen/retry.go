package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLite admits a single writer. The audit trail writer and the admin
// surface share one database file, so short write transactions can
// collide and surface as BUSY even with a generous busy_timeout.
const (
	busyAttempts = 4
	busyBaseWait = 50 * time.Millisecond
)

// IsBusy reports whether err indicates an SQLite BUSY condition.
// The modernc driver surfaces these as strings, so matching on the message
// is the only discriminator available at this layer.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withBusyRetry runs op, retrying while it reports busy. The wait doubles
// between attempts; ctx cancellation aborts the wait. Non-busy errors are
// returned untouched on the first attempt that produces them.
func withBusyRetry(ctx context.Context, op func() error) error {
	wait := busyBaseWait
	var err error
	for attempt := 0; attempt < busyAttempts; attempt++ {
		if err = op(); err == nil || !IsBusy(err) {
			return err
		}
		if attempt == busyAttempts-1 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("dbopen: retry interrupted: %w", ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
	return fmt.Errorf("dbopen: still busy after %d attempts: %w", busyAttempts, err)
}

// RunTx executes fn inside a transaction, retrying the whole transaction
// on BUSY. fn must be safe to run more than once. Any error from fn rolls
// the transaction back and is returned as-is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes a single statement, retrying on BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withBusyRetry(ctx, func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
