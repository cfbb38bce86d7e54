package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// IsBusy reports whether err is SQLite refusing a lock. busy_timeout
// covers most contention; this catches what outlives it.
func IsBusy(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		msg := err.Error()
		if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
			return true
		}
	}
	return false
}

// Exec runs query, retrying a BUSY failure twice more 100ms apart. Any
// other error is returned at once.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsBusy),
		retry.LastErrorOnly(true),
	).Do(func() (err error) {
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}
