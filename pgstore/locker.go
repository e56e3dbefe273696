package pgstore

import (
	"context"
	"database/sql"
	"time"

	authcore "github.com/deskhive/authcore"
)

// AdvisoryLocker implements authcore.Locker on session-scoped PostgreSQL
// advisory locks. Each acquired lock pins one pooled connection until its
// release function runs, so hold times must stay short.
type AdvisoryLocker struct {
	db *sql.DB
}

var _ authcore.Locker = (*AdvisoryLocker)(nil)

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// TryLock attempts pg_try_advisory_lock on the 64-bit hash of name. It never
// blocks; contention reports authcore.ErrLockContended immediately.
func (l *AdvisoryLocker) TryLock(ctx context.Context, name string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`select pg_try_advisory_lock(hashtextextended($1, 0))`, name,
	).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !acquired {
		_ = conn.Close()
		return nil, authcore.ErrLockContended
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(ctx,
			`select pg_advisory_unlock(hashtextextended($1, 0))`, name)
		_ = conn.Close()
	}
	return release, nil
}
