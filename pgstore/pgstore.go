package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	authcore "github.com/deskhive/authcore"
	"github.com/deskhive/authcore/lockout"
)

// Store implements authcore.Store on a PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ authcore.Store = (*Store)(nil)

// Open connects to dsn with pool settings sized for request-scoped work.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. The caller keeps ownership.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const accountColumns = `
	id, email, first_name, last_name, system_role, disabled, deleted,
	password_hash,
	pw_fail_count, pw_last_failure, pw_locked_until,
	totp_enabled, totp_secret, totp_last_code,
	totp_fail_count, totp_last_failure, totp_locked_until,
	azure_object_id, last_access_at, stamp`

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where email = $1 and deleted = false
	`, email)
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, id uuid.UUID) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) CreateAccount(ctx context.Context, account *authcore.Account) error {
	account.Stamp = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (
			id, email, first_name, last_name, system_role, disabled, deleted,
			password_hash, azure_object_id, last_access_at, stamp
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		account.ID, account.Email, account.FirstName, account.LastName,
		int(account.SystemRole), account.Disabled, account.Deleted,
		nullString(account.PasswordHash), nullString(account.AzureObjectID),
		nullTime(account.LastAccessAt), account.Stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrRecordExists
		}
		return err
	}
	return nil
}

// UpdateAccount writes the profile and role fields conditioned on the stamp
// the caller last observed, assigning a fresh stamp on success. A zero-row
// update is disambiguated with a follow-up existence check so staleness and
// absence report distinctly.
func (s *Store) UpdateAccount(ctx context.Context, account *authcore.Account, stamp string) error {
	next := uuid.NewString()
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set first_name = $1, last_name = $2, system_role = $3,
		    disabled = $4, deleted = $5, azure_object_id = $6, stamp = $7
		where id = $8 and stamp = $9
	`,
		account.FirstName, account.LastName, int(account.SystemRole),
		account.Disabled, account.Deleted, nullString(account.AzureObjectID),
		next, account.ID, stamp,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from accounts where id = $1)`, account.ID,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return authcore.ErrStaleRecord
		}
		return authcore.ErrRecordNotFound
	}

	account.Stamp = next
	return nil
}

// RecordFailure applies one failure atomically: the counter row is read under
// FOR UPDATE, evaluated, and written back in the same transaction, so a
// concurrent failed attempt on the same account serializes behind this one
// instead of overwriting it.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, factor authcore.LockoutFactor, now time.Time, window time.Duration, maxAttempts int) (lockout.Counter, bool, error) {
	var selectQuery, updateQuery string
	if factor == authcore.FactorPassword {
		selectQuery = `
			select pw_fail_count, pw_last_failure, pw_locked_until
			from accounts where id = $1 for update`
		updateQuery = `
			update accounts
			set pw_fail_count = $1, pw_last_failure = $2, pw_locked_until = $3
			where id = $4`
	} else {
		selectQuery = `
			select totp_fail_count, totp_last_failure, totp_locked_until
			from accounts where id = $1 for update`
		updateQuery = `
			update accounts
			set totp_fail_count = $1, totp_last_failure = $2, totp_locked_until = $3
			where id = $4`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lockout.Counter{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		counter           lockout.Counter
		lastFailure, till sql.NullTime
	)
	err = tx.QueryRowContext(ctx, selectQuery, id).Scan(&counter.Failures, &lastFailure, &till)
	if errors.Is(err, sql.ErrNoRows) {
		return lockout.Counter{}, false, authcore.ErrRecordNotFound
	}
	if err != nil {
		return lockout.Counter{}, false, err
	}
	counter.LastFailure = lastFailure.Time
	counter.LockedUntil = till.Time

	next, locked := lockout.Evaluate(counter, now, window, maxAttempts)
	_, err = tx.ExecContext(ctx, updateQuery,
		next.Failures, nullTime(next.LastFailure), nullTime(next.LockedUntil), id)
	if err != nil {
		return lockout.Counter{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return lockout.Counter{}, false, err
	}

	return next, locked, nil
}

func (s *Store) UpdateLockout(ctx context.Context, id uuid.UUID, factor authcore.LockoutFactor, counter lockout.Counter) error {
	var query string
	if factor == authcore.FactorPassword {
		query = `
			update accounts
			set pw_fail_count = $1, pw_last_failure = $2, pw_locked_until = $3
			where id = $4`
	} else {
		query = `
			update accounts
			set totp_fail_count = $1, totp_last_failure = $2, totp_locked_until = $3
			where id = $4`
	}

	res, err := s.db.ExecContext(ctx, query,
		counter.Failures, nullTime(counter.LastFailure), nullTime(counter.LockedUntil), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash = $1 where id = $2`, nullString(hash), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetTOTPState(ctx context.Context, id uuid.UUID, state authcore.TOTPState) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set totp_enabled = $1, totp_secret = $2, totp_last_code = $3,
		    totp_fail_count = $4, totp_last_failure = $5, totp_locked_until = $6
		where id = $7
	`,
		state.Enabled, state.EncryptedSecret, nullString(state.LastAcceptedCode),
		state.Lockout.Failures, nullTime(state.Lockout.LastFailure),
		nullTime(state.Lockout.LockedUntil), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) TouchLastAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set last_access_at = $1 where id = $2`, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*authcore.Account, error) {
	var (
		acct                           authcore.Account
		role                           int
		passwordHash, totpCode, azure  sql.NullString
		pwLast, pwUntil                sql.NullTime
		totpLast, totpUntil, lastLogin sql.NullTime
	)

	err := row.Scan(
		&acct.ID, &acct.Email, &acct.FirstName, &acct.LastName, &role,
		&acct.Disabled, &acct.Deleted,
		&passwordHash,
		&acct.PasswordLockout.Failures, &pwLast, &pwUntil,
		&acct.TOTP.Enabled, &acct.TOTP.EncryptedSecret, &totpCode,
		&acct.TOTP.Lockout.Failures, &totpLast, &totpUntil,
		&azure, &lastLogin, &acct.Stamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	acct.SystemRole = authcore.Role(role)
	acct.PasswordHash = passwordHash.String
	acct.PasswordLockout.LastFailure = pwLast.Time
	acct.PasswordLockout.LockedUntil = pwUntil.Time
	acct.TOTP.LastAcceptedCode = totpCode.String
	acct.TOTP.Lockout.LastFailure = totpLast.Time
	acct.TOTP.Lockout.LockedUntil = totpUntil.Time
	acct.AzureObjectID = azure.String
	acct.LastAccessAt = lastLogin.Time

	return &acct, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrRecordNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// isUniqueViolation matches the SQLSTATE for unique_violation without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
