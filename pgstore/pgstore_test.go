package pgstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	authcore "github.com/deskhive/authcore"
	"github.com/deskhive/authcore/lockout"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "system_role", "disabled", "deleted",
		"password_hash",
		"pw_fail_count", "pw_last_failure", "pw_locked_until",
		"totp_enabled", "totp_secret", "totp_last_code",
		"totp_fail_count", "totp_last_failure", "totp_locked_until",
		"azure_object_id", "last_access_at", "stamp",
	})
}

func TestGetAccountByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	lastFailure := time.Now().UTC().Add(-time.Minute)
	mock.ExpectQuery("select(.|\n)*from accounts(.|\n)*where email").
		WithArgs("kim@example.com").
		WillReturnRows(accountRows().AddRow(
			id, "kim@example.com", "Kim", "Larsen", int(authcore.RoleUser), false, false,
			"$argon2id$...",
			2, lastFailure, nil,
			true, []byte{1, 2, 3}, "123456",
			0, nil, nil,
			nil, nil, "stamp-1",
		))

	acct, err := store.GetAccountByEmail(context.Background(), "kim@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if acct.ID != id || acct.SystemRole != authcore.RoleUser {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if acct.PasswordLockout.Failures != 2 || !acct.PasswordLockout.LastFailure.Equal(lastFailure) {
		t.Fatalf("lockout counter not mapped: %+v", acct.PasswordLockout)
	}
	if !acct.TOTP.Enabled || acct.TOTP.LastAcceptedCode != "123456" {
		t.Fatalf("totp state not mapped: %+v", acct.TOTP)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAccountByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select(.|\n)*from accounts").
		WithArgs("nobody@example.com").
		WillReturnRows(accountRows())

	_, err := store.GetAccountByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, authcore.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateAccountStaleVersusMissing(t *testing.T) {
	store, mock := newMockStore(t)
	acct := &authcore.Account{ID: uuid.New(), SystemRole: authcore.RoleUser}

	// Row exists but the stamp moved under us.
	mock.ExpectExec("update accounts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").
		WithArgs(acct.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.UpdateAccount(context.Background(), acct, "old-stamp")
	if !errors.Is(err, authcore.ErrStaleRecord) {
		t.Fatalf("expected ErrStaleRecord, got %v", err)
	}

	// Row is gone entirely.
	mock.ExpectExec("update accounts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").
		WithArgs(acct.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = store.UpdateAccount(context.Background(), acct, "old-stamp")
	if !errors.Is(err, authcore.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountAssignsFreshStamp(t *testing.T) {
	store, mock := newMockStore(t)
	acct := &authcore.Account{ID: uuid.New(), SystemRole: authcore.RoleAdmin, Stamp: "old-stamp"}

	mock.ExpectExec("update accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateAccount(context.Background(), acct, "old-stamp"); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if acct.Stamp == "old-stamp" || acct.Stamp == "" {
		t.Fatalf("expected a fresh stamp, got %q", acct.Stamp)
	}
}

func TestRecordFailureIsReadModifyWriteInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now().UTC()

	// Fifth failure inside the window: the row is locked FOR UPDATE, the
	// counter increments and the lockout end lands in the same transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("select pw_fail_count(.|\n)*for update").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"pw_fail_count", "pw_last_failure", "pw_locked_until"}).
			AddRow(4, now.Add(-time.Minute), nil))
	mock.ExpectExec("update accounts(.|\n)*set pw_fail_count").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	counter, locked, err := store.RecordFailure(context.Background(), id, authcore.FactorPassword, now, 5*time.Minute, 5)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if counter.Failures != 5 || !locked {
		t.Fatalf("counter = %+v locked = %v, want 5 failures and locked", counter, locked)
	}
	if !counter.LockedUntil.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("lockout end = %v, want %v", counter.LockedUntil, now.Add(5*time.Minute))
	}

	// Missing row rolls back and reports not-found.
	mock.ExpectBegin()
	mock.ExpectQuery("select totp_fail_count(.|\n)*for update").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"totp_fail_count", "totp_last_failure", "totp_locked_until"}))
	mock.ExpectRollback()

	_, _, err = store.RecordFailure(context.Background(), id, authcore.FactorTOTP, now, 5*time.Minute, 5)
	if !errors.Is(err, authcore.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateLockoutTargetsFactorColumns(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	counter := lockout.Counter{Failures: 3, LastFailure: time.Now().UTC()}

	mock.ExpectExec("update accounts(.|\n)*set pw_fail_count").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.UpdateLockout(context.Background(), id, authcore.FactorPassword, counter); err != nil {
		t.Fatalf("UpdateLockout password: %v", err)
	}

	mock.ExpectExec("update accounts(.|\n)*set totp_fail_count").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.UpdateLockout(context.Background(), id, authcore.FactorTOTP, counter); err != nil {
		t.Fatalf("UpdateLockout totp: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteTokensReportsAffectedCount(t *testing.T) {
	store, mock := newMockStore(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectExec("delete from ephemeral_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.DeleteTokens(context.Background(), ids)
	if err != nil {
		t.Fatalf("DeleteTokens: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected affected count 1, got %d", n)
	}

	// No ids means no round trip at all.
	n, err = store.DeleteTokens(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("empty delete: n=%d err=%v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListTokensMapsRows(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	tokenID, receiptID := uuid.New(), uuid.New()

	mock.ExpectQuery("select(.|\n)*from ephemeral_tokens").
		WithArgs("owner-1", int(authcore.TokenForgotPassword)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_key", "kind", "ciphertext", "issued_at", "expires_at", "receipt_id",
			"client_ip", "client_location", "client_browser", "client_os", "client_device",
		}).AddRow(
			tokenID, "owner-1", int(authcore.TokenForgotPassword), []byte{9}, now, now.Add(time.Hour), receiptID,
			"10.0.0.1", nil, "Firefox", "Linux", nil,
		))

	records, err := store.ListTokens(context.Background(), "owner-1", authcore.TokenForgotPassword)
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID != tokenID || records[0].ReceiptID != receiptID {
		t.Fatalf("ids not mapped: %+v", records[0])
	}
	if records[0].Context.IP != "10.0.0.1" || records[0].Context.Browser != "Firefox" {
		t.Fatalf("client context not mapped: %+v", records[0].Context)
	}
}

func TestAdvisoryLockerContention(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	locker := NewAdvisoryLocker(db)

	mock.ExpectQuery("pg_try_advisory_lock").
		WithArgs("reg:abc").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, err = locker.TryLock(context.Background(), "reg:abc")
	if !errors.Is(err, authcore.ErrLockContended) {
		t.Fatalf("expected ErrLockContended, got %v", err)
	}

	mock.ExpectQuery("pg_try_advisory_lock").
		WithArgs("reg:abc").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("pg_advisory_unlock").
		WithArgs("reg:abc").
		WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := locker.TryLock(context.Background(), "reg:abc")
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	release()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
