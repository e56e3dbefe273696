package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterStatus is the closed set of registration outcomes.
type RegisterStatus uint8

const (
	RegisterOk RegisterStatus = iota
	RegisterInvalid
	RegisterDuplicate
	// RegisterContended means another registration for the same email holds
	// the lock right now. The caller should fail fast, not queue.
	RegisterContended
)

func (s RegisterStatus) String() string {
	switch s {
	case RegisterOk:
		return "ok"
	case RegisterInvalid:
		return "invalid"
	case RegisterDuplicate:
		return "duplicate"
	case RegisterContended:
		return "contended"
	default:
		return "unknown"
	}
}

// RegisterRequest carries the fields a self-registration provides.
type RegisterRequest struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// RegisterResult reports the outcome; Account is set only on RegisterOk.
type RegisterResult struct {
	Status  RegisterStatus
	Account *Account
}

// RegisterAccount creates an account for a new email. The existence check and
// insert run under a non-blocking process-external lock keyed on the email
// hash, so two concurrent registrations for one email yield exactly one
// account: the loser sees RegisterContended or RegisterDuplicate.
func (e *Engine) RegisterAccount(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.store == nil || e.locker == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if err := validateRegistration(email, req); err != nil {
		return &RegisterResult{Status: RegisterInvalid}, nil
	}

	release, err := e.locker.TryLock(ctx, registrationLockName(email))
	if err != nil {
		if errors.Is(err, ErrLockContended) {
			e.metricInc(MetricRegistrationContended)
			return &RegisterResult{Status: RegisterContended}, nil
		}
		return nil, err
	}
	defer release()

	_, err = e.store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		e.metricInc(MetricRegistrationDuplicate)
		return &RegisterResult{Status: RegisterDuplicate}, nil
	case !errors.Is(err, ErrRecordNotFound):
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return &RegisterResult{Status: RegisterInvalid}, nil
	}

	acct := &Account{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		SystemRole:   RoleUser,
		PasswordHash: hash,
		LastAccessAt: time.Now().UTC(),
	}
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, ErrRecordExists) {
			e.metricInc(MetricRegistrationDuplicate)
			return &RegisterResult{Status: RegisterDuplicate}, nil
		}
		return nil, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAuditChange(ctx, auditEventAccountCreated, acct.ID.String(), acct.ID.String(), nil, accountSnapshot(acct), nil)

	return &RegisterResult{Status: RegisterOk, Account: acct}, nil
}

// RegisterWithToken completes an invitation flow: the register token issued to
// the email must redeem before the account is created. A failed redemption is
// reported as RegisterInvalid without touching the account table.
func (e *Engine) RegisterWithToken(ctx context.Context, req RegisterRequest, tokenPlaintext string) (*RegisterResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	ok, err := e.RedeemToken(ctx, email, TokenRegister, tokenPlaintext)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RegisterResult{Status: RegisterInvalid}, nil
	}

	return e.RegisterAccount(ctx, req)
}

func validateRegistration(email string, req RegisterRequest) error {
	if email == "" || !strings.Contains(email, "@") {
		return ErrRegistrationInvalid
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return ErrRegistrationInvalid
	}
	if req.Password == "" {
		return ErrRegistrationInvalid
	}
	return nil
}

// registrationLockName hashes the normalized email so the lock key carries no
// personal data and has a fixed length.
func registrationLockName(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "reg:" + hex.EncodeToString(sum[:])
}
