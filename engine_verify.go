package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskhive/authcore/permission"
	"github.com/deskhive/authcore/session"
)

// VerifyStatus is the closed set of credential-verification outcomes.
type VerifyStatus uint8

const (
	VerifyOk VerifyStatus = iota
	VerifyUserDidNotExist
	VerifyNoAccess
	VerifyPasswordNotSet
	VerifyPasswordInvalid
	VerifyPasswordLockedOut
	VerifyTOTPRequired
	VerifyTOTPInvalid
	VerifyTOTPAlreadyUsed
	VerifyTOTPLockedOut
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyOk:
		return "ok"
	case VerifyUserDidNotExist:
		return "user_did_not_exist"
	case VerifyNoAccess:
		return "no_access"
	case VerifyPasswordNotSet:
		return "password_not_set"
	case VerifyPasswordInvalid:
		return "password_invalid"
	case VerifyPasswordLockedOut:
		return "password_locked_out"
	case VerifyTOTPRequired:
		return "totp_code_required"
	case VerifyTOTPInvalid:
		return "totp_code_invalid"
	case VerifyTOTPAlreadyUsed:
		return "totp_code_already_used"
	case VerifyTOTPLockedOut:
		return "totp_locked_out"
	default:
		return "unknown"
	}
}

// VerifyResult is the outcome of one credential check. Account and Permissions
// are populated only on VerifyOk.
type VerifyResult struct {
	Status      VerifyStatus
	Account     *Account
	Permissions *permission.Tree
}

// LoginResult is a VerifyResult plus the session material issued on success.
type LoginResult struct {
	VerifyResult
	SessionID string
	Token     string // empty unless a JWT signing method is configured
}

// VerifyCredentials checks email, password and, when the account has
// two-factor enabled, a TOTP code. The checks short-circuit in a fixed order
// so that no outcome leaks information an earlier check should have hidden.
// A non-nil error means the store or a cryptographic primitive failed, not
// that the credentials were wrong.
func (e *Engine) VerifyCredentials(ctx context.Context, email, passwordPlaintext, totpCode string) (*VerifyResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	now := time.Now().UTC()

	acct, err := e.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			e.metricInc(MetricLoginFailure)
			return &VerifyResult{Status: VerifyUserDidNotExist}, nil
		}
		return nil, err
	}

	if acct.Disabled || acct.SystemRole == RoleNoAccess {
		return e.failLogin(ctx, acct, VerifyNoAccess), nil
	}

	if acct.PasswordHash == "" {
		return e.failLogin(ctx, acct, VerifyPasswordNotSet), nil
	}

	if acct.PasswordLockout.Locked(now) {
		return e.failLogin(ctx, acct, VerifyPasswordLockedOut), nil
	}

	if acct.TOTP.Enabled && acct.TOTP.Lockout.Locked(now) {
		return e.failLogin(ctx, acct, VerifyTOTPLockedOut), nil
	}

	match, err := e.hasher.Verify(passwordPlaintext, acct.PasswordHash)
	if err != nil {
		e.logf("account %s: stored password hash unparseable: %v", acct.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	if !match {
		status, err := e.recordFailure(ctx, acct, FactorPassword, now)
		if err != nil {
			return nil, err
		}
		e.auditLoginFailure(ctx, acct, status)
		return &VerifyResult{Status: status}, nil
	}

	if acct.TOTP.Enabled {
		if status, done, err := e.checkTOTP(ctx, acct, totpCode, now); done {
			if err != nil {
				return nil, err
			}
			// The replay path audits itself and a missing code is a prompt,
			// not a failed attempt.
			if status == VerifyTOTPInvalid || status == VerifyTOTPLockedOut {
				e.auditLoginFailure(ctx, acct, status)
			}
			return &VerifyResult{Status: status}, nil
		}
	}

	return e.finishLogin(ctx, acct, passwordPlaintext, now)
}

// Login verifies credentials and, on success, caches the permission tree as a
// session and signs a session token when a signing method is configured.
func (e *Engine) Login(ctx context.Context, email, passwordPlaintext, totpCode string) (*LoginResult, error) {
	result, err := e.VerifyCredentials(ctx, email, passwordPlaintext, totpCode)
	if err != nil {
		return nil, err
	}

	out := &LoginResult{VerifyResult: *result}
	if result.Status != VerifyOk {
		return out, nil
	}

	if e.sessions != nil {
		sessionID := uuid.NewString()
		err := e.sessions.Save(ctx, sessionID, &session.Session{
			AccountID:   result.Account.ID,
			Permissions: result.Permissions,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		out.SessionID = sessionID

		if e.jwts != nil {
			token, err := e.jwts.Issue(result.Account.ID.String(), sessionID, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			out.Token = token
		}
	}

	return out, nil
}

// Logout drops the cached session. Unknown session ids are not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.Delete(ctx, sessionID)
}

// SessionPermissions returns the cached state for an active session.
func (e *Engine) SessionPermissions(ctx context.Context, sessionID string) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	return e.sessions.Get(ctx, sessionID)
}

// checkTOTP runs the two-factor leg of verification. done is false only when
// the code was accepted; acct's TOTP state is refreshed in that case.
func (e *Engine) checkTOTP(ctx context.Context, acct *Account, code string, now time.Time) (VerifyStatus, bool, error) {
	if code == "" {
		return VerifyTOTPRequired, true, nil
	}

	secret, err := e.totpCipher.Decrypt(acct.TOTP.EncryptedSecret)
	if err != nil {
		e.logf("account %s: stored totp secret undecryptable: %v", acct.ID, err)
		return 0, true, fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	// A replayed code proves possession of a past valid code, not a guess,
	// so it is rejected without touching the lockout counter.
	if acct.TOTP.LastAcceptedCode != "" && code == acct.TOTP.LastAcceptedCode {
		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricTOTPReplayRejected)
		e.emitAudit(ctx, auditEventTOTPReplayRejected, false, acct.ID.String(), acct.ID.String(), ErrTOTPReplayed, nil)
		return VerifyTOTPAlreadyUsed, true, nil
	}

	ok, err := e.totp.VerifyCode(string(secret), code, now)
	if err != nil {
		e.logf("account %s: totp verification failed: %v", acct.ID, err)
		return 0, true, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	if !ok {
		status, err := e.recordFailure(ctx, acct, FactorTOTP, now)
		if err != nil {
			return 0, true, err
		}
		return status, true, nil
	}

	state := acct.TOTP
	state.LastAcceptedCode = code
	state.Lockout = state.Lockout.Clear()
	if err := e.store.SetTOTPState(ctx, acct.ID, state); err != nil {
		return 0, true, err
	}
	acct.TOTP = state

	return 0, false, nil
}

// recordFailure advances one factor's lockout counter through the store's
// atomic read-modify-write, so a concurrent failed attempt cannot overwrite
// this one. It returns the outcome the caller should surface: the locked
// status when this failure tripped or continues a lockout, the plain invalid
// status otherwise.
func (e *Engine) recordFailure(ctx context.Context, acct *Account, factor LockoutFactor, now time.Time) (VerifyStatus, error) {
	next, locked, err := e.store.RecordFailure(ctx, acct.ID, factor, now,
		e.config.Lockout.Window, e.config.Lockout.MaxAttempts)
	if err != nil {
		return 0, err
	}
	e.metricInc(MetricLoginFailure)

	if factor == FactorPassword {
		acct.PasswordLockout = next
		if locked {
			e.metricInc(MetricPasswordLockout)
			return VerifyPasswordLockedOut, nil
		}
		return VerifyPasswordInvalid, nil
	}

	acct.TOTP.Lockout = next
	if locked {
		e.metricInc(MetricTOTPLockout)
		return VerifyTOTPLockedOut, nil
	}
	return VerifyTOTPInvalid, nil
}

// finishLogin applies the success side effects: counters cleared, last access
// touched, hash upgraded when cost parameters moved, permission tree built.
func (e *Engine) finishLogin(ctx context.Context, acct *Account, passwordPlaintext string, now time.Time) (*VerifyResult, error) {
	if acct.PasswordLockout.Failures > 0 || !acct.PasswordLockout.LockedUntil.IsZero() {
		acct.PasswordLockout = acct.PasswordLockout.Clear()
		if err := e.store.UpdateLockout(ctx, acct.ID, FactorPassword, acct.PasswordLockout); err != nil {
			return nil, err
		}
	}
	if acct.TOTP.Enabled && (acct.TOTP.Lockout.Failures > 0 || !acct.TOTP.Lockout.LockedUntil.IsZero()) {
		acct.TOTP.Lockout = acct.TOTP.Lockout.Clear()
		if err := e.store.SetTOTPState(ctx, acct.ID, acct.TOTP); err != nil {
			return nil, err
		}
	}

	if err := e.store.TouchLastAccess(ctx, acct.ID, now); err != nil {
		return nil, err
	}
	acct.LastAccessAt = now

	// The cost upgrade is invisible to the caller: a failed write is logged
	// and the login still succeeds on the old hash.
	if e.config.Password.UpgradeOnLogin {
		if upgrade, err := e.hasher.NeedsUpgrade(acct.PasswordHash); err == nil && upgrade {
			if rehashed, err := e.hasher.Hash(passwordPlaintext); err == nil {
				if err := e.store.SetPasswordHash(ctx, acct.ID, rehashed); err != nil {
					e.logf("account %s: hash upgrade not persisted: %v", acct.ID, err)
				} else {
					acct.PasswordHash = rehashed
				}
			}
		}
	}

	tree, err := e.BuildPermissionTree(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID.String(), acct.ID.String(), nil, func() map[string]string {
		return map[string]string{"email": acct.Email, "totp": fmt.Sprintf("%t", acct.TOTP.Enabled)}
	})

	return &VerifyResult{Status: VerifyOk, Account: acct, Permissions: tree}, nil
}

// BuildPermissionTree materializes the caller's authorization tree from the
// flat grant rows. The store pre-filters admin rows by role; unreferenced rows
// are dropped during aggregation.
func (e *Engine) BuildPermissionTree(ctx context.Context, accountID uuid.UUID) (*permission.Tree, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	rows, err := e.store.GrantRows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTreeBuilt)
	return permission.Build(rows), nil
}

func (e *Engine) failLogin(ctx context.Context, acct *Account, status VerifyStatus) *VerifyResult {
	e.metricInc(MetricLoginFailure)
	e.auditLoginFailure(ctx, acct, status)
	return &VerifyResult{Status: status}
}

func (e *Engine) auditLoginFailure(ctx context.Context, acct *Account, status VerifyStatus) {
	actor := ""
	if acct != nil {
		actor = acct.ID.String()
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, actor, actor, nil, func() map[string]string {
		return map[string]string{"reason": status.String()}
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
