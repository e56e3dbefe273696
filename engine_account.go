package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/deskhive/authcore/lockout"
)

// AccountUpdate carries the mutable profile and role fields of an account.
type AccountUpdate struct {
	FirstName  string
	LastName   string
	SystemRole Role
	Disabled   bool
}

// UpdateAccount applies a profile or role edit conditioned on the version
// stamp the caller last observed. ErrStaleRecord means another writer got
// there first; re-fetch and retry with the fresh stamp.
func (e *Engine) UpdateAccount(ctx context.Context, accountID uuid.UUID, stamp string, update AccountUpdate) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	before := accountSnapshot(acct)
	acct.FirstName = strings.TrimSpace(update.FirstName)
	acct.LastName = strings.TrimSpace(update.LastName)
	acct.SystemRole = update.SystemRole
	acct.Disabled = update.Disabled

	if err := e.store.UpdateAccount(ctx, acct, stamp); err != nil {
		if errors.Is(err, ErrStaleRecord) {
			e.metricInc(MetricAccountUpdateStale)
		}
		return nil, err
	}

	e.emitAuditChange(ctx, auditEventAccountUpdated, acct.ID.String(), acct.ID.String(), before, accountSnapshot(acct), nil)
	return acct, nil
}

// SetAccountDisabled flips only the disabled flag, stamp-conditioned.
func (e *Engine) SetAccountDisabled(ctx context.Context, accountID uuid.UUID, stamp string, disabled bool) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	before := accountSnapshot(acct)
	acct.Disabled = disabled
	if err := e.store.UpdateAccount(ctx, acct, stamp); err != nil {
		if errors.Is(err, ErrStaleRecord) {
			e.metricInc(MetricAccountUpdateStale)
		}
		return err
	}

	e.emitAuditChange(ctx, auditEventAccountDisabled, acct.ID.String(), acct.ID.String(), before, accountSnapshot(acct), nil)
	return nil
}

// SoftDeleteAccount marks the account deleted. The row survives for
// referential and audit integrity; email lookups stop returning it.
func (e *Engine) SoftDeleteAccount(ctx context.Context, accountID uuid.UUID, stamp string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	before := accountSnapshot(acct)
	acct.Deleted = true
	acct.Disabled = true
	if err := e.store.UpdateAccount(ctx, acct, stamp); err != nil {
		if errors.Is(err, ErrStaleRecord) {
			e.metricInc(MetricAccountUpdateStale)
		}
		return err
	}

	e.emitAuditChange(ctx, auditEventAccountDeleted, acct.ID.String(), acct.ID.String(), before, accountSnapshot(acct), nil)
	return nil
}

// RequestPasswordReset issues a forgot-password token for the account behind
// email and hands it to the Notifier. ErrRecordNotFound surfaces to the
// caller; whether to hide it from the end user is a transport decision.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (*TokenIssuance, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return e.IssueToken(ctx, acct.ID.String(), TokenForgotPassword)
}

// ResetPasswordWithToken redeems a forgot-password token and, when it
// matches, replaces the password hash and clears the password lockout so the
// holder can log in immediately.
func (e *Engine) ResetPasswordWithToken(ctx context.Context, accountID uuid.UUID, tokenPlaintext, newPassword string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}

	ok, err := e.RedeemToken(ctx, accountID.String(), TokenForgotPassword, tokenPlaintext)
	if err != nil || !ok {
		return false, err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return false, err
	}
	if err := e.store.SetPasswordHash(ctx, accountID, hash); err != nil {
		return false, err
	}
	if err := e.store.UpdateLockout(ctx, accountID, FactorPassword, lockout.Counter{}); err != nil {
		return false, err
	}

	e.emitAudit(ctx, auditEventAccountUpdated, true, accountID.String(), accountID.String(), nil, func() map[string]string {
		return map[string]string{"change": "password_reset"}
	})
	return true, nil
}

// LinkAzureAccountWithToken redeems a link-account token and binds the
// external identity to the account. The binding is an opaque object id; the
// engine never talks to the identity provider itself.
func (e *Engine) LinkAzureAccountWithToken(ctx context.Context, accountID uuid.UUID, tokenPlaintext, azureObjectID string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}
	if azureObjectID == "" {
		return false, errors.New("azure object id required")
	}

	ok, err := e.RedeemToken(ctx, accountID.String(), TokenLinkAzureAccount, tokenPlaintext)
	if err != nil || !ok {
		return false, err
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return false, err
	}

	before := accountSnapshot(acct)
	acct.AzureObjectID = azureObjectID
	if err := e.store.UpdateAccount(ctx, acct, acct.Stamp); err != nil {
		return false, err
	}

	e.emitAuditChange(ctx, auditEventAccountUpdated, acct.ID.String(), acct.ID.String(), before, accountSnapshot(acct), func() map[string]string {
		return map[string]string{"change": "azure_link"}
	})
	return true, nil
}
