package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deskhive/authcore/lockout"
)

// TOTPEnrollment is the provisioning material handed to the account holder.
// The secret never persists in this form; only its encrypted form is stored.
type TOTPEnrollment struct {
	Secret string
	URI    string
}

// EnrollTOTP starts two-factor enrollment. Calling it again before
// confirmation returns provisioning material for the existing pending secret
// rather than rotating it, so a re-rendered QR code stays scannable.
func (e *Engine) EnrollTOTP(ctx context.Context, accountID uuid.UUID) (*TOTPEnrollment, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.TOTP.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	var secret string
	if len(acct.TOTP.EncryptedSecret) > 0 {
		plain, err := e.totpCipher.Decrypt(acct.TOTP.EncryptedSecret)
		if err != nil {
			e.logf("account %s: pending totp secret undecryptable: %v", acct.ID, err)
			return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
		}
		secret = string(plain)
	} else {
		secret, err = e.totp.GenerateSecret()
		if err != nil {
			return nil, err
		}
		sealed, err := e.totpCipher.Encrypt([]byte(secret))
		if err != nil {
			return nil, err
		}
		state := TOTPState{EncryptedSecret: sealed}
		if err := e.store.SetTOTPState(ctx, acct.ID, state); err != nil {
			return nil, err
		}

		e.emitAudit(ctx, auditEventTOTPEnrollStarted, true, acct.ID.String(), acct.ID.String(), nil, nil)
	}

	return &TOTPEnrollment{
		Secret: secret,
		URI:    e.totp.ProvisionURI(secret, acct.Email),
	}, nil
}

// ConfirmTOTP verifies the first code against the pending secret and enables
// two-factor on success. The accepted code is recorded so it cannot be
// replayed at the next login.
func (e *Engine) ConfirmTOTP(ctx context.Context, accountID uuid.UUID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.TOTP.Enabled {
		return ErrTOTPAlreadyEnabled
	}
	if len(acct.TOTP.EncryptedSecret) == 0 {
		return ErrTOTPNotConfigured
	}

	plain, err := e.totpCipher.Decrypt(acct.TOTP.EncryptedSecret)
	if err != nil {
		e.logf("account %s: pending totp secret undecryptable: %v", acct.ID, err)
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	ok, err := e.totp.VerifyCode(string(plain), code, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	if !ok {
		return ErrTOTPInvalid
	}

	state := TOTPState{
		Enabled:          true,
		EncryptedSecret:  acct.TOTP.EncryptedSecret,
		LastAcceptedCode: code,
		Lockout:          lockout.Counter{},
	}
	if err := e.store.SetTOTPState(ctx, acct.ID, state); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, acct.ID.String(), acct.ID.String(), nil, nil)
	return nil
}

// DisableTOTP clears the two-factor secret, flag and counters.
func (e *Engine) DisableTOTP(ctx context.Context, accountID uuid.UUID) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := e.store.SetTOTPState(ctx, acct.ID, TOTPState{}); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTOTPDisabled, true, acct.ID.String(), acct.ID.String(), nil, nil)
	return nil
}

// DisableTOTPWithToken redeems a disable-totp token for the account and, when
// it matches, clears the two-factor state. This is the recovery path for an
// account holder who lost their authenticator.
func (e *Engine) DisableTOTPWithToken(ctx context.Context, accountID uuid.UUID, tokenPlaintext string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}

	ok, err := e.RedeemToken(ctx, accountID.String(), TokenDisableTOTP, tokenPlaintext)
	if err != nil || !ok {
		return false, err
	}

	if err := e.DisableTOTP(ctx, accountID); err != nil {
		return false, err
	}
	return true, nil
}
