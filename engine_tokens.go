package authcore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deskhive/authcore/internal/secrets"
)

// TokenIssuance is the result of issuing one ephemeral token. The plaintext
// exists only here and in the Notifier delivery; it is never stored.
type TokenIssuance struct {
	Plaintext string
	ReceiptID uuid.UUID
	ExpiresAt time.Time
}

// IssueToken mints a single-use token of the given kind for ownerKey (an
// account id string, or a bare email for pre-account flows). The plaintext is
// returned and handed to the Notifier; only its encrypted form is persisted.
func (e *Engine) IssueToken(ctx context.Context, ownerKey string, kind TokenKind) (*TokenIssuance, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	plaintext, err := secrets.RandomAlphanumeric(e.config.Tokens.Length)
	if err != nil {
		return nil, err
	}
	ciphertext, err := e.tokenCipher.Encrypt([]byte(plaintext))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	receiptID := e.emitAudit(ctx, auditEventTokenIssued, true, ownerKey, ownerKey, nil, func() map[string]string {
		return map[string]string{"kind": kind.String()}
	})

	record := &TokenRecord{
		ID:         uuid.New(),
		OwnerKey:   ownerKey,
		Kind:       kind,
		Ciphertext: ciphertext,
		IssuedAt:   now,
		ExpiresAt:  now.Add(e.config.Tokens.TTL),
		ReceiptID:  receiptID,
		Context:    clientContextFromContext(ctx),
	}
	if err := e.store.InsertToken(ctx, record); err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)

	if e.notifier != nil {
		e.notifier.Deliver(ctx, TokenDelivery{
			Recipient: ownerKey,
			Kind:      kind,
			Plaintext: plaintext,
			ReceiptID: receiptID,
			Context:   record.Context,
		})
	}

	return &TokenIssuance{Plaintext: plaintext, ReceiptID: receiptID, ExpiresAt: record.ExpiresAt}, nil
}

// RedeemToken attempts to consume a token. Expired tokens for the owner and
// kind are purged first. Because encryption is randomized, every remaining
// token is decrypted and its plaintext compared; a match consumes all tokens
// of that owner and kind, so an unredeemed sibling from a concurrent issuance
// dies with the redeemed one.
func (e *Engine) RedeemToken(ctx context.Context, ownerKey string, kind TokenKind, candidatePlaintext string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}

	active, err := e.purgeExpired(ctx, ownerKey, kind, time.Now().UTC())
	if err != nil {
		return false, err
	}

	matched := false
	for i := range active {
		plain, err := e.tokenCipher.Decrypt(active[i].Ciphertext)
		if err != nil {
			e.logf("token %s: stored ciphertext undecryptable: %v", active[i].ID, err)
			return false, fmt.Errorf("%w: %v", ErrUnknown, err)
		}
		if subtle.ConstantTimeCompare(plain, []byte(candidatePlaintext)) == 1 {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}

	ids := make([]uuid.UUID, len(active))
	for i := range active {
		ids[i] = active[i].ID
	}
	affected, err := e.store.DeleteTokens(ctx, ids)
	if err != nil {
		return false, err
	}
	// A racing redeemer whose delete removed nothing lost the race and must
	// not treat the token as consumed.
	if affected == 0 {
		return false, nil
	}

	e.metricInc(MetricTokenRedeemed)
	for i := range active {
		e.auditTokenRemoval(ctx, &active[i], TokenConsumed)
	}
	return true, nil
}

// RevokeTokenByReceipt invalidates every active token of the owner and kind
// when receiptID names one of their issuance facts. This lets a recipient who
// never requested the token kill it by quoting the notification's receipt,
// without knowing the token itself.
func (e *Engine) RevokeTokenByReceipt(ctx context.Context, ownerKey string, kind TokenKind, receiptID uuid.UUID) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}

	active, err := e.purgeExpired(ctx, ownerKey, kind, time.Now().UTC())
	if err != nil {
		return false, err
	}

	matched := false
	for i := range active {
		if active[i].ReceiptID == receiptID {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	ids := make([]uuid.UUID, len(active))
	for i := range active {
		ids[i] = active[i].ID
	}
	affected, err := e.store.DeleteTokens(ctx, ids)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	e.metricInc(MetricTokenRevoked)
	for i := range active {
		e.auditTokenRemoval(ctx, &active[i], TokenRevoked)
	}
	return true, nil
}

// purgeExpired deletes every expired token for the owner and kind and returns
// the still-active remainder.
func (e *Engine) purgeExpired(ctx context.Context, ownerKey string, kind TokenKind, now time.Time) ([]TokenRecord, error) {
	records, err := e.store.ListTokens(ctx, ownerKey, kind)
	if err != nil {
		return nil, err
	}

	var active, expired []TokenRecord
	for i := range records {
		if records[i].ExpiresAt.After(now) {
			active = append(active, records[i])
		} else {
			expired = append(expired, records[i])
		}
	}

	if len(expired) > 0 {
		ids := make([]uuid.UUID, len(expired))
		for i := range expired {
			ids[i] = expired[i].ID
		}
		if _, err := e.store.DeleteTokens(ctx, ids); err != nil {
			return nil, err
		}
		for i := range expired {
			e.metricInc(MetricTokenExpired)
			e.auditTokenRemoval(ctx, &expired[i], TokenExpired)
		}
	}

	return active, nil
}

func (e *Engine) auditTokenRemoval(ctx context.Context, record *TokenRecord, reason TokenRemovalReason) {
	eventType := auditEventTokenExpired
	switch reason {
	case TokenRevoked:
		eventType = auditEventTokenRevoked
	case TokenConsumed:
		eventType = auditEventTokenConsumed
	}
	e.emitAudit(ctx, eventType, true, record.OwnerKey, record.OwnerKey, nil, func() map[string]string {
		return map[string]string{
			"kind":    record.Kind.String(),
			"reason":  reason.String(),
			"receipt": record.ReceiptID.String(),
		}
	})
}
