package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/deskhive/authcore/internal/audit"
)

const (
	auditEventLoginSuccess       = "login.success"
	auditEventLoginFailure       = "login.failure"
	auditEventPasswordLockout    = "login.password_lockout"
	auditEventTOTPLockout        = "login.totp_lockout"
	auditEventTOTPReplayRejected = "login.totp_replay_rejected"

	auditEventTOTPEnrollStarted = "totp.enroll_started"
	auditEventTOTPEnabled       = "totp.enabled"
	auditEventTOTPDisabled      = "totp.disabled"

	auditEventTokenIssued   = "token.issued"
	auditEventTokenConsumed = "token.consumed"
	auditEventTokenExpired  = "token.expired"
	auditEventTokenRevoked  = "token.revoked"

	auditEventAccountCreated  = "account.created"
	auditEventAccountUpdated  = "account.updated"
	auditEventAccountDisabled = "account.disabled"
	auditEventAccountDeleted  = "account.deleted"
)

// emitAudit emits one audit fact and returns its correlation id. The id is
// generated even when auditing is disabled because token issuance hands it to
// the recipient as a revocation receipt. Metadata is built lazily so disabled
// auditing costs nothing beyond the id.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actorID, subjectID string,
	opErr error,
	details func() map[string]string,
) uuid.UUID {
	correlationID := uuid.New()
	if e == nil || e.auditor == nil {
		return correlationID
	}

	cc := clientContextFromContext(ctx)
	event := internalaudit.Event{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		CorrelationID: correlationID.String(),
		ActorID:       actorID,
		SubjectID:     subjectID,
		IP:            cc.IP,
		Location:      cc.Location,
		UserAgent:     userAgentString(cc),
		Success:       success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if details != nil {
		event.Metadata = details()
	}

	e.auditor.Emit(ctx, event)
	return correlationID
}

// emitAuditChange is emitAudit with before/after snapshots for mutations.
func (e *Engine) emitAuditChange(
	ctx context.Context,
	eventType string,
	actorID, subjectID string,
	before, after map[string]string,
	details func() map[string]string,
) uuid.UUID {
	correlationID := uuid.New()
	if e == nil || e.auditor == nil {
		return correlationID
	}

	cc := clientContextFromContext(ctx)
	event := internalaudit.Event{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		CorrelationID: correlationID.String(),
		ActorID:       actorID,
		SubjectID:     subjectID,
		IP:            cc.IP,
		Location:      cc.Location,
		UserAgent:     userAgentString(cc),
		Success:       true,
		Before:        before,
		After:         after,
	}
	if details != nil {
		event.Metadata = details()
	}

	e.auditor.Emit(ctx, event)
	return correlationID
}

func userAgentString(cc ClientContext) string {
	switch {
	case cc.Browser == "" && cc.OS == "" && cc.Device == "":
		return ""
	case cc.Device == "":
		return cc.Browser + "/" + cc.OS
	default:
		return cc.Browser + "/" + cc.OS + "/" + cc.Device
	}
}

func accountSnapshot(a *Account) map[string]string {
	if a == nil {
		return nil
	}
	snap := map[string]string{
		"email":       a.Email,
		"first_name":  a.FirstName,
		"last_name":   a.LastName,
		"system_role": a.SystemRole.String(),
	}
	if a.Disabled {
		snap["disabled"] = "true"
	}
	if a.Deleted {
		snap["deleted"] = "true"
	}
	return snap
}
