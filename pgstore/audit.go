package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"

	authcore "github.com/deskhive/authcore"
)

// AuditSink appends audit facts to an audit_log table. Insert failures are
// swallowed: the dispatcher calls Emit from its drain goroutine and a lost
// audit row must never wedge it.
type AuditSink struct {
	db *sql.DB
}

var _ authcore.AuditSink = (*AuditSink)(nil)

func NewAuditSink(db *sql.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Emit(ctx context.Context, event authcore.AuditEvent) {
	before, _ := json.Marshal(event.Before)
	after, _ := json.Marshal(event.After)
	metadata, _ := json.Marshal(event.Metadata)

	_, _ = s.db.ExecContext(ctx, `
		insert into audit_log (
			correlation_id, event_type, occurred_at, actor_id, subject_id,
			ip, location, user_agent, success, error,
			description, before, after, metadata
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		event.CorrelationID, event.EventType, event.Timestamp,
		nullString(event.ActorID), nullString(event.SubjectID),
		nullString(event.IP), nullString(event.Location), nullString(event.UserAgent),
		event.Success, nullString(event.Error),
		nullString(event.Description), before, after, metadata,
	)
}
