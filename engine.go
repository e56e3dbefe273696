package authcore

import (
	"log"

	internalaudit "github.com/deskhive/authcore/internal/audit"
	internalmetrics "github.com/deskhive/authcore/internal/metrics"
	"github.com/deskhive/authcore/internal/secrets"
	"github.com/deskhive/authcore/jwt"
	"github.com/deskhive/authcore/password"
	"github.com/deskhive/authcore/session"
)

// Engine is the credential and authorization engine. Construct it through the
// Builder; the zero value is not usable. Safe for concurrent use.
type Engine struct {
	config Config

	store    Store
	locker   Locker
	notifier Notifier

	hasher      *password.Hasher
	totp        *totpManager
	totpCipher  *secrets.Cipher
	tokenCipher *secrets.Cipher

	sessions *session.Store
	jwts     *jwt.Manager

	auditor *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics
	logger  *log.Logger
}

// Close drains the audit dispatcher. Call once when shutting down; accepted
// audit facts are flushed before Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.auditor.Close()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit facts were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.auditor.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) logf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
