// Package authcore is the credential and authorization engine behind the
// DeskHive workplace-access backend.
//
// The engine owns the security-critical paths: password verification under
// independent windowed lockout counters, TOTP enrollment and replay-safe code
// verification, single-use encrypted tokens for password-reset, registration,
// 2FA-disable and account-linking flows, lock-guarded account registration,
// and aggregation of flat membership/grant rows into the per-session
// permission tree.
//
// Persistence, notification delivery and audit storage are collaborator
// interfaces supplied by the caller; pgstore ships a reference Postgres
// implementation and redis backs the registration lock and session cache.
// Expected outcomes (wrong password, locked out, duplicate email, ...) are
// closed status enums; errors are reserved for infrastructure failures.
package authcore
