// Package pgstore implements the engine's persistence contracts on
// PostgreSQL via database/sql and the pgx stdlib driver. It provides the
// account, token and grant stores, an advisory-lock Locker, and an audit sink
// that appends to an audit_log table.
package pgstore
