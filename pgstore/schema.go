package pgstore

import "context"

var schemaStatements = []string{
	`create table if not exists accounts (
		id uuid primary key,
		email text not null unique,
		first_name text not null default '',
		last_name text not null default '',
		system_role int not null default 1,
		disabled boolean not null default false,
		deleted boolean not null default false,
		password_hash text,
		pw_fail_count int not null default 0,
		pw_last_failure timestamptz,
		pw_locked_until timestamptz,
		totp_enabled boolean not null default false,
		totp_secret bytea,
		totp_last_code text,
		totp_fail_count int not null default 0,
		totp_last_failure timestamptz,
		totp_locked_until timestamptz,
		azure_object_id text,
		last_access_at timestamptz,
		stamp text not null
	)`,
	`create table if not exists ephemeral_tokens (
		id uuid primary key,
		owner_key text not null,
		kind int not null,
		ciphertext bytea not null,
		issued_at timestamptz not null,
		expires_at timestamptz not null,
		receipt_id uuid not null,
		client_ip text,
		client_location text,
		client_browser text,
		client_os text,
		client_device text
	)`,
	`create index if not exists ephemeral_tokens_owner_kind_idx
		on ephemeral_tokens (owner_key, kind)`,
	`create table if not exists audit_log (
		id bigserial primary key,
		correlation_id uuid not null,
		event_type text not null,
		occurred_at timestamptz not null,
		actor_id text,
		subject_id text,
		ip text,
		location text,
		user_agent text,
		success boolean not null,
		error text,
		description text,
		before jsonb,
		after jsonb,
		metadata jsonb
	)`,
}

// EnsureSchema creates the engine-owned tables when absent. The membership
// and grant tables read by GrantRows belong to the wider application schema
// and are not created here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
