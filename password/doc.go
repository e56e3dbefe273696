// Package password implements password hashing and verification with Argon2id
// plus a server-side pepper.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The pepper is mixed into the key material before hashing and is never part
// of the encoded output, so leaked hashes cannot be attacked without it.
// Verify recomputes with the parameters embedded in the stored hash, and
// NeedsUpgrade reports when the configured cost has moved ahead of a stored
// hash so the caller can transparently re-hash on the next successful login.
//
// This package owns hashing and verification only; lockout accounting and
// password policy live in the engine.
package password
