// Package jwt issues and parses the signed session tokens handed to callers
// after a successful credential verification. The token binds the account id
// and session id; the authorization material itself lives in the session
// cache, never in the token.
package jwt
