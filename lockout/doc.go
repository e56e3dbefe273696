// Package lockout implements the windowed failure-counter policy used for
// password and TOTP brute-force defense. The policy is pure: callers read the
// persisted counter, evaluate the transition, and write the result back within
// one logical transaction.
package lockout
