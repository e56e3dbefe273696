// Package secrets provides the symmetric authenticated-encryption primitive
// used for TOTP secrets and ephemeral tokens, plus high-entropy random string
// generation. Encryption is randomized per call, so ciphertexts of equal
// plaintexts never match and cannot be indexed.
package secrets
