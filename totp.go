package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/url"
	"strings"
	"time"
)

// totpManager generates and verifies RFC 6238 codes. Secrets are handled in
// their base32 form; callers are responsible for encrypting them at rest.
type totpManager struct {
	issuer    string
	digits    int
	period    int64
	skew      int
	newHash   func() hash.Hash
	algorithm string
}

func newTOTPManager(cfg TOTPConfig) (*totpManager, error) {
	m := &totpManager{
		issuer: cfg.Issuer,
		digits: cfg.Digits,
		period: int64(cfg.Period),
		skew:   cfg.Skew,
	}

	switch strings.ToUpper(cfg.Algorithm) {
	case "", "SHA1":
		m.newHash, m.algorithm = sha1.New, "SHA1"
	case "SHA256":
		m.newHash, m.algorithm = sha256.New, "SHA256"
	case "SHA512":
		m.newHash, m.algorithm = sha512.New, "SHA512"
	default:
		return nil, errors.New("unsupported totp algorithm")
	}

	return m, nil
}

// GenerateSecret returns a fresh 160-bit secret in unpadded base32.
func (m *totpManager) GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisionURI renders the otpauth:// URI authenticator apps scan.
func (m *totpManager) ProvisionURI(secret, accountName string) string {
	label := url.PathEscape(m.issuer + ":" + accountName)
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", m.issuer)
	values.Set("algorithm", m.algorithm)
	values.Set("digits", fmt.Sprintf("%d", m.digits))
	values.Set("period", fmt.Sprintf("%d", m.period))
	return "otpauth://totp/" + label + "?" + values.Encode()
}

// VerifyCode checks code against the current time step and the configured
// skew on either side. All candidate steps are evaluated so timing does not
// reveal which one matched.
func (m *totpManager) VerifyCode(secret, code string, now time.Time) (bool, error) {
	if len(code) != m.digits || !isNumericString(code) {
		return false, nil
	}

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return false, fmt.Errorf("malformed totp secret: %w", err)
	}

	step := now.Unix() / m.period
	matched := 0
	for offset := -int64(m.skew); offset <= int64(m.skew); offset++ {
		candidate := m.hotpCode(key, uint64(step+offset))
		matched |= subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
	}

	return matched == 1, nil
}

func (m *totpManager) hotpCode(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(m.newHash, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 section 5.3.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < m.digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", m.digits, value%mod)
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
