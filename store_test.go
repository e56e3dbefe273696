package authcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskhive/authcore/lockout"
	"github.com/deskhive/authcore/permission"
)

// memStore is an in-memory Store for engine tests. It copies accounts on read
// so engine-side mutations only land through explicit writes, matching how a
// real store behaves.
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	tokens   []TokenRecord
	grants   map[uuid.UUID]*permission.Rows
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*Account),
		grants:   make(map[uuid.UUID]*permission.Rows),
	}
}

func (m *memStore) put(acct *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *acct
	m.accounts[acct.ID] = &cp
}

func (m *memStore) get(id uuid.UUID) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[id]; ok {
		cp := *acct
		return &cp
	}
	return nil
}

func (m *memStore) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acct := range m.accounts {
		if acct.Email == email && !acct.Deleted {
			cp := *acct
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memStore) GetAccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	if acct := m.get(id); acct != nil {
		return acct, nil
	}
	return nil, ErrRecordNotFound
}

func (m *memStore) CreateAccount(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == account.Email && !existing.Deleted {
			return ErrRecordExists
		}
	}
	account.Stamp = uuid.NewString()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *memStore) UpdateAccount(_ context.Context, account *Account, stamp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.accounts[account.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if existing.Stamp != stamp {
		return ErrStaleRecord
	}
	account.Stamp = uuid.NewString()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *memStore) RecordFailure(_ context.Context, id uuid.UUID, factor LockoutFactor, now time.Time, window time.Duration, maxAttempts int) (lockout.Counter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return lockout.Counter{}, false, ErrRecordNotFound
	}

	counter := acct.PasswordLockout
	if factor == FactorTOTP {
		counter = acct.TOTP.Lockout
	}
	next, locked := lockout.Evaluate(counter, now, window, maxAttempts)
	if factor == FactorPassword {
		acct.PasswordLockout = next
	} else {
		acct.TOTP.Lockout = next
	}
	return next, locked, nil
}

func (m *memStore) UpdateLockout(_ context.Context, id uuid.UUID, factor LockoutFactor, counter lockout.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrRecordNotFound
	}
	if factor == FactorPassword {
		acct.PasswordLockout = counter
	} else {
		acct.TOTP.Lockout = counter
	}
	return nil
}

func (m *memStore) SetPasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrRecordNotFound
	}
	acct.PasswordHash = hash
	return nil
}

func (m *memStore) SetTOTPState(_ context.Context, id uuid.UUID, state TOTPState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrRecordNotFound
	}
	acct.TOTP = state
	return nil
}

func (m *memStore) TouchLastAccess(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrRecordNotFound
	}
	acct.LastAccessAt = at
	return nil
}

func (m *memStore) InsertToken(_ context.Context, record *TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, *record)
	return nil
}

func (m *memStore) ListTokens(_ context.Context, ownerKey string, kind TokenKind) ([]TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TokenRecord
	for _, record := range m.tokens {
		if record.OwnerKey == ownerKey && record.Kind == kind {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memStore) DeleteTokens(_ context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var kept []TokenRecord
	var removed int64
	for _, record := range m.tokens {
		if _, ok := wanted[record.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	m.tokens = kept
	return removed, nil
}

func (m *memStore) GrantRows(_ context.Context, accountID uuid.UUID) (*permission.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rows, ok := m.grants[accountID]; ok {
		return rows, nil
	}
	return &permission.Rows{}, nil
}
