package authcore

import (
	"bytes"
	"context"
	"encoding/base32"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/deskhive/authcore/lockout"
	"github.com/deskhive/authcore/permission"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.TOTP.EncryptionKey = bytes.Repeat([]byte{0x11}, 32)
	cfg.Tokens.EncryptionKey = bytes.Repeat([]byte{0x22}, 32)
	// Cheapest parameters the hasher accepts, to keep tests fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	engine, err := New().
		WithConfig(testConfig()).
		WithStore(store).
		WithRedis(client).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, mr
}

func seedAccount(t *testing.T, engine *Engine, store *memStore, email, password string) *Account {
	t.Helper()
	hash, err := engine.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	acct := &Account{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		SystemRole:   RoleUser,
		PasswordHash: hash,
		Stamp:        uuid.NewString(),
	}
	store.put(acct)
	return acct
}

// currentTOTPCode derives the code an authenticator app would show for the
// given base32 secret right now.
func currentTOTPCode(t *testing.T, engine *Engine, secret string) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	step := time.Now().UTC().Unix() / engine.totp.period
	return engine.totp.hotpCode(key, uint64(step))
}

// previousTOTPCode derives the code for the preceding time step, still valid
// under the default skew of one step.
func previousTOTPCode(t *testing.T, engine *Engine, secret string) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	step := time.Now().UTC().Unix()/engine.totp.period - 1
	return engine.totp.hotpCode(key, uint64(step))
}

func TestVerifyCredentialsShortCircuitOrder(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	check := func(email, password string, want VerifyStatus) {
		t.Helper()
		result, err := engine.VerifyCredentials(ctx, email, password, "")
		if err != nil {
			t.Fatalf("VerifyCredentials(%s): %v", email, err)
		}
		if result.Status != want {
			t.Fatalf("VerifyCredentials(%s) = %v, want %v", email, result.Status, want)
		}
	}

	check("missing@example.com", "irrelevant", VerifyUserDidNotExist)

	disabled := seedAccount(t, engine, store, "disabled@example.com", "password-123")
	disabled.Disabled = true
	store.put(disabled)
	check("disabled@example.com", "password-123", VerifyNoAccess)

	noRole := seedAccount(t, engine, store, "norole@example.com", "password-123")
	noRole.SystemRole = RoleNoAccess
	store.put(noRole)
	check("norole@example.com", "password-123", VerifyNoAccess)

	sso := seedAccount(t, engine, store, "sso@example.com", "password-123")
	sso.PasswordHash = ""
	store.put(sso)
	check("sso@example.com", "anything-at-all", VerifyPasswordNotSet)

	seedAccount(t, engine, store, "plain@example.com", "password-123")
	check("plain@example.com", "wrong-password", VerifyPasswordInvalid)
	check("PLAIN@example.com ", "password-123", VerifyOk) // email is normalized
}

func TestVerifyCredentialsFifthFailureLocksOut(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	acct := seedAccount(t, engine, store, "lock@example.com", "password-123")
	acct.PasswordLockout = lockout.Counter{
		Failures:    4,
		LastFailure: time.Now().UTC().Add(-time.Minute),
	}
	store.put(acct)

	result, err := engine.VerifyCredentials(ctx, "lock@example.com", "wrong-password", "")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if result.Status != VerifyPasswordLockedOut {
		t.Fatalf("fifth failure = %v, want VerifyPasswordLockedOut", result.Status)
	}

	stored := store.get(acct.ID)
	if stored.PasswordLockout.Failures != 5 {
		t.Fatalf("failure count = %d, want 5", stored.PasswordLockout.Failures)
	}
	lockedUntil := stored.PasswordLockout.LockedUntil
	if !lockedUntil.After(time.Now()) {
		t.Fatalf("lockout end not in the future: %v", lockedUntil)
	}

	// Further failures inside the lockout must not move the end.
	result, err = engine.VerifyCredentials(ctx, "lock@example.com", "wrong-password", "")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if result.Status != VerifyPasswordLockedOut {
		t.Fatalf("locked account = %v, want VerifyPasswordLockedOut", result.Status)
	}
	if !store.get(acct.ID).PasswordLockout.LockedUntil.Equal(lockedUntil) {
		t.Fatal("active lockout end moved on repeated failure")
	}

	// The correct password does not bypass an active lockout.
	result, err = engine.VerifyCredentials(ctx, "lock@example.com", "password-123", "")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if result.Status != VerifyPasswordLockedOut {
		t.Fatalf("correct password under lockout = %v, want VerifyPasswordLockedOut", result.Status)
	}
}

func TestVerifyCredentialsSuccessClearsState(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	acct := seedAccount(t, engine, store, "reset@example.com", "password-123")
	acct.PasswordLockout = lockout.Counter{Failures: 3, LastFailure: time.Now().UTC()}
	store.put(acct)

	buildingID, orgID := uuid.New(), uuid.New()
	store.grants[acct.ID] = &permission.Rows{
		Organizations: []permission.OrganizationRow{{ID: orgID, Name: "Acme", Role: permission.OrgRoleUser}},
		Buildings:     []permission.BuildingRow{{ID: buildingID, OrganizationID: orgID, Name: "HQ"}},
		BookableDesks: []uuid.UUID{buildingID},
	}

	result, err := engine.VerifyCredentials(ctx, "reset@example.com", "password-123", "")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if result.Status != VerifyOk {
		t.Fatalf("status = %v, want VerifyOk", result.Status)
	}

	stored := store.get(acct.ID)
	if stored.PasswordLockout.Failures != 0 || !stored.PasswordLockout.LockedUntil.IsZero() {
		t.Fatalf("counter not cleared: %+v", stored.PasswordLockout)
	}
	if stored.LastAccessAt.IsZero() {
		t.Fatal("last access not touched")
	}

	tree := result.Permissions
	if tree == nil || len(tree.Organizations) != 1 {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	b := tree.Building(buildingID)
	if b == nil || !b.BookableDesks {
		t.Fatalf("building not materialized: %+v", b)
	}
}

func TestVerifyCredentialsUpgradesWeakHash(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	// The seeding engine's cheap parameters stand in for an old record.
	acct := seedAccount(t, engine, store, "upgrade@example.com", "password-123")

	strongCfg := testConfig()
	strongCfg.Password.Time = 2
	strongEngine, err := New().
		WithConfig(strongCfg).
		WithStore(store).
		WithLocker(noopLocker{}).
		Build()
	if err != nil {
		t.Fatalf("Build strong engine: %v", err)
	}
	defer strongEngine.Close()

	oldHash := store.get(acct.ID).PasswordHash
	result, err := strongEngine.VerifyCredentials(ctx, "upgrade@example.com", "password-123", "")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if result.Status != VerifyOk {
		t.Fatalf("status = %v, want VerifyOk", result.Status)
	}
	newHash := store.get(acct.ID).PasswordHash
	if newHash == oldHash {
		t.Fatal("hash was not upgraded to the stronger parameters")
	}
	if match, _ := strongEngine.hasher.Verify("password-123", newHash); !match {
		t.Fatal("upgraded hash does not verify")
	}
}

func TestLoginIssuesSession(t *testing.T) {
	engine, store, mr := newTestEngine(t)
	ctx := context.Background()

	acct := seedAccount(t, engine, store, "session@example.com", "password-123")

	result, err := engine.Login(ctx, "session@example.com", "password-123", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Status != VerifyOk || result.SessionID == "" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	sess, err := engine.SessionPermissions(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("SessionPermissions: %v", err)
	}
	if sess.AccountID != acct.ID {
		t.Fatalf("session account = %s, want %s", sess.AccountID, acct.ID)
	}

	if err := engine.Logout(ctx, result.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if mr.Exists("asn:" + result.SessionID) {
		t.Fatal("session key survived logout")
	}
}

// noopLocker satisfies the builder in tests that never register accounts.
type noopLocker struct{}

func (noopLocker) TryLock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// barrierStore releases account reads only after both racing callers have
// read, forcing their failure writes to overlap.
type barrierStore struct {
	*memStore
	gate sync.WaitGroup
}

func (b *barrierStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	acct, err := b.memStore.GetAccountByEmail(ctx, email)
	b.gate.Done()
	b.gate.Wait()
	return acct, err
}

func TestConcurrentFailuresBothCount(t *testing.T) {
	inner := newMemStore()
	gated := &barrierStore{memStore: inner}
	gated.gate.Add(2)

	engine, err := New().
		WithConfig(testConfig()).
		WithStore(gated).
		WithLocker(noopLocker{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	acct := seedAccount(t, engine, inner, "race@example.com", "password-123")

	// Both attempts read the account before either records its failure; the
	// store-side read-modify-write must still count both.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.VerifyCredentials(context.Background(), "race@example.com", "wrong-password", "")
			if err != nil {
				t.Errorf("VerifyCredentials: %v", err)
				return
			}
			if result.Status != VerifyPasswordInvalid {
				t.Errorf("status = %v, want VerifyPasswordInvalid", result.Status)
			}
		}()
	}
	wg.Wait()

	if got := inner.get(acct.ID).PasswordLockout.Failures; got != 2 {
		t.Fatalf("two concurrent failed attempts recorded Failures=%d, want 2", got)
	}
}

// upgradeFailStore rejects hash rewrites to exercise the best-effort upgrade.
type upgradeFailStore struct {
	*memStore
}

func (upgradeFailStore) SetPasswordHash(context.Context, uuid.UUID, string) error {
	return ErrStoreUnavailable
}

func TestVerifyCredentialsUpgradeWriteFailureStillOk(t *testing.T) {
	inner := newMemStore()
	store := upgradeFailStore{memStore: inner}
	ctx := context.Background()

	seedCfg := testConfig()
	seedEngine, err := New().
		WithConfig(seedCfg).
		WithStore(store).
		WithLocker(noopLocker{}).
		Build()
	if err != nil {
		t.Fatalf("Build seed engine: %v", err)
	}
	defer seedEngine.Close()

	acct := seedAccount(t, seedEngine, inner, "besteffort@example.com", "password-123")
	oldHash := inner.get(acct.ID).PasswordHash

	strongCfg := testConfig()
	strongCfg.Password.Time = 2
	strongEngine, err := New().
		WithConfig(strongCfg).
		WithStore(store).
		WithLocker(noopLocker{}).
		Build()
	if err != nil {
		t.Fatalf("Build strong engine: %v", err)
	}
	defer strongEngine.Close()

	// The upgrade write fails, but the login already succeeded on the old
	// hash and must say so.
	result, err := strongEngine.VerifyCredentials(ctx, "besteffort@example.com", "password-123", "")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if result.Status != VerifyOk {
		t.Fatalf("status = %v, want VerifyOk despite failed upgrade write", result.Status)
	}
	if inner.get(acct.ID).PasswordHash != oldHash {
		t.Fatal("hash changed even though the write was rejected")
	}
}
