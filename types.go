package authcore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/deskhive/authcore/internal/audit"
	internalmetrics "github.com/deskhive/authcore/internal/metrics"
	"github.com/deskhive/authcore/lockout"
	"github.com/deskhive/authcore/permission"
)

// Role is the system-level role of an account, ordered by authority. It is
// distinct from the organization-scoped role carried on memberships.
type Role uint8

const (
	RoleNoAccess Role = iota
	RoleUser
	RoleAdmin
	RoleSuperAdmin
)

func (r Role) String() string {
	switch r {
	case RoleNoAccess:
		return "noaccess"
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "superadmin"
	default:
		return "unknown"
	}
}

// LockoutFactor selects which of the two independent lockout counters an
// update targets.
type LockoutFactor uint8

const (
	FactorPassword LockoutFactor = iota
	FactorTOTP
)

// TOTPState is the persisted two-factor state of an account. The secret is
// stored encrypted only; LastAcceptedCode tracks the most recently accepted
// code value for replay rejection.
type TOTPState struct {
	Enabled          bool
	EncryptedSecret  []byte // nil when never enrolled
	LastAcceptedCode string
	Lockout          lockout.Counter
}

// Account is the engine's view of one identity row. Accounts are soft-deleted
// only; the store must exclude deleted rows from email lookups.
type Account struct {
	ID         uuid.UUID
	Email      string // stored normalized (lower-case, trimmed)
	FirstName  string
	LastName   string
	SystemRole Role
	Disabled   bool
	Deleted    bool

	PasswordHash    string // empty means SSO-only, no local password
	PasswordLockout lockout.Counter
	TOTP            TOTPState

	AzureObjectID string // external identity binding, empty when unlinked

	LastAccessAt time.Time
	Stamp        string // opaque concurrency token, store-assigned on every write
}

// TokenKind discriminates the four single-use token flows.
type TokenKind uint8

const (
	TokenForgotPassword TokenKind = iota
	TokenRegister
	TokenDisableTOTP
	TokenLinkAzureAccount
)

func (k TokenKind) String() string {
	switch k {
	case TokenForgotPassword:
		return "forgot_password"
	case TokenRegister:
		return "register"
	case TokenDisableTOTP:
		return "disable_totp"
	case TokenLinkAzureAccount:
		return "link_azure_account"
	default:
		return "unknown"
	}
}

// TokenRemovalReason is recorded with every token deletion.
type TokenRemovalReason uint8

const (
	TokenExpired TokenRemovalReason = iota
	TokenRevoked
	TokenConsumed
)

func (r TokenRemovalReason) String() string {
	switch r {
	case TokenExpired:
		return "expired"
	case TokenRevoked:
		return "revoked"
	case TokenConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// ClientContext describes the caller's approximate location and device,
// recorded on audit facts and token issuance.
type ClientContext struct {
	IP       string
	Location string
	Browser  string
	OS       string
	Device   string
}

// TokenRecord is one persisted ephemeral token. Only the encrypted form of
// the token is ever stored; the plaintext exists in memory at issuance and
// redemption only.
type TokenRecord struct {
	ID         uuid.UUID
	OwnerKey   string // account id string, or bare email for pre-account flows
	Kind       TokenKind
	Ciphertext []byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ReceiptID  uuid.UUID // correlation id of the issuance audit fact
	Context    ClientContext
}

// AccountStore is the account persistence contract. Lookups by email operate
// on the normalized form and exclude soft-deleted rows.
type AccountStore interface {
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// CreateAccount returns ErrRecordExists when the email is taken.
	CreateAccount(ctx context.Context, account *Account) error
	// UpdateAccount applies profile/role fields conditioned on stamp and
	// assigns a fresh stamp. ErrStaleRecord on mismatch, ErrRecordNotFound
	// when the row is gone.
	UpdateAccount(ctx context.Context, account *Account, stamp string) error
	// RecordFailure applies one failure to a factor's counter atomically:
	// the read, lockout.Evaluate and write happen against the same row in
	// one transaction boundary, so concurrent failed attempts never
	// under-count. Returns the updated counter and whether a lockout is
	// active after the update.
	RecordFailure(ctx context.Context, id uuid.UUID, factor LockoutFactor, now time.Time, window time.Duration, maxAttempts int) (lockout.Counter, bool, error)
	// UpdateLockout overwrites one factor's counter with an absolute value.
	// Used only to clear counters on successful verification or reset.
	UpdateLockout(ctx context.Context, id uuid.UUID, factor LockoutFactor, counter lockout.Counter) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	SetTOTPState(ctx context.Context, id uuid.UUID, state TOTPState) error
	TouchLastAccess(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TokenStore is the ephemeral-token persistence contract.
type TokenStore interface {
	InsertToken(ctx context.Context, record *TokenRecord) error
	ListTokens(ctx context.Context, ownerKey string, kind TokenKind) ([]TokenRecord, error)
	// DeleteTokens removes the given rows and reports how many existed.
	// Racing redeemers are serialized by this count: only the caller whose
	// delete removed rows may treat the token as consumed.
	DeleteTokens(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// GrantStore returns the flat membership/grant rows for one account,
// pre-filtered by role: SuperAdmin rows cover every Function/AssetType
// reachable through the account's building memberships, Admin rows only
// those with an explicit scope grant, other roles none.
type GrantStore interface {
	GrantRows(ctx context.Context, accountID uuid.UUID) (*permission.Rows, error)
}

// Store is the full persistence contract the engine is built against.
type Store interface {
	AccountStore
	TokenStore
	GrantStore
}

// Locker acquires process-external named locks without blocking. TryLock
// returns ErrLockContended when the lock is held elsewhere; the returned
// release function must run on every exit path.
type Locker interface {
	TryLock(ctx context.Context, name string) (func(), error)
}

// TokenDelivery is handed to the Notifier for out-of-band delivery. The
// receipt id lets the recipient revoke an issuance they did not request.
type TokenDelivery struct {
	Recipient string
	Kind      TokenKind
	Plaintext string
	ReceiptID uuid.UUID
	Context   ClientContext
}

// Notifier receives issued token plaintexts for out-of-band delivery. The
// engine has no knowledge of the delivery channel.
type Notifier interface {
	Deliver(ctx context.Context, delivery TokenDelivery)
}

// AuditEvent is the append-only audit fact emitted for every mutation.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an AuditSink that writes JSON-encoded events to a writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricPasswordLockout       = internalmetrics.MetricPasswordLockout
	MetricTOTPLockout           = internalmetrics.MetricTOTPLockout
	MetricTOTPReplayRejected    = internalmetrics.MetricTOTPReplayRejected
	MetricTokenIssued           = internalmetrics.MetricTokenIssued
	MetricTokenRedeemed         = internalmetrics.MetricTokenRedeemed
	MetricTokenExpired          = internalmetrics.MetricTokenExpired
	MetricTokenRevoked          = internalmetrics.MetricTokenRevoked
	MetricRegistrationSuccess   = internalmetrics.MetricRegistrationSuccess
	MetricRegistrationDuplicate = internalmetrics.MetricRegistrationDuplicate
	MetricRegistrationContended = internalmetrics.MetricRegistrationContended
	MetricAccountUpdateStale    = internalmetrics.MetricAccountUpdateStale
	MetricTreeBuilt             = internalmetrics.MetricTreeBuilt
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
