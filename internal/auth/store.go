package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Usage(ctx context.Context) UsageStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByWallet matches the stored wallet address against any of the
	// given forms (raw hex or bech32).
	FindByWallet(ctx context.Context, addresses ...string) (*User, error)
}

// UsageStore keeps per-wallet SSO usage. The decision engine only reads it;
// the host records a use after a successful decision.
type UsageStore interface {
	// Get returns the zero Usage when the asset was never used.
	Get(ctx context.Context, walletAddress, unit string) (Usage, error)
	Record(ctx context.Context, walletAddress, unit string, at time.Time) (Usage, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
