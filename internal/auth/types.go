package auth

import (
	"strings"
	"time"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
)

// User is a stored account. Any of the credential fields may be empty: an
// account can be password-only, wallet-only or both.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	// WalletAddress is the stake address the account was registered with,
	// either the raw hex reported by the wallet or its bech32 form.
	WalletAddress    string
	WalletNetwork    *address.Network
	Asset            *asset.Asset
	VerifiedPolicyID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasWalletBinding reports whether the account is bound to a wallet.
func (u *User) HasWalletBinding() bool {
	return u != nil && (strings.TrimSpace(u.WalletAddress) != "" || u.WalletNetwork != nil)
}

// Usage is the SSO bookkeeping of one asset used by one wallet.
type Usage struct {
	WalletAddress string
	Unit          string
	Count         uint64
	LastUsedAt    time.Time
}

// AuditEntry is an append-only record of an authentication decision.
type AuditEntry struct {
	ID         string
	OccurredAt time.Time
	Subject    string
	Action     string
	Result     string
	Metadata   map[string]string
	TraceID    string
}
