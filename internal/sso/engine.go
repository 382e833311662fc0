package sso

import (
	"strings"
	"time"

	"walletauth.org/internal/autherr"
)

// Params are the call-site inputs of an evaluation. Usage bookkeeping is
// owned by the caller; the engine only reads it.
type Params struct {
	// Issuer is the issuer the platform expects.
	Issuer string
	// Identifiers lists the unique identifiers the platform accepts.
	Identifiers []string
	UsageCount  uint64
	// LastUsage is the previous successful use. The zero value means the
	// asset was never used and disables the inactivity check.
	LastUsage time.Time
	// WalletAddress is the bech32 address derived from the verified
	// credential.
	WalletAddress string
}

// Evaluate runs the SSO checks in order and returns the granted roles, or an
// *autherr.Error naming the first check that failed. now is read once by the
// caller and used for every time comparison.
func Evaluate(md Metadata, p Params, now time.Time) ([]string, error) {
	if !md.Supported() {
		return nil, autherr.New(autherr.UnsupportedVersion)
	}
	if now.After(md.ExpirationDate) {
		return nil, autherr.New(autherr.Expired)
	}
	if md.Issuer != p.Issuer {
		return nil, autherr.New(autherr.IssuerMismatch)
	}
	if !containsIdentifier(p.Identifiers, md.UniqueIdentifier) {
		return nil, autherr.New(autherr.IdentifierMismatch)
	}
	if !md.Transferable && (md.TiedWallet == "" || md.TiedWallet != p.WalletAddress) {
		return nil, autherr.New(autherr.OwnershipMismatch)
	}
	if md.MaxUsageEnabled && p.UsageCount >= md.MaxUsage {
		return nil, autherr.New(autherr.UsageExceeded)
	}
	if md.InactivityEnabled && !p.LastUsage.IsZero() {
		if now.After(md.InactivityPeriod.Deadline(p.LastUsage)) {
			return nil, autherr.New(autherr.InactivityExceeded)
		}
	}
	roles := make([]string, len(md.Roles))
	copy(roles, md.Roles)
	return roles, nil
}

func containsIdentifier(set []string, id string) bool {
	if id == "" {
		return false
	}
	for _, s := range set {
		if strings.TrimSpace(s) == id {
			return true
		}
	}
	return false
}
