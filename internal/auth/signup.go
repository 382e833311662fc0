package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
)

// SignupOptions carries the credential material of a new account.
type SignupOptions struct {
	Email    string
	Password string
	Wallet   WalletProof
	// Asset optionally binds the account to a held asset.
	Asset *asset.Asset
	// AuthPolicies lists the minting policies the platform recognizes. With
	// AuthPolicyStrict set, assets outside the list are refused.
	AuthPolicies     []string
	AuthPolicyStrict bool
}

// SignupOutcome is the account material a successful signup yields. The
// caller persists it.
type SignupOutcome struct {
	Method       Method
	Email        string
	PasswordHash string
	// StakeAddress is the raw hex reported by the wallet; WalletAddress is
	// its bech32 encoding.
	StakeAddress     string
	WalletAddress    string
	WalletNetwork    *address.Network
	Asset            *asset.Asset
	VerifiedPolicyID string
}

// User converts the outcome into an account record.
func (o SignupOutcome) User() *User {
	return &User{
		Email:            o.Email,
		PasswordHash:     o.PasswordHash,
		WalletAddress:    o.StakeAddress,
		WalletNetwork:    o.WalletNetwork,
		Asset:            o.Asset,
		VerifiedPolicyID: o.VerifiedPolicyID,
	}
}

// Signup validates the material of a new account.
func (e *Engine) Signup(ctx context.Context, opts SignupOptions) (out SignupOutcome, err error) {
	defer func() { e.finish("signup", err, zap.String("method", string(out.Method))) }()

	switch {
	case opts.Wallet.Present():
		out.Method = MethodWallet
		if opts.Wallet.Network == nil {
			return out, autherr.New(autherr.InvalidSignupInputs)
		}
		derived, err := e.verifyWallet(opts.Wallet)
		if err != nil {
			return out, err
		}
		network := *opts.Wallet.Network
		out.StakeAddress = strings.ToLower(strings.TrimSpace(opts.Wallet.StakeAddress))
		out.WalletAddress = derived
		out.WalletNetwork = &network
		if opts.Asset == nil {
			return out, nil
		}
		a := asset.Normalize(*opts.Asset)
		if err := a.Validate(); err != nil {
			return out, autherr.Wrap(autherr.InvalidAsset, err)
		}
		listed := containsFold(opts.AuthPolicies, a.PolicyID)
		// policy rejection happens before any chain query
		if opts.AuthPolicyStrict && !listed {
			return out, autherr.New(autherr.InvalidAssetPolicy)
		}
		if err := e.verifyOnChain(ctx, derived, a); err != nil {
			return out, err
		}
		out.Asset = &a
		if listed {
			out.VerifiedPolicyID = a.PolicyID
		}
		return out, nil

	case nonEmpty(opts.Email) && opts.Password != "":
		out.Method = MethodPassword
		if !ValidateEmail(opts.Email) {
			return out, autherr.New(autherr.InvalidEmailFormat)
		}
		if !ValidatePassword(opts.Password) {
			return out, autherr.New(autherr.InvalidPassword)
		}
		hash, err := e.hasher.Hash(opts.Password)
		if err != nil {
			return out, autherr.Wrap(autherr.InvalidPassword, err)
		}
		out.Email = opts.Email
		out.PasswordHash = hash
		return out, nil
	}
	return out, autherr.New(autherr.InvalidSignupInputs)
}
