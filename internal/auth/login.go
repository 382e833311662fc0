package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
)

// LoginOptions carries the credential material of a login. When the wallet
// proof is complete the password fields are ignored.
type LoginOptions struct {
	Email    string
	Password string
	Wallet   WalletProof
	// Assets, when non-nil, are the assets the wallet claims to hold. One
	// of them must be the account's bound asset and must be on-chain.
	Assets []asset.Asset
}

// LoginOutcome describes a successful login.
type LoginOutcome struct {
	Method        Method
	WalletAddress string
	Asset         *asset.Asset
}

// Login decides whether opts authenticates user. user may be nil when no
// account was found; the wallet binding check is then skipped and the
// password branch fails.
func (e *Engine) Login(ctx context.Context, user *User, opts LoginOptions) (out LoginOutcome, err error) {
	defer func() { e.finish("login", err, zap.String("method", string(out.Method))) }()

	switch {
	case opts.Wallet.Present():
		out.Method = MethodWallet
		if opts.Wallet.Network == nil {
			return out, autherr.New(autherr.InvalidLoginInputs)
		}
		derived, err := e.verifyWallet(opts.Wallet)
		if err != nil {
			return out, err
		}
		out.WalletAddress = derived
		if user.HasWalletBinding() && !walletBindingMatches(user, opts.Wallet, derived) {
			return out, autherr.New(autherr.NetworkOrAddressMismatch)
		}
		if opts.Assets == nil {
			return out, nil
		}
		if user == nil || user.Asset == nil {
			return out, autherr.New(autherr.InvalidAsset)
		}
		match, ok := asset.FindMatching(asset.NormalizeAll(opts.Assets), asset.Normalize(*user.Asset))
		if !ok {
			return out, autherr.New(autherr.InvalidAsset)
		}
		if err := e.verifyOnChain(ctx, derived, match); err != nil {
			return out, err
		}
		out.Asset = &match
		return out, nil

	case nonEmpty(opts.Email) && opts.Password != "":
		out.Method = MethodPassword
		if !ValidateEmail(opts.Email) || user == nil || opts.Email != user.Email {
			return out, autherr.New(autherr.InvalidEmailFormat)
		}
		if !e.hasher.Compare(user.PasswordHash, opts.Password) {
			return out, autherr.New(autherr.InvalidPassword)
		}
		return out, nil
	}
	return out, autherr.New(autherr.InvalidLoginInputs)
}

// walletBindingMatches compares the account's bound wallet with the supplied
// one. The stored address may be the raw hex the wallet reported at signup
// (a bare key hash or a full reward address) or its bech32 encoding; two hex
// forms of the same credential match through their derived address.
func walletBindingMatches(user *User, p WalletProof, derived string) bool {
	if user.WalletNetwork == nil || *user.WalletNetwork != *p.Network {
		return false
	}
	stored := strings.TrimSpace(user.WalletAddress)
	if strings.EqualFold(stored, strings.TrimSpace(p.StakeAddress)) || stored == derived {
		return true
	}
	storedDerived, err := address.DeriveAddress(stored, *user.WalletNetwork)
	return err == nil && storedDerived == derived
}
