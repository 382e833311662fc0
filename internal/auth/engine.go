package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
	"walletauth.org/internal/indexer"
	"walletauth.org/internal/obs"
	"walletauth.org/internal/wallet"
)

// Ledger is the part of the chain indexer the decision engine needs.
type Ledger interface {
	VerifyOwnership(ctx context.Context, stakeAddress string, a asset.Asset) (bool, error)
	FetchAssetMetadata(ctx context.Context, a asset.Asset) (indexer.Details, error)
}

// WalletProof is the wallet material of a request: the stake address the
// wallet reported (hex, with or without header byte), its network, and a
// CIP-30 data signature over the nonce.
type WalletProof struct {
	StakeAddress string
	// Network is required whenever the other fields are set.
	Network   *address.Network
	Signature string
	Key       string
	Nonce     string
}

// Present reports whether every wallet field was supplied.
func (w WalletProof) Present() bool {
	return nonEmpty(w.StakeAddress) && nonEmpty(w.Signature) && nonEmpty(w.Key) && nonEmpty(w.Nonce)
}

// Method names the branch that authenticated a request.
type Method string

const (
	MethodWallet   Method = "wallet"
	MethodPassword Method = "password"
)

// Engine composes signature verification, password checks, on-chain
// ownership and SSO metadata evaluation into login, signup and SSO
// decisions. It holds no per-request state and is safe for concurrent use.
type Engine struct {
	verifier *wallet.Verifier
	ledger   Ledger
	hasher   Hasher
	now      func() time.Time
	logger   *zap.Logger
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine) error

// WithVerifier replaces the wallet signature verifier.
func WithVerifier(v *wallet.Verifier) EngineOption {
	return func(e *Engine) error {
		if v == nil {
			return errors.New("auth: verifier is nil")
		}
		e.verifier = v
		return nil
	}
}

// WithHasher replaces the password hashing capability.
func WithHasher(h Hasher) EngineOption {
	return func(e *Engine) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		e.hasher = h
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) error {
		if fn != nil {
			e.now = fn
		}
		return nil
	}
}

// WithLogger sets the logger decisions are reported to.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// NewEngine constructs an Engine backed by ledger.
func NewEngine(ledger Ledger, opts ...EngineOption) (*Engine, error) {
	if ledger == nil {
		return nil, errors.New("auth: ledger is required")
	}
	e := &Engine{
		verifier: wallet.NewVerifier(nil),
		ledger:   ledger,
		hasher:   BcryptHasher{},
		now:      time.Now,
		logger:   obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// verifyWallet checks the signature and returns the derived bech32 address.
// Every failure, including malformed hex, is InvalidWalletAuthentication.
func (e *Engine) verifyWallet(p WalletProof) (string, error) {
	cred, err := wallet.ParseCredential(p.StakeAddress, *p.Network, p.Signature, p.Key, p.Nonce)
	if err != nil {
		return "", autherr.New(autherr.InvalidWalletAuthentication)
	}
	if !e.verifier.VerifyOwnership(cred) {
		return "", autherr.New(autherr.InvalidWalletAuthentication)
	}
	derived, err := address.DeriveAddress(cred.KeyHashHex, cred.Network)
	if err != nil {
		return "", autherr.New(autherr.InvalidWalletAuthentication)
	}
	return derived, nil
}

// verifyOnChain requires a to be held by the wallet with its exact amount.
func (e *Engine) verifyOnChain(ctx context.Context, derived string, a asset.Asset) error {
	ok, err := e.ledger.VerifyOwnership(ctx, derived, a)
	if err != nil {
		return asIndexerError(err)
	}
	if !ok {
		return autherr.New(autherr.AssetNotVerifiable)
	}
	return nil
}

func (e *Engine) finish(flow string, err error, fields ...zap.Field) {
	result := "success"
	if err != nil {
		result = string(autherr.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	obs.ObserveDecision(flow, result)
	e.logger.Debug("auth decision", append(fields, zap.String("flow", flow), zap.String("result", result))...)
}

func asIndexerError(err error) error {
	if autherr.Is(err, autherr.IndexerError) {
		return err
	}
	return autherr.Wrap(autherr.IndexerError, err)
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
