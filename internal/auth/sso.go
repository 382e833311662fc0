package auth

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
	"walletauth.org/internal/obs"
	"walletauth.org/internal/sso"
)

// SSO decision phases, as reported in PhaseMetrics and to Prometheus.
const (
	PhaseSignature = "signature_verification"
	PhaseMetadata  = "metadata_reading"
	PhaseChecks    = "validation_checks"
	PhaseOwnership = "asset_ownership_verification"
	PhaseTotal     = "total"
)

// SSOOptions are the inputs of an SSO decision.
type SSOOptions struct {
	Wallet WalletProof
	Asset  asset.Asset
	// Issuer is the issuer the platform expects in the asset metadata.
	Issuer string
	// PlatformIdentifiers are the unique identifiers the platform accepts.
	PlatformIdentifiers []string
	// PlatformIdentifier is merged into PlatformIdentifiers.
	//
	// Deprecated: use PlatformIdentifiers.
	PlatformIdentifier string
	// UsageCount and LastUsage come from the caller's bookkeeping.
	UsageCount uint64
	LastUsage  time.Time
	// CollectMetrics returns per-phase durations in the outcome.
	CollectMetrics bool
}

// Identifiers returns the accepted identifier set including the deprecated
// single identifier.
func (o SSOOptions) Identifiers() []string {
	ids := make([]string, 0, len(o.PlatformIdentifiers)+1)
	for _, id := range o.PlatformIdentifiers {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if id := strings.TrimSpace(o.PlatformIdentifier); id != "" {
		ids = append(ids, id)
	}
	return ids
}

// PhaseMetrics are the durations of each SSO phase. Phases that did not run
// are zero.
type PhaseMetrics struct {
	SignatureVerification      time.Duration `json:"signatureVerification"`
	MetadataReading            time.Duration `json:"metadataReading"`
	ValidationChecks           time.Duration `json:"validationChecks"`
	AssetOwnershipVerification time.Duration `json:"assetOwnershipVerification"`
	Total                      time.Duration `json:"totalDuration"`
}

// SSOOutcome describes an SSO decision. Metrics is set when requested, on
// failure as well as on success.
type SSOOutcome struct {
	Roles         []string
	WalletAddress string
	Asset         asset.Asset
	Metadata      sso.Metadata
	Metrics       *PhaseMetrics
}

// SSO decides whether the wallet's asset grants an SSO session. The wall
// clock is read once on entry.
func (e *Engine) SSO(ctx context.Context, opts SSOOptions) (out SSOOutcome, err error) {
	opts.Asset = asset.Normalize(opts.Asset)
	now := e.now()
	var m PhaseMetrics
	defer func() {
		m.Total = e.now().Sub(now)
		obs.ObservePhase(PhaseTotal, m.Total)
		if opts.CollectMetrics {
			out.Metrics = &m
		}
		e.finish("sso", err, zap.String("unit", opts.Asset.Unit()))
	}()
	phase := func(name string, dst *time.Duration, fn func() error) error {
		start := e.now()
		err := fn()
		*dst = e.now().Sub(start)
		obs.ObservePhase(name, *dst)
		return err
	}

	if !opts.Wallet.Present() || opts.Wallet.Network == nil {
		return out, autherr.New(autherr.InvalidSSOInputs)
	}
	if err := opts.Asset.Validate(); err != nil {
		return out, autherr.Wrap(autherr.InvalidSSOInputs, err)
	}
	out.Asset = opts.Asset

	var derived string
	err = phase(PhaseSignature, &m.SignatureVerification, func() error {
		var verr error
		derived, verr = e.verifyWallet(opts.Wallet)
		return verr
	})
	if err != nil {
		return out, err
	}
	out.WalletAddress = derived

	var md sso.Metadata
	err = phase(PhaseMetadata, &m.MetadataReading, func() error {
		details, ferr := e.ledger.FetchAssetMetadata(ctx, opts.Asset)
		if ferr != nil {
			return asIndexerError(ferr)
		}
		if !details.HasSSO {
			return autherr.New(autherr.SSOUnavailable)
		}
		parsed, perr := sso.Parse(details.SSO)
		if perr != nil {
			return autherr.Wrap(autherr.InvalidMetadata, perr)
		}
		md = parsed
		return nil
	})
	if err != nil {
		return out, err
	}
	out.Metadata = md

	var roles []string
	err = phase(PhaseChecks, &m.ValidationChecks, func() error {
		var eerr error
		roles, eerr = sso.Evaluate(md, sso.Params{
			Issuer:        opts.Issuer,
			Identifiers:   opts.Identifiers(),
			UsageCount:    opts.UsageCount,
			LastUsage:     opts.LastUsage,
			WalletAddress: derived,
		}, now)
		return eerr
	})
	if err != nil {
		return out, err
	}

	err = phase(PhaseOwnership, &m.AssetOwnershipVerification, func() error {
		return e.verifyOnChain(ctx, derived, opts.Asset)
	})
	if err != nil {
		return out, err
	}
	out.Roles = roles
	return out, nil
}
