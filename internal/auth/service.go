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
	"walletauth.org/internal/obs"
)

// Policy is the platform configuration applied to every request.
type Policy struct {
	SSOIssuer        string
	SSOIdentifiers   []string
	AuthPolicies     []string
	AuthPolicyStrict bool
}

// Service ties the decision engine to account storage, usage bookkeeping and
// session tokens.
type Service struct {
	store  Store
	engine *Engine
	tokens *TokenIssuer
	policy Policy
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithPolicy sets the platform policy.
func WithPolicy(p Policy) ServiceOption {
	return func(s *Service) error {
		s.policy = p
		return nil
	}
}

// WithServiceClock overrides time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, engine *Engine, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil || engine == nil || tokens == nil {
		return nil, errors.New("auth: store, engine and tokens are required")
	}
	svc := &Service{store: store, engine: engine, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Session is an issued session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Subject   string
	Roles     []string
	Method    string
	Wallet    string
}

// Login looks the account up by the supplied credentials, runs the login
// decision and issues a session for the account.
func (s *Service) Login(ctx context.Context, opts LoginOptions) (Session, *User, error) {
	user, err := s.lookup(ctx, opts)
	if err != nil {
		return Session{}, nil, err
	}
	out, err := s.engine.Login(ctx, user, opts)
	if err != nil {
		s.appendAudit(ctx, "auth.login", subjectOf(user), err)
		return Session{}, nil, err
	}
	if user == nil {
		// a valid signature alone does not identify an account
		err = autherr.New(autherr.NetworkOrAddressMismatch)
		s.appendAudit(ctx, "auth.login", out.WalletAddress, err)
		return Session{}, nil, err
	}
	sess, err := s.issue(user.ID, Claims{Method: string(out.Method), Wallet: out.WalletAddress})
	if err != nil {
		return Session{}, nil, err
	}
	s.appendAudit(ctx, "auth.login", user.ID, nil)
	return sess, user, nil
}

func (s *Service) lookup(ctx context.Context, opts LoginOptions) (*User, error) {
	users := s.store.Users(ctx)
	var (
		user *User
		err  error
	)
	switch {
	case opts.Wallet.Present():
		forms := []string{opts.Wallet.StakeAddress}
		if opts.Wallet.Network != nil {
			if derived, derr := address.DeriveAddress(opts.Wallet.StakeAddress, *opts.Wallet.Network); derr == nil {
				forms = append(forms, derived)
			}
		}
		user, err = users.FindByWallet(ctx, forms...)
	case nonEmpty(opts.Email):
		user, err = users.FindByEmail(ctx, strings.TrimSpace(opts.Email))
	default:
		return nil, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// Signup runs the signup decision under the platform policy, stores the
// account and issues a session.
func (s *Service) Signup(ctx context.Context, opts SignupOptions) (Session, *User, error) {
	opts.AuthPolicies = s.policy.AuthPolicies
	opts.AuthPolicyStrict = s.policy.AuthPolicyStrict
	out, err := s.engine.Signup(ctx, opts)
	if err != nil {
		s.appendAudit(ctx, "auth.signup", "", err)
		return Session{}, nil, err
	}
	user := out.User()
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return Session{}, nil, err
	}
	sess, err := s.issue(user.ID, Claims{Method: string(out.Method), Wallet: out.WalletAddress})
	if err != nil {
		return Session{}, nil, err
	}
	s.appendAudit(ctx, "auth.signup", user.ID, nil)
	return sess, user, nil
}

// SSORequest is the caller-facing part of SSOOptions; platform settings and
// usage bookkeeping are filled in by the service.
type SSORequest struct {
	Wallet         WalletProof
	Asset          asset.Asset
	CollectMetrics bool
}

// SSOResult is a granted SSO session.
type SSOResult struct {
	Session Session
	Outcome SSOOutcome
	Usage   Usage
}

// SSO evaluates the asset-based SSO decision. On success the use is
// recorded and a session carrying the metadata roles is issued to the
// wallet address.
func (s *Service) SSO(ctx context.Context, req SSORequest) (SSOResult, error) {
	// usage is keyed on the normalized unit
	req.Asset = asset.Normalize(req.Asset)
	opts := SSOOptions{
		Wallet:              req.Wallet,
		Asset:               req.Asset,
		Issuer:              s.policy.SSOIssuer,
		PlatformIdentifiers: s.policy.SSOIdentifiers,
		CollectMetrics:      req.CollectMetrics,
	}
	var walletAddr string
	if req.Wallet.Present() && req.Wallet.Network != nil {
		if derived, err := address.DeriveAddress(req.Wallet.StakeAddress, *req.Wallet.Network); err == nil {
			walletAddr = derived
			usage, err := s.store.Usage(ctx).Get(ctx, derived, req.Asset.Unit())
			if err != nil {
				return SSOResult{}, err
			}
			opts.UsageCount, opts.LastUsage = usage.Count, usage.LastUsedAt
		}
	}

	out, err := s.engine.SSO(ctx, opts)
	if err != nil {
		s.appendAudit(ctx, "auth.sso", walletAddr, err)
		return SSOResult{Outcome: out}, err
	}
	usage, err := s.store.Usage(ctx).Record(ctx, out.WalletAddress, req.Asset.Unit(), s.now())
	if err != nil {
		return SSOResult{Outcome: out}, err
	}
	sess, err := s.issue(out.WalletAddress, Claims{Roles: out.Roles, Method: "sso", Wallet: out.WalletAddress})
	if err != nil {
		return SSOResult{Outcome: out}, err
	}
	s.appendAudit(ctx, "auth.sso", out.WalletAddress, nil)
	return SSOResult{Session: sess, Outcome: out, Usage: usage}, nil
}

// Authenticate validates a session token.
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

func (s *Service) issue(subject string, claims Claims) (Session, error) {
	token, exp, err := s.tokens.Issue(subject, claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		ExpiresAt: exp,
		Subject:   subject,
		Roles:     dedupeRoles(claims.Roles),
		Method:    claims.Method,
		Wallet:    claims.Wallet,
	}, nil
}

// appendAudit records the decision. Audit failures never change the outcome
// of a request.
func (s *Service) appendAudit(ctx context.Context, action, subject string, decision error) {
	result := "success"
	if decision != nil {
		result = string(autherr.KindOf(decision))
		if result == "" {
			result = "error"
		}
	}
	entry := &AuditEntry{
		OccurredAt: s.now().UTC(),
		Subject:    subject,
		Action:     action,
		Result:     result,
		TraceID:    RequestIDFromContext(ctx),
	}
	if err := s.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.Logger().Warn("audit append failed",
			zap.String("action", action),
			zap.String("result", result),
			zap.String("request_id", entry.TraceID),
			zap.Error(err))
	}
}

func subjectOf(u *User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
