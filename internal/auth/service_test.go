package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
	"walletauth.org/internal/indexer"
	"walletauth.org/internal/obs"
)

func newTestService(t *testing.T, ledger *fakeLedger) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	tokens, err := NewTokenIssuer("test-secret", WithTokenClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := NewService(store, newTestEngine(t, ledger, true), tokens,
		WithPolicy(Policy{
			SSOIssuer:      "littlefishFoundation",
			SSOIdentifiers: []string{"LF-AUTH-010-2024"},
			AuthPolicies:   []string{policyID},
		}),
		WithServiceClock(func() time.Time { return fixedNow }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestServiceWalletSignupThenLogin(t *testing.T) {
	ledger := &fakeLedger{holdings: []asset.Asset{ssoNFT}}
	svc, store := newTestService(t, ledger)
	ctx := context.Background()
	nft := ssoNFT

	sess, user, err := svc.Signup(ctx, SignupOptions{Wallet: proof(networkPtr(address.Mainnet)), Asset: &nft})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.VerifiedPolicyID != policyID || sess.Subject != user.ID {
		t.Fatalf("unexpected signup %+v %+v", sess, user)
	}

	if _, _, err := svc.Signup(ctx, SignupOptions{Wallet: proof(networkPtr(address.Mainnet))}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected duplicate wallet, got %v", err)
	}

	sess, found, err := svc.Login(ctx, LoginOptions{Wallet: proof(networkPtr(address.Mainnet)), Assets: []asset.Asset{ssoNFT}})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("logged into %s, want %s", found.ID, user.ID)
	}
	claims, err := svc.Authenticate(sess.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.Subject != user.ID || claims.Method != string(MethodWallet) || claims.Wallet != stakeBech {
		t.Fatalf("unexpected claims %+v", claims)
	}

	// the header byte of the reported address names mainnet
	_, _, err = svc.Login(ctx, LoginOptions{Wallet: proof(networkPtr(address.Testnet))})
	if autherr.KindOf(err) != autherr.InvalidWalletAuthentication {
		t.Fatalf("expected wallet authentication failure, got %v", err)
	}

	entries := store.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	if entries[len(entries)-1].Result != string(autherr.InvalidWalletAuthentication) {
		t.Fatalf("unexpected audit entry %+v", entries[len(entries)-1])
	}
}

func TestServiceLoginUnknownWallet(t *testing.T) {
	svc, _ := newTestService(t, &fakeLedger{})
	_, _, err := svc.Login(context.Background(), LoginOptions{Wallet: proof(networkPtr(address.Mainnet))})
	if autherr.KindOf(err) != autherr.NetworkOrAddressMismatch {
		t.Fatalf("expected mismatch for an unregistered wallet, got %v", err)
	}
}

func TestServicePasswordAccount(t *testing.T) {
	svc, _ := newTestService(t, &fakeLedger{})
	ctx := context.Background()
	if _, _, err := svc.Signup(ctx, SignupOptions{Email: "alice@example.com", Password: "Secret123"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	sess, user, err := svc.Login(ctx, LoginOptions{Email: "alice@example.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Subject != user.ID || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	_, _, err = svc.Login(ctx, LoginOptions{Email: "alice@example.com", Password: "Wrong1234"})
	if autherr.KindOf(err) != autherr.InvalidPassword {
		t.Fatalf("expected InvalidPassword, got %v", err)
	}
	_, _, err = svc.Login(ctx, LoginOptions{Email: "bob@example.com", Password: "Secret123"})
	if autherr.KindOf(err) != autherr.InvalidEmailFormat {
		t.Fatalf("expected InvalidEmailFormat, got %v", err)
	}
}

func TestServiceSSOTracksUsage(t *testing.T) {
	ledger := &fakeLedger{
		holdings: []asset.Asset{ssoNFT},
		details:  indexer.Details{HasSSO: true, SSO: ssoRecord(stakeBech, 1, 2)},
	}
	svc, _ := newTestService(t, ledger)
	ctx := context.Background()
	req := SSORequest{Wallet: proof(networkPtr(address.Mainnet)), Asset: ssoNFT}

	for i := uint64(1); i <= 2; i++ {
		res, err := svc.SSO(ctx, req)
		if err != nil {
			t.Fatalf("SSO #%d: %v", i, err)
		}
		if res.Usage.Count != i || res.Session.Subject != stakeBech {
			t.Fatalf("unexpected result %+v", res)
		}
		claims, err := svc.Authenticate(res.Session.Token)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if len(claims.Roles) != 1 || claims.Roles[0] != "member" || claims.Method != "sso" {
			t.Fatalf("unexpected claims %+v", claims)
		}
	}

	_, err := svc.SSO(ctx, req)
	if autherr.KindOf(err) != autherr.UsageExceeded {
		t.Fatalf("expected UsageExceeded, got %v", err)
	}
}

func TestServiceSSOUsageIgnoresHexCase(t *testing.T) {
	ledger := &fakeLedger{
		holdings: []asset.Asset{ssoNFT},
		details:  indexer.Details{HasSSO: true, SSO: ssoRecord(stakeBech, 1, 2)},
	}
	svc, store := newTestService(t, ledger)
	ctx := context.Background()
	lower := SSORequest{Wallet: proof(networkPtr(address.Mainnet)), Asset: ssoNFT}
	upper := SSORequest{Wallet: proof(networkPtr(address.Mainnet)), Asset: upperAsset(ssoNFT)}

	if _, err := svc.SSO(ctx, lower); err != nil {
		t.Fatalf("SSO: %v", err)
	}
	res, err := svc.SSO(ctx, upper)
	if err != nil {
		t.Fatalf("SSO with an uppercase unit: %v", err)
	}
	if res.Usage.Count != 2 {
		t.Fatalf("uppercase unit must share the usage counter, got count %d", res.Usage.Count)
	}
	usage, err := store.Usage(ctx).Get(ctx, stakeBech, ssoNFT.Unit())
	if err != nil || usage.Count != 2 {
		t.Fatalf("usage under the normalized unit = %+v, %v", usage, err)
	}

	_, err = svc.SSO(ctx, upper)
	if autherr.KindOf(err) != autherr.UsageExceeded {
		t.Fatalf("changing case must not reset usage, got %v", err)
	}
}

type failingAudit struct{ *MemoryStore }

func (failingAudit) Audit(context.Context) AuditStore { return failingAppend{} }

type failingAppend struct{}

func (failingAppend) Append(context.Context, *AuditEntry) error {
	return errors.New("audit table unavailable")
}

func TestServiceAuditTrail(t *testing.T) {
	svc, store := newTestService(t, &fakeLedger{})
	ctx := ContextWithRequestID(context.Background(), "req-7")

	if _, _, err := svc.Signup(ctx, SignupOptions{Email: "alice@example.com", Password: "Secret123"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	entries := store.Entries()
	if len(entries) != 1 || entries[0].TraceID != "req-7" || entries[0].Action != "auth.signup" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	tokens, err := NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	broken, err := NewService(failingAudit{NewMemoryStore()}, newTestEngine(t, &fakeLedger{}, true), tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, _, err := broken.Signup(ctx, SignupOptions{Email: "bob@example.com", Password: "Secret123"}); err != nil {
		t.Fatalf("audit failures must not fail the request: %v", err)
	}
	warned := logs.FilterMessage("audit append failed").All()
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %d", len(warned))
	}
	fields := warned[0].ContextMap()
	if fields["request_id"] != "req-7" || fields["action"] != "auth.signup" {
		t.Fatalf("unexpected warning fields %v", fields)
	}
}
