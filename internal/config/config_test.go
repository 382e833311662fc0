package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func lookup(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookup(nil))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" || cfg.IndexerNetwork != "mainnet" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenTTL != 72*time.Hour || cfg.NonceTTL != 5*time.Minute || cfg.IndexerRPS != 10 {
		t.Fatalf("unexpected default durations %+v", cfg)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "TOKEN_SECRET") {
		t.Fatalf("expected missing secret, got %v", err)
	}
}

func TestFromLookupParsesValues(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"WALLETAUTH_INDEXER_PROJECT_ID": "preprodABC",
		"WALLETAUTH_INDEXER_NETWORK":    "Preprod",
		"WALLETAUTH_INDEXER_TIMEOUT":    "3s",
		"WALLETAUTH_SSO_ISSUER":         "littlefishFoundation",
		"WALLETAUTH_SSO_IDENTIFIERS":    "LF-AUTH-010-2024, LF-AUTH-011-2024,",
		"WALLETAUTH_AUTH_POLICY_STRICT": "true",
		"WALLETAUTH_TOKEN_SECRET":       "s3cret",
		"LOG_LEVEL":                     "debug",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !slices.Equal(cfg.SSOIdentifiers, []string{"LF-AUTH-010-2024", "LF-AUTH-011-2024"}) {
		t.Fatalf("unexpected identifiers %v", cfg.SSOIdentifiers)
	}
	p := cfg.Policy()
	if !p.AuthPolicyStrict || p.SSOIssuer != "littlefishFoundation" {
		t.Fatalf("unexpected policy %+v", p)
	}
	ic := cfg.Indexer()
	if ic.Network != "preprod" || ic.HTTPClient.Timeout != 3*time.Second {
		t.Fatalf("unexpected indexer config %+v", ic)
	}
}

func TestFromLookupRejectsMalformed(t *testing.T) {
	for key, value := range map[string]string{
		"WALLETAUTH_AUTH_POLICY_STRICT": "maybe",
		"WALLETAUTH_TOKEN_TTL":          "forever",
		"WALLETAUTH_INDEXER_RPS":        "-1",
	} {
		if _, err := FromLookup(lookup(map[string]string{key: value})); err == nil {
			t.Fatalf("expected error for %s=%s", key, value)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("WALLETAUTH_SSO_ISSUER=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("WALLETAUTH_SSO_ISSUER", "")
	os.Unsetenv("WALLETAUTH_SSO_ISSUER")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SSOIssuer != "fromfile" {
		t.Fatalf("env file not applied: %q", cfg.SSOIssuer)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}
