// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"walletauth.org/internal/auth"
	"walletauth.org/internal/indexer"
)

const envPrefix = "WALLETAUTH_"

// Config is the complete service configuration. It is built once at
// startup and passed to constructors explicitly.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string
	LogLevel string

	IndexerURL       string
	IndexerProjectID string
	IndexerNetwork   string
	IndexerRPS       float64
	IndexerTimeout   time.Duration

	SSOIssuer        string
	SSOIdentifiers   []string
	AuthPolicies     []string
	AuthPolicyStrict bool

	TokenSecret string
	TokenTTL    time.Duration
	NonceTTL    time.Duration
}

// Load reads an optional .env file from the working directory and then the
// process environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from getenv.
func FromLookup(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		HTTPAddr:         r.str("HTTP_ADDR", ":8080"),
		GRPCAddr:         r.str("GRPC_ADDR", ":9090"),
		PGDSN:            r.str("PG_DSN", ""),
		LogLevel:         strings.TrimSpace(getenv("LOG_LEVEL")),
		IndexerURL:       r.str("INDEXER_URL", ""),
		IndexerProjectID: r.str("INDEXER_PROJECT_ID", ""),
		IndexerNetwork:   strings.ToLower(r.str("INDEXER_NETWORK", "mainnet")),
		IndexerRPS:       r.float("INDEXER_RPS", 10),
		IndexerTimeout:   r.duration("INDEXER_TIMEOUT", 10*time.Second),
		SSOIssuer:        r.str("SSO_ISSUER", ""),
		SSOIdentifiers:   r.list("SSO_IDENTIFIERS"),
		AuthPolicies:     r.list("AUTH_POLICIES"),
		AuthPolicyStrict: r.bool("AUTH_POLICY_STRICT"),
		TokenSecret:      r.str("TOKEN_SECRET", ""),
		TokenTTL:         r.duration("TOKEN_TTL", 72*time.Hour),
		NonceTTL:         r.duration("NONCE_TTL", 5*time.Minute),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, nil
}

// Validate reports settings the API server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.TokenSecret == "" {
		errs = append(errs, errors.New(envPrefix+"TOKEN_SECRET is required"))
	}
	if c.IndexerProjectID == "" {
		errs = append(errs, errors.New(envPrefix+"INDEXER_PROJECT_ID is required"))
	}
	switch c.IndexerNetwork {
	case "mainnet", "preprod", "preview":
	default:
		errs = append(errs, fmt.Errorf("%sINDEXER_NETWORK %q is not mainnet, preprod or preview", envPrefix, c.IndexerNetwork))
	}
	return errors.Join(errs...)
}

// Indexer returns the indexer client configuration.
func (c Config) Indexer() indexer.Config {
	return indexer.Config{
		BaseURL:    c.IndexerURL,
		ProjectID:  c.IndexerProjectID,
		Network:    c.IndexerNetwork,
		RPS:        c.IndexerRPS,
		HTTPClient: &http.Client{Timeout: c.IndexerTimeout},
	}
}

// Policy returns the platform policy applied to every decision.
func (c Config) Policy() auth.Policy {
	return auth.Policy{
		SSOIssuer:        c.SSOIssuer,
		SSOIdentifiers:   c.SSOIdentifiers,
		AuthPolicies:     c.AuthPolicies,
		AuthPolicyStrict: c.AuthPolicyStrict,
	}
}

type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) raw(key string) string {
	return strings.TrimSpace(r.getenv(envPrefix + key))
}

func (r *reader) str(key, def string) string {
	if v := r.raw(key); v != "" {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	var out []string
	for _, item := range strings.Split(r.raw(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *reader) bool(key string) bool {
	v := r.raw(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v)
	}
	return b
}

func (r *reader) float(key string, def float64) float64 {
	v := r.raw(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		r.fail(key, v)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(key, v)
		return def
	}
	return d
}

func (r *reader) fail(key, value string) {
	if r.err == nil {
		r.err = fmt.Errorf("config: invalid %s%s=%q", envPrefix, key, value)
	}
}
