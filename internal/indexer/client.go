// Package indexer queries a Blockfrost-compatible chain indexer for wallet
// holdings and asset metadata.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
	"walletauth.org/internal/obs"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 1000
	defaultRPS      = 10
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 4 << 20

	endpointHoldings = "account_assets"
	endpointAsset    = "asset"
)

// ErrMissingProjectID is returned by New when no API key is configured.
var ErrMissingProjectID = errors.New("indexer: project id is required")

// Config is the explicit indexer configuration. It replaces any process-wide
// API key or network setting.
type Config struct {
	// BaseURL overrides the URL derived from Network.
	BaseURL   string
	ProjectID string
	// Network is a Blockfrost network name: mainnet, preprod or preview.
	Network string
	// RPS caps outgoing requests per second; Burst defaults to RPS.
	RPS      float64
	Burst    int
	PageSize int
	// MaxPages bounds holdings pagination. A listing longer than
	// MaxPages*PageSize is an error, never a truncated result.
	MaxPages   int
	HTTPClient *http.Client
}

// BaseURLFor returns the public Blockfrost endpoint of network.
func BaseURLFor(network string) string {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		network = "mainnet"
	}
	return "https://cardano-" + network + ".blockfrost.io/api/v0"
}

// StatusError reports a non-success response from the indexer.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer: %s: %s", e.Endpoint, e.Status)
}

// Client talks to the indexer. It is safe for concurrent use.
type Client struct {
	baseURL   string
	projectID string
	pageSize  int
	maxPages  int
	http      *http.Client
	limiter   *rate.Limiter
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, ErrMissingProjectID
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = BaseURLFor(cfg.Network)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("indexer: base url: %w", err)
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:   base,
		projectID: projectID,
		pageSize:  pageSize,
		maxPages:  maxPages,
		http:      hc,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

type holdingItem struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// FetchHoldings returns every native asset held by the stake address,
// following the indexer's pagination. Lovelace is not a native asset and is
// skipped.
func (c *Client) FetchHoldings(ctx context.Context, stakeAddress string) ([]asset.Asset, error) {
	stakeAddress = strings.TrimSpace(stakeAddress)
	if stakeAddress == "" {
		return nil, autherr.Wrap(autherr.IndexerError, errors.New("indexer: stake address is required"))
	}
	path := "/accounts/" + url.PathEscape(stakeAddress) + "/addresses/assets"
	var out []asset.Asset
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, autherr.Wrap(autherr.IndexerError,
				fmt.Errorf("indexer: holdings of %s exceed %d pages", stakeAddress, c.maxPages))
		}
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("count", strconv.Itoa(c.pageSize))

		var items []holdingItem
		if err := c.get(ctx, endpointHoldings, path+"?"+q.Encode(), &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.Unit == "lovelace" {
				continue
			}
			qty, err := strconv.ParseUint(strings.TrimSpace(it.Quantity), 10, 64)
			if err != nil {
				return nil, autherr.Wrap(autherr.IndexerError, fmt.Errorf("indexer: quantity %q of %s: %w", it.Quantity, it.Unit, err))
			}
			a, err := asset.ParseUnit(it.Unit, qty)
			if err != nil {
				return nil, autherr.Wrap(autherr.IndexerError, err)
			}
			out = append(out, a)
		}
		if len(items) < c.pageSize {
			return out, nil
		}
	}
}

// Details is the normalized metadata of one asset. SSO holds the raw SSO
// object when HasSSO is set; OnChain is the CIP-25 metadata otherwise.
type Details struct {
	Unit    string
	OnChain json.RawMessage
	SSO     json.RawMessage
	HasSSO  bool
}

type assetResponse struct {
	Asset           string          `json:"asset"`
	OnChainMetadata json.RawMessage `json:"onchain_metadata"`
	Metadata        json.RawMessage `json:"metadata"`
}

// FetchAssetMetadata reads the metadata of a. The SSO block is looked up in
// the registry metadata first and in the on-chain metadata second.
func (c *Client) FetchAssetMetadata(ctx context.Context, a asset.Asset) (Details, error) {
	if err := a.Validate(); err != nil {
		return Details{}, autherr.Wrap(autherr.IndexerError, err)
	}
	var resp assetResponse
	if err := c.get(ctx, endpointAsset, "/assets/"+url.PathEscape(a.Unit()), &resp); err != nil {
		return Details{}, err
	}
	d := Details{Unit: a.Unit(), OnChain: nonNull(resp.OnChainMetadata)}
	for _, src := range []json.RawMessage{resp.Metadata, resp.OnChainMetadata} {
		if sso, ok := ssoBlock(src); ok {
			d.SSO, d.HasSSO = sso, true
			break
		}
	}
	return d, nil
}

func ssoBlock(raw json.RawMessage) (json.RawMessage, bool) {
	if len(nonNull(raw)) == 0 {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	sso := nonNull(obj["sso"])
	if len(sso) == 0 {
		return nil, false
	}
	return sso, true
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if s := strings.TrimSpace(string(raw)); s == "" || s == "null" {
		return nil
	}
	return raw
}

// VerifyOwnership reports whether the live holdings contain a with the exact
// same policy id, asset name and amount.
func (c *Client) VerifyOwnership(ctx context.Context, stakeAddress string, a asset.Asset) (bool, error) {
	holdings, err := c.FetchHoldings(ctx, stakeAddress)
	if err != nil {
		return false, err
	}
	return asset.ContainsExact(holdings, a), nil
}

// VerifyPolicy reports whether any held asset was minted under policyID.
func (c *Client) VerifyPolicy(ctx context.Context, stakeAddress, policyID string) (bool, error) {
	holdings, err := c.FetchHoldings(ctx, stakeAddress)
	if err != nil {
		return false, err
	}
	policyID = strings.ToLower(strings.TrimSpace(policyID))
	for _, h := range holdings {
		if h.PolicyID == policyID {
			return true, nil
		}
	}
	return false, nil
}

// VerifyHoldings reports whether assets is exactly the live holdings of the
// stake address.
func (c *Client) VerifyHoldings(ctx context.Context, stakeAddress string, assets []asset.Asset) (bool, error) {
	holdings, err := c.FetchHoldings(ctx, stakeAddress)
	if err != nil {
		return false, err
	}
	return asset.SameHoldings(assets, holdings), nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		obs.ObserveIndexer(endpoint, "error")
		return autherr.Wrap(autherr.IndexerError, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return autherr.Wrap(autherr.IndexerError, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("project_id", c.projectID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		obs.ObserveIndexer(endpoint, "error")
		return autherr.Wrap(autherr.IndexerError, err)
	}
	defer resp.Body.Close()
	obs.ObserveIndexer(endpoint, strconv.Itoa(resp.StatusCode))
	obs.Logger().Debug("indexer request",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return autherr.Wrap(autherr.IndexerError, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
		})
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return autherr.Wrap(autherr.IndexerError, fmt.Errorf("indexer: decode %s: %w", endpoint, err))
	}
	return nil
}

func statusText(resp *http.Response) string {
	if s := strings.TrimSpace(resp.Status); s != "" {
		return s
	}
	return strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
}
