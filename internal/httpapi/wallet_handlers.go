package httpapi

import (
	"net/http"
	"strings"
	"time"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/autherr"
	"walletauth.org/internal/sso"
)

type holdingItem struct {
	Unit        string `json:"unit"`
	PolicyID    string `json:"policyID"`
	AssetName   string `json:"assetName"`
	DisplayName string `json:"displayName"`
	Amount      uint64 `json:"amount"`
}

type holdingsResponse struct {
	StakeAddress string        `json:"stakeAddress"`
	Items        []holdingItem `json:"items"`
}

type policyResponse struct {
	StakeAddress string `json:"stakeAddress"`
	PolicyID     string `json:"policyID"`
	Held         bool   `json:"held"`
}

type verifyHoldingsRequest struct {
	Assets []asset.Asset `json:"assets"`
}

type verifyHoldingsResponse struct {
	StakeAddress string `json:"stakeAddress"`
	Match        bool   `json:"match"`
}

// handleWallet routes the /v1/wallets/{stakeAddress}/... lookups:
//
//	GET  assets                  live holdings
//	POST assets/verify           whether a list is exactly the live holdings
//	GET  policies/{policyID}     whether any holding is minted under a policy
func (a *API) handleWallet(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/wallets/")
	stake, rest, ok := strings.Cut(path, "/")
	if !ok || stake == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	var handle func(http.ResponseWriter, *http.Request, string)
	method := http.MethodGet
	switch {
	case rest == "assets":
		handle = a.walletAssets
	case rest == "assets/verify":
		handle, method = a.verifyWalletHoldings, http.MethodPost
	case strings.HasPrefix(rest, "policies/") && !strings.Contains(rest[len("policies/"):], "/"):
		policyID := rest[len("policies/"):]
		handle = func(w http.ResponseWriter, r *http.Request, stake string) {
			a.walletPolicy(w, r, stake, policyID)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != method {
		methodNotAllowed(w, r, method)
		return
	}
	hrp, _, err := address.DecodeAddress(stake)
	if err != nil || !strings.HasPrefix(hrp, "stake") {
		writeError(w, r, http.StatusBadRequest, "invalid stake address")
		return
	}
	handle(w, r, stake)
}

func (a *API) walletAssets(w http.ResponseWriter, r *http.Request, stake string) {
	holdings, err := a.chain.FetchHoldings(r.Context(), stake)
	if err != nil {
		a.decisionFailed(w, r, "wallet.assets.failed", autherr.Wrap(autherr.IndexerError, err), nil)
		return
	}
	resp := holdingsResponse{StakeAddress: stake, Items: make([]holdingItem, 0, len(holdings))}
	for _, h := range holdings {
		resp.Items = append(resp.Items, holdingItem{
			Unit:        h.Unit(),
			PolicyID:    h.PolicyID,
			AssetName:   h.AssetName,
			DisplayName: asset.DecodeName(h.AssetName),
			Amount:      h.Amount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) verifyWalletHoldings(w http.ResponseWriter, r *http.Request, stake string) {
	var req verifyHoldingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claimed := asset.NormalizeAll(req.Assets)
	for _, c := range claimed {
		if err := c.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	match, err := a.chain.VerifyHoldings(r.Context(), stake, claimed)
	if err != nil {
		a.decisionFailed(w, r, "wallet.holdings.failed", autherr.Wrap(autherr.IndexerError, err), nil)
		return
	}
	writeJSON(w, http.StatusOK, verifyHoldingsResponse{StakeAddress: stake, Match: match})
}

func (a *API) walletPolicy(w http.ResponseWriter, r *http.Request, stake, policyID string) {
	policyID = strings.ToLower(strings.TrimSpace(policyID))
	candidate := asset.Asset{PolicyID: policyID}
	if err := candidate.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid policy id")
		return
	}
	held, err := a.chain.VerifyPolicy(r.Context(), stake, policyID)
	if err != nil {
		a.decisionFailed(w, r, "wallet.policy.failed", autherr.Wrap(autherr.IndexerError, err), nil)
		return
	}
	writeJSON(w, http.StatusOK, policyResponse{StakeAddress: stake, PolicyID: policyID, Held: held})
}

type ssoMetadataResponse struct {
	Unit              string     `json:"unit"`
	PolicyID          string     `json:"policyID"`
	DisplayName       string     `json:"displayName"`
	Version           string     `json:"version"`
	Supported         bool       `json:"supported"`
	UniqueIdentifier  string     `json:"uniqueIdentifier,omitempty"`
	Issuer            string     `json:"issuer,omitempty"`
	IssuanceDate      *time.Time `json:"issuanceDate,omitempty"`
	ExpirationDate    *time.Time `json:"expirationDate,omitempty"`
	Transferable      bool       `json:"transferable"`
	TiedWallet        string     `json:"tiedWallet,omitempty"`
	MaxUsageEnabled   bool       `json:"maxUsageEnabled"`
	MaxUsage          uint64     `json:"maxUsage,omitempty"`
	InactivityEnabled bool       `json:"inactivityEnabled"`
	InactivityPeriod  string     `json:"inactivityPeriod,omitempty"`
	Roles             []string   `json:"roles,omitempty"`
}

// handleAssetSSO serves GET /v1/assets/{unit}/sso: the parsed SSO record of
// an asset, without evaluating it against any wallet.
func (a *API) handleAssetSSO(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/assets/")
	unit, rest, ok := strings.Cut(path, "/")
	if !ok || rest != "sso" || unit == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	target, err := asset.ParseUnit(unit, 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid asset unit")
		return
	}

	details, err := a.chain.FetchAssetMetadata(r.Context(), target)
	if err != nil {
		a.decisionFailed(w, r, "asset.sso.failed", autherr.Wrap(autherr.IndexerError, err), nil)
		return
	}
	if !details.HasSSO {
		a.decisionFailed(w, r, "asset.sso.failed", autherr.New(autherr.SSOUnavailable), nil)
		return
	}
	md, err := sso.Parse(details.SSO)
	if err != nil {
		a.decisionFailed(w, r, "asset.sso.failed", autherr.Wrap(autherr.InvalidMetadata, err), nil)
		return
	}

	resp := ssoMetadataResponse{
		Unit:        target.Unit(),
		PolicyID:    target.PolicyID,
		DisplayName: asset.DecodeName(target.AssetName),
		Version:     md.Version,
		Supported:   md.Supported(),
	}
	if md.Supported() {
		resp.UniqueIdentifier = md.UniqueIdentifier
		resp.Issuer = md.Issuer
		resp.IssuanceDate = optionalTime(md.IssuanceDate)
		resp.ExpirationDate = optionalTime(md.ExpirationDate)
		resp.Transferable = md.Transferable
		resp.TiedWallet = md.TiedWallet
		resp.MaxUsageEnabled = md.MaxUsageEnabled
		resp.MaxUsage = md.MaxUsage
		resp.InactivityEnabled = md.InactivityEnabled
		if md.InactivityEnabled {
			resp.InactivityPeriod = md.InactivityPeriod.String()
		}
		resp.Roles = md.Roles
	}
	writeJSON(w, http.StatusOK, resp)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
