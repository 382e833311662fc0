package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"walletauth.org/internal/address"
	"walletauth.org/internal/asset"
	"walletauth.org/internal/audit"
	"walletauth.org/internal/auth"
	"walletauth.org/internal/autherr"
	"walletauth.org/internal/obs"
)

// walletFields is the CIP-30 material shared by every decision request.
type walletFields struct {
	StakeAddress  string `json:"stakeAddress"`
	WalletNetwork *int   `json:"walletNetwork"`
	Signature     string `json:"signature"`
	Key           string `json:"key"`
	Nonce         string `json:"nonce"`
}

func (f walletFields) proof() auth.WalletProof {
	p := auth.WalletProof{
		StakeAddress: f.StakeAddress,
		Signature:    f.Signature,
		Key:          f.Key,
		Nonce:        f.Nonce,
	}
	if f.WalletNetwork != nil {
		if n := address.Network(*f.WalletNetwork); n.Valid() {
			p.Network = &n
		}
	}
	return p
}

type nonceRequest struct {
	StakeAddress string `json:"stakeAddress"`
}

type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type loginRequest struct {
	walletFields
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Assets   []asset.Asset `json:"assets"`
}

type signupRequest struct {
	walletFields
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Asset    *asset.Asset `json:"asset"`
}

type ssoRequest struct {
	walletFields
	Asset          asset.Asset `json:"asset"`
	CollectMetrics bool        `json:"collectMetrics"`
}

type sessionResponse struct {
	Success       bool      `json:"success"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Method        string    `json:"method,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	Roles         []string  `json:"roles,omitempty"`
}

type ssoResponse struct {
	sessionResponse
	UsageCount uint64             `json:"usageCount"`
	LastUsedAt time.Time          `json:"lastUsedAt"`
	Metrics    *auth.PhaseMetrics `json:"metrics,omitempty"`
}

type failureResponse struct {
	Success   bool               `json:"success"`
	Error     autherr.Kind       `json:"error"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Metrics   *auth.PhaseMetrics `json:"metrics,omitempty"`
}

func (a *API) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.challenges == nil {
		writeError(w, r, http.StatusNotFound, "nonce challenges are disabled")
		return
	}
	var req nonceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.StakeAddress) == "" {
		writeError(w, r, http.StatusBadRequest, "stakeAddress is required")
		return
	}
	nonce, exp, err := a.challenges.Issue(req.StakeAddress)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "nonce generation failed")
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce, ExpiresAt: exp})
}

// consumeChallenge enforces single-use nonces when challenges are enabled.
// Requests without complete wallet material pass through to the decision,
// which reports the missing inputs itself.
func (a *API) consumeChallenge(f walletFields) error {
	if a.challenges == nil || !f.proof().Present() {
		return nil
	}
	if !a.challenges.Consume(f.StakeAddress, f.Nonce) {
		return autherr.New(autherr.InvalidWalletAuthentication)
	}
	return nil
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.consumeChallenge(req.walletFields); err != nil {
		a.decisionFailed(w, r, "auth.login.failed", err, nil)
		return
	}
	sess, user, err := a.svc.Login(r.Context(), auth.LoginOptions{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Wallet:   req.proof(),
		Assets:   req.Assets,
	})
	if err != nil {
		a.decisionFailed(w, r, "auth.login.failed", err, nil)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]string{"user_id": user.ID})
	writeSession(w, sess, user)
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.consumeChallenge(req.walletFields); err != nil {
		a.decisionFailed(w, r, "auth.signup.failed", err, nil)
		return
	}
	sess, user, err := a.svc.Signup(r.Context(), auth.SignupOptions{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Wallet:   req.proof(),
		Asset:    req.Asset,
	})
	if err != nil {
		a.decisionFailed(w, r, "auth.signup.failed", err, nil)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signup.succeeded", map[string]string{"user_id": user.ID})
	writeSession(w, sess, user)
}

func (a *API) handleSSO(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req ssoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.consumeChallenge(req.walletFields); err != nil {
		a.decisionFailed(w, r, "auth.sso.failed", err, nil)
		return
	}
	res, err := a.svc.SSO(r.Context(), auth.SSORequest{
		Wallet:         req.proof(),
		Asset:          req.Asset,
		CollectMetrics: req.CollectMetrics,
	})
	if err != nil {
		a.decisionFailed(w, r, "auth.sso.failed", err, res.Outcome.Metrics)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.sso.succeeded", map[string]string{
		"wallet": res.Outcome.WalletAddress,
		"unit":   res.Outcome.Asset.Unit(),
	})
	writeJSON(w, http.StatusOK, ssoResponse{
		sessionResponse: sessionResponse{
			Success:       true,
			Token:         res.Session.Token,
			ExpiresAt:     res.Session.ExpiresAt,
			Method:        "sso",
			WalletAddress: res.Outcome.WalletAddress,
			Roles:         res.Session.Roles,
		},
		UsageCount: res.Usage.Count,
		LastUsedAt: res.Usage.LastUsedAt,
		Metrics:    res.Outcome.Metrics,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":   claims.Subject,
		"roles":     claims.Roles,
		"method":    claims.Method,
		"wallet":    claims.Wallet,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

func writeSession(w http.ResponseWriter, sess auth.Session, user *auth.User) {
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:       true,
		Token:         sess.Token,
		ExpiresAt:     sess.ExpiresAt,
		Method:        sess.Method,
		UserID:        user.ID,
		WalletAddress: sess.Wallet,
		Roles:         sess.Roles,
	})
}

// decisionFailed maps a failed decision to its HTTP status and the
// {"success": false, "error": kind} body. Causes stay in the logs.
func (a *API) decisionFailed(w http.ResponseWriter, r *http.Request, event string, err error, metrics *auth.PhaseMetrics) {
	kind := autherr.KindOf(err)
	code := statusFor(err)
	fields := map[string]string{"result": string(kind)}
	if kind == "" {
		fields["result"] = "error"
	}
	_ = audit.LogEvent(r.Context(), event, fields)
	if code >= http.StatusInternalServerError {
		obs.Logger().Warn("decision failed",
			zap.String("event", event),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
	}
	switch {
	case kind != "":
		writeJSON(w, code, failureResponse{
			Success:   false,
			Error:     kind,
			Message:   kind.Message(),
			RequestID: RequestIDFromContext(r.Context()),
			Metrics:   metrics,
		})
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, code, "account already exists")
	default:
		writeError(w, r, code, "internal error")
	}
}

func statusFor(err error) int {
	if errors.Is(err, auth.ErrAlreadyExists) {
		return http.StatusConflict
	}
	switch autherr.KindOf(err) {
	case autherr.InvalidWalletAuthentication, autherr.NetworkOrAddressMismatch,
		autherr.InvalidPassword, autherr.InvalidEmailFormat:
		return http.StatusUnauthorized
	case autherr.InvalidLoginInputs, autherr.InvalidSignupInputs, autherr.InvalidSSOInputs,
		autherr.InvalidAsset, autherr.EncodingError:
		return http.StatusBadRequest
	case autherr.AssetNotVerifiable, autherr.InvalidAssetPolicy, autherr.UnsupportedVersion,
		autherr.Expired, autherr.IssuerMismatch, autherr.IdentifierMismatch,
		autherr.OwnershipMismatch, autherr.UsageExceeded, autherr.InactivityExceeded,
		autherr.SSOUnavailable, autherr.InvalidMetadata:
		return http.StatusForbidden
	case autherr.IndexerError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
