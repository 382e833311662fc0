// Package autherr defines the terminal failure taxonomy shared by the
// credential and asset authorization flows.
package autherr

import (
	"errors"
	"fmt"
)

// Kind names one terminal failure of a decision.
type Kind string

const (
	InvalidWalletAuthentication Kind = "InvalidWalletAuthentication"
	NetworkOrAddressMismatch    Kind = "NetworkOrAddressMismatch"
	InvalidAsset                Kind = "InvalidAsset"
	AssetNotVerifiable          Kind = "AssetNotVerifiable"
	InvalidAssetPolicy          Kind = "InvalidAssetPolicy"
	InvalidEmailFormat          Kind = "InvalidEmailFormat"
	InvalidPassword             Kind = "InvalidPassword"
	InvalidLoginInputs          Kind = "InvalidLoginInputs"
	InvalidSignupInputs         Kind = "InvalidSignupInputs"
	InvalidSSOInputs            Kind = "InvalidSSOInputs"
	UnsupportedVersion          Kind = "UnsupportedVersion"
	Expired                     Kind = "Expired"
	IssuerMismatch              Kind = "IssuerMismatch"
	IdentifierMismatch          Kind = "IdentifierMismatch"
	OwnershipMismatch           Kind = "OwnershipMismatch"
	UsageExceeded               Kind = "UsageExceeded"
	InactivityExceeded          Kind = "InactivityExceeded"
	IndexerError                Kind = "IndexerError"
	EncodingError               Kind = "EncodingError"
	SSOUnavailable              Kind = "SSOUnavailable"
	InvalidMetadata             Kind = "InvalidMetadata"
)

var messages = map[Kind]string{
	InvalidWalletAuthentication: "invalid wallet authentication",
	NetworkOrAddressMismatch:    "invalid network or wallet address",
	InvalidAsset:                "invalid asset",
	AssetNotVerifiable:          "asset cannot be verified on-chain",
	InvalidAssetPolicy:          "invalid asset policy",
	InvalidEmailFormat:          "invalid email or email format",
	InvalidPassword:             "invalid password",
	InvalidLoginInputs:          "invalid login inputs",
	InvalidSignupInputs:         "invalid signup inputs",
	InvalidSSOInputs:            "invalid sso inputs",
	UnsupportedVersion:          "unsupported sso version",
	Expired:                     "asset has expired",
	IssuerMismatch:              "issuer does not match",
	IdentifierMismatch:          "unique identifier does not match",
	OwnershipMismatch:           "invalid wallet for the asset",
	UsageExceeded:               "maximum usage reached",
	InactivityExceeded:          "inactivity period exceeded",
	IndexerError:                "indexer request failed",
	EncodingError:               "address encoding failed",
	SSOUnavailable:              "no sso available for the asset",
	InvalidMetadata:             "malformed sso metadata",
}

// Message returns the user-facing description of k.
func (k Kind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return string(k)
}

// Error is a decision failure. Cause is kept for logs and is never shown to
// callers of the HTTP surface.
type Error struct {
	Kind  Kind
	Cause error
}

// New returns a failure of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap returns a failure of the given kind carrying cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind.Message(), e.Cause)
	}
	return e.Kind.Message()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same kind, so errors.Is(err, autherr.New(k))
// works as a kind check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the failure kind from err, or "" when err is not a
// decision failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
