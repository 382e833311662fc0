// Package sso evaluates asset-embedded SSO metadata: a wallet that holds an
// access NFT is granted its roles while the token is unexpired, issued by
// the expected party, bound to the right wallet, and within its usage and
// inactivity limits.
package sso

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SupportedVersion is the only metadata schema the engine evaluates.
const SupportedVersion = "0.1.0"

// ErrInvalidMetadata is returned when a supported metadata record is
// malformed.
var ErrInvalidMetadata = errors.New("sso: invalid metadata")

// Metadata is the typed SSO record read from an asset. Boolean fields are
// already canonicalized from their on-chain 0/1 encoding.
type Metadata struct {
	Version           string
	UniqueIdentifier  string
	Issuer            string
	IssuanceDate      time.Time
	ExpirationDate    time.Time
	Transferable      bool
	TiedWallet        string
	MaxUsageEnabled   bool
	MaxUsage          uint64
	InactivityEnabled bool
	InactivityPeriod  Period
	Roles             []string
}

// Supported reports whether m uses a schema version the engine understands.
func (m Metadata) Supported() bool {
	return m.Version == SupportedVersion
}

type wireMetadata struct {
	Version             text     `json:"version"`
	UniqueIdentifier    text     `json:"uniqueIdentifier"`
	Issuer              text     `json:"issuer"`
	IssuanceDate        text     `json:"issuanceDate"`
	ExpirationDate      text     `json:"expirationDate"`
	IsTransferable      flag     `json:"isTransferable"`
	TiedWallet          text     `json:"tiedWallet"`
	IsMaxUsageEnabled   flag     `json:"isMaxUsageEnabled"`
	MaxUsage            count    `json:"maxUsage"`
	IsInactivityEnabled flag     `json:"isInactivityEnabled"`
	InactivityPeriod    text     `json:"inactivityPeriod"`
	Role                textList `json:"role"`
}

// Parse converts a raw SSO metadata object into Metadata. Records with an
// unknown version are returned with only Version set so the caller can
// reject them; no other field of such a record is trusted.
func Parse(raw []byte) (Metadata, error) {
	var head struct {
		Version text `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	version := strings.TrimSpace(string(head.Version))
	if version != SupportedVersion {
		return Metadata{Version: version}, nil
	}

	var w wireMetadata
	if err := json.Unmarshal(raw, &w); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	md := Metadata{
		Version:           version,
		UniqueIdentifier:  strings.TrimSpace(string(w.UniqueIdentifier)),
		Issuer:            strings.TrimSpace(string(w.Issuer)),
		Transferable:      bool(w.IsTransferable),
		TiedWallet:        strings.TrimSpace(string(w.TiedWallet)),
		MaxUsageEnabled:   bool(w.IsMaxUsageEnabled),
		MaxUsage:          uint64(w.MaxUsage),
		InactivityEnabled: bool(w.IsInactivityEnabled),
		Roles:             []string(w.Role),
	}
	var err error
	if md.ExpirationDate, err = parseDate(string(w.ExpirationDate)); err != nil {
		return Metadata{}, fmt.Errorf("%w: expirationDate: %v", ErrInvalidMetadata, err)
	}
	if strings.TrimSpace(string(w.IssuanceDate)) != "" {
		if md.IssuanceDate, err = parseDate(string(w.IssuanceDate)); err != nil {
			return Metadata{}, fmt.Errorf("%w: issuanceDate: %v", ErrInvalidMetadata, err)
		}
	}
	if md.InactivityEnabled {
		if md.InactivityPeriod, err = ParsePeriod(string(w.InactivityPeriod)); err != nil {
			return Metadata{}, err
		}
	}
	return md, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts RFC 3339 timestamps and plain dates. Values without a
// zone are UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// text is a metadata string. CIP-25 splits strings longer than 64 bytes into
// arrays of chunks, which are joined back together.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '[':
		var parts []string
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*t = text(strings.Join(parts, ""))
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	default:
		// numbers such as a bare version or period
		*t = text(b)
	}
	return nil
}

// flag is a boolean encoded as 0/1, "0"/"1" or true/false. Anything other
// than a one is false.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "1", "true":
		*f = true
	case "0", "false", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", b)
	}
	return nil
}

// count is a non-negative integer that may be quoted.
type count uint64

func (c *count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid count %s", b)
	}
	*c = count(n)
	return nil
}

// textList is a role field: a single string or an array of strings.
type textList []string

func (l *textList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	var many []string
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
	} else {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		many = []string{one}
	}
	out := make([]string, 0, len(many))
	for _, r := range many {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	*l = out
	return nil
}
