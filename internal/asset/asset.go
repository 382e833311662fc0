// Package asset models native tokens held by a wallet.
package asset

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PolicyIDLength is the hex length of a minting policy id (28 bytes).
const PolicyIDLength = 56

// maxNameLength is the hex length of the longest asset name (32 bytes).
const maxNameLength = 64

// ErrInvalidUnit is returned when an indexer unit string cannot be split.
var ErrInvalidUnit = errors.New("asset: invalid unit")

// Asset is an immutable (policy, name, amount) value. Two assets are the same
// token when their Key matches; Amount only matters for ownership checks.
type Asset struct {
	PolicyID  string `json:"policyID"`
	AssetName string `json:"assetName"`
	Amount    uint64 `json:"amount"`
}

// Key identifies a token class regardless of amount.
type Key struct {
	PolicyID  string
	AssetName string
}

// Key returns the uniqueness key of a.
func (a Asset) Key() Key {
	return Key{PolicyID: a.PolicyID, AssetName: a.AssetName}
}

// Unit returns the concatenated policy id and hex asset name used by indexers.
func (a Asset) Unit() string {
	return a.PolicyID + a.AssetName
}

// Equal reports whether a and b match on policy, name and amount.
func (a Asset) Equal(b Asset) bool {
	return a.Key() == b.Key() && a.Amount == b.Amount
}

func (a Asset) String() string {
	return fmt.Sprintf("%s.%s x%d", a.PolicyID, a.AssetName, a.Amount)
}

// Validate checks the policy id and asset name are well-formed hex.
func (a Asset) Validate() error {
	if len(a.PolicyID) != PolicyIDLength {
		return fmt.Errorf("%w: policy id must be %d hex chars", ErrInvalidUnit, PolicyIDLength)
	}
	if _, err := hex.DecodeString(a.PolicyID); err != nil {
		return fmt.Errorf("%w: policy id: %v", ErrInvalidUnit, err)
	}
	if len(a.AssetName) > maxNameLength {
		return fmt.Errorf("%w: asset name longer than 32 bytes", ErrInvalidUnit)
	}
	if _, err := hex.DecodeString(a.AssetName); err != nil {
		return fmt.Errorf("%w: asset name: %v", ErrInvalidUnit, err)
	}
	return nil
}

// Normalize returns a with its policy id and asset name trimmed and
// lowercased, the form indexers report units in.
func Normalize(a Asset) Asset {
	a.PolicyID = strings.ToLower(strings.TrimSpace(a.PolicyID))
	a.AssetName = strings.ToLower(strings.TrimSpace(a.AssetName))
	return a
}

// NormalizeAll applies Normalize to every element. A nil slice stays nil.
func NormalizeAll(assets []Asset) []Asset {
	if assets == nil {
		return nil
	}
	out := make([]Asset, len(assets))
	for i, a := range assets {
		out[i] = Normalize(a)
	}
	return out
}

// ParseUnit splits an indexer unit into its fixed-width policy id prefix and
// the remaining asset name suffix.
func ParseUnit(unit string, amount uint64) (Asset, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if len(unit) < PolicyIDLength {
		return Asset{}, fmt.Errorf("%w: %q shorter than a policy id", ErrInvalidUnit, unit)
	}
	a := Asset{
		PolicyID:  unit[:PolicyIDLength],
		AssetName: unit[PolicyIDLength:],
		Amount:    amount,
	}
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}
	return a, nil
}

// FindMatching returns the first element of assets with the same policy id
// and asset name as target. Amount is not part of the match.
func FindMatching(assets []Asset, target Asset) (Asset, bool) {
	key := target.Key()
	for _, a := range assets {
		if a.Key() == key {
			return a, true
		}
	}
	return Asset{}, false
}

// ContainsExact reports whether holdings contain target with the exact same
// policy id, asset name and amount.
func ContainsExact(holdings []Asset, target Asset) bool {
	for _, h := range holdings {
		if h.Equal(target) {
			return true
		}
	}
	return false
}

// SameHoldings reports whether two lists hold exactly the same assets with
// the same multiplicity. Order does not matter.
func SameHoldings(a, b []Asset) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[Asset]int, len(a))
	for _, x := range a {
		counts[x]++
	}
	for _, y := range b {
		if counts[y] == 0 {
			return false
		}
		counts[y]--
	}
	return true
}

// DecodeName renders a hex asset name as text. Names that are not valid
// UTF-8 are returned unchanged.
func DecodeName(hexName string) string {
	raw, err := hex.DecodeString(hexName)
	if err != nil || !utf8.Valid(raw) {
		return hexName
	}
	return string(raw)
}
