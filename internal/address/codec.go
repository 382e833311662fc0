// Package address converts raw stake credentials into bech32 wallet
// addresses. Encoding is pure and deterministic.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Network selects the human-readable prefix of an encoded address. The
// numeric values match the CIP-30 network id reported by wallets.
type Network int

const (
	Testnet Network = 0
	Mainnet Network = 1
)

const (
	mainnetPrefix = "stake"
	testnetPrefix = "stake_test"

	keyHashSize = 28
	// header byte followed by the key hash
	stakeAddressSize = keyHashSize + 1

	stakeKeyHeader    byte = 0xe0
	stakeScriptHeader byte = 0xf0
)

// ErrEncoding is returned when a key hash cannot be turned into an address.
var ErrEncoding = errors.New("address: encoding error")

// Valid reports whether n is a known network.
func (n Network) Valid() bool {
	return n == Mainnet || n == Testnet
}

// Prefix returns the bech32 human-readable part used for stake addresses.
func (n Network) Prefix() string {
	if n == Mainnet {
		return mainnetPrefix
	}
	return testnetPrefix
}

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	default:
		return fmt.Sprintf("network(%d)", int(n))
	}
}

// DeriveAddress encodes a stake credential as a bech32 stake address.
//
// rawKeyHashHex is either the 29-byte reward address reported by a wallet
// (header byte plus key hash) or a bare 28-byte key hash, in which case a
// key-hash stake header for the selected network is prepended. A header whose
// network id disagrees with network is rejected.
func DeriveAddress(rawKeyHashHex string, network Network) (string, error) {
	if !network.Valid() {
		return "", fmt.Errorf("%w: unknown network %d", ErrEncoding, int(network))
	}
	raw, err := hex.DecodeString(strings.TrimSpace(rawKeyHashHex))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	var payload []byte
	switch len(raw) {
	case keyHashSize:
		payload = make([]byte, 0, stakeAddressSize)
		payload = append(payload, stakeKeyHeader|byte(network))
		payload = append(payload, raw...)
	case stakeAddressSize:
		if h := raw[0] & 0xf0; h != stakeKeyHeader && h != stakeScriptHeader {
			return "", fmt.Errorf("%w: header %#x is not a stake address", ErrEncoding, raw[0])
		}
		if Network(raw[0]&0x0f) != network {
			return "", fmt.Errorf("%w: header %#x is not a %s address", ErrEncoding, raw[0], network)
		}
		payload = raw
	default:
		return "", fmt.Errorf("%w: got %d bytes, want %d or %d", ErrEncoding, len(raw), keyHashSize, stakeAddressSize)
	}
	words, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	encoded, err := bech32.Encode(network.Prefix(), words)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return encoded, nil
}

// DecodeAddress returns the human-readable prefix and raw bytes of any
// bech32 Cardano address. Shelley addresses exceed the 90 character limit of
// BIP-173, so the length check is skipped.
func DecodeAddress(addr string) (string, []byte, error) {
	hrp, words, err := bech32.DecodeNoLimit(strings.TrimSpace(addr))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return hrp, raw, nil
}

// KeyHashes returns the key-hash credentials embedded in a raw address.
// Script credentials are skipped since no single key can sign for them.
func KeyHashes(raw []byte) [][]byte {
	if len(raw) < stakeAddressSize {
		return nil
	}
	header := raw[0] >> 4
	var out [][]byte
	switch header {
	case 0x0: // base address: payment key, stake key
		out = append(out, raw[1:stakeAddressSize])
		if len(raw) >= stakeAddressSize+keyHashSize {
			out = append(out, raw[stakeAddressSize:stakeAddressSize+keyHashSize])
		}
	case 0x1: // base address: payment script, stake key
		if len(raw) >= stakeAddressSize+keyHashSize {
			out = append(out, raw[stakeAddressSize:stakeAddressSize+keyHashSize])
		}
	case 0x2, 0x4, 0x6, 0xe: // payment key with script/pointer/no stake, or stake key
		out = append(out, raw[1:stakeAddressSize])
	}
	return out
}
