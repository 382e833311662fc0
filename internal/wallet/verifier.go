// Package wallet proves control of a stake address from a signed message.
package wallet

import (
	"encoding/hex"
	"errors"
	"strings"

	"walletauth.org/internal/address"
)

// Primitive verifies a wallet data signature for a message and an encoded
// address. Implementations may return an error or panic on malformed input;
// Verifier treats both as a failed proof.
type Primitive interface {
	Verify(signature, key, message []byte, addr string) (bool, error)
}

// PrimitiveFunc adapts a function to Primitive.
type PrimitiveFunc func(signature, key, message []byte, addr string) (bool, error)

func (f PrimitiveFunc) Verify(signature, key, message []byte, addr string) (bool, error) {
	return f(signature, key, message, addr)
}

// Credential is the material a wallet hands over to prove ownership. It only
// lives for a single verification call.
type Credential struct {
	KeyHashHex string
	Network    address.Network
	Signature  []byte
	Key        []byte
	Message    []byte
}

// ErrMalformedCredential is returned by ParseCredential on undecodable input.
var ErrMalformedCredential = errors.New("wallet: malformed credential")

// ParseCredential decodes the hex wire form produced by CIP-30 wallets.
// The nonce is used as the message verbatim.
func ParseCredential(keyHashHex string, network address.Network, signatureHex, keyHex, nonce string) (Credential, error) {
	sig, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil || len(sig) == 0 {
		return Credential{}, ErrMalformedCredential
	}
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil || len(key) == 0 {
		return Credential{}, ErrMalformedCredential
	}
	if strings.TrimSpace(nonce) == "" || strings.TrimSpace(keyHashHex) == "" {
		return Credential{}, ErrMalformedCredential
	}
	return Credential{
		KeyHashHex: strings.TrimSpace(keyHashHex),
		Network:    network,
		Signature:  sig,
		Key:        key,
		Message:    []byte(nonce),
	}, nil
}

// Verifier combines address derivation with a signature primitive.
type Verifier struct {
	primitive Primitive
}

// NewVerifier returns a Verifier backed by p. A nil primitive falls back to
// CIP-8 data signatures.
func NewVerifier(p Primitive) *Verifier {
	if p == nil {
		p = DataSignature{}
	}
	return &Verifier{primitive: p}
}

// VerifyOwnership reports whether cred proves control of the address derived
// from its key hash. It never returns an error and never panics: malformed
// input, a failing primitive and a bad signature all yield false.
func (v *Verifier) VerifyOwnership(cred Credential) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if v == nil || v.primitive == nil {
		return false
	}
	addr, err := address.DeriveAddress(cred.KeyHashHex, cred.Network)
	if err != nil {
		return false
	}
	valid, err := v.primitive.Verify(cred.Signature, cred.Key, cred.Message, addr)
	if err != nil {
		return false
	}
	return valid
}
