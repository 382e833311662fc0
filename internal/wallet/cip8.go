package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"walletauth.org/internal/address"
)

// COSE labels used by CIP-8 message signing.
const (
	labelAlg = 1
	labelKty = 1
	labelCrv = -1
	labelX   = -2

	algEdDSA   = -8
	ktyOKP     = 1
	crvEd25519 = 6

	addressHeader = "address"
	hashedHeader  = "hashed"

	keyHashSize = 28
)

var (
	errBadSign1 = errors.New("wallet: malformed COSE_Sign1")
	errBadKey   = errors.New("wallet: malformed COSE_Key")
)

// DataSignature verifies CIP-30 signData output: a COSE_Sign1 structure
// signed with the Ed25519 key carried in a COSE_Key.
type DataSignature struct{}

type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Signature   []byte
}

// Verify checks that signature was produced over message by the key in key,
// that the signed address header equals addr, and that the key hashes to a
// credential of addr.
func (DataSignature) Verify(signature, key, message []byte, addr string) (bool, error) {
	var sign1 coseSign1
	if err := cbor.Unmarshal(signature, &sign1); err != nil {
		return false, fmt.Errorf("%w: %v", errBadSign1, err)
	}
	var protected map[any]any
	if err := cbor.Unmarshal(sign1.Protected, &protected); err != nil {
		return false, fmt.Errorf("%w: protected header: %v", errBadSign1, err)
	}
	if alg, ok := intLabel(protected, labelAlg); !ok || alg != algEdDSA {
		return false, fmt.Errorf("%w: unsupported algorithm", errBadSign1)
	}
	signedAddr, ok := protected[addressHeader].([]byte)
	if !ok {
		return false, fmt.Errorf("%w: missing address header", errBadSign1)
	}
	_, expected, err := address.DecodeAddress(addr)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(signedAddr, expected) {
		return false, nil
	}

	pub, err := parseCOSEKey(key)
	if err != nil {
		return false, err
	}
	keyHash, err := blake2b224(pub)
	if err != nil {
		return false, err
	}
	if !containsKeyHash(address.KeyHashes(expected), keyHash) {
		return false, nil
	}

	hashed, _ := sign1.Unprotected[hashedHeader].(bool)
	match, err := payloadMatches(sign1.Payload, message, hashed)
	if err != nil || !match {
		return false, err
	}

	toVerify, err := cbor.Marshal([]any{"Signature1", sign1.Protected, []byte{}, sign1.Payload})
	if err != nil {
		return false, fmt.Errorf("wallet: encode Sig_structure: %w", err)
	}
	return ed25519.Verify(pub, toVerify, sign1.Signature), nil
}

func parseCOSEKey(raw []byte) (ed25519.PublicKey, error) {
	var key map[any]any
	if err := cbor.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadKey, err)
	}
	if kty, ok := intLabel(key, labelKty); !ok || kty != ktyOKP {
		return nil, fmt.Errorf("%w: key type must be OKP", errBadKey)
	}
	if crv, ok := intLabel(key, labelCrv); ok && crv != crvEd25519 {
		return nil, fmt.Errorf("%w: curve must be Ed25519", errBadKey)
	}
	x, ok := label(key, labelX)
	if !ok {
		return nil, fmt.Errorf("%w: missing public key", errBadKey)
	}
	pub, ok := x.([]byte)
	if !ok || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes", errBadKey, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(pub), nil
}

func payloadMatches(payload, message []byte, hashed bool) (bool, error) {
	if len(payload) == 0 || len(message) == 0 {
		return false, nil
	}
	if hashed {
		sum, err := blake2b224(message)
		if err != nil {
			return false, err
		}
		return bytes.Equal(payload, sum), nil
	}
	if bytes.Equal(payload, message) {
		return true, nil
	}
	// wallets are handed the message as hex and sign the decoded bytes
	if decoded, err := hex.DecodeString(string(message)); err == nil {
		return bytes.Equal(payload, decoded), nil
	}
	return false, nil
}

func blake2b224(data []byte) ([]byte, error) {
	h, err := blake2b.New(keyHashSize, nil)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

func containsKeyHash(hashes [][]byte, want []byte) bool {
	for _, h := range hashes {
		if bytes.Equal(h, want) {
			return true
		}
	}
	return false
}

// label looks up an integer COSE label. CBOR decodes non-negative integers
// as uint64 and negative ones as int64.
func label(m map[any]any, l int64) (any, bool) {
	for k, v := range m {
		if n, ok := toInt64(k); ok && n == l {
			return v, true
		}
	}
	return nil, false
}

func intLabel(m map[any]any, l int64) (int64, bool) {
	v, ok := label(m, l)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case uint64:
		if t > 1<<63-1 {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}
