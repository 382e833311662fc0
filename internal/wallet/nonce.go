package wallet

import (
	"crypto/rand"
	"encoding/hex"
)

const nonceSize = 16

// GenerateNonce returns a random 16-byte challenge, hex encoded, for a wallet
// to sign.
func GenerateNonce() (string, error) {
	buf := make([]byte, nonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
