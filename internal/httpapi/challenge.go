package httpapi

import (
	"strings"
	"sync"
	"time"

	"walletauth.org/internal/wallet"
)

const defaultNonceTTL = 5 * time.Minute

// Challenges hands out single-use nonces per stake address. A wallet signs
// the nonce and the next decision consumes it, so a captured signature
// cannot be replayed.
type Challenges struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]challenge
}

type challenge struct {
	nonce     string
	expiresAt time.Time
}

// NewChallenges returns an empty cache. A non-positive ttl uses five minutes.
func NewChallenges(ttl time.Duration, now func() time.Time) *Challenges {
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Challenges{ttl: ttl, now: now, pending: make(map[string]challenge)}
}

// Issue replaces any pending nonce of stakeAddress with a fresh one.
func (c *Challenges) Issue(stakeAddress string) (string, time.Time, error) {
	nonce, err := wallet.GenerateNonce()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now()
	exp := now.Add(c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(now)
	c.pending[challengeKey(stakeAddress)] = challenge{nonce: nonce, expiresAt: exp}
	return nonce, exp, nil
}

// Consume reports whether nonce is the live challenge of stakeAddress and
// removes it. A nonce is accepted at most once.
func (c *Challenges) Consume(stakeAddress, nonce string) bool {
	key := challengeKey(stakeAddress)
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[key]
	if !ok || ch.nonce != strings.TrimSpace(nonce) {
		return false
	}
	delete(c.pending, key)
	return c.now().Before(ch.expiresAt)
}

func (c *Challenges) sweep(now time.Time) {
	for k, ch := range c.pending {
		if !now.Before(ch.expiresAt) {
			delete(c.pending, k)
		}
	}
}

func challengeKey(stakeAddress string) string {
	return strings.ToLower(strings.TrimSpace(stakeAddress))
}
