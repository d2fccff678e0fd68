// Package replay rejects duplicate batch envelopes by nonce. The guard is
// process-local: replay protection holds within one instance, not across a
// fleet.
package replay

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/boosterlab/packdrop/internal/adapter"
)

var (
	// ErrStaleTimestamp marks an envelope timestamp outside the accepted
	// clock-skew window.
	ErrStaleTimestamp = errors.New("request timestamp outside tolerance")
	// ErrNonceReplayed marks a nonce already consumed within its TTL.
	ErrNonceReplayed = errors.New("nonce already used")
)

// Guard tracks consumed nonces for their TTL and bounds envelope
// timestamps to a skew window around the server clock.
type Guard struct {
	clock     adapter.Clock
	tolerance time.Duration

	// mu makes the check-and-insert atomic; the cache alone would let two
	// concurrent envelopes with the same nonce both pass.
	mu   sync.Mutex
	seen *expirable.LRU[string, int64]
}

// NewGuard creates a guard accepting timestamps within the given tolerance
// and remembering nonces for ttl.
func NewGuard(clock adapter.Clock, tolerance, ttl time.Duration) *Guard {
	return &Guard{
		clock:     clock,
		tolerance: tolerance,
		seen:      expirable.NewLRU[string, int64](0, nil, ttl),
	}
}

// Check validates an envelope's timestamp and consumes its nonce. A nil
// return means the envelope is fresh; the nonce is then burned whether or
// not the batch inside it later succeeds.
func (g *Guard) Check(nonce string, timestamp time.Time) error {
	now := g.clock.Now()
	skew := now.Sub(timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > g.tolerance {
		return ErrStaleTimestamp
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen.Get(nonce); ok {
		return ErrNonceReplayed
	}
	g.seen.Add(nonce, now.UnixMilli())
	return nil
}
