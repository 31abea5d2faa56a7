package bridge

import (
	"math"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"yieldnet/core/ledger"
)

// timeNow is swapped out by tests that need deterministic bucket refills.
var timeNow = time.Now

// Direction identifies which side of the bridge an operation flows through.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Limiter is consulted before a lock or release completes. A false return
// aborts the operation with ErrRateLimitExceeded.
type Limiter interface {
	TryConsume(direction Direction, amount *big.Int) bool
}

// UnlimitedLimiter admits every request. Useful for tests and local runs.
type UnlimitedLimiter struct{}

func (UnlimitedLimiter) TryConsume(Direction, *big.Int) bool { return true }

// LimitConfig shapes one direction of a token bucket limiter. Amounts are
// measured in whole tokens (the ledger precision unit).
type LimitConfig struct {
	TokensPerSecond float64
	Burst           int
}

// TokenBucketLimiter enforces per-direction token buckets over bridged value.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	buckets map[Direction]*rate.Limiter
}

// NewTokenBucketLimiter builds a limiter from per-direction configuration.
// Directions without configuration are unlimited.
func NewTokenBucketLimiter(limits map[Direction]LimitConfig) *TokenBucketLimiter {
	buckets := make(map[Direction]*rate.Limiter, len(limits))
	for direction, cfg := range limits {
		if cfg.TokensPerSecond <= 0 {
			continue
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.TokensPerSecond))
		}
		buckets[direction] = rate.NewLimiter(rate.Limit(cfg.TokensPerSecond), burst)
	}
	return &TokenBucketLimiter{buckets: buckets}
}

// TryConsume charges the bucket for the whole-token value of amount. Amounts
// smaller than one token are charged as one token.
func (l *TokenBucketLimiter) TryConsume(direction Direction, amount *big.Int) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	bucket, ok := l.buckets[direction]
	l.mu.Unlock()
	if !ok {
		return true
	}
	return bucket.AllowN(timeNow(), tokenUnits(amount))
}

func tokenUnits(amount *big.Int) int {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	units := new(big.Int).Quo(amount, ledger.Precision)
	if units.Sign() == 0 {
		return 1
	}
	if !units.IsInt64() || units.Int64() > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(units.Int64())
}
