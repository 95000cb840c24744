// Package ratelimit provides the token bucket that gates enrichment calls.
package ratelimit

import (
	"context"
	"math"
	"math/bits"
	"sync"
	"time"

	"catalog-importer/internal/common/clock"
)

// Limiter admits one caller per token
type Limiter interface {
	WaitForToken(ctx context.Context) error
}

// WaitObserver is told how long each successful WaitForToken call blocked
type WaitObserver func(waited time.Duration)

// TokenBucket earns whole tokens at exactly Capacity per Window and never
// holds more than Capacity tokens. It starts full.
//
// Token n after anchor arrives at anchor + ceil(n*Window/Capacity), so
// windows that do not divide evenly by Capacity lose no time to rounding.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int
	tokens   int
	window   time.Duration
	interval time.Duration
	poll     time.Duration
	anchor   time.Time
	credited int64
	clock    clock.Clock
	observer WaitObserver

	granted int64
	waited  time.Duration
}

// Option configures a TokenBucket
type Option func(*TokenBucket)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(b *TokenBucket) { b.clock = c }
}

// WithWaitObserver registers a callback invoked after each admission
func WithWaitObserver(fn WaitObserver) Option {
	return func(b *TokenBucket) { b.observer = fn }
}

// NewTokenBucket creates a full bucket from config
func NewTokenBucket(config Config, opts ...Option) (*TokenBucket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &TokenBucket{
		capacity: config.Capacity,
		tokens:   config.Capacity,
		window:   config.Window,
		interval: config.RefillInterval(),
		poll:     config.PollInterval,
		clock:    clock.Real{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.anchor = b.clock.Now()
	return b, nil
}

// WaitForToken blocks until a token is available and consumes it. It only
// returns an error when ctx ends while waiting, in which case no token was
// taken.
func (b *TokenBucket) WaitForToken(ctx context.Context) error {
	start := b.clock.Now()
	for {
		b.mu.Lock()
		now := b.clock.Now()
		b.refill(now)
		if b.tokens > 0 {
			b.tokens--
			b.granted++
			waited := now.Sub(start)
			b.waited += waited
			observer := b.observer
			b.mu.Unlock()

			if observer != nil {
				observer(waited)
			}
			return nil
		}
		untilNext := b.tokenAt(b.credited + 1).Sub(now)
		b.mu.Unlock()

		if untilNext > b.poll {
			untilNext = b.poll
		}
		if err := b.clock.Sleep(ctx, untilNext); err != nil {
			return err
		}
	}
}

// TryAcquire consumes a token if one is available without blocking
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.clock.Now())
	if b.tokens > 0 {
		b.tokens--
		b.granted++
		return true
	}
	return false
}

// refill credits the whole tokens earned since anchor. Once a full window's
// worth has been credited the anchor moves forward by whole windows, which
// keeps the arithmetic small. Caller holds mu.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.anchor)
	if elapsed <= 0 {
		return
	}

	earned := mulDiv(int64(elapsed), int64(b.capacity), int64(b.window), false)
	if earned <= b.credited {
		return
	}
	added := earned - b.credited
	b.credited = earned

	if added >= int64(b.capacity-b.tokens) {
		b.tokens = b.capacity
	} else {
		b.tokens += int(added)
	}

	if b.credited >= int64(b.capacity) {
		windows := b.credited / int64(b.capacity)
		b.anchor = b.anchor.Add(time.Duration(windows) * b.window)
		b.credited -= windows * int64(b.capacity)
	}
}

// tokenAt returns when the n-th token after anchor is earned
func (b *TokenBucket) tokenAt(n int64) time.Time {
	return b.anchor.Add(time.Duration(mulDiv(n, int64(b.window), int64(b.capacity), true)))
}

// lastRefill returns when the most recent token was earned. Caller holds mu.
func (b *TokenBucket) lastRefill() time.Time {
	return b.tokenAt(b.credited)
}

// mulDiv returns a*b/d for non-negative a and b and positive d, rounding up
// when roundUp is set. The product is computed in 128 bits; results that do
// not fit in an int64 saturate.
func mulDiv(a, b, d int64, roundUp bool) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(d) {
		return math.MaxInt64
	}
	q, r := bits.Div64(hi, lo, uint64(d))
	if roundUp && r != 0 {
		q++
	}
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// Tokens returns the current token count after refilling
func (b *TokenBucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.clock.Now())
	return b.tokens
}

// Capacity returns the bucket size
func (b *TokenBucket) Capacity() int {
	return b.capacity
}

// Stats returns rate limiter statistics
func (b *TokenBucket) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.clock.Now())

	return map[string]interface{}{
		"type":             "token_bucket",
		"capacity":         b.capacity,
		"refill_interval":  b.interval,
		"available_tokens": b.tokens,
		"granted":          b.granted,
		"total_wait":       b.waited,
		"last_refill":      b.lastRefill(),
	}
}

var _ Limiter = (*TokenBucket)(nil)
