package ratelimit

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"catalog-importer/internal/common/clock"
	"catalog-importer/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newBucket(t *testing.T, capacity int, window time.Duration) (*TokenBucket, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	b, err := NewTokenBucket(Config{Capacity: capacity, Window: window}, WithClock(fake))
	require.NoError(t, err)
	return b, fake
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero capacity", Config{Capacity: 0, Window: time.Second}, true},
		{"negative window", Config{Capacity: 1, Window: -time.Second}, true},
		{"window shorter than capacity in ns", Config{Capacity: 10, Window: 5}, true},
		{"poll filled in", Config{Capacity: 1, Window: time.Second}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Greater(t, tt.config.PollInterval, time.Duration(0))
		})
	}
}

func TestTokenBucket_ColdStartBurst(t *testing.T) {
	b, fake := newBucket(t, 5, 10*time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.WaitForToken(context.Background()))
	}

	assert.Equal(t, epoch, fake.Now(), "burst up to capacity must not block")
	assert.Empty(t, fake.Sleeps())
	assert.Equal(t, 0, b.Tokens())
}

func TestTokenBucket_BackToBackRequestsTakeAtLeastRefillTime(t *testing.T) {
	tests := []struct {
		capacity int
		window   time.Duration
		n        int
	}{
		{5, 10 * time.Second, 12},
		{60, time.Minute, 75},
		{3, 900 * time.Millisecond, 10},
		{1, 2 * time.Second, 4},
		{3, time.Second, 10},
		{7, time.Minute, 20},
	}

	for _, tt := range tests {
		b, fake := newBucket(t, tt.capacity, tt.window)

		for i := 0; i < tt.n; i++ {
			require.NoError(t, b.WaitForToken(context.Background()))
			assert.LessOrEqual(t, b.Tokens(), tt.capacity)
		}

		minimum := time.Duration(int64(tt.n-tt.capacity) * int64(tt.window) / int64(tt.capacity))
		elapsed := fake.Now().Sub(epoch)
		// elapsed >= (n-C)*W/C, compared without rounding
		assert.GreaterOrEqual(t, int64(elapsed)*int64(tt.capacity), int64(tt.n-tt.capacity)*int64(tt.window),
			"capacity=%d window=%s n=%d", tt.capacity, tt.window, tt.n)
		// whole-token scheduling means no more than one poll of overshoot per token
		assert.LessOrEqual(t, elapsed, minimum+time.Duration(tt.n)*DefaultPollInterval)
	}
}

func TestTokenBucket_PollsInBoundedSleeps(t *testing.T) {
	b, fake := newBucket(t, 1, 2*time.Second)

	require.NoError(t, b.WaitForToken(context.Background()))
	require.NoError(t, b.WaitForToken(context.Background()))

	sleeps := fake.Sleeps()
	require.NotEmpty(t, sleeps)
	for _, s := range sleeps {
		assert.LessOrEqual(t, s, DefaultPollInterval)
		assert.Greater(t, s, time.Duration(0))
	}
	assert.Equal(t, 2*time.Second, fake.Total())
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	b, fake := newBucket(t, 4, 4*time.Second)

	fake.Advance(time.Hour)
	assert.Equal(t, 4, b.Tokens())

	require.True(t, b.TryAcquire())
	fake.Advance(24 * time.Hour)
	assert.Equal(t, 4, b.Tokens())
}

func TestTokenBucket_WholeTokenRefill(t *testing.T) {
	b, fake := newBucket(t, 2, 2*time.Second)

	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	// 1.5 intervals earn exactly one token and keep the remainder
	fake.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, b.Tokens())
	assert.Equal(t, epoch.Add(time.Second), b.Stats()["last_refill"])

	fake.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, b.Tokens())
	assert.Equal(t, epoch.Add(2*time.Second), b.Stats()["last_refill"])
}

func TestTokenBucket_UnevenWindowRefillsExactly(t *testing.T) {
	b, fake := newBucket(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, b.TryAcquire())
	}

	// 1s/3 is 333333333.33ns; the first token is earned at the rounded-up instant
	fake.Advance(333333333 * time.Nanosecond)
	assert.Equal(t, 0, b.Tokens())
	fake.Advance(time.Nanosecond)
	assert.Equal(t, 1, b.Tokens())

	fake.Advance(333333332 * time.Nanosecond)
	assert.Equal(t, 1, b.Tokens())
	fake.Advance(time.Nanosecond)
	assert.Equal(t, 2, b.Tokens())

	// the third token lands exactly on the window boundary
	fake.Advance(333333332 * time.Nanosecond)
	assert.Equal(t, 2, b.Tokens())
	fake.Advance(time.Nanosecond)
	assert.Equal(t, 3, b.Tokens())
	assert.Equal(t, epoch.Add(time.Second), b.Stats()["last_refill"])
}

func TestTokenBucket_UnevenWindowNeverAdmitsEarly(t *testing.T) {
	b, fake := newBucket(t, 3, time.Second)

	const n = 3 + 3*1000
	for i := 0; i < n; i++ {
		require.NoError(t, b.WaitForToken(context.Background()))
	}

	// 3000 refilled tokens take exactly 1000 windows
	assert.Equal(t, 1000*time.Second, fake.Now().Sub(epoch))
}

func TestMulDiv(t *testing.T) {
	assert.Equal(t, int64(333333333), mulDiv(1, int64(time.Second), 3, false))
	assert.Equal(t, int64(333333334), mulDiv(1, int64(time.Second), 3, true))
	assert.Equal(t, int64(6), mulDiv(4, 3, 2, true))
	assert.Equal(t, int64(math.MaxInt64)/2, mulDiv(math.MaxInt64, 3, 6, false))
	assert.Equal(t, int64(math.MaxInt64), mulDiv(math.MaxInt64, 4, 2, false))
}

func TestTokenBucket_LastRefillIsMonotonic(t *testing.T) {
	b, fake := newBucket(t, 3, 3*time.Second)

	var last time.Time
	for i := 0; i < 20; i++ {
		require.NoError(t, b.WaitForToken(context.Background()))
		fake.Advance(333 * time.Millisecond)

		current := b.Stats()["last_refill"].(time.Time)
		assert.False(t, current.Before(last))
		assert.Zero(t, current.Sub(epoch)%time.Second, "last refill must move in whole intervals")
		last = current
	}
}

func TestTokenBucket_CancelWhileWaiting(t *testing.T) {
	b, err := NewTokenBucket(Config{Capacity: 1, Window: time.Hour})
	require.NoError(t, err)
	require.NoError(t, b.WaitForToken(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = b.WaitForToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), b.Stats()["granted"])
}

func TestTokenBucket_WaitObserver(t *testing.T) {
	var waits []time.Duration
	fake := clock.NewFake(epoch)
	b, err := NewTokenBucket(Config{Capacity: 1, Window: time.Second},
		WithClock(fake),
		WithWaitObserver(func(d time.Duration) { waits = append(waits, d) }),
	)
	require.NoError(t, err)

	require.NoError(t, b.WaitForToken(context.Background()))
	require.NoError(t, b.WaitForToken(context.Background()))

	assert.Equal(t, []time.Duration{0, time.Second}, waits)
	assert.Equal(t, time.Second, b.Stats()["total_wait"])
}

func TestTokenBucket_ConcurrentWaitersConsumeExactlyOneEach(t *testing.T) {
	b, err := NewTokenBucket(Config{Capacity: 20, Window: 200 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	const waiters = 30
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.WaitForToken(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(waiters), b.Stats()["granted"])
	assert.LessOrEqual(t, b.Tokens(), 20)
}
