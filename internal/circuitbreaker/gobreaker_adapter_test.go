package circuitbreaker

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
)

var errNotFound = stderrors.New("HTTP 404 Not Found")

func TestGoBreakerAdapter(t *testing.T) {
	logger := logging.NewNopLogger()

	t.Run("closed passes calls through", func(t *testing.T) {
		cb := NewGoBreaker("enrich-basic", Config{Failures: 2, Cooldown: 100 * time.Millisecond, Probes: 1}, logger)

		assert.Equal(t, StateClosed, cb.State())
		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		cb := NewGoBreaker("enrich-down", Config{Failures: 3, Cooldown: time.Minute, Probes: 1}, logger)

		for i := 0; i < 3; i++ {
			err := cb.Execute(func() error { return fmt.Errorf("HTTP 503 Service Unavailable (%d)", i) })
			assert.Error(t, err)
		}
		assert.Equal(t, StateOpen, cb.State())

		err := cb.Execute(func() error {
			t.Fatal("call must not run while open")
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeRateLimit))
		assert.Contains(t, err.Error(), "circuit breaker enrich-down is open")
	})

	t.Run("healthy errors do not trip", func(t *testing.T) {
		cb := NewGoBreaker("enrich-404", Config{
			Failures: 2,
			Cooldown: time.Minute,
			Probes:   1,
			Healthy:  func(err error) bool { return stderrors.Is(err, errNotFound) },
		}, logger)

		for i := 0; i < 5; i++ {
			err := cb.Execute(func() error { return errNotFound })
			assert.ErrorIs(t, err, errNotFound)
		}
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, 0, cb.ConsecutiveFailures())
	})

	t.Run("half-open recovers", func(t *testing.T) {
		cb := NewGoBreaker("enrich-recover", Config{Failures: 1, Cooldown: 20 * time.Millisecond, Probes: 1}, logger)

		assert.Error(t, cb.Execute(func() error { return fmt.Errorf("down") }))
		assert.Equal(t, StateOpen, cb.State())

		time.Sleep(40 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, cb.State())

		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("invalid config falls back to defaults and keeps Healthy", func(t *testing.T) {
		cb := NewGoBreaker("enrich-defaults", Config{Healthy: func(err error) bool { return stderrors.Is(err, errNotFound) }}, nil)

		for i := 0; i < DefaultConfig().Failures-1; i++ {
			_ = cb.Execute(func() error { return fmt.Errorf("x") })
		}
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, DefaultConfig().Failures-1, cb.ConsecutiveFailures())

		_ = cb.Execute(func() error { return errNotFound })
		assert.Equal(t, 0, cb.ConsecutiveFailures())
	})
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Failures: 0, Cooldown: time.Second, Probes: 1}.Validate())
	assert.Error(t, Config{Failures: 1, Cooldown: 0, Probes: 1}.Validate())
	assert.Error(t, Config{Failures: 1, Cooldown: time.Second, Probes: 0}.Validate())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
