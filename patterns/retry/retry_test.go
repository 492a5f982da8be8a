package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryAndSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0, MaxDelay: time.Second}
	expected := errors.New("persistent error")
	attempts := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return expected
	}, cfg)

	assert.Same(t, expected, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, BackoffFactor: 2.0, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("error")
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2)
}

func TestDoWithInfo_AttemptNumbers(t *testing.T) {
	var received []int
	err := DoWithInfo(context.Background(), func(ctx context.Context, attempt int) error {
		received = append(received, attempt)
		if attempt < 2 {
			return errors.New("fail first time")
		}
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, received)
}

func TestDoValue_ReturnsValueAndCallsOnRetry(t *testing.T) {
	var retried []int
	cfg := DefaultConfig()
	cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	v, err := DoValue(context.Background(), func(ctx context.Context, attempt int) (string, error) {
		if attempt == 1 {
			return "", errors.New("concurrent modification")
		}
		return "<E1/>", nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, "<E1/>", v)
	assert.Equal(t, []int{1}, retried)
}

func TestDoValue_NotRetryable(t *testing.T) {
	structural := errors.New("unsupported type")
	cfg := DefaultConfig().WithRetries(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, structural) }
	attempts := 0

	_, err := DoValue(context.Background(), func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return 0, structural
	}, cfg)

	assert.ErrorIs(t, err, structural)
	assert.Equal(t, 1, attempts)
}

func TestConfig_WithRetries(t *testing.T) {
	assert.Equal(t, 2, DefaultConfig().WithRetries(1).MaxAttempts)
	assert.Equal(t, 1, DefaultConfig().WithRetries(-3).MaxAttempts)
	assert.Equal(t, 4, DefaultConfig().WithRetries(3).MaxAttempts)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, time.Second, cfg.MaxDelay)
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond, BackoffFactor: 2.0, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, backoff(cfg, 1))
	assert.Equal(t, 20*time.Millisecond, backoff(cfg, 2))
	assert.Equal(t, 40*time.Millisecond, backoff(cfg, 3))
	assert.Equal(t, 50*time.Millisecond, backoff(cfg, 4))
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("x")
	}, Config{})
	assert.Equal(t, 1, attempts)
}
