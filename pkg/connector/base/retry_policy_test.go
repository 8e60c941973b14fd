package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

func fastPolicy(attempts int) *RetryPolicy {
	rp := NewRetryPolicy(attempts, time.Millisecond)
	rp.RandomizeFactor = 0
	return rp
}

func TestExecuteWithConditionSucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retries []int
	rp := fastPolicy(7)
	rp.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	err := rp.ExecuteWithCondition(context.Background(), func() error {
		calls++
		if calls < 3 {
			return nerrors.New(nerrors.ErrorTypeRetriableAPI, "503")
		}
		return nil
	}, nerrors.IsRetryable)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestExecuteWithConditionExhausts(t *testing.T) {
	calls := 0
	err := fastPolicy(7).ExecuteWithCondition(context.Background(), func() error {
		calls++
		return nerrors.New(nerrors.ErrorTypeConnection, "refused")
	}, nerrors.IsRetryable)

	require.Error(t, err)
	assert.Equal(t, 7, calls)
	assert.Contains(t, err.Error(), "all 7 attempts failed")
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConnection))
}

func TestExecuteWithConditionStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := nerrors.New(nerrors.ErrorTypeValidation, "bad request")
	err := fastPolicy(7).ExecuteWithCondition(context.Background(), func() error {
		calls++
		return permanent
	}, nerrors.IsRetryable)

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithConditionHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rp := NewRetryPolicy(5, time.Hour)
	rp.OnRetry = func(int, time.Duration, error) { cancel() }

	err := rp.ExecuteWithCondition(ctx, func() error { return errors.New("boom") },
		func(error) bool { return true })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelays(t *testing.T) {
	rp := NewRetryPolicy(7, 2*time.Second)
	rp.RandomizeFactor = 0
	assert.Equal(t, 2*time.Second, rp.calculateDelay(0))
	assert.Equal(t, 4*time.Second, rp.calculateDelay(1))
	assert.Equal(t, 64*time.Second, rp.calculateDelay(5))

	capped := rp.WithDelay(time.Second, 3*time.Second)
	assert.Equal(t, 3*time.Second, capped.calculateDelay(4))

	jittered := NewRetryPolicy(7, time.Second)
	for i := 0; i < 20; i++ {
		d := jittered.calculateDelay(0)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
