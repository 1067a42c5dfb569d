package retry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		OnRetry:     func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
	}, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(context.Context, int) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentAndNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5}, func(context.Context, int) error {
		calls++
		return Permanent(errFlaky)
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Do(context.Background(), Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, errFlaky) },
	}, func(context.Context, int) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_WaitsOnClock(t *testing.T) {
	mock := clock.NewMock()
	done := make(chan error, 1)
	calls := make(chan int, 4)

	go func() {
		done <- Do(context.Background(), Policy{
			MaxAttempts: 2,
			BaseDelay:   2 * time.Second,
			Clock:       mock,
		}, func(_ context.Context, attempt int) error {
			calls <- attempt
			if attempt == 1 {
				return errFlaky
			}
			return nil
		})
	}()

	require.Equal(t, 1, <-calls)
	select {
	case <-calls:
		t.Fatal("second attempt ran before the delay elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case n := <-calls:
			return n == 2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, <-done)
}

func TestDo_ContextCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := clock.NewMock()
	done := make(chan error, 1)

	go func() {
		done <- Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Minute, Clock: mock},
			func(context.Context, int) error { return errFlaky })
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, errFlaky)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 800 * time.Millisecond, MaxDelay: 3 * time.Second, Backoff: Linear}
	assert.Equal(t, 800*time.Millisecond, p.Delay(1))
	assert.Equal(t, 2400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 3*time.Second, p.Delay(4))

	exp := Policy{BaseDelay: time.Second, Backoff: Exponential}
	assert.Equal(t, 4*time.Second, exp.Delay(3))

	assert.Equal(t, 2*time.Second, Policy{BaseDelay: 2 * time.Second}.Delay(5))
}

func TestPolicy_DelaySaturatesOnLongRuns(t *testing.T) {
	capped := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Backoff: Exponential}
	for _, attempt := range []int{30, 40, 64, 100, 1 << 20} {
		assert.Equal(t, time.Minute, capped.Delay(attempt), "attempt %d", attempt)
	}

	uncapped := Policy{BaseDelay: time.Second, Backoff: Exponential}
	assert.Positive(t, uncapped.Delay(64))
	assert.Positive(t, Policy{BaseDelay: time.Second, Backoff: Linear}.Delay(math.MaxInt))
}
