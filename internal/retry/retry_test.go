package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigUsesThreeAttemptsWithExponentialBackoff(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}

func TestStreamOpenConfigHasNoJitterForAReproducibleSchedule(t *testing.T) {
	t.Parallel()
	cfg := StreamOpenConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Zero(t, cfg.Jitter)
	assert.Equal(t, 1*time.Second, cfg.InitialBackoff)
	assert.Equal(t, 8*time.Second, cfg.MaxBackoff)
}

func TestIsRetryableIsTrueForDeadlineExceededAndFalseForCanceled(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

type fakeTimeoutNetError struct{ timeout bool }

func (e fakeTimeoutNetError) Error() string   { return "net error" }
func (e fakeTimeoutNetError) Timeout() bool   { return e.timeout }
func (e fakeTimeoutNetError) Temporary() bool { return e.timeout }

func TestIsRetryableChecksTheNetErrorTimeoutMethod(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(fakeTimeoutNetError{timeout: true}))
	assert.False(t, IsRetryable(fakeTimeoutNetError{timeout: false}))
}

func TestIsRetryableChecksDNSErrorTemporaryFlag(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(&net.DNSError{Err: "temp failure", IsTemporary: true}))
	assert.False(t, IsRetryable(&net.DNSError{Err: "perm failure", IsTemporary: false}))
}

func TestIsRetryableAllowsOnlyTheDocumentedHTTPStatusCodes(t *testing.T) {
	t.Parallel()
	for _, code := range []int{503, 429, 502, 504} {
		assert.True(t, IsRetryable(&HTTPStatusError{StatusCode: code}), "status %d should be retryable", code)
	}
	for _, code := range []int{400, 401, 404, 500} {
		assert.False(t, IsRetryable(&HTTPStatusError{StatusCode: code}), "status %d should not be retryable", code)
	}
}

func TestIsRetryableIsFalseForAnOrdinaryError(t *testing.T) {
	t.Parallel()
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestDoReturnsNilImmediatelyOnSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsTheErrorImmediatelyWhenNotRetryable(t *testing.T) {
	t.Parallel()
	calls := 0
	wantErr := errors.New("not retryable")
	err := Do(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return wantErr
	})
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesARetryableErrorThenSucceeds(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 2 {
			return context.DeadlineExceeded
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoReturnsExhaustedErrorAfterAllRetryableAttemptsFail(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, exhausted.Unwrap(), context.DeadlineExceeded)
}

func TestDoWithNotifyInvokesOnRetryBeforeEachWait(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	var notified []int
	calls := 0
	err := DoWithNotify(context.Background(), cfg, func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	}, func(attempt, maxAttempts int, delay time.Duration) {
		notified = append(notified, attempt)
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDoStopsWaitingWhenTheContextIsCanceled(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(context.Context) error {
			calls++
			return context.DeadlineExceeded
		})
	}()
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamStateResetClearsReconnectAttempts(t *testing.T) {
	t.Parallel()
	s := &StreamState{LastEventID: "evt-1", ReconnectAttempts: 4}
	s.Reset()
	assert.Zero(t, s.ReconnectAttempts)
	assert.Equal(t, "evt-1", s.LastEventID)
}

func TestStreamStateUpdateLastEventIDIgnoresEmptyIDs(t *testing.T) {
	t.Parallel()
	s := &StreamState{LastEventID: "evt-1"}
	s.UpdateLastEventID("")
	assert.Equal(t, "evt-1", s.LastEventID)

	s.UpdateLastEventID("evt-2")
	assert.Equal(t, "evt-2", s.LastEventID)
}
