package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_afterFailure(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	netErr := &NetworkError{URL: "http://x/a", Err: errors.New("connection refused")}
	statusErr := &HTTPStatusError{URL: "http://x/a", StatusCode: 503}
	fsErr := &FilesystemError{Path: "/tmp/a", Err: os.ErrPermission}
	reqErr := &RequestError{URL: "http://x/a%zz", Err: errors.New("invalid URL escape")}

	testCases := map[string]struct {
		ctx      context.Context
		err      error
		attempt  int
		retries  uint
		expected transferState
	}{
		"network error with retries left":  {ctx: context.Background(), err: netErr, attempt: 0, retries: 3, expected: stateBackoff},
		"status error with retries left":   {ctx: context.Background(), err: statusErr, attempt: 2, retries: 3, expected: stateBackoff},
		"last attempt":                     {ctx: context.Background(), err: netErr, attempt: 3, retries: 3, expected: stateFailed},
		"no retries configured":            {ctx: context.Background(), err: statusErr, attempt: 0, retries: 0, expected: stateFailed},
		"filesystem error is terminal":     {ctx: context.Background(), err: fsErr, attempt: 0, retries: 3, expected: stateFailed},
		"collision exhaustion is terminal": {ctx: context.Background(), err: fmt.Errorf("x: %w", ErrCollisionExhausted), attempt: 0, retries: 3, expected: stateFailed},
		"invalid request is terminal":      {ctx: context.Background(), err: reqErr, attempt: 0, retries: 3, expected: stateFailed},
		"cancelled context is terminal":    {ctx: cancelled, err: netErr, attempt: 0, retries: 3, expected: stateFailed},
		"wrapped cancellation is terminal": {ctx: context.Background(), err: &NetworkError{URL: "http://x/a", Err: context.Canceled}, attempt: 0, retries: 3, expected: stateFailed},
	}

	for scenario, tc := range testCases {
		t.Run(scenario, func(t *testing.T) {
			assert.Equal(t, tc.expected, afterFailure(tc.ctx, tc.err, tc.attempt, tc.retries))
		})
	}
}

func Test_backoffDelay(t *testing.T) {
	base := 500 * time.Millisecond
	jitter := 250 * time.Millisecond

	for attempt := 0; attempt < 4; attempt++ {
		lower := base * time.Duration(1<<attempt)
		for i := 0; i < 20; i++ {
			d := backoffDelay(attempt, base, jitter)
			assert.GreaterOrEqual(t, d, lower)
			assert.Less(t, d, lower+jitter)
		}
	}

	assert.Equal(t, 4*time.Millisecond, backoffDelay(2, time.Millisecond, 0))
}

func Test_backoffDelay_Saturates(t *testing.T) {
	for _, attempt := range []int{34, 40, 62, 63, 100, 1000} {
		d := backoffDelay(attempt, 500*time.Millisecond, 250*time.Millisecond)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, backoffDelay(attempt-1, 500*time.Millisecond, 0), "attempt %d", attempt)
	}

	assert.Equal(t, maxBackoffDelay, backoffDelay(100, time.Second, time.Second))
}

func Test_sleepCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepCtx(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func Test_transferState_String(t *testing.T) {
	assert.Equal(t, "attempting", stateAttempting.String())
	assert.Equal(t, "backoff", stateBackoff.String())
	assert.Equal(t, "succeeded", stateSucceeded.String())
	assert.Equal(t, "failed", stateFailed.String())
}

func Test_createUnique_Concurrent(t *testing.T) {
	outDir := t.TempDir()

	const n = 16
	paths := make(chan string, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		go func() {
			f, err := createUnique(outDir, "same.bin")
			if err != nil {
				errs <- err
				return
			}
			f.Close()
			paths <- f.Name()
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatal(err)
		case p := <-paths:
			assert.False(t, seen[p], "duplicate path %s", p)
			seen[p] = true
		}
	}
	assert.Len(t, seen, n)
}
