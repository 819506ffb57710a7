package download

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewAdmission_InvalidLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		a, err := NewAdmission(limit, time.Second)
		assert.Nil(t, a)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
	}
}

func Test_Admission_BoundsActiveHolders(t *testing.T) {
	const limit = 3

	a, err := NewAdmission(limit, time.Second)
	require.NoError(t, err)
	defer a.Close()

	var (
		wg       sync.WaitGroup
		inside   atomic.Int64
		violated atomic.Bool
	)

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := a.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			if inside.Add(1) > limit {
				violated.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			a.Release()
		}()
	}
	wg.Wait()

	assert.False(t, violated.Load())
	assert.LessOrEqual(t, a.Peak(), int64(limit))
	assert.Greater(t, a.Peak(), int64(0))
	assert.Zero(t, a.Active())
}

func Test_Admission_AcquireCancelled(t *testing.T) {
	a, err := NewAdmission(1, time.Second)
	require.NoError(t, err)

	require.NoError(t, a.Acquire(context.Background()))
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, a.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, int64(1), a.Active())
}
