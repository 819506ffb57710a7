package download

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"time"
)

const maxBackoffDelay = time.Duration(math.MaxInt64)

// backoffDelay returns the pause before the attempt that follows attempt
// (0-based): base * 2^attempt plus up to jitter of random noise, saturating
// at maxBackoffDelay instead of overflowing.
func backoffDelay(attempt int, base, jitter time.Duration) time.Duration {
	d := maxBackoffDelay
	if attempt < 63 && base <= maxBackoffDelay>>attempt {
		d = base << attempt
	}
	if jitter > 0 && d <= maxBackoffDelay-jitter {
		d += rand.N(jitter)
	}
	return d
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isSuccessStatus reports whether the status code is in the 2xx range.
func isSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// fileSize returns the size of the file at path as seen by the filesystem.
func fileSize(path string) (int64, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return fileInfo.Size(), nil
}
