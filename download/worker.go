package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"time"
)

const chunkSize = 256 * 1024

// transferState is a step of the per-URL retry loop.
type transferState int

const (
	stateAttempting transferState = iota
	stateBackoff
	stateSucceeded
	stateFailed
)

func (s transferState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// afterFailure picks the state that follows a failed attempt. attempt is the
// 0-based index of the attempt that just failed.
func afterFailure(ctx context.Context, err error, attempt int, retries uint) transferState {
	if ctx.Err() != nil || !isRetryable(err) {
		return stateFailed
	}
	if attempt >= int(retries) {
		return stateFailed
	}
	return stateBackoff
}

// transfer downloads a single URL, retrying per the service options, and
// always returns exactly one outcome.
func (s *Service) transfer(ctx context.Context, url string) Outcome {
	start := time.Now()

	var (
		state    = stateAttempting
		attempts int
		lastErr  error
		res      result
	)

	for {
		switch state {
		case stateAttempting:
			attempt := attempts
			attempts++

			var err error
			res, err = s.attempt(ctx, url)
			if err == nil {
				state = stateSucceeded
				continue
			}

			lastErr = err
			state = afterFailure(ctx, err, attempt, s.opts.Retries)
			s.logger.Warn("attempt failed",
				"url", url, "attempt", attempts, "max_attempts", s.opts.Retries+1, "next", state.String(), "error", err)

		case stateBackoff:
			delay := backoffDelay(attempts-1, s.opts.BackoffBase, s.opts.BackoffJitter)
			s.logger.Debug("backing off", "url", url, "delay", delay)

			if err := sleepCtx(ctx, delay); err != nil {
				lastErr = err
				state = stateFailed
				continue
			}
			state = stateAttempting

		case stateSucceeded:
			elapsed := time.Since(start)
			s.logger.Info("downloaded", "url", url, "path", res.path, "bytes", res.bytesWritten, "attempts", attempts, "elapsed", elapsed)

			return Outcome{
				URL:           url,
				OK:            true,
				Path:          res.path,
				BytesWritten:  res.bytesWritten,
				ContentLength: res.contentLength,
				SHA256:        res.sha256,
				Elapsed:       elapsed,
				Attempts:      attempts,
			}

		case stateFailed:
			msg := "unknown error"
			if lastErr != nil {
				msg = lastErr.Error()
			}
			s.logger.Error("download failed", "url", url, "attempts", attempts, "error", msg)

			return Outcome{
				URL:      url,
				Error:    msg,
				Elapsed:  time.Since(start),
				Attempts: attempts,
			}
		}
	}
}

// attempt performs one GET. The destination file is only created once the
// response status is known to be successful.
func (s *Service) attempt(ctx context.Context, url string) (result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result{}, &RequestError{URL: url, Err: err}
	}

	resp, err := s.admission.Client().Do(req)
	if err != nil {
		return result{}, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccessStatus(resp.StatusCode) {
		return result{}, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	destFile, err := createUnique(s.opts.OutDir, SafeFilename(url))
	if err != nil {
		return result{}, err
	}

	sum, err := s.stream(ctx, url, resp.Body, destFile)
	if closeErr := destFile.Close(); err == nil && closeErr != nil {
		err = &FilesystemError{Path: destFile.Name(), Err: closeErr}
	}
	if err != nil {
		return result{}, err
	}

	size, err := fileSize(destFile.Name())
	if err != nil {
		return result{}, &FilesystemError{Path: destFile.Name(), Err: err}
	}

	return result{
		path:          destFile.Name(),
		bytesWritten:  size,
		contentLength: resp.ContentLength,
		sha256:        sum,
	}, nil
}

// stream copies body into destFile chunk by chunk. Each chunk is written to
// disk, then hashed, then counted as progress. It returns the hex SHA-256.
func (s *Service) stream(ctx context.Context, url string, body io.Reader, destFile *os.File) (string, error) {
	hash := sha256.New()
	buf := make([]byte, chunkSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if s.limiter != nil {
				if err := s.limiter.WaitN(ctx, n); err != nil {
					return "", &NetworkError{URL: url, Err: err}
				}
			}

			if _, err := destFile.Write(buf[:n]); err != nil {
				return "", &FilesystemError{Path: destFile.Name(), Err: err}
			}
			hash.Write(buf[:n])
			s.progress.Add(int64(n))
		}

		if errors.Is(readErr, io.EOF) {
			return hex.EncodeToString(hash.Sum(nil)), nil
		}
		if readErr != nil {
			return "", &NetworkError{URL: url, Err: readErr}
		}
	}
}
