package download

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"
)

const (
	DefaultOutDir        = "downloads"
	DefaultConcurrency   = 8
	DefaultRetries       = 3
	DefaultTimeout       = 30 * time.Second
	DefaultBackoffBase   = 500 * time.Millisecond
	DefaultBackoffJitter = 250 * time.Millisecond
)

// Service is the service layer that contains operations for downloading.
type Service struct {
	opts      Options
	logger    *slog.Logger
	admission *Admission
	progress  *Progress
	limiter   *rate.Limiter
}

// NewService validates opts and prepares the shared resources of a batch.
// No connection is opened until Download is called with at least one URL.
func NewService(opts Options, logger *slog.Logger) (*Service, error) {
	if opts.OutDir == "" {
		opts.OutDir = DefaultOutDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffJitter < 0 {
		opts.BackoffJitter = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	admission, err := NewAdmission(int(opts.Concurrency), opts.Timeout)
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:      opts,
		logger:    logger,
		admission: admission,
		progress:  &Progress{},
	}

	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(max(opts.RateLimit, chunkSize)))
	}

	return s, nil
}

// Progress returns the byte counter fed by every transfer of this service.
func (s *Service) Progress() *Progress {
	return s.progress
}

// Admission returns the controller gating this service's transfers.
func (s *Service) Admission() *Admission {
	return s.admission
}

// Close releases pooled connections.
func (s *Service) Close() {
	s.admission.Close()
}

// Download fetches every URL into the output directory and returns one
// outcome per URL in the same order. Individual failures are reported in the
// outcomes; the only error returned is failure to create the output directory.
func (s *Service) Download(ctx context.Context, urls []string) (*Report, error) {
	report := &Report{
		ID:        ksuid.New().String(),
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, len(urls)),
	}

	if err := os.MkdirAll(s.opts.OutDir, 0755); err != nil {
		return nil, &FilesystemError{Path: s.opts.OutDir, Err: err}
	}

	if len(urls) == 0 {
		report.FinishedAt = time.Now()
		return report, nil
	}

	s.logger.Info("starting batch",
		"id", report.ID, "urls", len(urls), "concurrency", s.admission.Limit(), "retries", s.opts.Retries, "out_dir", s.opts.OutDir)

	// Every URL gets its goroutine right away; the admission controller is
	// the only thing deciding how many of them transfer at once.
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Go(func() {
			report.Outcomes[i] = s.admitAndTransfer(ctx, url)
		})
	}

	wg.Wait()

	report.FinishedAt = time.Now()

	s.logger.Info("batch finished",
		"id", report.ID, "ok", report.Succeeded(), "failed", report.Failed(), "elapsed", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// admitAndTransfer holds one admission slot for the whole retry loop of url.
func (s *Service) admitAndTransfer(ctx context.Context, url string) Outcome {
	if err := s.admission.Acquire(ctx); err != nil {
		return Outcome{URL: url, Error: err.Error()}
	}
	defer s.admission.Release()

	return s.transfer(ctx, url)
}
