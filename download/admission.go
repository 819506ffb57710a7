package download

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Admission bounds how many transfers are active at once and owns the HTTP
// client they share, so open connections are bounded by the same limit.
type Admission struct {
	limit  int64
	sem    *semaphore.Weighted
	client *http.Client

	active atomic.Int64
	peak   atomic.Int64
}

// NewAdmission creates an admission controller for up to limit concurrent
// transfers, each attempt bounded by timeout.
func NewAdmission(limit int, timeout time.Duration) (*Admission, error) {
	if limit < 1 {
		return nil, ErrInvalidConcurrency
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        limit,
		MaxIdleConnsPerHost: limit,
		MaxConnsPerHost:     limit,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Admission{
		limit: int64(limit),
		sem:   semaphore.NewWeighted(int64(limit)),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Acquire blocks until a slot is free or ctx is done.
func (a *Admission) Acquire(ctx context.Context) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	n := a.active.Add(1)
	for {
		peak := a.peak.Load()
		if n <= peak || a.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	return nil
}

// Release gives back a slot taken by Acquire.
func (a *Admission) Release() {
	a.active.Add(-1)
	a.sem.Release(1)
}

// Client returns the HTTP client shared by admitted transfers.
func (a *Admission) Client() *http.Client {
	return a.client
}

// Limit returns the configured concurrency limit.
func (a *Admission) Limit() int {
	return int(a.limit)
}

// Active returns the number of currently admitted transfers.
func (a *Admission) Active() int64 {
	return a.active.Load()
}

// Peak returns the highest number of transfers ever admitted at once.
func (a *Admission) Peak() int64 {
	return a.peak.Load()
}

// Close drops idle pooled connections.
func (a *Admission) Close() {
	a.client.CloseIdleConnections()
}
