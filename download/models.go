package download

import (
	"time"
)

// Options represents the configuration for the download service.
type Options struct {
	OutDir      string
	Concurrency uint
	Retries     uint
	Timeout     time.Duration

	// RateLimit caps the combined transfer rate in bytes per second.
	// Zero means unlimited.
	RateLimit int64

	// BackoffBase and BackoffJitter shape the delay between attempts:
	// BackoffBase * 2^attempt + U(0, BackoffJitter).
	BackoffBase   time.Duration
	BackoffJitter time.Duration
}

// Outcome is the result of processing one URL. OK tells which of the
// success fields (Path, BytesWritten, ContentLength, SHA256) or the
// failure field (Error) are meaningful.
type Outcome struct {
	URL string `json:"url"`
	OK  bool   `json:"ok"`

	Path         string `json:"path,omitempty"`
	BytesWritten int64  `json:"bytes,omitempty"`
	// ContentLength is the length declared by the server, -1 if none was sent.
	// It is informational only and never checked against BytesWritten.
	ContentLength int64  `json:"content_length,omitempty"`
	SHA256        string `json:"sha256,omitempty"`

	Error string `json:"error,omitempty"`

	Elapsed  time.Duration `json:"elapsed"`
	Attempts int           `json:"attempts"`
}

// Report holds one outcome per requested URL, in request order.
type Report struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Succeeded returns the number of successful outcomes.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Failed returns the number of failed outcomes.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Failures returns the failed outcomes, in request order.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK {
			failed = append(failed, o)
		}
	}
	return failed
}

// BytesWritten returns the total size of all successfully written files.
func (r *Report) BytesWritten() int64 {
	var total int64
	for _, o := range r.Outcomes {
		if o.OK {
			total += o.BytesWritten
		}
	}
	return total
}

// result is what a successful attempt hands back to the retry loop.
type result struct {
	path          string
	bytesWritten  int64
	contentLength int64
	sha256        string
}
