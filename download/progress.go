package download

import "sync/atomic"

// Progress counts bytes received across every transfer of a service.
// The zero value is ready to use.
type Progress struct {
	bytes atomic.Int64
}

// Add records n more transferred bytes. It never blocks.
func (p *Progress) Add(n int64) {
	if n > 0 {
		p.bytes.Add(n)
	}
}

// Total returns the bytes transferred so far.
func (p *Progress) Total() int64 {
	return p.bytes.Load()
}
