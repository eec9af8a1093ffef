package renderer

import (
	"context"
	"sync"
)

// Fake returns canned output and records requests.
type Fake struct {
	mu       sync.Mutex
	Output   []byte
	Err      error
	requests []Request
}

// NewFake creates a fake renderer producing output.
func NewFake(output []byte) *Fake {
	return &Fake{Output: output}
}

func (f *Fake) Render(ctx context.Context, req Request) ([]byte, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	out, err := f.Output, f.Err
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), out...), nil
}

// Requests returns every request rendered so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// SetError makes later renders fail with err.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}
