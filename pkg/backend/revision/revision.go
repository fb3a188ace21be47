package revision

import (
	"sync"
)

// Revisioner hands out the store wide revision. Every mutation of the
// store consumes exactly one revision.
type Revisioner interface {
	Increment() int64
	Current() int64
}

type rev struct {
	mu      sync.Mutex
	current int64
}

func NewRevisioner(start int64) Revisioner {
	return &rev{
		current: start,
	}
}

func (r *rev) Current() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *rev) Increment() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = r.current + 1
	return r.current
}
