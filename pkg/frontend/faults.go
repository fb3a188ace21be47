package frontend

import (
	"sync"
)

// Faults lets tests make the frontend misbehave. Zero value is a
// well behaved server.
type Faults struct {
	mu sync.Mutex

	failLeaseGrant bool
	failKeepAlive  bool
	keepAliveTTL   int64
	rejectWatch    string
}

// RejectWatchCreate makes new watch create requests get a canceled
// response carrying reason. Empty reason disables it.
func (f *Faults) RejectWatchCreate(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectWatch = reason
}

func (f *Faults) watchCreateRejection() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejectWatch
}

// FailLeaseGrant makes LeaseGrant return Unavailable.
func (f *Faults) FailLeaseGrant(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLeaseGrant = fail
}

// FailKeepAlive makes open and new keepalive streams fail on their next request.
func (f *Faults) FailKeepAlive(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKeepAlive = fail
}

// KeepAliveTTL overrides the ttl reported in keepalive responses. 0 disables the override.
func (f *Faults) KeepAliveTTL(ttl int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAliveTTL = ttl
}

func (f *Faults) leaseGrantFails() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failLeaseGrant
}

func (f *Faults) keepAliveFails() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failKeepAlive
}

func (f *Faults) keepAliveTTLOverride() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepAliveTTL
}
