package session

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/api/v3lock/v3lockpb"

	"github.com/khenidak/etcdsession/pkg/session/sessionerrors"
)

// locks held by this session. keyed by lock name. Lock possession is
// advisory, the server drops locks of a lapsed lease without telling us.
type lockHandle struct {
	key string
	// an unlock for this handle is in flight
	pending bool
}

// Lock acquires name for the session lease, blocking for up to timeout.
// A timeout is reported as Timeout: the server may have granted the lock
// at the same instant, the outcome is unknown.
//
// Locking a name this session already holds overwrites the local handle.
func (s *Session) Lock(ctx context.Context, name string, timeout time.Duration) error {
	stubs, leaseID, err := s.connectedStubs("Lock")
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithDeadline(ctx, time.Now().Add(timeout))
	defer cancel()

	resp, err := stubs.lock.Lock(lockCtx, &v3lockpb.LockRequest{
		Name:  []byte(name),
		Lease: leaseID,
	})
	lockTotal.WithLabelValues("lock", result(err)).Inc()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(lockCtx.Err(), context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
			return sessionerrors.New(sessionerrors.Timeout, "Lock", err)
		}
		return sessionerrors.FromRPC("Lock", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.locks[name]; ok && prev.key != string(resp.Key) {
		klogv2.Warningf("session: lock %v locked again, previous key %v is orphaned", name, prev.key)
	}
	s.locks[name] = &lockHandle{key: string(resp.Key)}
	klogv2.V(4).Infof("session: lock %v acquired key:%v", name, string(resp.Key))
	return nil
}

// Unlock releases name. The local handle is marked pending, removed
// once the server confirms and restored if the server call fails.
func (s *Session) Unlock(ctx context.Context, name string) error {
	s.mu.Lock()
	if !s.connectedLocked() {
		s.mu.Unlock()
		return sessionerrors.Newf(sessionerrors.Unavailable, "Unlock", "session is not connected")
	}
	h, ok := s.locks[name]
	if !ok || h.pending {
		s.mu.Unlock()
		return sessionerrors.Newf(sessionerrors.Precondition, "Unlock", "lock %q is not held", name)
	}
	h.pending = true
	stubs := s.stubs
	s.mu.Unlock()

	reqCtx, cancel := s.requestContext(ctx)
	_, err := stubs.lock.Unlock(reqCtx, &v3lockpb.UnlockRequest{Key: []byte(h.key)})
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	current, stillThere := s.locks[name]
	lockTotal.WithLabelValues("unlock", result(err)).Inc()
	if err != nil {
		if stillThere && current == h {
			h.pending = false
		}
		return sessionerrors.FromRPC("Unlock", err)
	}

	if stillThere && current == h {
		delete(s.locks, name)
	}
	return nil
}

// HasLock is a local lookup only.
func (s *Session) HasLock(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[name]
	return ok
}
