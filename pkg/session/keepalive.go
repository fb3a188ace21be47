package session

import (
	"context"
	"time"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	"github.com/khenidak/etcdsession/pkg/session/sessionerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// KeepAlive renews the session lease over one keepalive stream.
//
// With forever set it renews every TTL/2 until ctx is done, the stream
// fails or the session is disconnected by someone else, and it blocks
// for all of that. Without it, it performs exactly one round trip and
// leaves the session disconnected.
//
// Stream failures and a lease the server no longer knows (ttl <= 0)
// are StreamTerminated and disconnect the session.
func (s *Session) KeepAlive(ctx context.Context, forever bool) error {
	stubs, leaseID, err := s.connectedStubs("KeepAlive")
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := stubs.lease.LeaseKeepAlive(streamCtx)
	if err != nil {
		return s.streamFailed(ctx, "KeepAlive", leaseID, err)
	}
	defer func() {
		_ = stream.CloseSend()
	}()

	for {
		sentAt := s.clock.Now()
		if err := stream.Send(&etcdserverpb.LeaseKeepAliveRequest{ID: leaseID}); err != nil {
			keepAliveTotal.WithLabelValues("error").Inc()
			return s.streamFailed(ctx, "KeepAlive", leaseID, err)
		}

		resp, err := stream.Recv()
		if err != nil {
			keepAliveTotal.WithLabelValues("error").Inc()
			return s.streamFailed(ctx, "KeepAlive", leaseID, err)
		}

		if resp.TTL <= 0 {
			keepAliveTotal.WithLabelValues("lease_gone").Inc()
			klogv2.Warningf("session: lease %x is gone on the server", leaseID)
			s.disconnectLease(leaseID)
			return sessionerrors.Newf(sessionerrors.StreamTerminated, "KeepAlive", "lease %x not found", leaseID)
		}

		ttl := time.Duration(resp.TTL) * time.Second
		if !s.renewed(leaseID, sentAt.Add(ttl)) {
			// disconnected (or reconnected) while the request was in flight
			return nil
		}
		keepAliveTotal.WithLabelValues("ok").Inc()
		klogv2.V(4).Infof("session: lease %x renewed ttl:%v", leaseID, ttl)

		if !forever {
			s.disconnectLease(leaseID)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(ttl / 2):
		}

		if !s.holds(leaseID) {
			return nil
		}
	}
}

// StartKeepAlive runs KeepAlive(ctx, true) on its own goroutine. The
// returned channel carries its result and is closed after.
func (s *Session) StartKeepAlive(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		out <- s.KeepAlive(ctx, true)
	}()
	return out
}

// moves the deadline of leaseID. false if the session moved on.
func (s *Session) renewed(leaseID int64, deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseID != leaseID || s.state != types.Connected {
		return false
	}
	s.deadline = deadline
	return true
}

func (s *Session) holds(leaseID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseID == leaseID && s.connectedLocked()
}
