package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	"github.com/khenidak/etcdsession/pkg/config"
	"github.com/khenidak/etcdsession/pkg/session/sessionerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

/*
A Session owns one lease. While the lease is live (as far as the
client can tell) the session is CONNECTED and lease scoped operations
(ephemeral puts, locks) and every other call are allowed.

	- connected is not a flag. It is recomputed on every call from
	  (channel, state, now < deadline). A lease lapses without an event.
	- deadlines are anchored at the time the grant/keepalive request was
	  sent, not when the response arrived.
	- Disconnect drops local state only. The lease is left on the server
	  to expire. Close revokes it.
	- nothing is retried except the endpoint fail over inside Connect.
*/

type Option func(*Session)

// WithClock sets the clock used for lease deadlines and keepalive cadence.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

type Session struct {
	config *config.Config
	clock  clockwork.Clock

	// serializes Connect calls
	connectLock sync.Mutex

	mu       sync.Mutex
	conn     *grpc.ClientConn
	stubs    *stubSet
	endpoint string
	leaseID  int64
	deadline time.Time
	state    types.ConnectionState
	locks    map[string]*lockHandle
}

var _ types.Locker = &Session{}

// New creates a disconnected session. A config without endpoints (or
// otherwise invalid) is a Configuration error.
func New(c *config.Config, opts ...Option) (*Session, error) {
	if c == nil {
		return nil, sessionerrors.Newf(sessionerrors.Configuration, "New", "config is required")
	}
	if err := c.Validate(); err != nil {
		return nil, sessionerrors.New(sessionerrors.Configuration, "New", err)
	}

	s := &Session{
		config: c,
		clock:  clockwork.NewRealClock(),
		state:  types.Disconnected,
		locks:  make(map[string]*lockHandle),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewForEndpoints creates a session with default settings over endpoints.
func NewForEndpoints(endpoints []string, opts ...Option) (*Session, error) {
	c := config.NewConfig()
	c.Endpoints = endpoints
	return New(c, opts...)
}

// Connect grants a lease on the first endpoint that accepts both a channel
// and a grant. It is a no-op on a session that is already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.connectLock.Lock()
	defer s.connectLock.Unlock()

	if s.Connected() {
		return nil
	}
	// whatever is left from an expired lease goes away
	s.Disconnect()

	tlsConfig, err := s.config.ClientTLS()
	if err != nil {
		return sessionerrors.New(sessionerrors.Configuration, "Connect", err)
	}

	requestedTTL := s.config.LeaseTTLSeconds()
	var lastErr error
	for _, endpoint := range s.config.Endpoints {
		conn, err := dialEndpoint(ctx, endpoint, s.config.DialTimeout, tlsConfig)
		if err != nil {
			klogv2.Warningf("session: failed to dial endpoint %v with err:%v", endpoint, err)
			connectTotal.WithLabelValues("dial_error").Inc()
			lastErr = err
			continue
		}

		stubs := newStubSet(conn)
		sentAt := s.clock.Now()
		reqCtx, cancel := s.requestContext(ctx)
		resp, err := stubs.lease.LeaseGrant(reqCtx, &etcdserverpb.LeaseGrantRequest{
			TTL: requestedTTL,
			ID:  0,
		})
		cancel()
		if err != nil {
			klogv2.Warningf("session: lease grant on endpoint %v failed with err:%v", endpoint, err)
			connectTotal.WithLabelValues("grant_error").Inc()
			_ = conn.Close()
			lastErr = err
			continue
		}

		ttl := resp.TTL
		if ttl <= 0 {
			ttl = requestedTTL
		}

		s.mu.Lock()
		s.conn = conn
		s.stubs = stubs
		s.endpoint = endpoint
		s.leaseID = resp.ID
		s.deadline = sentAt.Add(time.Duration(ttl) * time.Second)
		s.state = types.Connected
		s.mu.Unlock()

		connectTotal.WithLabelValues("ok").Inc()
		connectedGauge.Inc()
		if resp.Header != nil {
			klogv2.Infof("session: connected to %v (cluster:%x member:%x) lease:%x ttl:%vs", endpoint, resp.Header.ClusterId, resp.Header.MemberId, resp.ID, ttl)
		} else {
			klogv2.Infof("session: connected to %v lease:%x ttl:%vs", endpoint, resp.ID, ttl)
		}
		return nil
	}

	if lastErr == nil {
		return sessionerrors.Newf(sessionerrors.Unavailable, "Connect", "no endpoint granted a lease")
	}
	return sessionerrors.New(sessionerrors.Unavailable, "Connect", lastErr)
}

// Disconnect drops the channel and every lease affiliated field. It does
// not revoke the lease.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

// must be called with s.mu held
func (s *Session) disconnectLocked() {
	if s.state == types.Connected {
		connectedGauge.Dec()
		klogv2.Infof("session: disconnected from %v lease:%x", s.endpoint, s.leaseID)
	}

	if s.conn != nil {
		_ = s.conn.Close()
	}

	s.conn = nil
	s.stubs = nil
	s.endpoint = ""
	s.leaseID = 0
	s.deadline = time.Time{}
	s.state = types.Disconnected
	s.locks = make(map[string]*lockHandle)
}

// disconnects only if the session still carries leaseID. Streams opened
// for an older lease must not tear down a newer one.
func (s *Session) disconnectLease(leaseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseID == leaseID {
		s.disconnectLocked()
	}
}

// Close revokes the lease (best effort) and disconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	stubs := s.stubs
	leaseID := s.leaseID
	s.mu.Unlock()

	if stubs != nil && leaseID != 0 {
		ctx, cancel := s.requestContext(context.Background())
		_, err := stubs.lease.LeaseRevoke(ctx, &etcdserverpb.LeaseRevokeRequest{ID: leaseID})
		cancel()
		if err != nil {
			klogv2.Warningf("session: failed to revoke lease %x with err:%v", leaseID, err)
		}
	}

	s.Disconnect()
	return nil
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedLocked()
}

// must be called with s.mu held
func (s *Session) connectedLocked() bool {
	return s.conn != nil &&
		s.state == types.Connected &&
		s.leaseID != 0 &&
		s.clock.Now().Before(s.deadline)
}

// State reports CONNECTED only while Connected() holds.
func (s *Session) State() types.ConnectionState {
	if s.Connected() {
		return types.Connected
	}
	return types.Disconnected
}

func (s *Session) LeaseID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseID
}

func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// connectedStubs returns what a call needs or Unavailable when the
// session is not connected at call time.
func (s *Session) connectedStubs(op string) (*stubSet, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connectedLocked() {
		return nil, 0, sessionerrors.Newf(sessionerrors.Unavailable, op, "session is not connected")
	}
	return s.stubs, s.leaseID, nil
}

func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}

// streamFailed handles a failed keepalive/watch stream. Failures caused
// by the caller's ctx are returned as is.
func (s *Session) streamFailed(ctx context.Context, op string, leaseID int64, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	klogv2.Warningf("session: %s stream for lease %x failed with err:%v", op, leaseID, err)
	s.disconnectLease(leaseID)
	return sessionerrors.New(sessionerrors.StreamTerminated, op, err)
}
