package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"go.etcd.io/etcd/etcdserver/api/v3lock/v3lockpb"
	"go.etcd.io/etcd/etcdserver/etcdserverpb"
)

// stubSet is every remote service a session talks to. All of them
// share one connection.
type stubSet struct {
	lease etcdserverpb.LeaseClient
	kv    etcdserverpb.KVClient
	watch etcdserverpb.WatchClient
	lock  v3lockpb.LockClient
}

func newStubSet(conn *grpc.ClientConn) *stubSet {
	return &stubSet{
		lease: etcdserverpb.NewLeaseClient(conn),
		kv:    etcdserverpb.NewKVClient(conn),
		watch: etcdserverpb.NewWatchClient(conn),
		lock:  v3lockpb.NewLockClient(conn),
	}
}

// parseEndpoint splits an endpoint into network and address. accepted:
// host:port, tcp://host:port, http(s)://host:port and unix://path
func parseEndpoint(endpoint string) (string, string, error) {
	if !strings.Contains(endpoint, "://") {
		if len(endpoint) == 0 {
			return "", "", fmt.Errorf("empty endpoint")
		}
		return "tcp", endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint %q: %v", endpoint, err)
	}

	switch u.Scheme {
	case "unix":
		path := u.Host + u.Path
		if len(path) == 0 {
			return "", "", fmt.Errorf("endpoint %q has no socket path", endpoint)
		}
		return "unix", path, nil
	case "tcp", "http", "https":
		if len(u.Host) == 0 {
			return "", "", fmt.Errorf("endpoint %q has no host", endpoint)
		}
		return "tcp", u.Host, nil
	}
	return "", "", fmt.Errorf("endpoint %q has unsupported scheme %q", endpoint, u.Scheme)
}

// dialEndpoint opens a channel to a single endpoint. It blocks until the
// channel is ready or dialTimeout elapses.
func dialEndpoint(ctx context.Context, endpoint string, dialTimeout time.Duration, tlsConfig *tls.Config) (*grpc.ClientConn, error) {
	network, address, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		d := net.Dialer{}
		return d.DialContext(ctx, network, address)
	}

	opts := []grpc.DialOption{
		grpc.WithBlock(),
		grpc.FailOnNonTempDialError(true),
		grpc.WithContextDialer(dialer),
		grpc.WithUnaryInterceptor(grpcprom.UnaryClientInterceptor),
		grpc.WithStreamInterceptor(grpcprom.StreamClientInterceptor),
	}

	if tlsConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithInsecure())
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	return grpc.DialContext(dialCtx, address, opts...)
}
