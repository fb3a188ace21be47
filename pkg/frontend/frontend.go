package frontend

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpchealth "google.golang.org/grpc/health"
	grpchealthpb "google.golang.org/grpc/health/grpc_health_v1"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/api/v3lock/v3lockpb"
	"go.etcd.io/etcd/etcdserver/api/v3rpc/rpctypes"
	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	"github.com/khenidak/etcdsession/pkg/backend"
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/config"
)

const (
	clusterId = uint64(212010)
	memberId  = uint64(10)
	raftTerm  = uint64(9)
)

// Frontend serves the etcd KV, Lease, Watch and Lock services over a
// backend. It is meant for development and tests, a single member
// with no persistence.
type Frontend interface {
	StartListening() error
	// Addr is the address the listener is bound to, valid after StartListening
	Addr() string
	Faults() *Faults
	// CancelWatches closes every open watcher with reason
	CancelWatches(reason string)
	// Watchers is the number of open watchers across all streams
	Watchers() int
}

type frontend struct {
	config *config.Config
	be     backend.Backend
	faults *Faults

	watchLock  sync.Mutex
	watchCount int64
	watchers   map[int64]*watcher

	addr     string
	doneOnce sync.Once
}

func NewFrontend(config *config.Config, be backend.Backend) (Frontend, error) {
	if config.Runtime.Context == nil {
		return nil, fmt.Errorf("config runtime is not initialized")
	}

	fe := &frontend{
		config:   config,
		be:       be,
		faults:   &Faults{},
		watchers: make(map[int64]*watcher),
	}
	// start lease mgmt loop
	go be.Run(config.Runtime.Context)

	return fe, nil
}

func (fe *frontend) Addr() string {
	return fe.addr
}

func (fe *frontend) Faults() *Faults {
	return fe.faults
}

func (fe *frontend) StartListening() error {
	var grpcServer *grpc.Server
	tlsConfig, err := fe.config.ServerTLS()
	if err != nil {
		return err
	}

	if tlsConfig != nil {
		opts := grpc.Creds(credentials.NewTLS(tlsConfig))
		grpcServer = grpc.NewServer(opts)
	} else {
		grpcServer = grpc.NewServer()
	}
	// register servers
	etcdserverpb.RegisterLeaseServer(grpcServer, fe)
	etcdserverpb.RegisterWatchServer(grpcServer, fe)
	etcdserverpb.RegisterKVServer(grpcServer, fe)
	v3lockpb.RegisterLockServer(grpcServer, fe)

	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus("Watch", grpchealthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("Lease", grpchealthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("KV", grpchealthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("Lock", grpchealthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", grpchealthpb.HealthCheckResponse_SERVING)

	grpchealthpb.RegisterHealthServer(grpcServer, healthServer)

	listener, err := fe.createAndStartListener()
	if err != nil {
		return err
	}

	go func() {
		// stop
		doneCh := fe.config.Runtime.Context.Done()
		<-doneCh
		klogv2.Infof("etcd grpc server received a stop signal.. stopping")
		fe.CancelWatches("server is stopping")
		grpcServer.Stop()
		_ = listener.Close()
		fe.signalDone()
	}()

	go func() {
		err := grpcServer.Serve(listener)
		if err != nil {
			klogv2.Errorf("etcd grpc server failed to serve with err:%v", err)
			_ = listener.Close()
			fe.signalDone()
		}
	}()

	return nil
}

func (fe *frontend) signalDone() {
	fe.doneOnce.Do(func() {
		if fe.config.Runtime.Done != nil {
			close(fe.config.Runtime.Done)
		}
	})
}

func (fe *frontend) createAndStartListener() (net.Listener, error) {
	if err := fe.config.ValidateListener(); err != nil {
		return nil, err
	}

	parts := strings.Split(fe.config.ListenAddress, "://")
	netType := parts[0]
	address := parts[1]
	if netType == "unix" {
		// remove socket
		err := os.Remove(address)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	listener, err := net.Listen(netType, address)
	if err != nil {
		return nil, err
	}

	fe.addr = listener.Addr().String()
	if netType == "unix" {
		fe.addr = fmt.Sprintf("unix://%s", address)
	}
	klogv2.Infof("etcd grpc server is listening on %s://%s", netType, listener.Addr().String())
	return listener, nil
}

func createResponseHeader(revision int64) *etcdserverpb.ResponseHeader {
	header := &etcdserverpb.ResponseHeader{}
	header.ClusterId = clusterId
	header.MemberId = memberId
	header.RaftTerm = raftTerm
	header.Revision = revision

	return header
}

func createUnsupportedError(s string) error {
	return fmt.Errorf("+UNSUPPORTED+ %s is not supported", s)
}

// maps store errors to the errors etcd itself returns, clients
// (clientv3 included) know how to read those.
func wrapIntoEtcdError(e error) error {
	switch {
	case e == nil:
		return nil
	case storageerrors.IsLeaseNotFoundError(e):
		return rpctypes.ErrGRPCLeaseNotFound
	case storageerrors.IsConflictError(e):
		return rpctypes.ErrGRPCLeaseExist
	case storageerrors.IsCompactedError(e):
		return rpctypes.ErrGRPCCompacted
	case storageerrors.IsBadRequestError(e):
		return rpctypes.ErrGRPCEmptyKey
	}
	return e
}
