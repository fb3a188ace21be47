package frontend

import (
	"context"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
)

func (fe *frontend) LeaseGrant(ctx context.Context, req *etcdserverpb.LeaseGrantRequest) (*etcdserverpb.LeaseGrantResponse, error) {
	if fe.faults.leaseGrantFails() {
		return nil, status.Error(codes.Unavailable, "lease grant is failing (injected)")
	}

	lease, err := fe.be.GrantLease(req.ID, req.TTL)
	if err != nil {
		return nil, wrapIntoEtcdError(err)
	}

	klogv2.V(4).Infof("LEASE granted %x ttl:%v", lease.ID, lease.GrantedTTL)
	return &etcdserverpb.LeaseGrantResponse{
		Header: createResponseHeader(fe.be.CurrentRevision()),
		ID:     lease.ID,
		TTL:    lease.GrantedTTL,
	}, nil
}

func (fe *frontend) LeaseRevoke(ctx context.Context, req *etcdserverpb.LeaseRevokeRequest) (*etcdserverpb.LeaseRevokeResponse, error) {
	if err := fe.be.RevokeLease(req.ID); err != nil {
		return nil, wrapIntoEtcdError(err)
	}

	return &etcdserverpb.LeaseRevokeResponse{
		Header: createResponseHeader(fe.be.CurrentRevision()),
	}, nil
}

// LeaseKeepAlive answers every request on the stream with the renewed ttl.
// A lease that does not exist (anymore) is answered with ttl 0, the
// same way etcd does it.
func (fe *frontend) LeaseKeepAlive(stream etcdserverpb.Lease_LeaseKeepAliveServer) error {
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if fe.faults.keepAliveFails() {
			return status.Error(codes.Unavailable, "lease keepalive is failing (injected)")
		}

		resp := &etcdserverpb.LeaseKeepAliveResponse{
			Header: createResponseHeader(fe.be.CurrentRevision()),
			ID:     req.ID,
		}

		lease, err := fe.be.RenewLease(req.ID)
		switch {
		case err == nil:
			resp.TTL = lease.TTL
		case storageerrors.IsLeaseNotFoundError(err):
			resp.TTL = 0
		default:
			return wrapIntoEtcdError(err)
		}

		if ttl := fe.faults.keepAliveTTLOverride(); ttl != 0 && resp.TTL > 0 {
			resp.TTL = ttl
		}

		if err := stream.Send(resp); err != nil {
			return err
		}
	}
}

func (fe *frontend) LeaseTimeToLive(ctx context.Context, req *etcdserverpb.LeaseTimeToLiveRequest) (*etcdserverpb.LeaseTimeToLiveResponse, error) {
	resp := &etcdserverpb.LeaseTimeToLiveResponse{
		Header: createResponseHeader(fe.be.CurrentRevision()),
		ID:     req.ID,
		TTL:    -1,
	}

	lease, err := fe.be.GetLease(req.ID)
	if err != nil {
		if storageerrors.IsLeaseNotFoundError(err) {
			return resp, nil
		}
		return nil, wrapIntoEtcdError(err)
	}

	resp.TTL = lease.TTL
	resp.GrantedTTL = lease.GrantedTTL
	if req.Keys {
		resp.Keys = make([][]byte, 0, len(lease.Keys))
		for _, k := range lease.Keys {
			resp.Keys = append(resp.Keys, []byte(k))
		}
	}
	return resp, nil
}

func (fe *frontend) LeaseLeases(ctx context.Context, req *etcdserverpb.LeaseLeasesRequest) (*etcdserverpb.LeaseLeasesResponse, error) {
	leases := fe.be.GetLeases()
	resp := &etcdserverpb.LeaseLeasesResponse{
		Header: createResponseHeader(fe.be.CurrentRevision()),
		Leases: make([]*etcdserverpb.LeaseStatus, 0, len(leases)),
	}

	for _, l := range leases {
		resp.Leases = append(resp.Leases, &etcdserverpb.LeaseStatus{ID: l.ID})
	}
	return resp, nil
}
