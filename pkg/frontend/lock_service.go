package frontend

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/api/v3lock/v3lockpb"
)

// Lock blocks until the lock is owned by the request lease, the
// caller's deadline passes or the lease goes away.
func (fe *frontend) Lock(ctx context.Context, req *v3lockpb.LockRequest) (*v3lockpb.LockResponse, error) {
	key, err := fe.be.Lock(ctx, string(req.Name), req.Lease)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if ctxErr == context.DeadlineExceeded {
				return nil, status.Error(codes.DeadlineExceeded, ctxErr.Error())
			}
			return nil, status.Error(codes.Canceled, ctxErr.Error())
		}
		return nil, wrapIntoEtcdError(err)
	}

	klogv2.V(4).Infof("LOCK %s acquired by lease %x", req.Name, req.Lease)
	return &v3lockpb.LockResponse{
		Header: createResponseHeader(fe.be.CurrentRevision()),
		Key:    []byte(key),
	}, nil
}

func (fe *frontend) Unlock(ctx context.Context, req *v3lockpb.UnlockRequest) (*v3lockpb.UnlockResponse, error) {
	if err := fe.be.Unlock(string(req.Key)); err != nil {
		return nil, wrapIntoEtcdError(err)
	}

	return &v3lockpb.UnlockResponse{
		Header: createResponseHeader(fe.be.CurrentRevision()),
	}, nil
}
