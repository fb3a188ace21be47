package session

import (
	"context"

	klogv2 "k8s.io/klog/v2"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	"github.com/khenidak/etcdsession/pkg/session/sessionerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// prefixRangeEnd is the end of [prefix, prefix+0xFF)
func prefixRangeEnd(prefix string) string {
	return prefix + "\xff"
}

// Get returns the value and version of key. A missing key is NotFound
// with an empty KeyValue.
func (s *Session) Get(ctx context.Context, key string) (types.KeyValue, error) {
	stubs, _, err := s.connectedStubs("Get")
	if err != nil {
		return types.KeyValue{}, err
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	resp, err := stubs.kv.Range(reqCtx, &etcdserverpb.RangeRequest{
		Key:   []byte(key),
		Limit: 1,
	})
	if err != nil {
		return types.KeyValue{}, sessionerrors.FromRPC("Get", err)
	}

	if len(resp.Kvs) == 0 {
		return types.KeyValue{}, sessionerrors.Newf(sessionerrors.NotFound, "Get", "key %q", key)
	}
	return types.KVFromPB(resp.Kvs[0]), nil
}

// Put writes key unconditionally. An ephemeral key is bound to the
// session lease and goes away with it. There is no revision check,
// compare and swap is a non goal here.
func (s *Session) Put(ctx context.Context, key string, value []byte, ephemeral bool) error {
	stubs, leaseID, err := s.connectedStubs("Put")
	if err != nil {
		return err
	}

	req := &etcdserverpb.PutRequest{
		Key:   []byte(key),
		Value: value,
	}
	if ephemeral {
		req.Lease = leaseID
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	if _, err := stubs.kv.Put(reqCtx, req); err != nil {
		return sessionerrors.FromRPC("Put", err)
	}
	return nil
}

// Delete removes key. Deleting anything other than exactly one key is
// logged but is not an error.
func (s *Session) Delete(ctx context.Context, key string) error {
	stubs, _, err := s.connectedStubs("Delete")
	if err != nil {
		return err
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	resp, err := stubs.kv.DeleteRange(reqCtx, &etcdserverpb.DeleteRangeRequest{
		Key: []byte(key),
	})
	if err != nil {
		return sessionerrors.FromRPC("Delete", err)
	}

	if resp.Deleted != 1 {
		klogv2.Warningf("session: delete of %v removed %v keys (expected 1)", key, resp.Deleted)
	}
	return nil
}

// DeleteRevision deletes key at a specific revision. Only revision 0
// (whatever is current) is supported.
func (s *Session) DeleteRevision(ctx context.Context, key string, revision int64) error {
	if revision != 0 {
		return sessionerrors.Newf(sessionerrors.Unimplemented, "DeleteRevision", "delete at revision %v", revision)
	}
	return s.Delete(ctx, key)
}

// List returns every key in [prefix, prefix+0xFF) in ascending key order.
// With ListPageSize set the range is read in pages.
func (s *Session) List(ctx context.Context, prefix string) ([]types.KeyValue, error) {
	stubs, _, err := s.connectedStubs("List")
	if err != nil {
		return nil, err
	}

	rangeEnd := []byte(prefixRangeEnd(prefix))
	key := []byte(prefix)
	out := make([]types.KeyValue, 0)
	for {
		reqCtx, cancel := s.requestContext(ctx)
		resp, err := stubs.kv.Range(reqCtx, &etcdserverpb.RangeRequest{
			Key:      key,
			RangeEnd: rangeEnd,
			Limit:    s.config.ListPageSize,
		})
		cancel()
		if err != nil {
			return nil, sessionerrors.FromRPC("List", err)
		}

		for _, kv := range resp.Kvs {
			out = append(out, types.KVFromPB(kv))
		}

		if !resp.More || len(resp.Kvs) == 0 {
			return out, nil
		}
		// next page starts right after the last key we got
		last := resp.Kvs[len(resp.Kvs)-1].Key
		key = append(append([]byte{}, last...), 0)
	}
}
