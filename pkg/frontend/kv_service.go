package frontend

import (
	"context"

	"go.etcd.io/etcd/etcdserver/etcdserverpb"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/etcdsession/pkg/types"
)

func (fe *frontend) Put(ctx context.Context, r *etcdserverpb.PutRequest) (*etcdserverpb.PutResponse, error) {
	if r.IgnoreLease || r.IgnoreValue {
		return nil, createUnsupportedError("put with ignore lease/value")
	}

	var prev *types.Record
	if r.PrevKv {
		prev, _, _ = fe.be.Get(string(r.Key))
	}

	insertedRecord, err := fe.be.Put(string(r.Key), r.Value, r.Lease)
	if err != nil {
		return nil, wrapIntoEtcdError(err)
	}

	putResponse := &etcdserverpb.PutResponse{}
	putResponse.Header = createResponseHeader(insertedRecord.ModRevision)
	if prev != nil {
		putResponse.PrevKv = types.RecordToKV(prev)
	}
	return putResponse, nil
}

func (fe *frontend) Range(ctx context.Context, r *etcdserverpb.RangeRequest) (*etcdserverpb.RangeResponse, error) {
	if err := isValidRangeRequest(r); err != nil {
		klogv2.V(4).Infof("invalid RangeRequest:%+v with err:%v", r, err)
		return nil, err
	}

	result, err := fe.be.Range(string(r.Key), string(r.RangeEnd), r.Limit)
	if err != nil {
		return nil, wrapIntoEtcdError(err)
	}

	response := &etcdserverpb.RangeResponse{
		Header: createResponseHeader(result.Revision),
		Count:  result.Count,
		More:   result.More,
	}

	if !r.CountOnly {
		response.Kvs = types.RecordsToKVs(result.Records)
		if r.KeysOnly {
			for _, kv := range response.Kvs {
				kv.Value = nil
			}
		}
	}

	return response, nil
}

func (fe *frontend) DeleteRange(ctx context.Context, r *etcdserverpb.DeleteRangeRequest) (*etcdserverpb.DeleteRangeResponse, error) {
	rev, deleted, err := fe.be.DeleteRange(string(r.Key), string(r.RangeEnd))
	if err != nil {
		return nil, wrapIntoEtcdError(err)
	}

	response := &etcdserverpb.DeleteRangeResponse{
		Header:  createResponseHeader(rev),
		Deleted: int64(len(deleted)),
	}
	if r.PrevKv {
		response.PrevKvs = types.RecordsToKVs(deleted)
	}
	return response, nil
}

// multi key transactions are not supported.
func (fe *frontend) Txn(ctx context.Context, r *etcdserverpb.TxnRequest) (*etcdserverpb.TxnResponse, error) {
	klogv2.V(2).Infof("Warning: Got unsupported txn request:%+v", r)
	return nil, createUnsupportedError("txn")
}

func (fe *frontend) Compact(ctx context.Context, r *etcdserverpb.CompactionRequest) (*etcdserverpb.CompactionResponse, error) {
	return nil, createUnsupportedError("compact")
}

// validates range requests for supportability.
func isValidRangeRequest(r *etcdserverpb.RangeRequest) error {
	if r.Revision != 0 {
		return createUnsupportedError("range at revision")
	}

	if r.SortOrder != etcdserverpb.RangeRequest_NONE && r.SortOrder != etcdserverpb.RangeRequest_ASCEND {
		return createUnsupportedError("sortOrder")
	}

	if r.SortTarget != etcdserverpb.RangeRequest_KEY {
		return createUnsupportedError("sortTarget")
	}

	if r.MinModRevision != 0 {
		return createUnsupportedError("minModRevision")
	}

	if r.MaxModRevision != 0 {
		return createUnsupportedError("maxModRevision")
	}

	if r.MinCreateRevision != 0 {
		return createUnsupportedError("minCreateRevision")
	}

	if r.MaxCreateRevision != 0 {
		return createUnsupportedError("maxCreateRevision")
	}

	return nil
}
