package types

import (
	"go.etcd.io/etcd/mvcc/mvccpb"
)

// Record is one revision of a key as kept by the store. A record
// with Deleted set is a tombstone and only lives in the event log.
type Record struct {
	Key            string
	Value          []byte
	CreateRevision int64
	ModRevision    int64
	Version        int64
	Lease          int64
	Deleted        bool
}

// KeyValue is what a client reads back for a key.
type KeyValue struct {
	Key         string
	Value       []byte
	Version     int64
	ModRevision int64
	Lease       int64
}

func RecordToKV(record *Record) *mvccpb.KeyValue {
	return &mvccpb.KeyValue{
		CreateRevision: record.CreateRevision,
		ModRevision:    record.ModRevision,
		Version:        record.Version,
		Key:            []byte(record.Key),
		Value:          record.Value,
		Lease:          record.Lease,
	}
}

func RecordsToKVs(records []*Record) []*mvccpb.KeyValue {
	all := make([]*mvccpb.KeyValue, len(records), len(records))

	for i, v := range records {
		all[i] = RecordToKV(v)
	}

	return all
}

func KVFromPB(kv *mvccpb.KeyValue) KeyValue {
	return KeyValue{
		Key:         string(kv.Key),
		Value:       kv.Value,
		Version:     kv.Version,
		ModRevision: kv.ModRevision,
		Lease:       kv.Lease,
	}
}
