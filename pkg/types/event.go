package types

import (
	"go.etcd.io/etcd/mvcc/mvccpb"
)

type EventType int

const (
	PutEvent    EventType = 0
	DeleteEvent EventType = 1
)

func (t EventType) String() string {
	if t == DeleteEvent {
		return "DELETE"
	}
	return "PUT"
}

// Event is a single change delivered by a watch. LeaseID is 0 when
// the key was not bound to a lease.
type Event struct {
	Type        EventType
	Key         string
	Value       []byte
	Version     int64
	ModRevision int64
	LeaseID     int64
}

func EventFromPB(e *mvccpb.Event) Event {
	out := Event{
		Type: PutEvent,
	}
	if e.Type == mvccpb.DELETE {
		out.Type = DeleteEvent
	}

	if e.Kv != nil {
		out.Key = string(e.Kv.Key)
		out.Value = e.Kv.Value
		out.Version = e.Kv.Version
		out.ModRevision = e.Kv.ModRevision
		out.LeaseID = e.Kv.Lease
	}
	return out
}

func EventsFromPB(events []*mvccpb.Event) []Event {
	all := make([]Event, 0, len(events))
	for _, e := range events {
		all = append(all, EventFromPB(e))
	}
	return all
}

// RecordToEvent converts a stored record (or tombstone) into an
// etcd watch event.
func RecordToEvent(record *Record) *mvccpb.Event {
	e := &mvccpb.Event{
		Type: mvccpb.PUT,
		Kv:   RecordToKV(record),
	}
	if record.Deleted {
		e.Type = mvccpb.DELETE
		e.Kv.Value = nil
		e.Kv.Version = 0
		e.Kv.CreateRevision = 0
	}
	return e
}
