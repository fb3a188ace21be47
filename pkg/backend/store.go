package backend

import (
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/jonboulle/clockwork"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/etcdsession/pkg/backend/consts"
	"github.com/khenidak/etcdsession/pkg/backend/revision"
	"github.com/khenidak/etcdsession/pkg/types"
)

/*
	an in memory multi version store that behaves like a single etcd member
	as far as KV, Lease, Watch and Lock are concerned.

	- current values live in a btree keyed by key. That gives ordered range
	  reads for free.
	- every mutation consumes one revision and appends one record per touched
	  key to the event log. deletes append a tombstone. watchers read the log.
	- the event log is capped (MaxEventCount), older events are dropped and
	  watches starting before the oldest kept event are rejected as compacted.
	- leases carry the set of keys attached to them. a lease that is revoked
	  or allowed to expire removes those keys (in one revision).
	- locks are keys under <name>/ bound to a lease. the owner is the key
	  with the lowest create revision.
	- every mutation closes the current change channel and makes a new one.
	  waiters (watchers, lock waiters) block on that channel.
*/

type Backend interface {
	Put(key string, value []byte, lease int64) (*types.Record, error)
	Get(key string) (*types.Record, int64, error)
	Range(key, rangeEnd string, limit int64) (*RangeResult, error)
	DeleteRange(key, rangeEnd string) (int64, []*types.Record, error)
	ListForWatch(key, rangeEnd string, startRevision int64) ([]*types.Record, error)
	CurrentRevision() int64
	Changed() <-chan struct{}

	GrantLease(id int64, ttl int64) (*types.Lease, error)
	RenewLease(id int64) (*types.Lease, error)
	RevokeLease(id int64) error
	GetLease(id int64) (*types.Lease, error)
	GetLeases() []*types.Lease
	ExpireLeases() []int64

	Lock(ctx context.Context, name string, lease int64) (string, error)
	Unlock(key string) error

	Run(ctx context.Context)
}

type RangeResult struct {
	Revision int64
	Records  []*types.Record
	More     bool
	Count    int64
}

type Option func(*store)

func WithClock(clock clockwork.Clock) Option {
	return func(s *store) {
		s.clock = clock
	}
}

func WithMaxEventCount(n int) Option {
	return func(s *store) {
		if n > 0 {
			s.maxEventCount = n
		}
	}
}

type item struct {
	key    string
	record *types.Record
}

func (i *item) Less(than btree.Item) bool {
	return i.key < than.(*item).key
}

type leaseEntry struct {
	lease *types.Lease
	keys  map[string]struct{}
}

type store struct {
	mu  sync.Mutex
	rev revision.Revisioner

	clock         clockwork.Clock
	maxEventCount int

	index *btree.BTree
	// ordered by mod revision
	events []*types.Record
	// revision of the last event dropped from the log
	compactedRev int64

	leases      map[int64]*leaseEntry
	nextLeaseID int64

	changed chan struct{}
}

func NewBackend(opts ...Option) Backend {
	s := &store{
		rev:           revision.NewRevisioner(1),
		clock:         clockwork.NewRealClock(),
		maxEventCount: consts.DefaultMaxEventCount,
		index:         btree.New(consts.IndexDegree),
		leases:        make(map[int64]*leaseEntry),
		nextLeaseID:   consts.FirstLeaseID,
		changed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) CurrentRevision() int64 {
	return s.rev.Current()
}

func (s *store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Run collects expired leases until ctx is done.
func (s *store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(consts.LeaseCheckInterval):
			if expired := s.ExpireLeases(); len(expired) > 0 {
				klogv2.V(4).Infof("store: expired %d lease(s)", len(expired))
			}
		}
	}
}

// must be called with s.mu held
func (s *store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// must be called with s.mu held
func (s *store) appendEventsLocked(records ...*types.Record) {
	s.events = append(s.events, records...)
	if over := len(s.events) - s.maxEventCount; over > 0 {
		s.compactedRev = s.events[over-1].ModRevision
		s.events = append([]*types.Record(nil), s.events[over:]...)
	}
}

// must be called with s.mu held
func (s *store) currentLocked(key string) *types.Record {
	found := s.index.Get(&item{key: key})
	if found == nil {
		return nil
	}
	return found.(*item).record
}

// ascends [key, rangeEnd). rangeEnd "\x00" means every key >= key
// and an empty rangeEnd means key alone. must be called with s.mu held
func (s *store) ascendLocked(key, rangeEnd string, fn func(r *types.Record) bool) {
	iter := func(i btree.Item) bool {
		return fn(i.(*item).record)
	}

	switch rangeEnd {
	case "":
		if r := s.currentLocked(key); r != nil {
			fn(r)
		}
	case "\x00":
		s.index.AscendGreaterOrEqual(&item{key: key}, iter)
	default:
		s.index.AscendRange(&item{key: key}, &item{key: rangeEnd}, iter)
	}
}

func inRange(k, key, rangeEnd string) bool {
	switch rangeEnd {
	case "":
		return k == key
	case "\x00":
		return k >= key
	}
	return k >= key && k < rangeEnd
}

// PrefixEnd returns the end of the range covering every key that
// starts with prefix.
func PrefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i] = end[i] + 1
			return string(end[:i+1])
		}
	}
	// prefix is all 0xff, everything after it
	return "\x00"
}
