package backend

import (
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// Put creates or overwrites key. A non zero lease attaches the key
// to that lease (and detaches it from any previous one).
func (s *store) Put(key string, value []byte, lease int64) (*types.Record, error) {
	if len(key) == 0 {
		return nil, storageerrors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if lease != 0 {
		if _, ok := s.leases[lease]; !ok {
			return nil, storageerrors.ErrLeaseNotFound
		}
	}

	record := s.putLocked(key, value, lease)
	s.notifyLocked()
	return record, nil
}

// must be called with s.mu held, lease must exist
func (s *store) putLocked(key string, value []byte, lease int64) *types.Record {
	rev := s.rev.Increment()

	record := &types.Record{
		Key:            key,
		Value:          value,
		CreateRevision: rev,
		ModRevision:    rev,
		Version:        1,
		Lease:          lease,
	}

	if existing := s.currentLocked(key); existing != nil {
		record.CreateRevision = existing.CreateRevision
		record.Version = existing.Version + 1
		if existing.Lease != 0 && existing.Lease != lease {
			if le, ok := s.leases[existing.Lease]; ok {
				delete(le.keys, key)
			}
		}
	}

	if lease != 0 {
		s.leases[lease].keys[key] = struct{}{}
	}

	s.index.ReplaceOrInsert(&item{key: key, record: record})
	s.appendEventsLocked(record)
	return record
}
