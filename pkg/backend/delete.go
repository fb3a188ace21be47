package backend

import (
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// DeleteRange removes every current key in [key, rangeEnd). All deletes
// share one revision. Returns that revision and the records as they
// were before the delete.
func (s *store) DeleteRange(key, rangeEnd string) (int64, []*types.Record, error) {
	if len(key) == 0 {
		return 0, nil, storageerrors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make([]*types.Record, 0)
	s.ascendLocked(key, rangeEnd, func(r *types.Record) bool {
		existing = append(existing, r)
		return true
	})

	if len(existing) == 0 {
		return s.rev.Current(), existing, nil
	}

	rev := s.deleteLocked(existing)
	s.notifyLocked()
	return rev, existing, nil
}

// must be called with s.mu held
func (s *store) deleteLocked(records []*types.Record) int64 {
	rev := s.rev.Increment()
	tombstones := make([]*types.Record, 0, len(records))
	for _, r := range records {
		s.index.Delete(&item{key: r.Key})
		if r.Lease != 0 {
			if le, ok := s.leases[r.Lease]; ok {
				delete(le.keys, r.Key)
			}
		}
		tombstones = append(tombstones, &types.Record{
			Key:         r.Key,
			ModRevision: rev,
			Deleted:     true,
		})
	}
	s.appendEventsLocked(tombstones...)
	return rev
}
