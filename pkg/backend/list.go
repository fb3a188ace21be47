package backend

import (
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// Range reads current records in [key, rangeEnd) in key order. limit 0
// means no limit. More is set when limit cut the result short.
func (s *store) Range(key, rangeEnd string, limit int64) (*RangeResult, error) {
	if len(key) == 0 {
		return nil, storageerrors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &RangeResult{
		Revision: s.rev.Current(),
		Records:  make([]*types.Record, 0),
	}

	s.ascendLocked(key, rangeEnd, func(r *types.Record) bool {
		result.Count = result.Count + 1
		if limit == 0 || int64(len(result.Records)) < limit {
			result.Records = append(result.Records, r)
		} else {
			result.More = true
		}
		return true
	})

	return result, nil
}

// ListForWatch returns every event for keys in [key, rangeEnd) with
// mod revision >= startRevision, in revision order.
func (s *store) ListForWatch(key, rangeEnd string, startRevision int64) ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if startRevision <= s.compactedRev {
		return nil, storageerrors.ErrCompacted
	}

	records := make([]*types.Record, 0)
	for _, e := range s.events {
		if e.ModRevision < startRevision {
			continue
		}
		if !inRange(e.Key, key, rangeEnd) {
			continue
		}
		records = append(records, e)
	}
	return records, nil
}
