package backend

import (
	"sort"
	"time"

	"github.com/khenidak/etcdsession/pkg/backend/consts"
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// GrantLease creates a lease. id 0 lets the store pick one.
func (s *store) GrantLease(id int64, ttl int64) (*types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl < consts.MinLeaseTTL {
		ttl = consts.MinLeaseTTL
	}

	if id == 0 {
		for {
			s.nextLeaseID = s.nextLeaseID + 1
			if _, ok := s.leases[s.nextLeaseID]; !ok {
				id = s.nextLeaseID
				break
			}
		}
	}

	if _, ok := s.leases[id]; ok {
		return nil, storageerrors.ErrLeaseExists
	}

	lease := &types.Lease{
		ID:         id,
		Status:     types.ActiveLease,
		GrantedTTL: ttl,
		TTL:        ttl,
		ExpiresOn:  s.clock.Now().Add(time.Duration(ttl) * time.Second),
	}

	s.leases[id] = &leaseEntry{
		lease: lease,
		keys:  make(map[string]struct{}),
	}
	return copyLease(lease, nil), nil
}

// RenewLease pushes expiry of lease to now + granted ttl.
func (s *store) RenewLease(id int64) (*types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	le, ok := s.leases[id]
	if !ok {
		return nil, storageerrors.ErrLeaseNotFound
	}

	now := s.clock.Now()
	if !now.Before(le.lease.ExpiresOn) {
		// expired but not collected yet
		s.revokeLocked(le)
		s.notifyLocked()
		return nil, storageerrors.ErrLeaseNotFound
	}

	le.lease.ExpiresOn = now.Add(time.Duration(le.lease.GrantedTTL) * time.Second)
	le.lease.TTL = le.lease.GrantedTTL
	return copyLease(le.lease, nil), nil
}

// RevokeLease removes the lease and every key attached to it.
func (s *store) RevokeLease(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	le, ok := s.leases[id]
	if !ok {
		return storageerrors.ErrLeaseNotFound
	}

	s.revokeLocked(le)
	s.notifyLocked()
	return nil
}

func (s *store) GetLease(id int64) (*types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	le, ok := s.leases[id]
	if !ok {
		return nil, storageerrors.ErrLeaseNotFound
	}

	remaining := int64(le.lease.ExpiresOn.Sub(s.clock.Now()).Seconds())
	if remaining <= 0 {
		return nil, storageerrors.ErrLeaseNotFound
	}

	out := copyLease(le.lease, le.keys)
	out.TTL = remaining
	return out, nil
}

func (s *store) GetLeases() []*types.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	leases := make([]*types.Lease, 0, len(s.leases))
	for _, le := range s.leases {
		leases = append(leases, copyLease(le.lease, nil))
	}

	sort.Slice(leases, func(i, j int) bool {
		return leases[i].ID < leases[j].ID
	})
	return leases
}

// ExpireLeases revokes every lease that is past its expiry and
// returns their ids.
func (s *store) ExpireLeases() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	expired := make([]int64, 0)
	for id, le := range s.leases {
		if now.Before(le.lease.ExpiresOn) {
			continue
		}
		s.revokeLocked(le)
		expired = append(expired, id)
	}

	if len(expired) > 0 {
		s.notifyLocked()
	}
	return expired
}

// must be called with s.mu held
func (s *store) revokeLocked(le *leaseEntry) {
	delete(s.leases, le.lease.ID)
	if len(le.keys) == 0 {
		return
	}

	keys := make([]string, 0, len(le.keys))
	for k := range le.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]*types.Record, 0, len(keys))
	for _, k := range keys {
		if r := s.currentLocked(k); r != nil && r.Lease == le.lease.ID {
			records = append(records, r)
		}
	}

	if len(records) > 0 {
		s.deleteLocked(records)
	}
}

func copyLease(l *types.Lease, keys map[string]struct{}) *types.Lease {
	out := *l
	out.Keys = nil
	if len(keys) > 0 {
		out.Keys = make([]string, 0, len(keys))
		for k := range keys {
			out.Keys = append(out.Keys, k)
		}
		sort.Strings(out.Keys)
	}
	return &out
}
