package backend

import (
	"context"
	"fmt"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/etcdsession/pkg/backend/consts"
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

/* Locks follow the etcd v3lock recipe: a lock named N is owned by whoever
holds the key under N/ with the lowest create revision. Waiters create their
own key (bound to their lease) and wait for every older key to go away.
Locking again with the same lease finds its own key and returns right away.
*/

// Lock blocks until the lock named name is owned by lease or ctx is done.
// On success returns the owner key.
func (s *store) Lock(ctx context.Context, name string, lease int64) (string, error) {
	if len(name) == 0 {
		return "", storageerrors.ErrEmptyKey
	}
	if lease == 0 {
		return "", storageerrors.ErrInvalidLeaseID
	}

	myKey := fmt.Sprintf(consts.LockKeyFormat, name, lease)
	prefix := name + "/"
	prefixEnd := PrefixEnd(prefix)

	s.mu.Lock()
	if _, ok := s.leases[lease]; !ok {
		s.mu.Unlock()
		return "", storageerrors.ErrLeaseNotFound
	}

	mine := s.currentLocked(myKey)
	if mine == nil {
		mine = s.putLocked(myKey, nil, lease)
		s.notifyLocked()
	}
	myCreateRev := mine.CreateRevision
	s.mu.Unlock()

	for {
		s.mu.Lock()
		current := s.currentLocked(myKey)
		if current == nil || current.CreateRevision != myCreateRev {
			s.mu.Unlock()
			// lease went away while waiting
			return "", storageerrors.ErrLeaseNotFound
		}

		var owner *types.Record
		s.ascendLocked(prefix, prefixEnd, func(r *types.Record) bool {
			if owner == nil || r.CreateRevision < owner.CreateRevision {
				owner = r
			}
			return true
		})

		if owner.Key == myKey {
			s.mu.Unlock()
			return myKey, nil
		}
		changed := s.changed
		s.mu.Unlock()

		klogv2.V(8).Infof("store: lock %v waiting (owner:%v me:%v)", name, owner.Key, myKey)
		select {
		case <-changed:
		case <-ctx.Done():
			// give up our place in line
			_ = s.Unlock(myKey)
			return "", ctx.Err()
		}
	}
}

// Unlock deletes the owner key. Unlocking a key that does not exist is not an error.
func (s *store) Unlock(key string) error {
	_, _, err := s.DeleteRange(key, "")
	return err
}
