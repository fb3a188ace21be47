package backend

import (
	storageerrors "github.com/khenidak/etcdsession/pkg/backend/storageerrors"
	"github.com/khenidak/etcdsession/pkg/types"
)

// Get returns the current record for key (nil if there is none) and
// the current store revision.
func (s *store) Get(key string) (*types.Record, int64, error) {
	if len(key) == 0 {
		return nil, 0, storageerrors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentLocked(key), s.rev.Current(), nil
}
