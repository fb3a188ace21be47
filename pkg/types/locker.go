package types

import (
	"context"
	"time"
)

// Locker is a lease scoped mutual exclusion lock table. Lock possession
// is advisory: the server drops a lock once the owning lease lapses and
// the local table is not told about it.
type Locker interface {
	Lock(ctx context.Context, name string, timeout time.Duration) error
	Unlock(ctx context.Context, name string) error
	HasLock(name string) bool
}
