package lock

import "context"

// Store persists the lock table. Implementations do not need to be safe for
// concurrent use, the Manager serializes every access.
type Store interface {
	GetLock(ctx context.Context, token string) (*Lock, error)
	// LocksByRoot returns the locks rooted exactly at the given path.
	LocksByRoot(ctx context.Context, root string) ([]*Lock, error)
	// LocksUnder returns the locks rooted strictly below the given path.
	LocksUnder(ctx context.Context, root string) ([]*Lock, error)
	PutLock(ctx context.Context, lock *Lock) error
	RemoveLock(ctx context.Context, token string) error
	Locks(ctx context.Context) ([]*Lock, error)
}
