package lock

import (
	"context"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

type MemoryStore struct {
	locks map[string]*Lock               // map[token]lock
	roots map[string]map[string]struct{} // map[root]set[token]
}

// GetLock implements [Store].
func (m *MemoryStore) GetLock(ctx context.Context, token string) (*Lock, error) {
	lock, ok := m.locks[token]
	if !ok {
		return nil, errors.WithStack(ErrLockNotFound)
	}

	return lock.clone(), nil
}

// LocksByRoot implements [Store].
func (m *MemoryStore) LocksByRoot(ctx context.Context, root string) ([]*Lock, error) {
	tokens := m.roots[root]

	locks := make([]*Lock, 0, len(tokens))
	for token := range tokens {
		locks = append(locks, m.locks[token].clone())
	}

	return locks, nil
}

// LocksUnder implements [Store].
func (m *MemoryStore) LocksUnder(ctx context.Context, root string) ([]*Lock, error) {
	locks := make([]*Lock, 0)

	for r, tokens := range m.roots {
		if !store.IsDescendant(r, root) {
			continue
		}

		for token := range tokens {
			locks = append(locks, m.locks[token].clone())
		}
	}

	return locks, nil
}

// PutLock implements [Store].
func (m *MemoryStore) PutLock(ctx context.Context, lock *Lock) error {
	if previous, exists := m.locks[lock.Token]; exists && previous.Root != lock.Root {
		m.unindex(previous)
	}

	m.locks[lock.Token] = lock.clone()

	tokens, exists := m.roots[lock.Root]
	if !exists {
		tokens = make(map[string]struct{})
		m.roots[lock.Root] = tokens
	}

	tokens[lock.Token] = struct{}{}

	return nil
}

// RemoveLock implements [Store].
func (m *MemoryStore) RemoveLock(ctx context.Context, token string) error {
	lock, ok := m.locks[token]
	if !ok {
		return errors.WithStack(ErrLockNotFound)
	}

	delete(m.locks, token)
	m.unindex(lock)

	return nil
}

// Locks implements [Store].
func (m *MemoryStore) Locks(ctx context.Context) ([]*Lock, error) {
	locks := make([]*Lock, 0, len(m.locks))
	for _, lock := range m.locks {
		locks = append(locks, lock.clone())
	}

	return locks, nil
}

func (m *MemoryStore) unindex(lock *Lock) {
	tokens, ok := m.roots[lock.Root]
	if !ok {
		return
	}

	delete(tokens, lock.Token)

	if len(tokens) == 0 {
		delete(m.roots, lock.Root)
	}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: make(map[string]*Lock),
		roots: make(map[string]map[string]struct{}),
	}
}

var _ Store = &MemoryStore{}
