package lock

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const (
	lockPrefix = "lock:"
	rootPrefix = "lkroot:"
	// Keeps persisted entries around a little longer than the lock itself so
	// that expiry stays under the control of the Manager
	ttlGrace = time.Minute
)

// BadgerStore persists the lock table in a badger database.
type BadgerStore struct {
	db *badger.DB
}

// GetLock implements [Store].
func (s *BadgerStore) GetLock(ctx context.Context, token string) (*Lock, error) {
	var lock *Lock

	err := s.db.View(func(txn *badger.Txn) error {
		l, err := getLock(txn, token)
		if err != nil {
			return err
		}

		lock = l

		return nil
	})
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// LocksByRoot implements [Store].
func (s *BadgerStore) LocksByRoot(ctx context.Context, root string) ([]*Lock, error) {
	return s.scanRoots(rootPrefix+root+"\x00", func(string) bool { return true })
}

// LocksUnder implements [Store].
func (s *BadgerStore) LocksUnder(ctx context.Context, root string) ([]*Lock, error) {
	prefix := rootPrefix + strings.TrimSuffix(root, "/") + "/"

	return s.scanRoots(prefix, func(r string) bool {
		return store.IsDescendant(r, root)
	})
}

// PutLock implements [Store].
func (s *BadgerStore) PutLock(ctx context.Context, lock *Lock) error {
	data, err := json.Marshal(lock)
	if err != nil {
		return errors.WithStack(err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		previous, err := getLock(txn, lock.Token)
		if err != nil && !errors.Is(err, ErrLockNotFound) {
			return err
		}

		if previous != nil && previous.Root != lock.Root {
			if err := txn.Delete(rootKey(previous.Root, previous.Token)); err != nil {
				return errors.WithStack(err)
			}
		}

		lockEntry := badger.NewEntry(lockKey(lock.Token), data)
		rootEntry := badger.NewEntry(rootKey(lock.Root, lock.Token), nil)

		if !lock.Expiry.IsZero() {
			ttl := time.Until(lock.Expiry) + ttlGrace
			if ttl > 0 {
				lockEntry = lockEntry.WithTTL(ttl)
				rootEntry = rootEntry.WithTTL(ttl)
			}
		}

		if err := txn.SetEntry(lockEntry); err != nil {
			return errors.WithStack(err)
		}

		if err := txn.SetEntry(rootEntry); err != nil {
			return errors.WithStack(err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// RemoveLock implements [Store].
func (s *BadgerStore) RemoveLock(ctx context.Context, token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		lock, err := getLock(txn, token)
		if err != nil {
			return err
		}

		if err := txn.Delete(lockKey(token)); err != nil {
			return errors.WithStack(err)
		}

		if err := txn.Delete(rootKey(lock.Root, token)); err != nil {
			return errors.WithStack(err)
		}

		return nil
	})
}

// Locks implements [Store].
func (s *BadgerStore) Locks(ctx context.Context) ([]*Lock, error) {
	locks := make([]*Lock, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(lockPrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			lock, err := decodeLock(it.Item())
			if err != nil {
				return err
			}

			locks = append(locks, lock)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return locks, nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (s *BadgerStore) scanRoots(prefix string, match func(root string) bool) ([]*Lock, error) {
	locks := make([]*Lock, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		tokens := make([]string, 0)

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), rootPrefix)

			root, token, found := strings.Cut(key, "\x00")
			if !found || !match(root) {
				continue
			}

			tokens = append(tokens, token)
		}

		for _, token := range tokens {
			lock, err := getLock(txn, token)
			if err != nil {
				// Index entries may outlive their lock when TTLs diverge
				if errors.Is(err, ErrLockNotFound) {
					continue
				}

				return err
			}

			locks = append(locks, lock)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return locks, nil
}

func getLock(txn *badger.Txn, token string) (*Lock, error) {
	item, err := txn.Get(lockKey(token))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.WithStack(ErrLockNotFound)
		}

		return nil, errors.WithStack(err)
	}

	return decodeLock(item)
}

func decodeLock(item *badger.Item) (*Lock, error) {
	lock := &Lock{}

	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, lock)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode lock '%s'", item.Key())
	}

	return lock, nil
}

func lockKey(token string) []byte {
	return []byte(lockPrefix + token)
}

func rootKey(root, token string) []byte {
	return []byte(rootPrefix + root + "\x00" + token)
}

// NewBadgerStore wraps an already opened badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{
		db: db,
	}
}

// OpenBadgerStore opens (or creates) the badger database at the given path.
// An empty path opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open lock database '%s'", path)
	}

	return NewBadgerStore(db), nil
}

var _ Store = &BadgerStore{}
