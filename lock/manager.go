package lock

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Manager owns the lock table. A single mutex guards every operation so that
// conflict detection and insertion happen atomically.
type Manager struct {
	mu         sync.Mutex
	store      Store
	now        func() time.Time
	maxTimeout time.Duration
	metrics    *Metrics
	logger     *slog.Logger
}

// Acquire grants a new lock or fails with ErrLocked when it conflicts with an
// active one.
func (m *Manager) Acquire(ctx context.Context, req Request) (*Lock, error) {
	root := store.Join("/", req.Root)

	if req.Scope == "" {
		req.Scope = ScopeExclusive
	}

	if req.Depth == "" {
		req.Depth = DepthInfinity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	active, err := m.covering(ctx, now, root, req.Depth == DepthInfinity)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, existing := range active {
		if req.Scope == ScopeExclusive || existing.Scope == ScopeExclusive {
			m.metrics.recordAcquisition(req.Scope, "conflict")
			return nil, errors.Wrapf(ErrLocked, "'%s' is locked by '%s'", root, existing.Root)
		}
	}

	timeout := m.capTimeout(req.Timeout)

	lock := &Lock{
		Token:   "urn:uuid:" + uuid.NewString(),
		Root:    root,
		Scope:   req.Scope,
		Depth:   req.Depth,
		Owner:   req.Owner,
		Timeout: timeout,
		Created: now,
	}

	if timeout > 0 {
		lock.Expiry = now.Add(timeout)
	}

	if err := m.store.PutLock(ctx, lock); err != nil {
		return nil, errors.WithStack(err)
	}

	m.metrics.recordAcquisition(req.Scope, "granted")

	return lock.clone(), nil
}

// Refresh extends the lifetime of an active lock.
func (m *Manager) Refresh(ctx context.Context, token string, timeout time.Duration) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	lock, err := m.active(ctx, now, NormalizeToken(token))
	if err != nil {
		return nil, err
	}

	lock.Timeout = m.capTimeout(timeout)
	lock.Expiry = time.Time{}

	if lock.Timeout > 0 {
		lock.Expiry = now.Add(lock.Timeout)
	}

	if err := m.store.PutLock(ctx, lock); err != nil {
		return nil, errors.WithStack(err)
	}

	return lock.clone(), nil
}

// Release removes an active lock.
func (m *Manager) Release(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token = NormalizeToken(token)

	if _, err := m.active(ctx, m.now(), token); err != nil {
		return err
	}

	if err := m.store.RemoveLock(ctx, token); err != nil {
		return errors.WithStack(err)
	}

	m.metrics.recordRelease("unlock", 1)

	return nil
}

// Lookup returns the active lock identified by the token.
func (m *Manager) Lookup(ctx context.Context, token string) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active(ctx, m.now(), NormalizeToken(token))
}

// Check fails with ErrLocked unless every lock covering the path is matched
// by one of the submitted tokens. Locks sharing a root form a group that any
// of their tokens satisfies. With recursive, locks rooted below the path are
// checked too.
func (m *Manager) Check(ctx context.Context, name string, recursive bool, tokens []string) error {
	name = store.Join("/", name)

	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.covering(ctx, m.now(), name, recursive)
	if err != nil {
		return errors.WithStack(err)
	}

	if len(active) == 0 {
		return nil
	}

	submitted := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		submitted[NormalizeToken(t)] = struct{}{}
	}

	satisfied := make(map[string]bool)
	for _, lock := range active {
		if _, ok := submitted[lock.Token]; ok {
			satisfied[lock.Root] = true
		} else if _, exists := satisfied[lock.Root]; !exists {
			satisfied[lock.Root] = false
		}
	}

	for root, ok := range satisfied {
		if !ok {
			return errors.Wrapf(ErrLocked, "'%s' is locked by '%s'", name, root)
		}
	}

	return nil
}

// Discover returns the active locks applying to the path, oldest first.
func (m *Manager) Discover(ctx context.Context, name string) ([]*Lock, error) {
	name = store.Join("/", name)

	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.covering(ctx, m.now(), name, false)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Slice(locks, func(i, j int) bool {
		return locks[i].Created.Before(locks[j].Created)
	})

	return locks, nil
}

// Purge removes every lock rooted at or below the path and returns how many
// were removed.
func (m *Manager) Purge(ctx context.Context, name string) (int, error) {
	name = store.Join("/", name)

	m.mu.Lock()
	defer m.mu.Unlock()

	rooted, err := m.store.LocksByRoot(ctx, name)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	under, err := m.store.LocksUnder(ctx, name)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	purged := 0
	for _, lock := range append(rooted, under...) {
		if err := m.store.RemoveLock(ctx, lock.Token); err != nil && !errors.Is(err, ErrLockNotFound) {
			return purged, errors.WithStack(err)
		}
		purged++
	}

	m.metrics.recordRelease("purged", purged)

	return purged, nil
}

// Sweep removes every expired lock and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.store.Locks(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	now := m.now()
	swept := 0

	for _, lock := range locks {
		if !lock.Expired(now) {
			continue
		}

		if err := m.store.RemoveLock(ctx, lock.Token); err != nil && !errors.Is(err, ErrLockNotFound) {
			return swept, errors.WithStack(err)
		}

		swept++
	}

	m.metrics.recordRelease("expired", swept)
	m.metrics.setActive(len(locks) - swept)

	return swept, nil
}

// Run sweeps expired locks at the given interval until the context is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := m.Sweep(ctx)
			if err != nil {
				m.logger.ErrorContext(ctx, "could not sweep expired locks", slog.Any("error", errors.WithStack(err)))
				continue
			}

			if swept > 0 {
				m.logger.DebugContext(ctx, "expired locks swept", slog.Int("count", swept))
			}
		}
	}
}

// covering collects the active locks applying to the path: the ones rooted at
// it, the depth infinity ones rooted at an ancestor and, with recursive, the
// ones rooted below it. Expired locks met on the way are evicted.
func (m *Manager) covering(ctx context.Context, now time.Time, name string, recursive bool) ([]*Lock, error) {
	candidates, err := m.store.LocksByRoot(ctx, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for parent := name; !store.IsRoot(parent); {
		parent = store.Parent(parent)

		locks, err := m.store.LocksByRoot(ctx, parent)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		for _, lock := range locks {
			if lock.Depth == DepthInfinity {
				candidates = append(candidates, lock)
			}
		}
	}

	if recursive {
		under, err := m.store.LocksUnder(ctx, name)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		candidates = append(candidates, under...)
	}

	active := make([]*Lock, 0, len(candidates))
	for _, lock := range candidates {
		if lock.Expired(now) {
			if err := m.evict(ctx, lock); err != nil {
				return nil, err
			}
			continue
		}

		active = append(active, lock)
	}

	return active, nil
}

func (m *Manager) active(ctx context.Context, now time.Time, token string) (*Lock, error) {
	lock, err := m.store.GetLock(ctx, token)
	if err != nil {
		if errors.Is(err, ErrLockNotFound) {
			return nil, errors.Wrapf(ErrInvalidToken, "unknown lock token '%s'", token)
		}

		return nil, errors.WithStack(err)
	}

	if lock.Expired(now) {
		if err := m.evict(ctx, lock); err != nil {
			return nil, err
		}

		return nil, errors.Wrapf(ErrInvalidToken, "lock '%s' has expired", token)
	}

	return lock, nil
}

func (m *Manager) evict(ctx context.Context, lock *Lock) error {
	if err := m.store.RemoveLock(ctx, lock.Token); err != nil && !errors.Is(err, ErrLockNotFound) {
		return errors.WithStack(err)
	}

	m.metrics.recordRelease("expired", 1)

	return nil
}

func (m *Manager) capTimeout(timeout time.Duration) time.Duration {
	if m.maxTimeout > 0 && (timeout <= 0 || timeout > m.maxTimeout) {
		return m.maxTimeout
	}

	if timeout < 0 {
		return 0
	}

	return timeout
}

func NewManager(store Store, funcs ...OptionFunc) *Manager {
	opts := NewOptions(funcs...)

	return &Manager{
		store:      store,
		now:        opts.Now,
		maxTimeout: opts.MaxTimeout,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}
