// Package lock implements the WebDAV lock table.
package lock

import (
	"strings"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

var (
	ErrLocked       = errors.New("locked")
	ErrInvalidToken = errors.New("invalid lock token")
	ErrLockNotFound = errors.New("lock not found")
)

type Scope string

const (
	ScopeExclusive Scope = "exclusive"
	ScopeShared    Scope = "shared"
)

type Depth string

const (
	DepthZero     Depth = "0"
	DepthInfinity Depth = "infinity"
)

type Lock struct {
	Token string `json:"token"`
	Root  string `json:"root"`
	Scope Scope  `json:"scope"`
	Depth Depth  `json:"depth"`
	// Owner is the raw XML content of the DAV:owner element
	Owner   string        `json:"owner,omitempty"`
	Timeout time.Duration `json:"timeout"`
	// Expiry is zero for locks without timeout
	Expiry  time.Time `json:"expiry"`
	Created time.Time `json:"created"`
}

// Covers reports whether the lock applies to the given path.
func (l *Lock) Covers(name string) bool {
	if l.Root == name {
		return true
	}

	return l.Depth == DepthInfinity && store.IsDescendant(name, l.Root)
}

func (l *Lock) Expired(now time.Time) bool {
	return !l.Expiry.IsZero() && !now.Before(l.Expiry)
}

// Remaining returns the duration left before expiry, zero meaning infinite.
func (l *Lock) Remaining(now time.Time) time.Duration {
	if l.Expiry.IsZero() {
		return 0
	}

	remaining := l.Expiry.Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}

	return remaining.Round(time.Second)
}

func (l *Lock) clone() *Lock {
	copy := *l
	return &copy
}

// Request describes a lock to acquire.
type Request struct {
	Root    string
	Scope   Scope
	Depth   Depth
	Owner   string
	Timeout time.Duration
}

// NormalizeToken strips the angle brackets of a coded URL.
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "<")
	return strings.TrimSuffix(token, ">")
}
