package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bornholm/remotedav/lock"
	"github.com/bornholm/remotedav/multistatus"
	"github.com/bornholm/remotedav/resolver"
	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

func (h *Handler) handleLock(ctx context.Context, ex *exchange) (int, error) {
	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	timeout, err := parseTimeout(ex.r.Header.Get("Timeout"))
	if err != nil {
		return statusFromError(err), err
	}

	info, err := multistatus.DecodeLockInfo(ex.r.Body)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	if info == nil {
		return h.refreshLock(ctx, ex, timeout)
	}

	depth, err := resolver.ParseDepth(ex.r.Header.Get("Depth"), resolver.DepthInfinity)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	lockDepth := lock.DepthInfinity
	switch depth {
	case resolver.DepthZero:
		lockDepth = lock.DepthZero
	case resolver.DepthOne:
		return http.StatusBadRequest, errors.Wrap(ErrInvalidHeader, "LOCK expects depth 0 or infinity")
	}

	if _, err := h.evaluateIf(ctx, ex, ex.path); err != nil {
		return statusFromError(err), err
	}

	l, err := h.locks.Acquire(ctx, lock.Request{
		Root:    ex.path,
		Scope:   info.Scope,
		Depth:   lockDepth,
		Owner:   info.Owner,
		Timeout: timeout,
	})
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return h.writeCondition(ex, http.StatusLocked, "no-conflicting-lock", err)
		}

		return statusFromError(err), errors.WithStack(err)
	}

	ex.advance(StageLockChecked)

	status := http.StatusOK

	// Locking an unmapped path reserves it with an empty member
	if _, err := h.resolver.Resolve(ctx, ex.path); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.releaseQuietly(ctx, l)
			return statusFromError(err), err
		}

		if _, err := h.store.Write(ctx, ex.path, bytes.NewReader(nil), store.WriteOptions{}); err != nil {
			h.releaseQuietly(ctx, l)
			return statusFromError(err), errors.WithStack(err)
		}

		status = http.StatusCreated
	}

	ex.advance(StageExecuted)

	ex.w.Header().Set("Lock-Token", "<"+l.Token+">")

	return h.writeLockDiscovery(ex, status, l)
}

func (h *Handler) refreshLock(ctx context.Context, ex *exchange, timeout time.Duration) (int, error) {
	tokens, err := h.evaluateIf(ctx, ex, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	if len(tokens) == 0 {
		return http.StatusBadRequest, errors.Wrap(ErrMissingHeader, "lock refresh expects a lock token in the If header")
	}

	for _, token := range tokens {
		existing, err := h.locks.Lookup(ctx, token)
		if err != nil {
			if errors.Is(err, lock.ErrInvalidToken) {
				continue
			}

			return statusFromError(err), errors.WithStack(err)
		}

		if !existing.Covers(ex.path) {
			continue
		}

		refreshed, err := h.locks.Refresh(ctx, existing.Token, timeout)
		if err != nil {
			return statusFromError(err), errors.WithStack(err)
		}

		ex.advance(StageExecuted)

		return h.writeLockDiscovery(ex, http.StatusOK, refreshed)
	}

	return http.StatusPreconditionFailed, errors.Wrapf(lock.ErrInvalidToken, "no submitted token applies to '%s'", ex.path)
}

func (h *Handler) handleUnlock(ctx context.Context, ex *exchange) (int, error) {
	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	token := lock.NormalizeToken(ex.r.Header.Get("Lock-Token"))
	if token == "" {
		return http.StatusBadRequest, errors.Wrap(ErrMissingHeader, "missing Lock-Token header")
	}

	existing, err := h.locks.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, lock.ErrInvalidToken) {
			return h.writeCondition(ex, http.StatusConflict, "lock-token-matches-request-uri", err)
		}

		return statusFromError(err), errors.WithStack(err)
	}

	if !existing.Covers(ex.path) {
		err := errors.Wrapf(lock.ErrInvalidToken, "lock '%s' does not apply to '%s'", token, ex.path)
		return h.writeCondition(ex, http.StatusConflict, "lock-token-matches-request-uri", err)
	}

	ex.advance(StageLockChecked)

	if err := h.locks.Release(ctx, token); err != nil {
		if errors.Is(err, lock.ErrInvalidToken) {
			return h.writeCondition(ex, http.StatusConflict, "lock-token-matches-request-uri", err)
		}

		return statusFromError(err), errors.WithStack(err)
	}

	ex.advance(StageExecuted)

	return http.StatusNoContent, nil
}

func (h *Handler) writeLockDiscovery(ex *exchange, status int, l *lock.Lock) (int, error) {
	ex.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	ex.w.WriteHeader(status)

	if err := multistatus.EncodeLockDiscovery(ex.w, []*lock.Lock{l}, h.prefix, h.now()); err != nil {
		return 0, errors.WithStack(err)
	}

	return 0, nil
}

// writeCondition answers with a DAV:error body naming the failed
// precondition.
func (h *Handler) writeCondition(ex *exchange, status int, condition string, err error) (int, error) {
	ex.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	ex.w.WriteHeader(status)

	if encodeErr := multistatus.EncodeError(ex.w, condition); encodeErr != nil {
		return 0, errors.WithStack(encodeErr)
	}

	return 0, errors.WithStack(err)
}

func (h *Handler) releaseQuietly(ctx context.Context, l *lock.Lock) {
	if err := h.locks.Release(ctx, l.Token); err != nil {
		slog.ErrorContext(ctx, "could not release lock", slog.String("token", l.Token), slog.Any("error", errors.WithStack(err)))
	}
}

// parseTimeout parses a Timeout header, the first understood value winning.
// Zero means infinite.
func parseTimeout(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}

	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)

		if strings.EqualFold(value, "Infinite") {
			return 0, nil
		}

		if len(value) > len("Second-") && strings.EqualFold(value[:len("Second-")], "Second-") {
			seconds, err := strconv.ParseUint(value[len("Second-"):], 10, 32)
			if err != nil {
				continue
			}

			return time.Duration(seconds) * time.Second, nil
		}
	}

	return 0, errors.Wrapf(ErrInvalidHeader, "invalid Timeout header '%s'", raw)
}
