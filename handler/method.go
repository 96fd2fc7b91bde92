package handler

import (
	"net/http"
	"strings"
)

type Method string

const (
	MethodGet       Method = http.MethodGet
	MethodHead      Method = http.MethodHead
	MethodPut       Method = http.MethodPut
	MethodDelete    Method = http.MethodDelete
	MethodOptions   Method = http.MethodOptions
	MethodMkcol     Method = "MKCOL"
	MethodCopy      Method = "COPY"
	MethodMove      Method = "MOVE"
	MethodPropfind  Method = "PROPFIND"
	MethodProppatch Method = "PROPPATCH"
	MethodLock      Method = "LOCK"
	MethodUnlock    Method = "UNLOCK"
)

var methods = []Method{
	MethodOptions,
	MethodGet,
	MethodHead,
	MethodPut,
	MethodDelete,
	MethodMkcol,
	MethodCopy,
	MethodMove,
	MethodPropfind,
	MethodProppatch,
	MethodLock,
	MethodUnlock,
}

// ParseMethod returns the method matching the request method, case
// sensitively.
func ParseMethod(raw string) (Method, bool) {
	for _, m := range methods {
		if string(m) == raw {
			return m, true
		}
	}

	return "", false
}

// Allow returns the value of the Allow header.
func Allow() string {
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, string(m))
	}

	return strings.Join(names, ", ")
}

// Stage is the progress of a request through the dispatcher.
type Stage int

const (
	StageReceived Stage = iota
	StageAuthorized
	StageLockChecked
	StageExecuted
	StageResponded
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageAuthorized:
		return "authorized"
	case StageLockChecked:
		return "lock-checked"
	case StageExecuted:
		return "executed"
	default:
		return "responded"
	}
}
