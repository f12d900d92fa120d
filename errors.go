// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pluginvm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error so callers can branch on failure mode without
// parsing message text.
type Kind uint8

const (
	// InvalidPluginName means a public method was called with a name that
	// fails the registry-name grammar (empty, relative, or traversing).
	InvalidPluginName Kind = iota
	// NotFound means a fetcher's resolve step could not locate the
	// requested name+selector.
	NotFound
	// FetchFailed means a network or filesystem operation failed while
	// materialising a resolved package.
	FetchFailed
	// VersionConflict means a dependency's selector cannot be satisfied
	// given host- or static-provided constraints.
	VersionConflict
	// ModuleNotFound means the loader could not resolve a require() call.
	ModuleNotFound
	// ExecutionError means plugin code threw while being evaluated.
	ExecutionError
	// LockBusy means the filesystem lock could not be acquired within
	// lockWait.
	LockBusy
)

func (k Kind) String() string {
	switch k {
	case InvalidPluginName:
		return "InvalidPluginName"
	case NotFound:
		return "NotFound"
	case FetchFailed:
		return "FetchFailed"
	case VersionConflict:
		return "VersionConflict"
	case ModuleNotFound:
		return "ModuleNotFound"
	case ExecutionError:
		return "ExecutionError"
	case LockBusy:
		return "LockBusy"
	default:
		return "Unknown"
	}
}

// Error carries a Kind alongside the wrapped cause, in the teacher's habit
// of wrapping lower-level failures with errors.Wrap rather than discarding
// context.
type Error struct {
	Kind    Kind
	Name    string
	Version string
	cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Name != "" {
		if e.Version != "" {
			msg = fmt.Sprintf("%s: %s@%s", msg, e.Name, e.Version)
		} else {
			msg = fmt.Sprintf("%s: %s", msg, e.Name)
		}
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// newError builds an *Error of the given kind, wrapping cause if non-nil.
func newError(k Kind, name, version string, cause error) *Error {
	return &Error{Kind: k, Name: name, Version: version, cause: cause}
}

// wrapf wraps cause with a formatted message the way the teacher's
// context.go and ensure.go do via errors.Wrapf, then tags it with a Kind.
func wrapf(k Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, cause: errors.Wrapf(cause, format, args...)}
}

// KindOf reports the Kind of err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
