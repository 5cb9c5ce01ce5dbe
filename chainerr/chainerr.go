// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package chainerr defines the five error kinds of spec.md §7 and wraps
// them with github.com/pkg/errors so every boundary in the engine can
// attach a context chain without losing the kind a caller needs to branch
// on.
package chainerr

import "github.com/pkg/errors"

// Kind classifies why an operation failed.
type Kind int

const (
	// InvalidArgument: caller-supplied data fails a structural check (bad
	// signature shape, malformed operation payload).
	InvalidArgument Kind = iota
	// ConsensusViolation: structurally valid data that breaks a chain rule
	// (double-spend, bad header field, unknown signing delegate).
	ConsensusViolation
	// NotFound: a referenced entity (account, asset, block, fork) doesn't
	// exist in the current state.
	NotFound
	// Corruption: on-disk state fails an internal invariant check.
	Corruption
	// Io: the underlying store failed for reasons unrelated to the data
	// (disk full, lock contention, process killed mid-write).
	Io
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case ConsensusViolation:
		return "consensus_violation"
	case NotFound:
		return "not_found"
	case Corruption:
		return "corruption"
	case Io:
		return "io"
	default:
		return "unknown"
	}
}

// chainError pairs a Kind with a wrapped cause.
type chainError struct {
	kind  Kind
	cause error
}

func (e *chainError) Error() string { return e.kind.String() + ": " + e.cause.Error() }

func (e *chainError) Unwrap() error { return e.cause }

// KindOf returns the Kind tagged on err if it (or something it wraps) is a
// chainError, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *chainError
	if errors.As(err, &ce) {
		return ce.kind, true
	}
	return 0, false
}

// New creates an error of the given kind with msg as its message.
func New(kind Kind, msg string) error {
	return &chainError{kind: kind, cause: errors.New(msg)}
}

// Wrap attaches kind to cause, preserving cause's context chain so
// errors.Is/errors.Cause keep working through it.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &chainError{kind: kind, cause: errors.Wrap(cause, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &chainError{kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
