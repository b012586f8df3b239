// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package failure classifies errors raised while planning and executing
// fabric changes.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Unknown is reported for errors that were not produced by this package.
	Unknown Kind = iota
	// Communication means a fabric or cluster collaborator could not be reached
	// or returned a transport-level error.
	Communication
	// DataInconsistency means the local model and the remote system disagree.
	DataInconsistency
	// InvalidConfiguration means a caller supplied desired state is structurally invalid.
	InvalidConfiguration
	// InternalInvariantViolation signals a defect in the engine or its input assumptions.
	InternalInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case Communication:
		return "CommunicationFailure"
	case DataInconsistency:
		return "DataInconsistency"
	case InvalidConfiguration:
		return "InvalidConfiguration"
	case InternalInvariantViolation:
		return "InternalInvariantViolation"
	default:
		return "Unknown"
	}
}

// Error carries a failure kind, the operation that failed and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a failure of the given kind. A nil err is allowed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a failure whose cause is formatted from the arguments.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Comm wraps a collaborator error. Errors that already carry a kind are kept as is.
func Comm(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: Communication, Op: op, Err: err}
}

// Inconsistent reports a mismatch between the local model and the remote system.
func Inconsistent(op, format string, args ...any) error {
	return Newf(DataInconsistency, op, format, args...)
}

// Invalid reports a structurally invalid desired state.
func Invalid(op, format string, args ...any) error {
	return Newf(InvalidConfiguration, op, format, args...)
}

// Internal reports an engine defect.
func Internal(op, format string, args ...any) error {
	return Newf(InternalInvariantViolation, op, format, args...)
}

// KindOf returns the kind of the first failure found in the error chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
