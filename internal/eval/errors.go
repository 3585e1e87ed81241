// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"errors"
	"fmt"

	"nickandperla.net/scrap/internal/parser"
	"nickandperla.net/scrap/internal/token"
)

// Kind classifies evaluation errors.
type Kind int

const (
	ParseError Kind = iota
	NonExhaustiveMatch
	ArgumentMismatch
	UnboundVariable
	TypeMismatch
	DuplicateField
	UnresolvedReference
	HoleEncountered
	AssertionFailed
	CircularBinding
	ArithmeticError
	IndexOutOfRange
	MissingField
	BindingMismatch
)

var kindNames = map[Kind]string{
	ParseError:          "ParseError",
	NonExhaustiveMatch:  "NonExhaustiveMatch",
	ArgumentMismatch:    "ArgumentMismatch",
	UnboundVariable:     "UnboundVariable",
	TypeMismatch:        "TypeMismatch",
	DuplicateField:      "DuplicateField",
	UnresolvedReference: "UnresolvedReference",
	HoleEncountered:     "HoleEncountered",
	AssertionFailed:     "AssertionFailed",
	CircularBinding:     "CircularBinding",
	ArithmeticError:     "ArithmeticError",
	IndexOutOfRange:     "IndexOutOfRange",
	MissingField:        "MissingField",
	BindingMismatch:     "BindingMismatch",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Error is a runtime error. Pos is the zero position when the source
// location is unknown. Err holds the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Pos  token.Pos
	Err  error
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(kind Kind, pos token.Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Parse errors report ParseError.
func KindOf(err error) (Kind, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	var pe *parser.Error
	if errors.As(err, &pe) {
		return ParseError, true
	}
	return 0, false
}
