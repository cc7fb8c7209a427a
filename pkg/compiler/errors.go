package compiler

import (
	"errors"
	"fmt"
)

// Constraint violations reported by Compile. Every *Error unwraps to one
// of these so callers can branch with errors.Is.
var (
	ErrNoTables       = errors.New("plan must specify at least one table")
	ErrNoSelect       = errors.New("plan must specify select items")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrBadJoin        = errors.New("join endpoint must be table.column")
	ErrForbiddenToken = errors.New("forbidden token in filter")
	ErrRawDisabled    = errors.New("raw filters are not allowed")
	ErrBadFilter      = errors.New("invalid filter")
	ErrBadAggregate   = errors.New("unknown aggregate")
	ErrBadAlias       = errors.New("alias must be a plain identifier")
	ErrBadOrder       = errors.New("order_by.dir must be asc|desc")
	ErrBadLimit       = errors.New("invalid limit value")
)

// Error is a compile failure naming the violated constraint and the plan
// element that violated it. No SQL is produced alongside an Error.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
