// Package guard protects code that suspends on a slow call from acting on a
// document reference captured before the call.
package guard

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAbsent is returned when the cell holds no value.
var ErrAbsent = errors.New("no live value")

// Cell is a single-slot holder for the latest value of T. Writers replace
// the pointer; readers always see a complete value or nil.
type Cell[T any] struct {
	p atomic.Pointer[T]
}

// Load returns the current value, or nil.
func (c *Cell[T]) Load() *T {
	return c.p.Load()
}

// Store makes v the current value. A nil v marks the cell absent.
func (c *Cell[T]) Store(v *T) {
	c.p.Store(v)
}

// ReadAfter runs call with the value held by cell at entry and then returns
// the value held at exit. Callers must act on the returned value only; the
// one passed to call may be stale by the time call returns.
//
// ErrAbsent is returned if the cell is empty before or after call. An error
// from call is returned unchanged, together with the value read at exit.
func ReadAfter[T any](ctx context.Context, cell *Cell[T], call func(ctx context.Context, captured *T) error) (*T, error) {
	captured := cell.Load()
	if captured == nil {
		return nil, ErrAbsent
	}

	callErr := call(ctx, captured)

	latest := cell.Load()
	if callErr != nil {
		return latest, callErr
	}
	if latest == nil {
		return nil, ErrAbsent
	}
	return latest, nil
}
