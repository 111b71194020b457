// Package patch applies RFC 6902 style patch operations to chart documents
// and decides whether the result may replace the live document.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

var (
	ErrInvalidPointer  = errors.New("invalid JSON pointer")
	ErrPathNotFound    = errors.New("path not found")
	ErrIndexOutOfRange = errors.New("array index out of range")
	ErrNotContainer    = errors.New("path traverses a scalar")
	ErrMissingValue    = errors.New("operation requires a value")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrRemoveRoot      = errors.New("cannot remove the document root")
)

// OpError reports which operation of a batch failed.
type OpError struct {
	Index int
	Op    models.PatchOpType
	Path  string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("patch %d (%s %s): %v", e.Index, e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Apply runs ops in order against doc, a generic JSON tree. doc is modified
// in place, so callers pass a tree they own; the returned value is the new
// root. Apply stops at the first failing operation.
func Apply(doc any, ops []models.PatchOp) (any, error) {
	for i, op := range ops {
		next, err := applyOne(doc, op)
		if err != nil {
			return nil, &OpError{Index: i, Op: op.Op, Path: op.Path, Err: err}
		}
		doc = next
	}
	return doc, nil
}

func applyOne(doc any, op models.PatchOp) (any, error) {
	switch op.Op {
	case models.OpAdd, models.OpReplace, models.OpRemove:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
	}

	tokens, err := ParsePointer(op.Path)
	if err != nil {
		return nil, err
	}

	var value any
	if op.Op != models.OpRemove {
		if len(op.Value) == 0 {
			return nil, ErrMissingValue
		}
		if err := json.Unmarshal(op.Value, &value); err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
	}

	return applyAt(doc, tokens, op.Op, value)
}

// applyAt walks tokens from node and returns node's replacement. Arrays may
// change length, so every level hands its possibly new child back up.
func applyAt(node any, tokens []string, op models.PatchOpType, value any) (any, error) {
	if len(tokens) == 0 {
		if op == models.OpRemove {
			return nil, ErrRemoveRoot
		}
		return value, nil
	}

	key, rest := tokens[0], tokens[1:]

	switch n := node.(type) {
	case map[string]any:
		if len(rest) == 0 {
			switch op {
			case models.OpAdd, models.OpReplace:
				n[key] = value
			case models.OpRemove:
				if _, ok := n[key]; !ok {
					return nil, fmt.Errorf("%w: member %q", ErrPathNotFound, key)
				}
				delete(n, key)
			}
			return n, nil
		}
		child, ok := n[key]
		if !ok {
			return nil, fmt.Errorf("%w: member %q", ErrPathNotFound, key)
		}
		updated, err := applyAt(child, rest, op, value)
		if err != nil {
			return nil, err
		}
		n[key] = updated
		return n, nil

	case []any:
		if len(rest) == 0 {
			return applyToArray(n, key, op, value)
		}
		idx, err := arrayIndex(key, len(n), false)
		if err != nil {
			return nil, err
		}
		updated, err := applyAt(n[idx], rest, op, value)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	}

	return nil, fmt.Errorf("%w at %q", ErrNotContainer, key)
}

func applyToArray(arr []any, key string, op models.PatchOpType, value any) ([]any, error) {
	switch op {
	case models.OpAdd:
		idx, err := arrayIndex(key, len(arr), true)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(arr)+1)
		out = append(out, arr[:idx]...)
		out = append(out, value)
		return append(out, arr[idx:]...), nil

	case models.OpReplace:
		idx, err := arrayIndex(key, len(arr), false)
		if err != nil {
			return nil, err
		}
		arr[idx] = value
		return arr, nil

	default:
		idx, err := arrayIndex(key, len(arr), false)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(arr)-1)
		out = append(out, arr[:idx]...)
		return append(out, arr[idx+1:]...), nil
	}
}
