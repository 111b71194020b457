package patch

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

// readOnlyPaths may not be written by patches, nor may any of their
// ancestors, since replacing an ancestor rewrites them too.
var readOnlyPaths = []string{
	"/data/columns",
	"/data/values",
	"/version",
}

// ReadOnlyPaths returns the JSON pointers patches are never allowed to touch.
func ReadOnlyPaths() []string {
	out := make([]string, len(readOnlyPaths))
	copy(out, readOnlyPaths)
	return out
}

// Status is the outcome class of ApplyAndValidate.
type Status int

const (
	StatusApplied Status = iota
	StatusZeroEffect
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusZeroEffect:
		return "zero_effect"
	case StatusRejected:
		return "rejected"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result of ApplyAndValidate. Spec is the new document when Applied and the
// untouched input otherwise. Err is set unless Applied.
type Result struct {
	Status Status
	Spec   *chartspec.ChartSpec
	Err    *models.EditError
}

// CheckReadOnly returns a READONLY_PATH error for the first op whose path
// is, contains or lies under a read-only path.
func CheckReadOnly(ops []models.PatchOp) *models.EditError {
	protected := make([][]string, len(readOnlyPaths))
	for i, p := range readOnlyPaths {
		protected[i], _ = ParsePointer(p)
	}

	for i, op := range ops {
		tokens, err := ParsePointer(op.Path)
		if err != nil {
			// Malformed pointers cannot address anything; Apply reports them.
			continue
		}
		for j, p := range protected {
			if overlaps(tokens, p) {
				return models.NewEditError(models.KindReadOnlyPath,
					fmt.Sprintf("patch %d (%s %q) touches read-only path %s", i, op.Op, op.Path, readOnlyPaths[j]), nil)
			}
		}
	}
	return nil
}

// ApplyAndValidate applies ops to a copy of spec and returns the resulting
// document only if it is schema-valid and differs from spec. The batch is
// all-or-nothing: on any failure spec is returned as is. The version of an
// applied result is spec.Version+1.
func ApplyAndValidate(spec *chartspec.ChartSpec, ops []models.PatchOp) Result {
	if spec == nil {
		return rejected(nil, models.NewEditError(models.KindDocumentAbsent, "no chart loaded", nil))
	}

	if err := CheckReadOnly(ops); err != nil {
		return rejected(spec, err)
	}

	if len(ops) == 0 {
		return Result{
			Status: StatusZeroEffect,
			Spec:   spec,
			Err:    models.NewEditError(models.KindZeroEffect, "no patches", nil),
		}
	}

	before, err := chartspec.Canonical(spec)
	if err != nil {
		return rejected(spec, models.NewEditError(models.KindUnknown, "encode current chart", err))
	}
	working, err := chartspec.ToTree(spec)
	if err != nil {
		return rejected(spec, models.NewEditError(models.KindUnknown, "copy current chart", err))
	}

	patched, err := Apply(working, ops)
	if err != nil {
		return rejected(spec, models.NewEditError(models.KindValidationFailed, "apply patches", err))
	}

	next, err := chartspec.FromTree(patched)
	if err != nil {
		return rejected(spec, models.NewEditError(models.KindValidationFailed, "decode patched chart", err))
	}

	if err := chartspec.Validate(next); err != nil {
		return rejected(spec, models.NewEditError(models.KindValidationFailed, "patched chart is invalid", err))
	}

	after, err := chartspec.Canonical(next)
	if err != nil {
		return rejected(spec, models.NewEditError(models.KindUnknown, "encode patched chart", err))
	}
	if cmp.Equal(before, after) {
		return Result{
			Status: StatusZeroEffect,
			Spec:   spec,
			Err:    models.NewEditError(models.KindZeroEffect, "patches leave the chart unchanged", nil),
		}
	}

	next.Version = spec.Version + 1
	return Result{Status: StatusApplied, Spec: next}
}

func rejected(spec *chartspec.ChartSpec, err *models.EditError) Result {
	return Result{Status: StatusRejected, Spec: spec, Err: err}
}
