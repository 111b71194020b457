package patch

import (
	"encoding/json"
	"fmt"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

// Add builds an add operation. It panics if value cannot be marshalled,
// which only happens for programmer errors such as channels or funcs.
func Add(path string, value any) models.PatchOp {
	return models.PatchOp{Op: models.OpAdd, Path: path, Value: mustRaw(value)}
}

// Replace builds a replace operation.
func Replace(path string, value any) models.PatchOp {
	return models.PatchOp{Op: models.OpReplace, Path: path, Value: mustRaw(value)}
}

// Remove builds a remove operation.
func Remove(path string) models.PatchOp {
	return models.PatchOp{Op: models.OpRemove, Path: path}
}

func mustRaw(value any) json.RawMessage {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("patch: cannot marshal value: %v", err))
	}
	return raw
}
