package chartspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// Clone returns a deep copy of s; nothing reachable from the result aliases s.
func (s *ChartSpec) Clone() (*ChartSpec, error) {
	if s == nil {
		return nil, nil
	}
	var out ChartSpec
	if err := deepcopy.Copy(&out, *s); err != nil {
		return nil, fmt.Errorf("failed to clone chart spec: %w", err)
	}
	return &out, nil
}

// ToTree converts s into a generic JSON tree of map[string]any, []any and
// scalars. The tree shares no memory with s.
func ToTree(s *ChartSpec) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart spec: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode chart tree: %w", err)
	}
	return tree, nil
}

// FromTree decodes a generic tree back into a ChartSpec. Unknown members and
// values of the wrong primitive type are errors.
func FromTree(tree any) (*ChartSpec, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart tree: %w", err)
	}
	return Decode(bytes.NewReader(raw))
}

// Decode strictly reads one ChartSpec document from r. Member names must
// match the schema exactly; encoding/json alone would fold case.
func Decode(r io.Reader) (*ChartSpec, error) {
	dec := json.NewDecoder(r)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode chart spec: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode chart spec: trailing data after document")
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode chart spec: %w", err)
	}
	if err := checkMembers(tree, specType, ""); err != nil {
		return nil, fmt.Errorf("failed to decode chart spec: %w", err)
	}

	strict := json.NewDecoder(bytes.NewReader(raw))
	strict.DisallowUnknownFields()
	var spec ChartSpec
	if err := strict.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode chart spec: %w", err)
	}
	return &spec, nil
}

var (
	specType      = reflect.TypeOf(ChartSpec{})
	pointerEscape = strings.NewReplacer("~", "~0", "/", "~1")
)

// checkMembers walks tree alongside t and fails on any object member whose
// name is not exactly a json name of the corresponding struct. Type
// mismatches are left to the decoder.
func checkMembers(tree any, t reflect.Type, path string) error {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := tree.(map[string]any)
		if !ok {
			return nil
		}
		fields := jsonFields(t)
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			member := path + "/" + pointerEscape.Replace(k)
			ft, ok := fields[k]
			if !ok {
				return fmt.Errorf("unknown member %s", member)
			}
			if err := checkMembers(obj[k], ft, member); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		arr, ok := tree.([]any)
		if !ok {
			return nil
		}
		for i, el := range arr {
			if err := checkMembers(el, t.Elem(), fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		obj, ok := tree.(map[string]any)
		if !ok {
			return nil
		}
		for k, v := range obj {
			if err := checkMembers(v, t.Elem(), path+"/"+pointerEscape.Replace(k)); err != nil {
				return err
			}
		}
	}
	return nil
}

// jsonFields maps the exact json member names of struct t to field types.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	out := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f.Type
	}
	return out
}

// Canonical returns the normalized tree of s. Two specs with equal canonical
// trees describe the same chart, whatever their Go representation.
func Canonical(s *ChartSpec) (map[string]any, error) {
	return ToTree(s)
}
