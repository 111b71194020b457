package chartspec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// specValidate is shared by every Validate call; validator caches struct
// metadata so it must be built once.
var specValidate *validator.Validate

func init() {
	specValidate = validator.New(validator.WithRequiredStructEnabled())

	specValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = specValidate.RegisterValidation("fieldtype", validateFieldType)
}

func validateFieldType(fl validator.FieldLevel) bool {
	switch FieldType(fl.Field().String()) {
	case Quantitative, Nominal, Ordinal, Temporal:
		return true
	}
	return false
}

// Violation is one broken schema rule, addressed by JSON pointer.
type Violation struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// SchemaError lists every rule a document breaks.
type SchemaError struct {
	Violations []Violation `json:"violations"`
}

func (e *SchemaError) Error() string {
	if len(e.Violations) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Path, v.Message))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

func (e *SchemaError) add(path, rule, format string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{
		Path:    path,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validate checks spec against the schema and its referential invariants.
// It never panics; every problem is reported as a *SchemaError.
func Validate(spec *ChartSpec) (err error) {
	schemaErr := &SchemaError{}

	defer func() {
		if r := recover(); r != nil {
			schemaErr.add("", "internal", "validator panicked: %v", r)
			err = schemaErr
		}
	}()

	if spec == nil {
		schemaErr.add("", "required", "document is missing")
		return schemaErr
	}

	if verr := specValidate.Struct(spec); verr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(verr, &fieldErrs) {
			schemaErr.add("", "invalid", "%v", verr)
			return schemaErr
		}
		for _, fe := range fieldErrs {
			schemaErr.add(namespaceToPointer(fe.Namespace()), fe.Tag(), "%s", describeFieldError(fe))
		}
	}

	checkReferences(spec, schemaErr)

	if len(schemaErr.Violations) > 0 {
		return schemaErr
	}
	return nil
}

func checkReferences(spec *ChartSpec, schemaErr *SchemaError) {
	seen := make(map[string]bool, len(spec.Data.Columns))
	for i, c := range spec.Data.Columns {
		if c.Name == "" {
			continue
		}
		if seen[c.Name] {
			schemaErr.add(fmt.Sprintf("/data/columns/%d/name", i), "unique", "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}

	channels := []struct {
		name string
		enc  *FieldEncoding
	}{
		{"x", spec.Encoding.X},
		{"y", spec.Encoding.Y},
		{"color", spec.Encoding.Color},
	}
	for _, ch := range channels {
		if ch.enc == nil {
			continue
		}
		base := "/encoding/" + ch.name
		if ch.enc.Field != "" && !seen[ch.enc.Field] {
			schemaErr.add(base+"/field", "column_ref", "field %q is not a data column", ch.enc.Field)
		}
		if sc := ch.enc.Scale; sc != nil && sc.Domain != nil {
			if len(sc.Domain) != 2 {
				schemaErr.add(base+"/scale/domain", "domain_tuple", "domain must be [min, max], got %d values", len(sc.Domain))
			} else if !(sc.Domain[0] < sc.Domain[1]) {
				schemaErr.add(base+"/scale/domain", "domain_tuple", "domain min %v must be below max %v", sc.Domain[0], sc.Domain[1])
			}
		}
	}

	x, y := spec.Encoding.X, spec.Encoding.Y
	if x != nil && y != nil && x.Field != "" && x.Field == y.Field {
		schemaErr.add("/encoding/y/field", "distinct_axes", "x and y both reference column %q", x.Field)
	}

	if spec.ChartType == ChartErrorBar && spec.ErrorBar == nil {
		schemaErr.add("/errorBar", "required", "error-bar charts need an errorBar configuration")
	}
	if eb := spec.ErrorBar; eb != nil && eb.Type == ErrorBarCI && eb.Value != nil && *eb.Value >= 1 {
		schemaErr.add("/errorBar/value", "ci_range", "confidence level must be below 1, got %v", *eb.Value)
	}
}

// namespaceToPointer turns "ChartSpec.encoding.x.labelAngle" or
// "ChartSpec.data.columns[2].type" into a JSON pointer.
func namespaceToPointer(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	var b strings.Builder
	for _, p := range parts {
		if i := strings.IndexByte(p, '['); i >= 0 && strings.HasSuffix(p, "]") {
			b.WriteString("/" + p[:i] + "/" + p[i+1:len(p)-1])
			continue
		}
		b.WriteString("/" + p)
	}
	return b.String()
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "fieldtype":
		return fmt.Sprintf("unknown field type %v", fe.Value())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), indirect(fe.Value()))
	case "max", "lte":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), indirect(fe.Value()))
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), indirect(fe.Value()))
	}
	return fmt.Sprintf("failed %q rule", fe.Tag())
}

func indirect(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}
