package tools

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"pfagent/model"
)

// ValidationError is one structural mismatch between a value and its
// schema. Paths use $ for the root, $.key for object members and $[i]
// for array items.
type ValidationError struct {
	Path    string
	Message string
}

// Validate structurally checks value against schema and returns every
// error found. An empty result means valid. It never panics or aborts:
// the caller aggregates the list into one diagnostic string.
func Validate(schema *model.Schema, value any) []ValidationError {
	var errs []ValidationError
	validate(schema, value, "$", &errs)
	return errs
}

// FormatErrors renders validation errors the way tool results report
// them: "path: message" joined with commas.
func FormatErrors(errs []ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return strings.Join(parts, ", ")
}

func validate(schema *model.Schema, value any, path string, errs *[]ValidationError) {
	if schema == nil {
		return
	}

	allowed := schema.Types()
	if len(allowed) > 0 {
		ok := false
		for _, t := range allowed {
			if isType(t, value) {
				ok = true
				break
			}
		}
		if !ok {
			*errs = append(*errs, ValidationError{Path: path, Message: "Expected " + strings.Join(allowed, "|")})
			return
		}
	}

	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		*errs = append(*errs, ValidationError{Path: path, Message: "Value not in enum"})
	}

	if hasType(allowed, "object") {
		obj, ok := value.(map[string]any)
		if ok {
			for _, key := range schema.Required {
				if _, present := obj[key]; !present {
					*errs = append(*errs, ValidationError{Path: path + "." + key, Message: "Missing required field"})
				}
			}
			for key, propSchema := range schema.Properties {
				if v, present := obj[key]; present {
					validate(propSchema, v, path+"."+key, errs)
				}
			}
		}
	}

	if hasType(allowed, "array") && schema.Items != nil {
		if items, ok := value.([]any); ok {
			for i, item := range items {
				validate(schema.Items, item, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	}
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// isType applies the tool-contract type semantics: integer means whole
// number, object excludes arrays, unknown type names accept anything.
func isType(typeName string, value any) bool {
	switch typeName {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		f, ok := asFloat(value)
		return ok && f == math.Trunc(f)
	case "array":
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Slice
	case "object":
		if value == nil {
			return false
		}
		if reflect.TypeOf(value).Kind() == reflect.Slice {
			return false
		}
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	}
	return true
}

func isNumber(value any) bool {
	_, ok := asFloat(value)
	return ok
}

// asFloat accepts the numeric shapes encoding/json produces plus plain
// Go ints from hand-built test arguments.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, value) {
			return true
		}
	}
	return false
}
