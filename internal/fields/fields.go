// Package fields resolves values in decoded JSON documents by ordered path
// rules. Payloads from the platform carry the same value under different
// names and nesting depending on API version; each field is described once
// as a Rule and evaluated the same way everywhere.
package fields

import "strings"

// Lookup walks a dot-separated path through nested objects.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Rule resolves one field by trying Paths in order.
type Rule struct {
	Field string
	Paths []string
}

// NewRule builds a rule for field with the given candidate paths.
func NewRule(field string, paths ...string) Rule {
	return Rule{Field: field, Paths: paths}
}

// Value returns the first present, non-null value.
func (r Rule) Value(doc map[string]any) (any, bool) {
	for _, p := range r.Paths {
		if v, ok := Lookup(doc, p); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first non-empty string value. Values of other types
// are skipped.
func (r Rule) String(doc map[string]any) (string, bool) {
	for _, p := range r.Paths {
		v, ok := Lookup(doc, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// StringOr is String with a fallback.
func (r Rule) StringOr(doc map[string]any, def string) string {
	if s, ok := r.String(doc); ok {
		return s
	}
	return def
}
