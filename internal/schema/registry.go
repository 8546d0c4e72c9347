// Package schema validates section payloads against the shape owned by their
// component type.
package schema

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"folio/api/internal/section"
)

// ValidationError is the Invalid outcome of a validation. FieldPath is empty
// when the problem concerns the payload as a whole.
type ValidationError struct {
	ComponentType string
	Reason        string
	FieldPath     string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.FieldPath == "" {
		return fmt.Sprintf("invalid %s content: %s", e.ComponentType, e.Reason)
	}
	return fmt.Sprintf("invalid %s content at %s: %s", e.ComponentType, e.FieldPath, e.Reason)
}

// Registry is stateless; the zero value is ready to use and safe for
// concurrent callers.
type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// Validate returns nil when content satisfies the validator for
// componentType, or a *ValidationError otherwise.
func (r *Registry) Validate(componentType string, content section.Content) error {
	ct := ParseComponentType(componentType)
	spec, ok := specFor(ct)
	if !ok {
		return &ValidationError{ComponentType: componentType, Reason: fmt.Sprintf("unknown component type %q", componentType)}
	}
	v := validator{componentType: string(ct)}
	root := map[string]any(content)
	if root == nil {
		root = map[string]any{}
	}
	if err := v.checkFlat(root, ""); err != nil {
		return err
	}
	if err := v.checkObject(spec, root, ""); err != nil {
		return err
	}
	return nil
}

type kind int

const (
	kindString kind = iota
	kindURL
	kindNumber
	kindBool
	kindStringList
	kindObjectList
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindURL:
		return "URL"
	case kindNumber:
		return "number"
	case kindBool:
		return "boolean"
	case kindStringList:
		return "list of strings"
	case kindObjectList:
		return "list of objects"
	default:
		return "value"
	}
}

type field struct {
	name     string
	kind     kind
	required bool
	maxLen   int
	object   *objectSpec
}

type objectSpec struct {
	fields []field
}

func (s *objectSpec) lookup(name string) bool {
	for _, f := range s.fields {
		if f.name == name {
			return true
		}
	}
	return false
}

type validator struct {
	componentType string
}

func (v validator) invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{ComponentType: v.componentType, Reason: fmt.Sprintf(format, args...), FieldPath: path}
}

var contentSlotKeys = []string{"draftContent", "publishedContent", "draft_content", "published_content"}

// sectionShaped reports whether m looks like a whole section rather than a
// piece of content: it carries a content slot, or a component type together
// with a slot key or page reference.
func sectionShaped(m map[string]any) bool {
	for _, key := range contentSlotKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}
	_, camel := m["componentType"]
	_, snake := m["component_type"]
	if !camel && !snake {
		return false
	}
	for _, key := range []string{"key", "pageId", "page_id"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// checkFlat walks every nested map and list and rejects section-shaped
// objects anywhere in the payload.
func (v validator) checkFlat(value any, path string) *ValidationError {
	switch typed := value.(type) {
	case section.Content:
		return v.checkFlat(map[string]any(typed), path)
	case map[string]any:
		if sectionShaped(typed) {
			return v.invalid(path, "content must not embed a section object")
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := v.checkFlat(typed[key], joinPath(path, key)); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range typed {
			if err := v.checkFlat(item, indexPath(path, i)); err != nil {
				return err
			}
		}
	case []map[string]any:
		for i, item := range typed {
			if err := v.checkFlat(item, indexPath(path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v validator) checkObject(spec *objectSpec, obj map[string]any, path string) *ValidationError {
	for _, f := range spec.fields {
		fieldPath := joinPath(path, f.name)
		value, present := obj[f.name]
		if !present || value == nil {
			if f.required {
				return v.invalid(fieldPath, "field is required")
			}
			continue
		}
		if err := v.checkField(f, value, fieldPath); err != nil {
			return err
		}
	}

	unknown := make([]string, 0)
	for key := range obj {
		if !spec.lookup(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return v.invalid(joinPath(path, unknown[0]), "unknown field")
	}
	return nil
}

func (v validator) checkField(f field, value any, path string) *ValidationError {
	switch f.kind {
	case kindString, kindURL:
		s, ok := value.(string)
		if !ok {
			return v.invalid(path, "expected %s", f.kind)
		}
		if f.required && strings.TrimSpace(s) == "" {
			return v.invalid(path, "field is required")
		}
		if f.maxLen > 0 && utf8.RuneCountInString(s) > f.maxLen {
			return v.invalid(path, "must be at most %d characters", f.maxLen)
		}
		if f.kind == kindURL && s != "" && !validURL(s) {
			return v.invalid(path, "expected an absolute http(s) URL or a site-relative path")
		}
	case kindNumber:
		if !isNumber(value) {
			return v.invalid(path, "expected number")
		}
	case kindBool:
		if _, ok := value.(bool); !ok {
			return v.invalid(path, "expected boolean")
		}
	case kindStringList:
		items, ok := asList(value)
		if !ok {
			return v.invalid(path, "expected %s", f.kind)
		}
		if f.required && len(items) == 0 {
			return v.invalid(path, "must not be empty")
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return v.invalid(indexPath(path, i), "expected string")
			}
		}
	case kindObjectList:
		items, ok := asList(value)
		if !ok {
			return v.invalid(path, "expected %s", f.kind)
		}
		if f.required && len(items) == 0 {
			return v.invalid(path, "must not be empty")
		}
		for i, item := range items {
			obj, ok := asObject(item)
			if !ok {
				return v.invalid(indexPath(path, i), "expected object")
			}
			if err := v.checkObject(f.object, obj, indexPath(path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func asList(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func asObject(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case section.Content:
		return map[string]any(typed), true
	default:
		return nil, false
	}
}

func isNumber(value any) bool {
	switch typed := value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := typed.Float64()
		return err == nil
	default:
		return false
	}
}

func validURL(raw string) bool {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
