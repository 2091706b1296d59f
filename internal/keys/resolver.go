// Package keys resolves declared queue identifiers into literal queue names.
//
// Resolution runs in two steps:
//
//  1. ${key} and ${key:default} placeholders are replaced with values from a
//     PropertySource. Placeholders may nest, in keys as well as in values.
//  2. #{expr} segments are evaluated with expr-lang against the components of
//     a Registry. Text outside the segments is kept as is.
//
// Identifiers without placeholders pass through unchanged.
package keys

import (
	"fmt"
	"strings"

	"golang-mq-duplex/internal/domain"

	"github.com/expr-lang/expr"
)

// PropertySource supplies values for ${...} placeholders.
type PropertySource interface {
	Lookup(key string) (string, bool)
}

// MapSource is a PropertySource backed by a map.
type MapSource map[string]string

// Lookup returns m[key].
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Resolver implements ports.KeyResolver.
type Resolver struct {
	props    PropertySource
	registry *Registry
}

// New creates a Resolver. A nil registry is replaced by an empty one.
func New(props PropertySource, registry *Registry) *Resolver {
	if props == nil {
		props = MapSource(nil)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Resolver{props: props, registry: registry}
}

// Resolve runs both resolution steps on raw. It is evaluated fresh on every call.
func (r *Resolver) Resolve(raw string) (string, error) {
	s, err := r.ResolvePlaceholders(raw)
	if err != nil {
		return "", err
	}

	s, err = r.Evaluate(s)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %q resolves to an empty name", domain.ErrUnresolvedKey, raw)
	}
	return s, nil
}

// ResolvePlaceholders replaces ${...} placeholders in s.
func (r *Resolver) ResolvePlaceholders(s string) (string, error) {
	return r.replacePlaceholders(s, make(map[string]bool))
}

func (r *Resolver) replacePlaceholders(s string, visiting map[string]bool) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}

		end := closingBrace(s, start+2)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated placeholder in %q", domain.ErrUnresolvedKey, s)
		}

		val, err := r.placeholder(s[start+2:end], visiting)
		if err != nil {
			return "", err
		}

		b.WriteString(s[:start])
		b.WriteString(val)
		s = s[end+1:]
	}
}

// placeholder resolves the body of one ${...} expression.
func (r *Resolver) placeholder(body string, visiting map[string]bool) (string, error) {
	rawKey, def, hasDef := splitDefault(body)

	key, err := r.replacePlaceholders(rawKey, visiting)
	if err != nil {
		return "", err
	}

	val, ok := r.props.Lookup(key)
	if !ok {
		if !hasDef {
			return "", fmt.Errorf("%w: %s", domain.ErrUnresolvedKey, key)
		}
		return r.replacePlaceholders(def, visiting)
	}

	if visiting[key] {
		return "", fmt.Errorf("%w: circular reference to %s", domain.ErrUnresolvedKey, key)
	}
	visiting[key] = true
	defer delete(visiting, key)

	return r.replacePlaceholders(val, visiting)
}

// Evaluate replaces #{...} segments in s with their evaluated values.
func (r *Resolver) Evaluate(s string) (string, error) {
	if !strings.Contains(s, "#{") {
		return s, nil
	}

	env := r.registry.Env()

	var b strings.Builder
	for {
		start := strings.Index(s, "#{")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}

		end := closingBrace(s, start+2)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated expression in %q", domain.ErrInvalidExpression, s)
		}

		val, err := eval(strings.TrimSpace(s[start+2:end]), env)
		if err != nil {
			return "", err
		}

		b.WriteString(s[:start])
		b.WriteString(val)
		s = s[end+1:]
	}
}

func eval(code string, env map[string]any) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty expression", domain.ErrInvalidExpression)
	}

	program, err := expr.Compile(code, expr.Env(env))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrInvalidExpression, code, err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrInvalidExpression, code, err)
	}

	switch v := out.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	case nil:
		return "", fmt.Errorf("%w: %q evaluates to nil", domain.ErrInvalidExpression, code)
	default:
		return "", fmt.Errorf("%w: %q evaluates to %T", domain.ErrInvalidExpression, code, out)
	}
}

// closingBrace returns the index of the '}' closing the brace opened just
// before from, or -1.
func closingBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitDefault splits "key:default" at the first ':' outside nested braces.
func splitDefault(body string) (key, def string, ok bool) {
	depth := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ':':
			if depth == 0 {
				return body[:i], body[i+1:], true
			}
		}
	}
	return body, "", false
}
