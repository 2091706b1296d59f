package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Properties is a read-only key/value store used to resolve ${...}
// placeholders. Keys are dotted paths ("queue.name"). Environment variables
// take precedence over file values using relaxed binding: "queue.name" is
// looked up as QUEUE_NAME.
type Properties struct {
	values map[string]string

	// lookup overrides os.LookupEnv for testing.
	lookup func(string) (string, bool)
}

// NewProperties returns Properties backed by values and the process environment.
func NewProperties(values map[string]string) *Properties {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Properties{values: cp, lookup: os.LookupEnv}
}

// LoadProperties reads a YAML document from path and flattens nested maps into
// dotted keys. An empty path yields environment-only Properties.
func LoadProperties(path string) (*Properties, error) {
	if path == "" {
		return NewProperties(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}

	return ParseProperties(data)
}

// ParseProperties flattens a YAML document into Properties.
func ParseProperties(data []byte) (*Properties, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse properties: %w", err)
	}

	values := make(map[string]string)
	flatten("", doc, values)
	return NewProperties(values), nil
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flatten(join(prefix, k), child, out)
		}
	case []any:
		for i, child := range t {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(t)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Lookup returns the value for key.
func (p *Properties) Lookup(key string) (string, bool) {
	if p.lookup != nil {
		if v, ok := p.lookup(envName(key)); ok {
			return v, true
		}
	}
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the file-backed keys in sorted order.
func (p *Properties) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// envName maps a dotted key to its environment variable name.
func envName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "[", "_", "]", "")
	return strings.ToUpper(r.Replace(key))
}
