package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type fieldType string

const (
	typeString  fieldType = "string"
	typeInteger fieldType = "integer"
	typeArray   fieldType = "array"
)

type requiredField struct {
	path string
	typ  fieldType
}

// checked in this order; the first problem wins
var requiredFields = []requiredField{
	{"server.host", typeString},
	{"server.port", typeInteger},
	{"worker.id", typeString},
	{"worker.pk", typeString},
	{"worker.schedule", typeString},
	{"worker.modules", typeArray},
}

// Validate checks that every required field exists in the parsed YAML tree
// and carries the expected type.
func Validate(root *yaml.Node) error {
	doc := resolve(root)
	if doc != nil && doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = resolve(doc.Content[0])
	}

	for _, f := range requiredFields {
		cur := doc
		for _, key := range strings.Split(f.path, ".") {
			cur = lookup(cur, key)
			if cur == nil {
				return &ConfigError{Field: f.path, Err: ErrMissing}
			}
		}
		if !hasType(cur, f.typ) {
			return &ConfigError{Field: f.path, Expected: string(f.typ)}
		}
	}
	return nil
}

func hasType(n *yaml.Node, t fieldType) bool {
	switch t {
	case typeString:
		return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
	case typeInteger:
		return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!int"
	case typeArray:
		return n.Kind == yaml.SequenceNode
	}
	return true
}

// lookup returns the value stored under key in a mapping node, or nil.
func lookup(n *yaml.Node, key string) *yaml.Node {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return resolve(n.Content[i+1])
		}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// parseModules turns the worker.modules sequence into ordered name/command
// pairs. Each entry must be a map with exactly one string value.
func parseModules(seq *yaml.Node) ([]Module, error) {
	seq = resolve(seq)
	if seq == nil {
		return nil, nil
	}
	out := make([]Module, 0, len(seq.Content))
	seen := make(map[string]int, len(seq.Content))
	for i, item := range seq.Content {
		path := fmt.Sprintf("worker.modules[%d]", i)
		item = resolve(item)
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return nil, &ConfigError{Field: path, Expected: "single-key map"}
		}
		name := strings.TrimSpace(item.Content[0].Value)
		val := resolve(item.Content[1])
		if name == "" {
			return nil, &ConfigError{Field: path, Err: fmt.Errorf("module name is empty")}
		}
		if !hasType(val, typeString) {
			return nil, &ConfigError{Field: path + "." + name, Expected: string(typeString)}
		}
		if prev, ok := seen[name]; ok {
			return nil, &ConfigError{Field: path, Err: fmt.Errorf("duplicate module %q (first at index %d)", name, prev)}
		}
		seen[name] = i
		out = append(out, Module{Name: name, Command: val.Value})
	}
	return out, nil
}
