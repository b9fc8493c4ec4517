package profile

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goplus/llpm/internal/errs"
)

//go:embed settings.yml
var defaultSchema []byte

const anyValue = "ANY"

// Schema describes the admissible settings and values.
type Schema struct {
	fields map[string]*field
	order  []string
}

type field struct {
	name     string
	any      bool
	optional bool
	values   []string
	sub      map[string]*Schema // value → settings nested below it
}

func (f *field) allows(value string) bool {
	if value == "" {
		return f.optional
	}
	return f.any || slices.Contains(f.values, value)
}

// DefaultSchema returns the built-in settings schema.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchema)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSchema parses a YAML settings schema.
func ParseSchema(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.Parse, "", fmt.Errorf("settings schema: %w", err))
	}
	if len(doc.Content) == 0 {
		return &Schema{fields: map[string]*field{}}, nil
	}
	return parseSchema(doc.Content[0])
}

func parseSchema(n *yaml.Node) (*Schema, error) {
	s := &Schema{fields: map[string]*field{}}
	if n.Kind != yaml.MappingNode {
		return nil, errs.New(errs.Parse, "", "settings schema: line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		f, err := parseField(name, n.Content[i+1])
		if err != nil {
			return nil, err
		}
		s.fields[name] = f
		s.order = append(s.order, name)
	}
	return s, nil
}

func parseField(name string, n *yaml.Node) (*field, error) {
	f := &field{name: name}
	add := func(v *yaml.Node) {
		switch {
		case v.ShortTag() == "!!null":
			f.optional = true
		case v.Value == anyValue:
			f.any = true
		default:
			f.values = append(f.values, v.Value)
		}
	}
	switch n.Kind {
	case yaml.SequenceNode:
		for _, v := range n.Content {
			add(v)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			add(k)
			if v.Kind == yaml.MappingNode {
				sub, err := parseSchema(v)
				if err != nil {
					return nil, err
				}
				if f.sub == nil {
					f.sub = map[string]*Schema{}
				}
				f.sub[k.Value] = sub
			}
		}
	case yaml.ScalarNode:
		f.any = true
	default:
		return nil, errs.New(errs.Parse, "", "settings schema: line %d: bad definition of %s", n.Line, name)
	}
	return f, nil
}

// Fields returns the top-level setting names in declaration order.
func (s *Schema) Fields() []string {
	return slices.Clone(s.order)
}

// lookup finds the field of a dotted key such as "compiler.version",
// which lives below the value settings has for "compiler".
func (s *Schema) lookup(key string, settings map[string]string) (*field, error) {
	parts := strings.Split(key, ".")
	cur := s
	for i, p := range parts {
		f, ok := cur.fields[p]
		if !ok {
			return nil, fmt.Errorf("setting %q does not exist", key)
		}
		if i == len(parts)-1 {
			return f, nil
		}
		parent := strings.Join(parts[:i+1], ".")
		pv := settings[parent]
		if pv == "" {
			return nil, fmt.Errorf("setting %q requires %q to be set", key, parent)
		}
		cur = f.sub[pv]
		if cur == nil {
			return nil, fmt.Errorf("setting %q does not exist for %s=%s", key, parent, pv)
		}
	}
	return nil, fmt.Errorf("setting %q does not exist", key)
}

// Validate checks that every key exists and holds an admissible value.
// Failures are errs.InvalidConfig.
func (s *Schema) Validate(settings map[string]string) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		f, err := s.lookup(k, settings)
		if err != nil {
			return errs.Wrap(errs.InvalidConfig, "", err)
		}
		if v := settings[k]; !f.allows(v) {
			return errs.New(errs.InvalidConfig, "", "invalid setting %s=%q, possible values are %v", k, v, f.values)
		}
	}
	return nil
}

// Constrain keeps the settings whose top-level name is declared.
func Constrain(settings map[string]string, declared []string) map[string]string {
	out := make(map[string]string)
	for k, v := range settings {
		top, _, _ := strings.Cut(k, ".")
		if slices.Contains(declared, top) {
			out[k] = v
		}
	}
	return out
}

// Preprocess fills settings derived from others: msvc's runtime_type
// follows build_type and runtime defaults to dynamic.
func Preprocess(settings map[string]string) {
	if settings["compiler"] != "msvc" {
		return
	}
	if _, ok := settings["compiler.runtime"]; !ok {
		settings["compiler.runtime"] = "dynamic"
	}
	if _, ok := settings["compiler.runtime_type"]; !ok {
		if settings["build_type"] == "Debug" {
			settings["compiler.runtime_type"] = "Debug"
		} else {
			settings["compiler.runtime_type"] = "Release"
		}
	}
}
