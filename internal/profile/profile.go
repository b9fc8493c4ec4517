// Package profile loads and validates configuration profiles: settings,
// options, configuration and tool requirements applied to a graph.
package profile

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/options"
	"github.com/goplus/llpm/pkgs/ref"
)

// Profile is an immutable configuration vector. Keys of the TOML
// sections that contain ':' are scoped to the packages matching the
// pattern before the colon.
type Profile struct {
	Name string

	Settings        map[string]string
	PackageSettings map[string]map[string]string // pattern → settings
	Options         []options.Assignment
	Conf            map[string]string
	ToolRequires    map[string][]string // pattern → references
}

// file is the TOML layout of a profile.
type file struct {
	Include      []string            `toml:"include,omitempty"`
	Settings     map[string]any      `toml:"settings"`
	Options      map[string]any      `toml:"options"`
	Conf         map[string]any      `toml:"conf"`
	ToolRequires map[string][]string `toml:"tool_requires"`
}

// New returns an empty profile.
func New(name string) *Profile {
	return &Profile{
		Name:            name,
		Settings:        map[string]string{},
		PackageSettings: map[string]map[string]string{},
		Conf:            map[string]string{},
		ToolRequires:    map[string][]string{},
	}
}

// Load reads a TOML profile. Files listed under "include" are loaded
// first, relative to the profile, and overridden by it.
func Load(path string) (*Profile, error) {
	return load(path, nil)
}

func load(path string, seen []string) (*Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if slices.Contains(seen, abs) {
		return nil, errs.New(errs.Parse, "", "profile %s includes itself", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap(errs.Parse, "", fmt.Errorf("profile %s: %w", path, err))
	}
	p := New(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, inc := range f.Include {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		base, err := load(inc, append(seen, abs))
		if err != nil {
			return nil, err
		}
		p.Merge(base)
	}
	own, err := fromFile(p.Name, &f)
	if err != nil {
		return nil, err
	}
	p.Merge(own)
	return p, nil
}

// Parse parses a TOML profile held in memory. Includes are not allowed.
func Parse(name string, data []byte) (*Profile, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap(errs.Parse, "", fmt.Errorf("profile %s: %w", name, err))
	}
	if len(f.Include) > 0 {
		return nil, errs.New(errs.Parse, "", "profile %s: include needs a file", name)
	}
	return fromFile(name, &f)
}

func fromFile(name string, f *file) (*Profile, error) {
	p := New(name)
	for k, v := range flatten(f.Settings) {
		if pattern, key, ok := strings.Cut(k, ":"); ok {
			if p.PackageSettings[pattern] == nil {
				p.PackageSettings[pattern] = map[string]string{}
			}
			p.PackageSettings[pattern][key] = v
			continue
		}
		p.Settings[k] = v
	}
	opts := flatten(f.Options)
	for _, k := range slices.Sorted(maps.Keys(opts)) {
		a, err := options.ParseAssignment(k + "=" + opts[k])
		if err != nil {
			return nil, errs.Wrap(errs.Parse, "", fmt.Errorf("profile %s: %w", name, err))
		}
		p.Options = append(p.Options, a)
	}
	maps.Copy(p.Conf, flatten(f.Conf))
	for pattern, refs := range f.ToolRequires {
		for _, r := range refs {
			if _, err := ref.Parse(r); err != nil {
				return nil, errs.Wrap(errs.Parse, "", fmt.Errorf("profile %s: tool_requires: %w", name, err))
			}
		}
		p.ToolRequires[pattern] = slices.Clone(refs)
	}
	return p, nil
}

// flatten turns nested tables into dotted keys and scalars into strings.
func flatten(m map[string]any) map[string]string {
	out := map[string]string{}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			switch v := v.(type) {
			case map[string]any:
				walk(k, v)
			case bool:
				if v {
					out[k] = "True"
				} else {
					out[k] = "False"
				}
			default:
				out[k] = fmt.Sprint(v)
			}
		}
	}
	walk("", m)
	return out
}

// Merge overlays o onto p.
func (p *Profile) Merge(o *Profile) {
	maps.Copy(p.Settings, o.Settings)
	for pattern, s := range o.PackageSettings {
		if p.PackageSettings[pattern] == nil {
			p.PackageSettings[pattern] = map[string]string{}
		}
		maps.Copy(p.PackageSettings[pattern], s)
	}
	p.Options = append(p.Options, o.Options...)
	maps.Copy(p.Conf, o.Conf)
	for pattern, refs := range o.ToolRequires {
		p.ToolRequires[pattern] = slices.Clone(refs)
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := New(p.Name)
	c.Merge(p)
	return c
}

// Validate checks every setting against schema.
func (p *Profile) Validate(schema *Schema) error {
	if err := schema.Validate(p.Settings); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	for pattern, s := range p.PackageSettings {
		merged := maps.Clone(p.Settings)
		maps.Copy(merged, s)
		if err := schema.Validate(merged); err != nil {
			return fmt.Errorf("profile %s [%s]: %w", p.Name, pattern, err)
		}
	}
	return nil
}

// SettingsFor returns the settings of r: the profile settings overlaid
// with every matching package-scoped block. Patterns apply by ascending
// length so longer ones win; blocks naming the package exactly apply
// last.
func (p *Profile) SettingsFor(r ref.Reference, isConsumer bool) map[string]string {
	out := maps.Clone(p.Settings)
	var patterns, exact []string
	for pattern := range p.PackageSettings {
		switch {
		case pattern == r.Name || pattern == r.Name+"/"+r.Version:
			exact = append(exact, pattern)
		case r.Matches(pattern, isConsumer):
			patterns = append(patterns, pattern)
		}
	}
	byLength := func(a, b string) int {
		if c := len(a) - len(b); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	}
	slices.SortFunc(patterns, byLength)
	slices.SortFunc(exact, byLength)
	for _, pattern := range append(patterns, exact...) {
		maps.Copy(out, p.PackageSettings[pattern])
	}
	return out
}

// ToolRequiresFor returns the tool requirements applying to r, in
// pattern order, without duplicates and never r itself.
func (p *Profile) ToolRequiresFor(r ref.Reference, isConsumer bool) []string {
	var out []string
	for _, pattern := range slices.Sorted(maps.Keys(p.ToolRequires)) {
		if !r.Matches(pattern, isConsumer) {
			continue
		}
		for _, tr := range p.ToolRequires[pattern] {
			t, err := ref.Parse(tr)
			if err != nil || t.Name == r.Name || slices.Contains(out, tr) {
				continue
			}
			out = append(out, tr)
		}
	}
	return out
}

// Marshal renders p as TOML.
func (p *Profile) Marshal() ([]byte, error) {
	f := file{
		Settings:     map[string]any{},
		Options:      map[string]any{},
		Conf:         map[string]any{},
		ToolRequires: p.ToolRequires,
	}
	for k, v := range p.Settings {
		f.Settings[k] = v
	}
	for pattern, s := range p.PackageSettings {
		for k, v := range s {
			f.Settings[pattern+":"+k] = v
		}
	}
	for _, a := range p.Options {
		f.Options[a.Key()] = a.Value
	}
	for k, v := range p.Conf {
		f.Conf[k] = v
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Pair returns the host and build profiles; a missing build profile is
// the host profile.
func Pair(host, build *Profile) (*Profile, *Profile) {
	if host == nil {
		host = New("default")
	}
	if build == nil {
		build = host
	}
	return host, build
}
