// Package options resolves the option values of a package from its own
// defaults, the demands of its consumers and the profile.
package options

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/recipe"
)

// Assignment is one "pattern:name=value" entry. An empty Pattern scopes
// the assignment to the consumer, like "&".
type Assignment struct {
	Pattern string
	Name    string
	Value   string
}

// ParseAssignment parses "name=value" or "pattern:name=value".
func ParseAssignment(s string) (Assignment, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return Assignment{}, fmt.Errorf("invalid option %q: missing '='", s)
	}
	var a Assignment
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		a.Pattern, key = strings.TrimSpace(key[:i]), key[i+1:]
		if a.Pattern == "" {
			return Assignment{}, fmt.Errorf("invalid option %q: empty pattern", s)
		}
	}
	a.Name, a.Value = strings.TrimSpace(key), strings.TrimSpace(value)
	if a.Name == "" {
		return Assignment{}, fmt.Errorf("invalid option %q: empty name", s)
	}
	return a, nil
}

// Key returns "pattern:name", or name when unscoped.
func (a Assignment) Key() string {
	if a.Pattern == "" {
		return a.Name
	}
	return a.Pattern + ":" + a.Name
}

func (a Assignment) String() string {
	return a.Key() + "=" + a.Value
}

// Applies reports whether a targets the package r.
func (a Assignment) Applies(r ref.Reference, isConsumer bool) bool {
	if a.Pattern == "" {
		return isConsumer
	}
	return r.Matches(a.Pattern, isConsumer)
}

// Exact reports whether a names r without wildcards. Unknown options in
// exact assignments are errors; pattern assignments skip packages that
// do not declare the option.
func (a Assignment) Exact(r ref.Reference, isConsumer bool) bool {
	switch a.Pattern {
	case "", "&":
		return isConsumer
	case r.Name, r.Name + "/" + r.Version:
		return true
	}
	return false
}

// Scoped returns the assignments of defaults that carry a pattern: the
// defaults a recipe imposes on its dependencies.
func Scoped(defaults map[string]string) []Assignment {
	var out []Assignment
	for _, k := range slices.Sorted(maps.Keys(defaults)) {
		if i := strings.LastIndexByte(k, ':'); i > 0 {
			out = append(out, Assignment{Pattern: k[:i], Name: k[i+1:], Value: defaults[k]})
		}
	}
	return out
}

// Input gathers everything that decides the options of one package.
type Input struct {
	Ref        ref.Reference
	IsConsumer bool
	Schema     map[string][]string
	Defaults   map[string]string // own defaults; scoped keys are ignored
	Downstream []Assignment      // consumer demands, nearest consumer first
	Profile    []Assignment
}

// Result is the outcome of Resolve.
type Result struct {
	Values *recipe.Values
	// Explicit holds the values demanded by consumers or the profile, as
	// opposed to defaults. Only explicit demands can conflict.
	Explicit map[string]string
}

// Resolve applies, from lowest to highest priority: own defaults,
// downstream demands from the nearest consumer to the root, profile
// pattern assignments by ascending pattern length, and profile
// assignments naming the package exactly. Undeclared options named
// exactly and inadmissible values are errs.InvalidConfig.
func Resolve(in Input) (Result, error) {
	res := Result{Values: recipe.NewOptions(in.Schema), Explicit: map[string]string{}}
	label := in.Ref.String()
	for _, k := range slices.Sorted(maps.Keys(in.Defaults)) {
		v := in.Defaults[k]
		if strings.ContainsRune(k, ':') || v == "" {
			continue
		}
		if err := res.Values.Set(k, v); err != nil {
			return res, errs.Wrap(errs.InvalidConfig, label, fmt.Errorf("default: %w", err))
		}
	}
	apply := func(a Assignment) error {
		if !a.Applies(in.Ref, in.IsConsumer) {
			return nil
		}
		if !res.Values.Declared(a.Name) {
			if a.Exact(in.Ref, in.IsConsumer) {
				return errs.Wrap(errs.InvalidConfig, label, res.Values.Check(a.Name, a.Value))
			}
			return nil
		}
		if err := res.Values.Set(a.Name, a.Value); err != nil {
			return errs.Wrap(errs.InvalidConfig, label, fmt.Errorf("%s: %w", a, err))
		}
		res.Explicit[a.Name] = a.Value
		return nil
	}
	for _, a := range in.Downstream {
		if err := apply(a); err != nil {
			return res, err
		}
	}
	var patterns, exact []Assignment
	for _, a := range in.Profile {
		if a.Exact(in.Ref, in.IsConsumer) {
			exact = append(exact, a)
		} else {
			patterns = append(patterns, a)
		}
	}
	slices.SortStableFunc(patterns, func(a, b Assignment) int {
		return cmp.Compare(len(a.Pattern), len(b.Pattern))
	})
	for _, a := range append(patterns, exact...) {
		if err := apply(a); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Conflict returns the first option, in key order, that demands asks
// for explicitly with a value other than the one got holds. Values of
// ANY options conflict unless the strings are equal.
func Conflict(got *recipe.Values, demands map[string]string) (key string, ok bool) {
	for _, k := range slices.Sorted(maps.Keys(demands)) {
		if v, set := got.Lookup(k); !set || v != demands[k] {
			return k, true
		}
	}
	return "", false
}
