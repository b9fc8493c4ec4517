package graph

import (
	"strings"

	"github.com/goplus/llpm/recipe"
)

// Traits describe what a consumer gets from a dependency.
type Traits struct {
	Headers bool `json:"headers"`
	Libs    bool `json:"libs"`
	Run     bool `json:"run"`
	Build   bool `json:"build"`
	Visible bool `json:"visible"`

	Force    bool `json:"force,omitempty"`
	Override bool `json:"override,omitempty"`

	TransitiveHeaders bool `json:"transitive_headers,omitempty"`
	TransitiveLibs    bool `json:"transitive_libs,omitempty"`

	Direct bool `json:"direct"`
}

func (t Traits) String() string {
	var parts []string
	for _, f := range []struct {
		name string
		on   bool
	}{
		{"headers", t.Headers}, {"libs", t.Libs}, {"run", t.Run},
		{"build", t.Build}, {"visible", t.Visible}, {"force", t.Force},
		{"direct", t.Direct},
	} {
		if f.on {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ",")
}

// runsWith reports whether a package of type t is needed at run time.
func runsWith(t recipe.Type) bool {
	switch t {
	case recipe.SharedLibrary, recipe.Application, recipe.Unknown:
		return true
	}
	return false
}

// DirectTraits returns the traits of the edge created by req towards a
// dependency of type dep. Explicit trait settings of the requirement win
// over the defaults derived from the type.
func DirectTraits(req *recipe.Requirement, dep recipe.Type) Traits {
	t := Traits{
		Visible:           true,
		Direct:            true,
		Force:             req.Traits.Force,
		Override:          req.Traits.Override,
		TransitiveHeaders: req.Traits.TransitiveHeaders,
		TransitiveLibs:    req.Traits.TransitiveLibs,
	}
	switch {
	case req.Tool:
		t.Build, t.Run, t.Visible = true, true, false
	case dep == recipe.HeaderLibrary:
		t.Headers = true
	case dep == recipe.Application:
		t.Run = true
	default:
		t.Headers, t.Libs, t.Run = true, true, runsWith(dep)
	}
	if v := req.Traits.Headers; v != nil {
		t.Headers = *v
	}
	if v := req.Traits.Libs; v != nil {
		t.Libs = *v
	}
	if v := req.Traits.Run; v != nil {
		t.Run = *v
	}
	if v := req.Traits.Visible; v != nil {
		t.Visible = *v
	}
	return t
}

// Propagate returns what the consumer of a mid package of type mid sees
// of an upstream package reached through the edge up, or false when the
// upstream does not propagate. down is the edge from the consumer to
// mid.
//
//	mid → upstream           headers             libs             run
//	static → static          true                true             up.Run
//	static → shared          transitive_headers  true             true
//	shared → static          transitive_headers  transitive_libs  false
//	shared → shared          transitive_headers  transitive_libs  true
//	header-only → any        true                false            false
//	any → tool               false               false            true
//	other → any              transitive_headers  transitive_libs  up.Run
func Propagate(down Traits, mid recipe.Type, up Traits, upType recipe.Type) (Traits, bool) {
	if !up.Visible && !up.Build {
		return Traits{}, false
	}
	t := Traits{Visible: up.Visible && down.Visible, Force: up.Force}
	switch {
	case up.Build:
		// Tools of a dependency are never seen by its consumers, except
		// through a consumer tool edge which needs them to run.
		if !down.Build {
			return Traits{}, false
		}
		t.Run = true
	case mid == recipe.HeaderLibrary:
		t.Headers = up.Headers
	case mid == recipe.StaticLibrary && upType == recipe.StaticLibrary:
		t.Headers, t.Libs, t.Run = up.Headers, up.Libs, up.Run
	case mid == recipe.StaticLibrary && upType == recipe.SharedLibrary:
		t.Headers, t.Libs, t.Run = up.TransitiveHeaders, true, true
	case mid == recipe.SharedLibrary:
		t.Headers, t.Libs, t.Run = up.TransitiveHeaders, up.TransitiveLibs, upType != recipe.StaticLibrary && up.Run
	default:
		t.Headers, t.Libs, t.Run = up.TransitiveHeaders, up.TransitiveLibs, up.Run
	}
	t.TransitiveHeaders = up.TransitiveHeaders
	t.TransitiveLibs = up.TransitiveLibs
	if down.Build {
		// A tool's dependencies only matter to run the tool.
		t.Headers, t.Libs, t.Build, t.Visible = false, false, true, false
	}
	return t, true
}

// Merge combines what two paths to the same dependency expose.
func (t Traits) Merge(o Traits) Traits {
	t.Headers = t.Headers || o.Headers
	t.Libs = t.Libs || o.Libs
	t.Run = t.Run || o.Run
	t.Visible = t.Visible || o.Visible
	t.Build = t.Build && o.Build
	t.Force = t.Force || o.Force
	t.Direct = t.Direct || o.Direct
	t.TransitiveHeaders = t.TransitiveHeaders || o.TransitiveHeaders
	t.TransitiveLibs = t.TransitiveLibs || o.TransitiveLibs
	return t
}
