package recipe

import (
	"slices"

	"github.com/goplus/llpm/pkgs/ref"
)

// Mode selects how much of a dependency reference enters the package id
// of its consumer.
type Mode string

const (
	UnrelatedMode       Mode = "unrelated_mode"
	SemverMode          Mode = "semver_mode"
	MinorMode           Mode = "minor_mode"
	PatchMode           Mode = "patch_mode"
	FullVersionMode     Mode = "full_version_mode"
	FullRecipeMode      Mode = "full_recipe_mode"
	FullPackageMode     Mode = "full_package_mode"
	RecipeRevisionMode  Mode = "recipe_revision_mode"
	PackageRevisionMode Mode = "package_revision_mode"
)

// Modes lists the recognized modes from least to most specific.
var Modes = []Mode{
	UnrelatedMode, SemverMode, MinorMode, PatchMode, FullVersionMode,
	FullRecipeMode, FullPackageMode, RecipeRevisionMode, PackageRevisionMode,
}

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return slices.Contains(Modes, m)
}

// RequireInfo is a direct dependency as seen by the package id.
type RequireInfo struct {
	Ref   ref.Reference // with RRev, PkgID and PRev when known
	Mode  Mode
	Build bool // reached through a tool requirement
}

// Info is the input of the package id. The package_id hook may change
// it: drop settings or options, or change the mode of requirements.
type Info struct {
	Settings *Values
	Options  *Values
	Requires []*RequireInfo

	compatibles []*Info
}

// Require returns the requirement named name, or nil.
func (i *Info) Require(name string) *RequireInfo {
	for _, r := range i.Requires {
		if r.Ref.Name == name {
			return r
		}
	}
	return nil
}

// SetMode applies m to every non-tool requirement.
func (i *Info) SetMode(m Mode) {
	for _, r := range i.Requires {
		if !r.Build {
			r.Mode = m
		}
	}
}

// ClearRequires removes every requirement from the id.
func (i *Info) ClearRequires() {
	i.Requires = nil
}

// Clone returns a deep copy without compatible variants.
func (i *Info) Clone() *Info {
	c := &Info{Settings: i.Settings.Clone(), Options: i.Options.Clone()}
	for _, r := range i.Requires {
		rc := *r
		c.Requires = append(c.Requires, &rc)
	}
	return c
}

// Compatible adds an alternative the binary analyzer tries, in order,
// when no binary exists for the primary id. f edits a copy of i.
func (i *Info) Compatible(f func(alt *Info)) {
	alt := i.Clone()
	f(alt)
	i.compatibles = append(i.compatibles, alt)
}

// Compatibles returns the variants added by Compatible.
func (i *Info) Compatibles() []*Info {
	return i.compatibles
}
