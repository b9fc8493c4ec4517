// Copyright 2024 The llpm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packageid computes package ids: the SHA-1 of a canonical text
// listing the settings, options and direct requirements of a node, each
// requirement projected according to a mode.
package packageid

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/loader"
	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/pkgs/version"
	"github.com/goplus/llpm/recipe"
)

// Modes are the default modes of link and tool requirements.
type Modes struct {
	Default recipe.Mode
	Build   recipe.Mode
}

// DefaultModes returns semver_mode for link requirements and
// unrelated_mode for tools.
func DefaultModes() Modes {
	return Modes{Default: recipe.SemverMode, Build: recipe.UnrelatedMode}
}

// Validate reports unknown modes as errs.InvalidConfig.
func (m Modes) Validate() error {
	for _, mode := range []recipe.Mode{m.Default, m.Build} {
		if !mode.Valid() {
			return errs.New(errs.InvalidConfig, "", "unknown package id mode %q", mode)
		}
	}
	return nil
}

// Project returns what of r enters an id under mode m, or "" when
// nothing does.
func Project(r ref.Reference, m recipe.Mode) string {
	v := version.New(r.Version)
	full := ref.Reference{Name: r.Name, Version: r.Version, User: r.User, Channel: r.Channel}
	switch m {
	case recipe.UnrelatedMode:
		return ""
	case recipe.SemverMode:
		return r.Name + "/" + v.Stable()
	case recipe.MinorMode:
		return r.Name + "/" + v.MajorMinor() + ".Z"
	case recipe.PatchMode:
		return r.Name + "/" + v.Patch()
	case recipe.FullVersionMode:
		return r.Name + "/" + r.Version
	case recipe.FullRecipeMode:
		return full.String()
	case recipe.FullPackageMode:
		full.PkgID = r.PkgID
		return full.String()
	case recipe.RecipeRevisionMode:
		full.RRev, full.PkgID = r.RRev, r.PkgID
		return full.String()
	case recipe.PackageRevisionMode:
		full.RRev, full.PkgID, full.PRev = r.RRev, r.PkgID, r.PRev
		return full.String()
	}
	return r.Name + "/" + r.Version
}

// known reports whether r carries what mode m projects. Package ids and
// package revisions of upstream nodes are only known later.
func known(r ref.Reference, m recipe.Mode) bool {
	switch m {
	case recipe.FullPackageMode, recipe.RecipeRevisionMode:
		return r.PkgID != ""
	case recipe.PackageRevisionMode:
		return r.PkgID != "" && r.PRev != ""
	}
	return true
}

// Text renders info as the conaninfo.txt stored with a package.
func Text(info *recipe.Info) string {
	var b strings.Builder
	section := func(name string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&b, "[%s]\n", name)
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	pairs := func(v *recipe.Values) []string {
		if v == nil {
			return nil
		}
		var out []string
		for _, k := range v.Keys() {
			out = append(out, k+"="+v.Get(k))
		}
		return out
	}
	var requires, build []string
	for _, r := range info.Requires {
		p := Project(r.Ref, r.Mode)
		if p == "" {
			continue
		}
		if r.Build {
			build = append(build, p)
		} else {
			requires = append(requires, p)
		}
	}
	slices.Sort(requires)
	slices.Sort(build)
	section("settings", pairs(info.Settings))
	section("options", pairs(info.Options))
	section("requires", requires)
	section("build_requires", build)
	return b.String()
}

// Hash returns the id of info.
func Hash(info *recipe.Info) string {
	sum := sha1.Sum([]byte(Text(info)))
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of Compute.
type Result struct {
	ID string
	// Unknown is set while a requirement's mode needs a package id or
	// revision upstream does not have yet. ID is empty then.
	Unknown     bool
	Compatibles []string // ids of the compatible variants, in order
}

// Hasher computes ids, running the package_id hook of recipes.
type Hasher struct {
	loader *loader.Loader
	modes  Modes
}

// New returns a hasher using modes for requirements whose mode the
// recipe leaves unset.
func New(l *loader.Loader, modes Modes) *Hasher {
	return &Hasher{loader: l, modes: modes}
}

// Info returns the id input of n before the package_id hook: its
// settings, options and direct requirements. Override edges never make
// it into the graph and so never count.
func (h *Hasher) Info(n *graph.Node) *recipe.Info {
	info := &recipe.Info{Settings: n.Settings.Clone(), Options: n.Options.Clone()}
	for _, e := range n.Deps {
		mode := h.modes.Default
		if e.Traits.Build {
			mode = h.modes.Build
		}
		info.Requires = append(info.Requires, &recipe.RequireInfo{
			Ref:   e.Dst.Ref,
			Mode:  mode,
			Build: e.Traits.Build,
		})
	}
	return info
}

// Compute runs the package_id hook on the id input of n and hashes the
// result and its compatible variants. It stores the final input in
// n.Info and, when known, the id in n.Ref.PkgID.
func (h *Hasher) Compute(n *graph.Node) (Result, error) {
	info := h.Info(n)
	if err := h.loader.Call(n.Recipe, recipe.PackageID, &recipe.Context{Info: info}); err != nil {
		return Result{}, errs.Wrap(errs.InvalidConfig, n.String(), err)
	}
	n.Info = info
	n.Ref.PkgID, n.Ref.PRev = "", ""
	for _, r := range info.Requires {
		if !r.Mode.Valid() {
			return Result{}, errs.New(errs.InvalidConfig, n.String(), "unknown package id mode %q for %s", r.Mode, r.Ref.Name)
		}
		if !known(r.Ref, r.Mode) {
			return Result{Unknown: true}, nil
		}
	}
	res := Result{ID: Hash(info)}
	for _, alt := range info.Compatibles() {
		id := Hash(alt)
		if id != res.ID && !slices.Contains(res.Compatibles, id) {
			res.Compatibles = append(res.Compatibles, id)
		}
	}
	n.Ref.PkgID = res.ID
	n.State = graph.IDComputed
	return res, nil
}
