// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recipe

import (
	"github.com/qiniu/x/gsh"
)

const GopPackage = true

// -----------------------------------------------------------------------------

// RecipeApp represents a package recipe. A recipe file named
// "<name>_recipe.gox" is compiled into a class embedding RecipeApp; its
// top-level statements declare the package and register lifecycle hooks.
type RecipeApp struct {
	gsh.App

	def Definition
}

func (p *RecipeApp) app() *gsh.App {
	return &p.App
}

// Definition returns what the recipe declared so far.
func (p *RecipeApp) Definition() *Definition {
	return &p.def
}

// Name sets the package name.
func (p *RecipeApp) Name(name string) {
	p.def.Name = name
}

// Version sets the package version.
func (p *RecipeApp) Version(ver string) {
	p.def.Version = ver
}

// User sets the user part of the reference.
func (p *RecipeApp) User(user string) {
	p.def.User = user
}

// Channel sets the channel part of the reference.
func (p *RecipeApp) Channel(channel string) {
	p.def.Channel = channel
}

// PackageType declares what the package produces, such as "library",
// "static-library", "shared-library", "header-library" or "application".
func (p *RecipeApp) PackageType(typ string) {
	p.def.PackageType = Type(typ)
}

// Settings declares the top-level settings the binary depends on.
func (p *RecipeApp) Settings(keys ...string) {
	p.def.Settings = append(p.def.Settings, keys...)
}

// Option declares an option with its admissible values and default.
// The value "ANY" admits arbitrary strings.
func (p *RecipeApp) Option(name string, values []string, def string) {
	if p.def.Options == nil {
		p.def.Options = make(map[string][]string)
	}
	p.def.Options[name] = values
	p.DefaultOption(name, def)
}

// DefaultOption sets a default option value. key is either an own option
// name or "pattern:option" to set a default on dependencies.
func (p *RecipeApp) DefaultOption(key, value string) {
	if p.def.DefaultOptions == nil {
		p.def.DefaultOptions = make(map[string]string)
	}
	p.def.DefaultOptions[key] = value
}

// Requires declares regular requirements.
func (p *RecipeApp) Requires(refs ...string) {
	for _, r := range refs {
		p.def.Requires = append(p.def.Requires, &Requirement{Ref: r})
	}
}

// ToolRequires declares tool requirements, which live in the build context.
func (p *RecipeApp) ToolRequires(refs ...string) {
	for _, r := range refs {
		p.def.Requires = append(p.def.Requires, newToolRequirement(r))
	}
}

// BuildRequires is ToolRequires.
func (p *RecipeApp) BuildRequires(refs ...string) {
	p.ToolRequires(refs...)
}

// Alias turns the recipe into an alias of target.
func (p *RecipeApp) Alias(target string) {
	p.def.Alias = target
}

// RevisionMode selects how the recipe revision is computed: "hash" (the
// default) digests the exported files, "scm" uses the commit of the
// recipe's repository.
func (p *RecipeApp) RevisionMode(mode string) {
	p.def.RevisionMode = mode
}

// ExportSources declares glob patterns, relative to the recipe
// directory, of the sources exported along with the recipe.
func (p *RecipeApp) ExportSources(patterns ...string) {
	p.def.ExportSources = append(p.def.ExportSources, patterns...)
}

// -----------------------------------------------------------------------------

// OnConfigure registers the configure hook. Options may be changed and
// settings removed only here.
func (p *RecipeApp) OnConfigure(f func(cfg *Config)) {
	p.def.onConfigure = f
}

// OnRequire registers the hook computing dynamic requirements.
func (p *RecipeApp) OnRequire(f func(cfg *Config, deps *Deps)) {
	p.def.onRequire = f
}

// OnValidate registers the validate hook. Returning an error marks the
// configuration invalid.
func (p *RecipeApp) OnValidate(f func(cfg *Config) error) {
	p.def.onValidate = f
}

// OnPackageID registers the hook customizing the package id.
func (p *RecipeApp) OnPackageID(f func(info *Info)) {
	p.def.onPackageID = f
}

// OnBuild event is used to instruct the recipe to compile the package.
func (p *RecipeApp) OnBuild(f func(ctx *BuildContext) error) {
	p.def.onBuild = f
}

// OnPackage event copies build artifacts into ctx.PackageDir.
func (p *RecipeApp) OnPackage(f func(ctx *BuildContext) error) {
	p.def.onPackage = f
}

// OnPackageInfo event describes the package to its consumers.
func (p *RecipeApp) OnPackageInfo(f func(cfg *Config, info *CppInfo)) {
	p.def.onPackageInfo = f
}

// -----------------------------------------------------------------------------

// Gopt_RecipeApp_Main is main entry of this classfile.
func Gopt_RecipeApp_Main(this interface {
	app() *gsh.App
	MainEntry()
}) {
	this.MainEntry()
	gsh.InitApp(this.app())
}
