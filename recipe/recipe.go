package recipe

import (
	"fmt"
	"time"

	"github.com/goplus/llpm/pkgs/ref"
)

// Type is the kind of artifact a package produces.
type Type string

const (
	Unknown       Type = "unknown"
	Library       Type = "library"
	StaticLibrary Type = "static-library"
	SharedLibrary Type = "shared-library"
	HeaderLibrary Type = "header-library"
	Application   Type = "application"
	BuildScripts  Type = "build-scripts"
)

// Method names a lifecycle hook.
type Method string

const (
	Configure    Method = "configure"
	Requirements Method = "requirements"
	Validate     Method = "validate"
	PackageID    Method = "package_id"
	Build        Method = "build"
	Package      Method = "package"
	PackageInfo  Method = "package_info"
)

// Definition is everything a recipe declares: its identity, schema,
// static requirements and lifecycle hooks.
type Definition struct {
	Name    string
	Version string
	User    string
	Channel string

	PackageType    Type
	Settings       []string
	Options        map[string][]string
	DefaultOptions map[string]string
	Requires       []*Requirement
	Alias          string
	RevisionMode   string
	ExportSources  []string

	onConfigure   func(cfg *Config)
	onRequire     func(cfg *Config, deps *Deps)
	onValidate    func(cfg *Config) error
	onPackageID   func(info *Info)
	onBuild       func(ctx *BuildContext) error
	onPackage     func(ctx *BuildContext) error
	onPackageInfo func(cfg *Config, info *CppInfo)
}

// Has reports whether the recipe registered a hook for m.
func (d *Definition) Has(m Method) bool {
	switch m {
	case Configure:
		return d.onConfigure != nil
	case Requirements:
		return d.onRequire != nil
	case Validate:
		return d.onValidate != nil
	case PackageID:
		return d.onPackageID != nil
	case Build:
		return d.onBuild != nil
	case Package:
		return d.onPackage != nil
	case PackageInfo:
		return d.onPackageInfo != nil
	}
	return false
}

// Context is what a lifecycle hook is invoked with. Each method reads
// the fields it needs: Config for configure, requirements, validate and
// package_info; Deps for requirements; Info for package_id; Build for
// build and package; CppInfo for package_info.
type Context struct {
	Config  *Config
	Deps    *Deps
	Info    *Info
	Build   *BuildContext
	CppInfo *CppInfo
}

// Call invokes hook m with ctx. Missing hooks are no-ops. A panic in
// recipe code is returned as an error.
func (d *Definition) Call(m Method, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", m, r)
		}
	}()
	switch m {
	case Configure:
		if d.onConfigure != nil {
			d.onConfigure(ctx.Config)
		}
	case Requirements:
		if d.onRequire != nil {
			d.onRequire(ctx.Config, ctx.Deps)
		}
	case Validate:
		if d.onValidate != nil {
			return d.onValidate(ctx.Config)
		}
	case PackageID:
		if d.onPackageID != nil {
			d.onPackageID(ctx.Info)
		}
	case Build:
		if d.onBuild != nil {
			return d.onBuild(ctx.Build)
		}
	case Package:
		if d.onPackage != nil {
			return d.onPackage(ctx.Build)
		}
	case PackageInfo:
		if d.onPackageInfo != nil {
			d.onPackageInfo(ctx.Config, ctx.CppInfo)
		}
	default:
		return fmt.Errorf("unknown recipe method %q", m)
	}
	return nil
}

// Recipe is a loaded recipe: the evaluated definition bound to the
// reference and revision it was loaded as. It is immutable once loaded.
type Recipe struct {
	Ref       ref.Reference // carries RRev except for consumers
	Path      string        // recipe file
	Timestamp time.Time
	Remote    string // remote the recipe came from, empty when local

	*Definition
}

// IsAlias reports whether the recipe only points at another reference.
func (r *Recipe) IsAlias() bool {
	return r.Definition.Alias != ""
}

// ResolveType returns the package type after options are known: a
// "library" becomes shared or static depending on the shared option.
func ResolveType(t Type, options *Values) Type {
	if t == "" {
		t = Unknown
	}
	if t != Library {
		return t
	}
	if options != nil && options.Get("shared") == "True" {
		return SharedLibrary
	}
	return StaticLibrary
}
