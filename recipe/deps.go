package recipe

import "slices"

// Traits holds the trait overrides a recipe requested for a requirement.
// Nil pointers keep the default derived from the package types.
type Traits struct {
	Headers *bool
	Libs    *bool
	Run     *bool
	Visible *bool

	TransitiveHeaders bool
	TransitiveLibs    bool
	Force             bool
	Override          bool
}

// Requirement is a declared dependency.
type Requirement struct {
	Ref     string // reference, the version may be a range
	Tool    bool   // tool requirement, resolved in the build context
	Traits  Traits
	Options map[string]string // options imposed on the dependency
}

func newToolRequirement(ref string) *Requirement {
	no := false
	return &Requirement{Ref: ref, Tool: true, Traits: Traits{Visible: &no}}
}

func boolPtr(b bool) *bool {
	return &b
}

// Private hides the dependency from the consumers of the requiring package.
func (r *Requirement) Private() *Requirement {
	r.Traits.Visible = boolPtr(false)
	return r
}

// Visible sets whether the dependency propagates to consumers.
func (r *Requirement) Visible(v bool) *Requirement {
	r.Traits.Visible = boolPtr(v)
	return r
}

// Headers sets whether the requiring package uses the dependency headers.
func (r *Requirement) Headers(v bool) *Requirement {
	r.Traits.Headers = boolPtr(v)
	return r
}

// Libs sets whether the requiring package links the dependency.
func (r *Requirement) Libs(v bool) *Requirement {
	r.Traits.Libs = boolPtr(v)
	return r
}

// Run sets whether the dependency is needed at run time.
func (r *Requirement) Run(v bool) *Requirement {
	r.Traits.Run = boolPtr(v)
	return r
}

// TransitiveHeaders re-exports the dependency headers to consumers.
func (r *Requirement) TransitiveHeaders() *Requirement {
	r.Traits.TransitiveHeaders = true
	return r
}

// TransitiveLibs re-exports the dependency libraries to consumers.
func (r *Requirement) TransitiveLibs() *Requirement {
	r.Traits.TransitiveLibs = true
	return r
}

// Force makes this version win conflicts with upstream requirements.
func (r *Requirement) Force() *Requirement {
	r.Traits.Force = true
	return r
}

// Override replaces the version required by upstream packages without
// adding a dependency of its own.
func (r *Requirement) Override() *Requirement {
	r.Traits.Override = true
	return r
}

// Option imposes an option value on the dependency.
func (r *Requirement) Option(name, value string) *Requirement {
	if r.Options == nil {
		r.Options = make(map[string]string)
	}
	r.Options[name] = value
	return r
}

// Clone returns a deep copy.
func (r *Requirement) Clone() *Requirement {
	c := *r
	if r.Options != nil {
		c.Options = make(map[string]string, len(r.Options))
		for k, v := range r.Options {
			c.Options[k] = v
		}
	}
	return &c
}

// Deps collects the requirements computed by the requirements hook.
type Deps struct {
	reqs []*Requirement
}

// Require declares a regular requirement.
func (p *Deps) Require(ref string) *Requirement {
	r := &Requirement{Ref: ref}
	p.reqs = append(p.reqs, r)
	return r
}

// ToolRequire declares a tool requirement.
func (p *Deps) ToolRequire(ref string) *Requirement {
	r := newToolRequirement(ref)
	p.reqs = append(p.reqs, r)
	return r
}

// BuildRequire is ToolRequire.
func (p *Deps) BuildRequire(ref string) *Requirement {
	return p.ToolRequire(ref)
}

// Requirements returns the collected requirements.
func (p *Deps) Requirements() []*Requirement {
	return slices.Clone(p.reqs)
}
