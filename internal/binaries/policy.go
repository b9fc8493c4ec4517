package binaries

import (
	"strings"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
)

// Policy decides which packages may be built from sources. It is parsed
// from --build arguments:
//
//	never          never build, not even missing binaries
//	missing        build every package without a binary
//	missing:PAT    build missing binaries of packages matching PAT
//	*, always      build every package
//	PAT            build packages matching PAT even if a binary exists
//	~PAT           never build packages matching PAT
//
// No argument at all builds nothing.
type Policy struct {
	never   bool
	missing bool
	// force holds the patterns of packages built unconditionally.
	force   []string
	partial []string // missing:PAT
	exclude []string
}

// ParsePolicy parses build arguments.
func ParsePolicy(args ...string) (*Policy, error) {
	p := new(Policy)
	for _, arg := range args {
		switch {
		case arg == "":
			return nil, errs.New(errs.InvalidConfig, "", "empty build policy")
		case arg == "never":
			p.never = true
		case arg == "missing":
			p.missing = true
		case arg == "always":
			p.force = append(p.force, "*")
		case strings.HasPrefix(arg, "missing:"):
			pat := strings.TrimPrefix(arg, "missing:")
			if pat == "" {
				return nil, errs.New(errs.InvalidConfig, "", "build policy %q has no pattern", arg)
			}
			p.partial = append(p.partial, pat)
		case strings.HasPrefix(arg, "~"):
			pat := strings.TrimPrefix(arg, "~")
			if pat == "" {
				return nil, errs.New(errs.InvalidConfig, "", "build policy %q has no pattern", arg)
			}
			p.exclude = append(p.exclude, pat)
		default:
			p.force = append(p.force, arg)
		}
	}
	if p.never && len(args) > 1 {
		return nil, errs.New(errs.InvalidConfig, "", "build policy never cannot be combined with %q", args)
	}
	return p, nil
}

func matchAny(r ref.Reference, patterns []string) bool {
	for _, pat := range patterns {
		if r.Matches(pat, false) {
			return true
		}
	}
	return false
}

func (p *Policy) excluded(r ref.Reference) bool {
	return matchAny(r, p.exclude)
}

// Forced reports whether r is built even when a binary exists.
func (p *Policy) Forced(r ref.Reference) bool {
	return !p.never && !p.excluded(r) && matchAny(r, p.force)
}

// BuildMissing reports whether r may be built when it has no binary.
func (p *Policy) BuildMissing(r ref.Reference) bool {
	if p.never || p.excluded(r) {
		return false
	}
	return p.missing || matchAny(r, p.partial) || matchAny(r, p.force)
}

func (p *Policy) String() string {
	var parts []string
	switch {
	case p.never:
		return "never"
	case p.missing:
		parts = append(parts, "missing")
	}
	parts = append(parts, p.force...)
	for _, pat := range p.partial {
		parts = append(parts, "missing:"+pat)
	}
	for _, pat := range p.exclude {
		parts = append(parts, "~"+pat)
	}
	return strings.Join(parts, " ")
}
