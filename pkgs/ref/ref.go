// Package ref implements package references of the form
//
//	name/version@user/channel#rrev:pkgid#prev
//
// and the ordering of recipe and package revisions.
package ref

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goplus/llpm/pkgs/version"
)

// ErrInvalid is wrapped by every reference parse failure.
var ErrInvalid = errors.New("invalid reference")

var (
	validName = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_+.-]{1,}$`)
	validUser = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_+.-]*$`)
)

// Reference identifies a recipe and, optionally, one of its binary
// packages. Only Name and Version are mandatory.
type Reference struct {
	Name    string
	Version string
	User    string
	Channel string
	RRev    string // recipe revision
	PkgID   string // package id
	PRev    string // package revision
}

// Parse parses s according to
//
//	name "/" version ("@" user "/" channel)? ("#" rrev)? (":" pkgid ("#" prev)?)?
//
// The version may be a bracketed range expression.
func Parse(s string) (Reference, error) {
	var r Reference
	name, rest, ok := strings.Cut(s, "/")
	if !ok {
		return r, fmt.Errorf("%w %q: missing version", ErrInvalid, s)
	}
	r.Name = name

	// A range may contain characters of the grammar itself, so it is
	// split off before the rest is tokenized.
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Reference{}, fmt.Errorf("%w %q: unterminated version range", ErrInvalid, s)
		}
		r.Version, rest = rest[:end+1], rest[end+1:]
	} else {
		end := strings.IndexAny(rest, "@#:")
		if end < 0 {
			end = len(rest)
		}
		r.Version, rest = rest[:end], rest[end:]
	}

	if i := strings.IndexByte(rest, ':'); i >= 0 {
		r.PkgID, r.PRev, _ = strings.Cut(rest[i+1:], "#")
		if r.PkgID == "" || strings.HasSuffix(rest, "#") {
			return Reference{}, fmt.Errorf("%w %q: empty package id or revision", ErrInvalid, s)
		}
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		r.RRev = rest[i+1:]
		if r.RRev == "" {
			return Reference{}, fmt.Errorf("%w %q: empty recipe revision", ErrInvalid, s)
		}
		rest = rest[:i]
	}
	if rest != "" {
		uc, ok := strings.CutPrefix(rest, "@")
		if !ok {
			return Reference{}, fmt.Errorf("%w %q", ErrInvalid, s)
		}
		r.User, r.Channel, ok = strings.Cut(uc, "/")
		if !ok || r.User == "" || r.Channel == "" {
			return Reference{}, fmt.Errorf("%w %q: user and channel must be given together", ErrInvalid, s)
		}
	}
	if err := r.Validate(); err != nil {
		return Reference{}, err
	}
	return r, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Reference {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the name rules and the revision invariants.
func (r Reference) Validate() error {
	if !validName.MatchString(r.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalid, r.Name)
	}
	if r.Version == "" {
		return fmt.Errorf("%w: %s has no version", ErrInvalid, r.Name)
	}
	if _, err := version.ParseExpr(r.Version); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, r.Name, err)
	}
	for _, part := range []string{r.User, r.Channel} {
		if part != "" && !validUser.MatchString(part) {
			return fmt.Errorf("%w: bad user or channel %q", ErrInvalid, part)
		}
	}
	if r.PRev != "" && (r.PkgID == "" || r.RRev == "") {
		return fmt.Errorf("%w: package revision %s needs a package id and a recipe revision", ErrInvalid, r.PRev)
	}
	return nil
}

func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('/')
	b.WriteString(r.Version)
	if r.User != "" {
		b.WriteByte('@')
		b.WriteString(r.User)
		b.WriteByte('/')
		b.WriteString(r.Channel)
	}
	if r.RRev != "" {
		b.WriteByte('#')
		b.WriteString(r.RRev)
	}
	if r.PkgID != "" {
		b.WriteByte(':')
		b.WriteString(r.PkgID)
		if r.PRev != "" {
			b.WriteByte('#')
			b.WriteString(r.PRev)
		}
	}
	return b.String()
}

// Key returns "name/version@user/channel", the identity of a recipe
// without revisions.
func (r Reference) Key() string {
	return r.Recipe().WithoutRevision().String()
}

// Recipe drops the package id and package revision.
func (r Reference) Recipe() Reference {
	r.PkgID, r.PRev = "", ""
	return r
}

// WithoutRevision drops the recipe and package revisions.
func (r Reference) WithoutRevision() Reference {
	r.RRev, r.PRev = "", ""
	return r
}

// IsRange reports whether the version is a range expression.
func (r Reference) IsRange() bool {
	return strings.HasPrefix(r.Version, "[")
}

// IsPartial reports whether user and channel are missing.
func (r Reference) IsPartial() bool {
	return r.User == ""
}

// Expr returns the parsed version expression.
func (r Reference) Expr() (version.Expr, error) {
	return version.ParseExpr(r.Version)
}

// Equal reports whether r and o denote the same reference. Revisions
// are compared only when both sides carry them.
func (r Reference) Equal(o Reference) bool {
	if r.Name != o.Name || r.Version != o.Version || r.User != o.User || r.Channel != o.Channel {
		return false
	}
	if r.RRev != "" && o.RRev != "" && r.RRev != o.RRev {
		return false
	}
	if r.PkgID != o.PkgID {
		return false
	}
	if r.PRev != "" && o.PRev != "" && r.PRev != o.PRev {
		return false
	}
	return true
}

// Compare orders references by name, version, user, channel and then the
// remaining fields as strings. It is meant for deterministic output.
func Compare(a, b Reference) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := version.New(a.Version).Compare(version.New(b.Version)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Version, b.Version); c != 0 {
		return c
	}
	return strings.Compare(a.String(), b.String())
}
