// Package lockfile pins the references, revisions and package revisions
// of a graph so that later resolutions reproduce it.
package lockfile

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/pkgs/ref"
)

// Version of the lockfile format.
const Version = "0.1"

// Package is a package revision pinned for a recipe revision.
type Package struct {
	PkgID     string    `json:"package_id"`
	PRev      string    `json:"prev"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Revision is an admissible recipe revision.
type Revision struct {
	RRev      string    `json:"rrev"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Packages  []Package `json:"packages,omitempty"`
}

// Lockfile maps "name/version@user/channel" keys to their admissible
// revisions, for the host context (Requires) and for tools
// (BuildRequires).
type Lockfile struct {
	Version       string                `json:"version"`
	Requires      map[string][]Revision `json:"requires"`
	BuildRequires map[string][]Revision `json:"build_requires"`
}

// New returns an empty lockfile.
func New() *Lockfile {
	return &Lockfile{
		Version:       Version,
		Requires:      map[string][]Revision{},
		BuildRequires: map[string][]Revision{},
	}
}

// Parse decodes a lockfile. Failures are errs.Parse.
func Parse(data []byte) (*Lockfile, error) {
	l := New()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(l); err != nil {
		return nil, errs.Wrap(errs.Parse, "lockfile", err)
	}
	if l.Requires == nil {
		l.Requires = map[string][]Revision{}
	}
	if l.BuildRequires == nil {
		l.BuildRequires = map[string][]Revision{}
	}
	for _, section := range []map[string][]Revision{l.Requires, l.BuildRequires} {
		for key := range section {
			r, err := ref.Parse(key)
			if err != nil {
				return nil, errs.Wrap(errs.Parse, "lockfile", err)
			}
			if r.RRev != "" || r.PkgID != "" || r.IsRange() {
				return nil, errs.New(errs.Parse, "lockfile", "key %q must be a reference without revision", key)
			}
		}
	}
	return l, nil
}

// Load reads the lockfile at path.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal encodes l with sorted keys.
func (l *Lockfile) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes l to path.
func (l *Lockfile) Save(path string) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (l *Lockfile) section(build bool) map[string][]Revision {
	if build {
		return l.BuildRequires
	}
	return l.Requires
}

// Add pins r, a reference with RRev and optionally PkgID and PRev.
func (l *Lockfile) Add(r ref.Reference, ts time.Time, build bool) {
	section := l.section(build)
	key := r.Key()
	revs := section[key]
	i := slices.IndexFunc(revs, func(rv Revision) bool { return rv.RRev == r.RRev })
	if i < 0 {
		revs = append(revs, Revision{RRev: r.RRev, Timestamp: ts.UTC()})
		i = len(revs) - 1
	}
	if r.PkgID != "" && r.PRev != "" {
		pkgs := revs[i].Packages
		if !slices.ContainsFunc(pkgs, func(p Package) bool { return p.PkgID == r.PkgID && p.PRev == r.PRev }) {
			pkgs = append(pkgs, Package{PkgID: r.PkgID, PRev: r.PRev})
			slices.SortFunc(pkgs, func(a, b Package) int {
				return cmp.Or(cmp.Compare(a.PkgID, b.PkgID), cmp.Compare(a.PRev, b.PRev))
			})
			revs[i].Packages = pkgs
		}
	}
	section[key] = revs
}

// FromGraph pins every resolved package of g.
func FromGraph(g *graph.Graph) *Lockfile {
	l := New()
	for _, n := range g.Nodes {
		if n.Kind != graph.Regular || n.Ref.RRev == "" {
			continue
		}
		var ts time.Time
		if n.Recipe != nil {
			ts = n.Recipe.Timestamp
		}
		l.Add(n.Ref, ts, n.Context == graph.Build)
	}
	return l
}

// Merge adds the pins of o.
func (l *Lockfile) Merge(o *Lockfile) {
	for _, build := range []bool{false, true} {
		for key, revs := range o.section(build) {
			r, err := ref.Parse(key)
			if err != nil {
				continue
			}
			for _, rv := range revs {
				r.RRev = rv.RRev
				l.Add(r, rv.Timestamp, build)
				for _, p := range rv.Packages {
					pr := r
					pr.PkgID, pr.PRev = p.PkgID, p.PRev
					l.Add(pr, rv.Timestamp, build)
				}
			}
		}
	}
}

// Versions returns the locked versions of the package name with the
// given user and channel, and whether the lockfile pins that package
// at all.
func (l *Lockfile) Versions(name, user, channel string, build bool) ([]string, bool) {
	var out []string
	for key := range l.section(build) {
		r, err := ref.Parse(key)
		if err != nil || r.Name != name || r.User != user || r.Channel != channel {
			continue
		}
		out = append(out, r.Version)
	}
	slices.Sort(out)
	return out, len(out) > 0
}

// Revisions returns the admissible recipe revisions of r, and whether r
// is pinned.
func (l *Lockfile) Revisions(r ref.Reference, build bool) ([]Revision, bool) {
	revs, ok := l.section(build)[r.Key()]
	return revs, ok
}

// Allows reports whether recipe revision r.RRev is admissible. Packages
// the lockfile does not pin are not restricted.
func (l *Lockfile) Allows(r ref.Reference, build bool) bool {
	revs, ok := l.Revisions(r, build)
	if !ok {
		return true
	}
	return slices.ContainsFunc(revs, func(rv Revision) bool { return rv.RRev == r.RRev })
}

// PackageRevision returns the locked package revision of p, a reference
// with RRev and PkgID.
func (l *Lockfile) PackageRevision(p ref.Reference, build bool) (string, bool) {
	revs, _ := l.Revisions(p, build)
	for _, rv := range revs {
		if rv.RRev != p.RRev {
			continue
		}
		for _, pkg := range rv.Packages {
			if pkg.PkgID == p.PkgID {
				return pkg.PRev, true
			}
		}
	}
	return "", false
}

func (l *Lockfile) String() string {
	return fmt.Sprintf("lockfile(%d requires, %d build requires)", len(l.Requires), len(l.BuildRequires))
}
