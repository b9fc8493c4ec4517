package version

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalid is wrapped by every version or range parse failure.
var ErrInvalid = errors.New("invalid version")

// Version is a package version such as "1.2.3", "1.2-rc.1" or
// "2.0+build5". Any dotted string is accepted; items are ordered
// naturally so "1.10" sorts after "1.9".
type Version struct {
	raw    string
	main   []string
	pre    string
	hasPre bool
	build  string
}

// New splits s into its main items, prerelease and build metadata.
// It never fails; use Parse to reject malformed input.
func New(s string) Version {
	v := Version{raw: s}
	rest := s
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		v.build, rest = rest[i+1:], rest[:i]
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		v.pre, v.hasPre, rest = rest[i+1:], true, rest[:i]
	}
	v.main = strings.Split(rest, ".")
	return v
}

// Parse is like New but rejects empty versions and versions containing
// characters that belong to the reference or range grammar.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if strings.ContainsAny(s, " \t\n[]@#:/,|") {
		return Version{}, fmt.Errorf("%w %q", ErrInvalid, s)
	}
	return New(s), nil
}

func (v Version) String() string {
	return v.raw
}

// IsZero reports whether v was never set.
func (v Version) IsZero() bool {
	return v.raw == ""
}

// Prerelease returns the prerelease part without the leading '-'.
func (v Version) Prerelease() (string, bool) {
	return v.pre, v.hasPre
}

// Build returns the build metadata without the leading '+'.
func (v Version) Build() string {
	return v.build
}

// Compare returns -1, 0 or 1. Missing main items count as "0", a
// prerelease sorts before its release, and build metadata breaks ties.
func (v Version) Compare(o Version) int {
	n := max(len(v.main), len(o.main))
	for i := 0; i < n; i++ {
		if c := compareItem(item(v.main, i), item(o.main, i)); c != 0 {
			return c
		}
	}
	switch {
	case v.hasPre && !o.hasPre:
		return -1
	case !v.hasPre && o.hasPre:
		return 1
	}
	if c := compareItem(v.pre, o.pre); c != 0 {
		return c
	}
	return compareItem(v.build, o.build)
}

// Major returns the first main item.
func (v Version) Major() string {
	return item(v.main, 0)
}

// MajorMinor returns "major.minor", padding with zero.
func (v Version) MajorMinor() string {
	return item(v.main, 0) + "." + item(v.main, 1)
}

// Patch returns "major.minor.patch", padding with zeros.
func (v Version) Patch() string {
	return v.MajorMinor() + "." + item(v.main, 2)
}

// Stable returns the part of v a consumer may rely on under semantic
// versioning, "X.Y.Z" for major X.
func (v Version) Stable() string {
	return v.Major() + ".Y.Z"
}

// Main returns the main items joined with dots, without prerelease or
// build metadata.
func (v Version) Main() string {
	return strings.Join(v.main, ".")
}

// IsSemver reports whether v is a valid semantic version. Shorthands such
// as "1" and "1.2" are accepted.
func (v Version) IsSemver() bool {
	return semver.IsValid("v" + v.raw)
}

// upperBound returns the smallest version, prereleases included, that
// is greater than every version sharing v's first index+1 items after
// incrementing item index. "1.2.3".upperBound(1) is "1.3-".
func (v Version) upperBound(index int) (Version, error) {
	items := make([]string, index+1)
	for i := range items {
		items[i] = item(v.main, i)
	}
	n, err := strconv.Atoi(items[index])
	if err != nil {
		return Version{}, fmt.Errorf("%w: cannot bump non-numeric item %q of %q", ErrInvalid, items[index], v.raw)
	}
	items[index] = strconv.Itoa(n + 1)
	return New(strings.Join(items, ".") + "-"), nil
}

func item(items []string, i int) string {
	if i < len(items) && items[i] != "" {
		return items[i]
	}
	return "0"
}

// Sort orders versions from lowest to highest, keeping the input order of
// versions that compare equal.
func Sort(vs []Version) {
	slices.SortStableFunc(vs, Version.Compare)
}
