package ref

import (
	"strings"

	"github.com/bmatcuk/doublestar"
)

// sep stands in for '/' while matching, so that '*' spans the whole
// reference the way fnmatch does.
const sep = "\x1f"

// Fnmatch reports whether name matches the shell pattern. Unlike
// path.Match, wildcards also match '/'.
func Fnmatch(pattern, name string) bool {
	ok, err := doublestar.Match(strings.ReplaceAll(pattern, "/", sep), strings.ReplaceAll(name, "/", sep))
	return err == nil && ok
}

// Matches reports whether pattern selects r. "&" selects the consumer,
// "&!" everything else and a leading '!' negates. Other patterns are
// matched against the full reference, "name/version" and the bare name;
// a pattern without '/' and without wildcards only matches the name.
func (r Reference) Matches(pattern string, isConsumer bool) bool {
	switch pattern {
	case "&":
		return isConsumer
	case "&!":
		return !isConsumer
	}
	if neg, ok := strings.CutPrefix(pattern, "!"); ok {
		return !r.Matches(neg, isConsumer)
	}
	candidates := []string{r.Name, r.Name + "/" + r.Version}
	if r.User != "" {
		candidates = append(candidates, r.Name+"/"+r.Version+"@"+r.User+"/"+r.Channel)
	}
	if r.RRev != "" {
		candidates = append(candidates, r.Recipe().String())
	}
	for _, c := range candidates {
		if Fnmatch(pattern, c) {
			return true
		}
	}
	return false
}

// IsPattern reports whether s contains wildcard characters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
