package ref

import (
	"slices"
	"strings"
	"time"
)

// Revision is a recipe or package revision as listed by the local cache
// or a remote.
type Revision struct {
	ID        string
	Timestamp time.Time // zero when the source did not assign one
	Local     bool      // present in the local cache
}

// CompareRevisions orders a and b: by timestamp when both are known,
// otherwise by the hex digest. Ties favor the locally present revision.
func CompareRevisions(a, b Revision) int {
	if !a.Timestamp.IsZero() && !b.Timestamp.IsZero() {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
	} else if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	switch {
	case a.Local && !b.Local:
		return 1
	case b.Local && !a.Local:
		return -1
	}
	return strings.Compare(a.ID, b.ID)
}

// Latest returns the greatest revision of revs.
func Latest(revs []Revision) (Revision, bool) {
	if len(revs) == 0 {
		return Revision{}, false
	}
	return slices.MaxFunc(revs, CompareRevisions), true
}

// SortRevisions orders revs from newest to oldest.
func SortRevisions(revs []Revision) {
	slices.SortStableFunc(revs, func(a, b Revision) int {
		return CompareRevisions(b, a)
	})
}
