package ref

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Reference
	}{
		{"zlib/1.3", Reference{Name: "zlib", Version: "1.3"}},
		{"zlib/1.3@conan/stable", Reference{Name: "zlib", Version: "1.3", User: "conan", Channel: "stable"}},
		{"zlib/1.3#abc", Reference{Name: "zlib", Version: "1.3", RRev: "abc"}},
		{"zlib/1.3@u/c#abc:123", Reference{Name: "zlib", Version: "1.3", User: "u", Channel: "c", RRev: "abc", PkgID: "123"}},
		{"zlib/1.3#abc:123#def", Reference{Name: "zlib", Version: "1.3", RRev: "abc", PkgID: "123", PRev: "def"}},
		{"zlib/[>=1.2 <2, include_prerelease]@u/c", Reference{Name: "zlib", Version: "[>=1.2 <2, include_prerelease]", User: "u", Channel: "c"}},
		{"lib_a+x/1.0-rc.1+b2", Reference{Name: "lib_a+x", Version: "1.0-rc.1+b2"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
			if s := got.String(); s != tt.in {
				t.Errorf("String() = %q, want %q", s, tt.in)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"zlib",
		"z/1.0",
		"-zlib/1.0",
		"zlib/",
		"zlib/1.0@user",
		"zlib/1.0@/chan",
		"zlib/1.0@-u/c",
		"zlib/1.0#",
		"zlib/1.0:123#def",
		"zlib/1.0:",
		"zlib/[>=1",
		"zlib/[>=1, nonsense]",
	}
	for _, s := range bad {
		if _, err := Parse(s); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalid", s, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	refs := []Reference{
		{Name: "liba", Version: "0.1"},
		{Name: "libb", Version: "2.0", User: "me", Channel: "testing"},
		{Name: "libc", Version: "1", RRev: "r1", PkgID: "p1", PRev: "q1"},
		{Name: "libd", Version: "[~1.2]", User: "u", Channel: "c"},
	}
	for _, r := range refs {
		got, err := Parse(r.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", r.String(), err)
		}
		if got != r {
			t.Errorf("Parse(String(%#v)) = %#v", r, got)
		}
	}
}

func TestEqual(t *testing.T) {
	a := MustParse("zlib/1.3@u/c")
	tests := []struct {
		b    string
		want bool
	}{
		{"zlib/1.3@u/c", true},
		{"zlib/1.3@u/c#r1", true},
		{"zlib/1.3", false},
		{"zlib/1.4@u/c", false},
	}
	for _, tt := range tests {
		if got := a.Equal(MustParse(tt.b)); got != tt.want {
			t.Errorf("Equal(%s, %s) = %v, want %v", a, tt.b, got, tt.want)
		}
	}
	if MustParse("zlib/1.3#r1").Equal(MustParse("zlib/1.3#r2")) {
		t.Error("different revisions compared equal")
	}
}

func TestCompareRevisions(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	tests := []struct {
		name string
		a, b Revision
		want int
	}{
		{"timestamp", Revision{ID: "aaa", Timestamp: t1}, Revision{ID: "fff", Timestamp: t0}, 1},
		{"hex without timestamps", Revision{ID: "aaa"}, Revision{ID: "fff"}, -1},
		{"hex with one timestamp", Revision{ID: "aaa", Timestamp: t0}, Revision{ID: "bbb"}, -1},
		{"tie favors local", Revision{ID: "aaa", Timestamp: t0, Local: true}, Revision{ID: "bbb", Timestamp: t0}, 1},
		{"same id favors local", Revision{ID: "aaa"}, Revision{ID: "aaa", Local: true}, -1},
		{"identical", Revision{ID: "aaa"}, Revision{ID: "aaa"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareRevisions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareRevisions = %d, want %d", got, tt.want)
			}
		})
	}

	latest, ok := Latest([]Revision{{ID: "a", Timestamp: t0}, {ID: "b", Timestamp: t1}, {ID: "c", Timestamp: t0, Local: true}})
	if !ok || latest.ID != "b" {
		t.Errorf("Latest = %v, %v, want b", latest, ok)
	}
	if _, ok := Latest(nil); ok {
		t.Error("Latest(nil) reported a revision")
	}
}

func TestMatches(t *testing.T) {
	r := MustParse("zlib/1.3@u/c")
	tests := []struct {
		pattern  string
		consumer bool
		want     bool
	}{
		{"zlib", false, true},
		{"zlib/*", false, true},
		{"*", false, true},
		{"z*", false, true},
		{"zlib/1.3@u/c", false, true},
		{"zlib/1.*@*/*", false, true},
		{"openssl/*", false, false},
		{"!openssl/*", false, true},
		{"&", true, true},
		{"&", false, false},
		{"&!", false, true},
		{"&!", true, false},
	}
	for _, tt := range tests {
		if got := r.Matches(tt.pattern, tt.consumer); got != tt.want {
			t.Errorf("Matches(%q, %v) = %v, want %v", tt.pattern, tt.consumer, got, tt.want)
		}
	}
}
