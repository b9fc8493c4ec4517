package binaries

import (
	"errors"
	"testing"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
)

func TestPolicy(t *testing.T) {
	zlib := ref.MustParse("zlib/1.3")
	openssl := ref.MustParse("openssl/3.0@corp/stable")
	tests := []struct {
		args    []string
		forced  [2]bool // zlib, openssl
		missing [2]bool
	}{
		{nil, [2]bool{}, [2]bool{}},
		{[]string{"never"}, [2]bool{}, [2]bool{}},
		{[]string{"missing"}, [2]bool{}, [2]bool{true, true}},
		{[]string{"*"}, [2]bool{true, true}, [2]bool{true, true}},
		{[]string{"always"}, [2]bool{true, true}, [2]bool{true, true}},
		{[]string{"zlib"}, [2]bool{true, false}, [2]bool{true, false}},
		{[]string{"zlib/1.*"}, [2]bool{true, false}, [2]bool{true, false}},
		{[]string{"openssl/*@corp/*"}, [2]bool{false, true}, [2]bool{false, true}},
		{[]string{"missing:open*"}, [2]bool{}, [2]bool{false, true}},
		{[]string{"missing", "~zlib"}, [2]bool{}, [2]bool{false, true}},
		{[]string{"*", "~openssl"}, [2]bool{true, false}, [2]bool{true, false}},
	}
	for _, tt := range tests {
		p, err := ParsePolicy(tt.args...)
		if err != nil {
			t.Fatalf("ParsePolicy(%q): %v", tt.args, err)
		}
		for i, r := range []ref.Reference{zlib, openssl} {
			if got := p.Forced(r); got != tt.forced[i] {
				t.Errorf("%q: Forced(%s) = %v, want %v", tt.args, r, got, tt.forced[i])
			}
			if got := p.BuildMissing(r); got != tt.missing[i] {
				t.Errorf("%q: BuildMissing(%s) = %v, want %v", tt.args, r, got, tt.missing[i])
			}
		}
	}
}

func TestPolicyErrors(t *testing.T) {
	for _, args := range [][]string{
		{""},
		{"missing:"},
		{"~"},
		{"never", "missing"},
	} {
		if _, err := ParsePolicy(args...); !errors.Is(err, errs.InvalidConfig) {
			t.Errorf("ParsePolicy(%q) = %v, want InvalidConfig", args, err)
		}
	}
}

func TestPolicyString(t *testing.T) {
	p, err := ParsePolicy("missing", "zlib", "missing:open*", "~boost")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.String(), "missing zlib missing:open* ~boost"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
