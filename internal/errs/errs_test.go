package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goplus/llpm/pkgs/ref"
)

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("building graph: %w", New(VersionConflict, "liba/0.1", "conflict with %s", "liba/0.2"))
	if !errors.Is(err, VersionConflict) {
		t.Errorf("errors.Is(%v, VersionConflict) = false", err)
	}
	if errors.Is(err, Loop) {
		t.Errorf("errors.Is(%v, Loop) = true", err)
	}
	if got := KindOf(err); got != VersionConflict {
		t.Errorf("KindOf = %v, want VersionConflict", got)
	}
	want := "VersionConflict: liba/0.1: conflict with liba/0.2"
	if got := errors.Unwrap(err).Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindOfParse(t *testing.T) {
	_, err := ref.Parse("bad")
	if got := KindOf(err); got != Parse {
		t.Errorf("KindOf(%v) = %v, want Parse", err, got)
	}
	if got := KindOf(errors.New("x")); got != Other {
		t.Errorf("KindOf(plain) = %v, want Other", got)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(BuildFailed, "x/1", nil); err != nil {
		t.Errorf("Wrap(nil) = %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{New(InvalidConfig, "liba/1", "validate rejected"), 6},
		{fmt.Errorf("wrapped: %w", New(InvalidConfig, "", "bad")), 6},
		{New(MissingBinary, "liba/1", "no binary"), 1},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
