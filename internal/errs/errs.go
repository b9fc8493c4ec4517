// Package errs defines the error kinds reported by dependency resolution
// and installation.
package errs

import (
	"errors"
	"fmt"

	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/pkgs/version"
	"github.com/goplus/llpm/recipe"
)

// Kind classifies a failure. A Kind is itself an error so that callers
// can write errors.Is(err, errs.VersionConflict).
type Kind int

const (
	Other Kind = iota
	Parse
	LoadError
	MissingRecipe
	VersionConflict
	ConfigConflict
	InvalidConfig
	Loop
	MissingBinary
	BuildFailed
	ManifestMismatch
	CacheLockTimeout
)

var kindNames = [...]string{
	Other:            "Error",
	Parse:            "Parse",
	LoadError:        "LoadError",
	MissingRecipe:    "MissingRecipe",
	VersionConflict:  "VersionConflict",
	ConfigConflict:   "ConfigConflict",
	InvalidConfig:    "InvalidConfig",
	Loop:             "Loop",
	MissingBinary:    "MissingBinary",
	BuildFailed:      "BuildFailed",
	ManifestMismatch: "ManifestMismatch",
	CacheLockTimeout: "CacheLockTimeout",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.String()
}

// Error is a failure of a given Kind, optionally tied to a reference.
type Error struct {
	Kind Kind
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Ref, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an error of kind for ref with a formatted message.
func New(kind Kind, ref string, format string, args ...any) error {
	return &Error{Kind: kind, Ref: ref, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind and ref to err. A nil err stays nil.
func Wrap(kind Kind, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Ref: ref, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain. Parse
// failures of references and versions are reported as Parse, rejected
// option values as InvalidConfig.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ref.ErrInvalid) || errors.Is(err, version.ErrInvalid) {
		return Parse
	}
	if errors.Is(err, recipe.ErrInvalidOption) {
		return InvalidConfig
	}
	return Other
}

// ExitCode maps err to the process exit status: 0 on success, 6 for an
// invalid configuration and 1 for anything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case KindOf(err) == InvalidConfig, errors.Is(err, InvalidConfig):
		return 6
	}
	return 1
}
