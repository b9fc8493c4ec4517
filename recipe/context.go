package recipe

import (
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar"

	"github.com/goplus/llpm/pkgs/ref"
)

// Config is the configuration a hook sees: the package reference, its
// context and effective settings and options.
type Config struct {
	Ref      ref.Reference
	Context  string // "host" or "build"
	Settings *Values
	Options  *Values
	Conf     map[string]string
}

// Dependency is an installed dependency visible to build and package.
type Dependency struct {
	Ref        ref.Reference
	PackageDir string
	CppInfo    *CppInfo
	Tool       bool
}

// BuildContext is the working environment of build and package.
type BuildContext struct {
	*Config

	SourceDir  string
	BuildDir   string
	PackageDir string
	Deps       map[string]*Dependency

	Stdout io.Writer
	Stderr io.Writer
}

// Dep returns the dependency named name, or nil.
func (c *BuildContext) Dep(name string) *Dependency {
	return c.Deps[name]
}

// Copy copies the files matching pattern below src into dst, keeping
// their relative paths, and returns the copied relative paths.
func (c *BuildContext) Copy(pattern, src, dst string) ([]string, error) {
	return CopyFiles(pattern, src, dst)
}

// CopyFiles copies the files matching the doublestar pattern below src
// into dst, keeping their relative paths.
func CopyFiles(pattern, src, dst string) ([]string, error) {
	matches, err := doublestar.Glob(filepath.Join(src, pattern))
	if err != nil {
		return nil, err
	}
	var copied []string
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			return copied, err
		}
		if fi.IsDir() {
			continue
		}
		rel, err := filepath.Rel(src, m)
		if err != nil {
			return copied, err
		}
		if err := copyFile(m, filepath.Join(dst, rel), fi.Mode()); err != nil {
			return copied, err
		}
		copied = append(copied, filepath.ToSlash(rel))
	}
	return copied, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CppInfo describes how consumers use a package.
type CppInfo struct {
	IncludeDirs []string          `json:"includedirs,omitempty"`
	LibDirs     []string          `json:"libdirs,omitempty"`
	BinDirs     []string          `json:"bindirs,omitempty"`
	Libs        []string          `json:"libs,omitempty"`
	SystemLibs  []string          `json:"system_libs,omitempty"`
	Defines     []string          `json:"defines,omitempty"`
	CFlags      []string          `json:"cflags,omitempty"`
	CxxFlags    []string          `json:"cxxflags,omitempty"`
	LinkFlags   []string          `json:"linkflags,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// NewCppInfo returns the conventional layout: include, lib and bin.
func NewCppInfo() *CppInfo {
	return &CppInfo{
		IncludeDirs: []string{"include"},
		LibDirs:     []string{"lib"},
		BinDirs:     []string{"bin"},
	}
}

// SetProperty records a free-form property.
func (c *CppInfo) SetProperty(key, value string) {
	if c.Properties == nil {
		c.Properties = make(map[string]string)
	}
	c.Properties[key] = value
}
