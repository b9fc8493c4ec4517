// Package cache stores exported recipes and package binaries on disk.
//
// Layout:
//
//	root/
//	  <name>/<version>/<user|_>/<channel|_>/<rrev>/
//	    export/                      # recipe file and exported files
//	    export_sources/
//	    metadata.json
//	    package/<pkgid>/<prev>/      # package contents
//	      conaninfo.txt
//	      conanmanifest.txt
//	      metadata.json
//	    build/                       # scheduler-owned build folders
//	  .tmp/                          # staging, renamed into place
//	  .locks/
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/pkgs/ref"
)

const (
	exportDir        = "export"
	exportSourcesDir = "export_sources"
	packageDir       = "package"
	buildDir         = "build"
	none             = "_"
)

// DefaultLockTimeout bounds the wait for another process's cache lock.
const DefaultLockTimeout = 2 * time.Minute

// ErrNotFound is returned when an entry is not in the cache.
var ErrNotFound = errors.New("not found in cache")

// RecipeMetadata is stored next to an exported recipe.
type RecipeMetadata struct {
	Ref       string    `json:"ref"`
	Recipe    string    `json:"recipe"` // recipe file name within export/
	Timestamp time.Time `json:"timestamp"`
	Remote    string    `json:"remote,omitempty"`
}

// PackageMetadata is stored next to a package revision.
type PackageMetadata struct {
	Ref       string    `json:"ref"`
	Timestamp time.Time `json:"timestamp"`
	Remote    string    `json:"remote,omitempty"`
}

// Cache is the local store. It is safe for use by concurrent goroutines
// and processes: writers stage entries under .tmp and rename them into
// place while holding the entry's lock.
type Cache struct {
	root        string
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLockTimeout sets how long Lock waits for a held lock.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.lockTimeout = d
	}
}

// Open returns the cache rooted at root, creating it if needed.
func Open(root string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(root, ".tmp"), 0755); err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	c := &Cache{root: root, lockTimeout: DefaultLockTimeout, logger: logging.Get("cache")}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func (c *Cache) base(r ref.Reference) string {
	return filepath.Join(c.root, r.Name, r.Version, orNone(r.User), orNone(r.Channel))
}

// RecipeDir returns the folder of recipe revision r.
func (c *Cache) RecipeDir(r ref.Reference) string {
	return filepath.Join(c.base(r), r.RRev)
}

// ExportDir returns the folder holding the exported recipe files.
func (c *Cache) ExportDir(r ref.Reference) string {
	return filepath.Join(c.RecipeDir(r), exportDir)
}

// ExportSourcesDir returns the folder holding the exported sources.
func (c *Cache) ExportSourcesDir(r ref.Reference) string {
	return filepath.Join(c.RecipeDir(r), exportSourcesDir)
}

// BuildRoot returns the parent of the build folders of r.
func (c *Cache) BuildRoot(r ref.Reference) string {
	return filepath.Join(c.RecipeDir(r), buildDir)
}

// PackageDir returns the folder of package revision p.
func (c *Cache) PackageDir(p ref.Reference) string {
	return filepath.Join(c.RecipeDir(p), packageDir, p.PkgID, p.PRev)
}

// TempDir creates a staging folder on the cache's file system.
func (c *Cache) TempDir(pattern string) (string, error) {
	return os.MkdirTemp(filepath.Join(c.root, ".tmp"), pattern)
}

// Versions returns the versions of name@user/channel with at least one
// recipe revision.
func (c *Cache) Versions(name, user, channel string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r := ref.Reference{Name: name, Version: e.Name(), User: user, Channel: channel}
		if revs, err := c.RecipeRevisions(r); err == nil && len(revs) > 0 {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// RecipeRevisions returns the cached revisions of r, newest first.
func (c *Cache) RecipeRevisions(r ref.Reference) ([]ref.Revision, error) {
	entries, err := os.ReadDir(c.base(r))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var revs []ref.Revision
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rr := r
		rr.RRev = e.Name()
		meta, err := c.RecipeMetadata(rr)
		if err != nil {
			continue
		}
		revs = append(revs, ref.Revision{ID: e.Name(), Timestamp: meta.Timestamp, Local: true})
	}
	ref.SortRevisions(revs)
	return revs, nil
}

// LatestRecipe returns r with the revision most recently exported.
func (c *Cache) LatestRecipe(r ref.Reference) (ref.Reference, ref.Revision, error) {
	revs, err := c.RecipeRevisions(r)
	if err != nil {
		return ref.Reference{}, ref.Revision{}, err
	}
	if len(revs) == 0 {
		return ref.Reference{}, ref.Revision{}, fmt.Errorf("%s: %w", r, ErrNotFound)
	}
	r.RRev = revs[0].ID
	return r, revs[0], nil
}

// HasRecipe reports whether recipe revision r is complete in the cache.
func (c *Cache) HasRecipe(r ref.Reference) bool {
	_, err := c.RecipeMetadata(r)
	return err == nil
}

// RecipeMetadata reads the metadata of recipe revision r.
func (c *Cache) RecipeMetadata(r ref.Reference) (*RecipeMetadata, error) {
	var meta RecipeMetadata
	if err := readJSON(filepath.Join(c.RecipeDir(r), MetadataFile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// RecipeFile returns the path of the recipe file of revision r.
func (c *Cache) RecipeFile(r ref.Reference) (string, error) {
	meta, err := c.RecipeMetadata(r)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.ExportDir(r), meta.Recipe), nil
}

// PutRecipe moves the staged export and export_sources folders into
// place as revision r. sources may be empty or missing. An already cached revision
// is kept and the staged folders are removed.
func (c *Cache) PutRecipe(r ref.Reference, export, sources string, meta RecipeMetadata) error {
	unlock, err := c.Lock(LockKey(r))
	if err != nil {
		return err
	}
	defer unlock()

	defer os.RemoveAll(export)
	if sources != "" {
		defer os.RemoveAll(sources)
	}
	// Double-check after acquiring the lock: another process may have
	// stored the same revision.
	if c.HasRecipe(r) {
		return nil
	}
	dir := c.RecipeDir(r)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := os.Rename(export, filepath.Join(dir, exportDir)); err != nil {
		return err
	}
	// An unpacked recipe without sources has no export_sources folder.
	if sources != "" && exists(sources) {
		if err := os.Rename(sources, filepath.Join(dir, exportSourcesDir)); err != nil {
			return err
		}
	} else if err := os.MkdirAll(filepath.Join(dir, exportSourcesDir), 0755); err != nil {
		return err
	}
	meta.Ref = r.String()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	c.logger.Debug().Str("ref", meta.Ref).Msg("Stored recipe")
	// Metadata last: its presence marks the entry complete.
	return writeJSON(filepath.Join(dir, MetadataFile), meta)
}

// PackageRevisions returns the cached revisions of package p (a
// reference with RRev and PkgID), newest first.
func (c *Cache) PackageRevisions(p ref.Reference) ([]ref.Revision, error) {
	dir := filepath.Join(c.RecipeDir(p), packageDir, p.PkgID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var revs []ref.Revision
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pp := p
		pp.PRev = e.Name()
		meta, err := c.PackageMetadata(pp)
		if err != nil {
			continue
		}
		revs = append(revs, ref.Revision{ID: e.Name(), Timestamp: meta.Timestamp, Local: true})
	}
	ref.SortRevisions(revs)
	return revs, nil
}

// LatestPackage returns p with its newest cached package revision.
func (c *Cache) LatestPackage(p ref.Reference) (ref.Reference, bool) {
	revs, err := c.PackageRevisions(p)
	if err != nil || len(revs) == 0 {
		return ref.Reference{}, false
	}
	p.PRev = revs[0].ID
	return p, true
}

// PackageIDs returns the package ids with at least one cached package
// revision for recipe revision r, sorted.
func (c *Cache) PackageIDs(r ref.Reference) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.RecipeDir(r), packageDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := r
		p.PkgID = e.Name()
		if _, ok := c.LatestPackage(p); ok {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// HasPackage reports whether package revision p is complete.
func (c *Cache) HasPackage(p ref.Reference) bool {
	_, err := c.PackageMetadata(p)
	return err == nil
}

// PackageMetadata reads the metadata of package revision p.
func (c *Cache) PackageMetadata(p ref.Reference) (*PackageMetadata, error) {
	var meta PackageMetadata
	if err := readJSON(filepath.Join(c.PackageDir(p), MetadataFile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// PromotePackage verifies the staged package folder against its
// manifest and p.PRev, failing with errs.ManifestMismatch, then renames
// it into place. A package revision
// already present wins and the staged folder is removed.
func (c *Cache) PromotePackage(p ref.Reference, staged string, meta PackageMetadata) error {
	unlock, err := c.Lock(LockKey(p))
	if err != nil {
		return err
	}
	defer unlock()
	defer os.RemoveAll(staged)

	if c.HasPackage(p) {
		return nil
	}
	if _, err := Verify(staged, p.PRev); err != nil {
		return errs.Wrap(errs.ManifestMismatch, p.String(), err)
	}
	dir := c.PackageDir(p)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return err
	}
	if err := os.Rename(staged, dir); err != nil {
		return err
	}
	meta.Ref = p.String()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	c.logger.Debug().Str("ref", meta.Ref).Msg("Stored package")
	return writeJSON(filepath.Join(dir, MetadataFile), meta)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
