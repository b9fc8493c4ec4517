// Package remote talks to package servers: object stores holding
// recipe and package revisions.
//
// Object layout:
//
//	<name>/<version>/<user|_>/<channel|_>/
//	  index.json                       # recipe revisions
//	  <rrev>/recipe.tgz
//	  <rrev>/conanmanifest.txt
//	  <rrev>/package/<pkgid>/index.json
//	  <rrev>/package/<pkgid>/<prev>/{package.tgz,conanmanifest.txt,conaninfo.txt}
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goplus/llpm/internal/archive"
	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/pkgs/ref"
)

// ErrNotFound is returned when a remote has no such recipe or package.
var ErrNotFound = errors.New("not found in remote")

// Remote is a source of recipes and packages.
type Remote interface {
	Name() string

	// SearchRecipes returns the references, without revisions, whose
	// "name/version@user/channel" matches the fnmatch pattern.
	SearchRecipes(ctx context.Context, pattern string) ([]ref.Reference, error)
	// GetRecipeRevisions returns the revisions of r, newest first.
	GetRecipeRevisions(ctx context.Context, r ref.Reference) ([]ref.Revision, error)
	// GetRecipe unpacks recipe revision r into dst, which receives the
	// export and export_sources folders.
	GetRecipe(ctx context.Context, r ref.Reference, dst string) error
	// GetPackageRevisions returns the revisions of package p (RRev and
	// PkgID set), newest first.
	GetPackageRevisions(ctx context.Context, p ref.Reference) ([]ref.Revision, error)
	// GetPackage unpacks package revision p into dst.
	GetPackage(ctx context.Context, p ref.Reference, dst string) error
}

// Uploader is implemented by remotes accepting uploads.
type Uploader interface {
	// UploadRecipe publishes the export and export_sources folders as
	// revision r.
	UploadRecipe(ctx context.Context, r ref.Reference, export, sources string, ts time.Time) error
	// UploadPackage publishes the package folder dir as revision p.
	UploadPackage(ctx context.Context, p ref.Reference, dir string, ts time.Time) error
}

// Retry bounds the attempts of a GET. Uploads are never retried.
type Retry struct {
	Count   int
	Backoff time.Duration
}

// StoreRemote implements Remote and Uploader on a Store. Concurrent
// GETs of the same key share one request.
type StoreRemote struct {
	name   string
	store  Store
	retry  Retry
	group  singleflight.Group
	logger zerolog.Logger
}

// Option configures a StoreRemote.
type Option func(*StoreRemote)

// WithRetry sets the GET retry policy.
func WithRetry(r Retry) Option {
	return func(s *StoreRemote) {
		s.retry = r
	}
}

// New returns a remote named name backed by store.
func New(name string, store Store, opts ...Option) *StoreRemote {
	s := &StoreRemote{
		name:   name,
		store:  store,
		retry:  Retry{Count: 2, Backoff: 500 * time.Millisecond},
		logger: logging.Get("remote").With().Str("remote", name).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StoreRemote) Name() string {
	return s.name
}

// get fetches key, coalescing concurrent callers.
func (s *StoreRemote) get(ctx context.Context, key string) ([]byte, error) {
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Trace().Str("key", key).Msg("Shared GET")
	}
	return v.([]byte), nil
}

func (s *StoreRemote) fetch(ctx context.Context, key string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		data, err := s.fetchOnce(ctx, key)
		if err == nil || errors.Is(err, ErrNotFound) || attempt >= s.retry.Count {
			return data, err
		}
		s.logger.Debug().Err(err).Str("key", key).Int("attempt", attempt+1).Msg("GET failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retry.Backoff * time.Duration(attempt+1)):
		}
	}
}

func (s *StoreRemote) fetchOnce(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *StoreRemote) put(ctx context.Context, key string, data []byte) error {
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("upload %s to %s: %w", key, s.name, err)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "_"
	}
	return s
}

func recipeBase(r ref.Reference) string {
	return path.Join(r.Name, r.Version, orNone(r.User), orNone(r.Channel))
}

func packageBase(p ref.Reference) string {
	return path.Join(recipeBase(p), p.RRev, "package", p.PkgID)
}

// index lists the revisions stored under a folder.
type index struct {
	Revisions []indexEntry `json:"revisions"`
}

type indexEntry struct {
	Revision string    `json:"revision"`
	Time     time.Time `json:"time"`
}

func (s *StoreRemote) revisions(ctx context.Context, key string) ([]ref.Revision, error) {
	data, err := s.get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", s.name, key, err)
	}
	revs := make([]ref.Revision, 0, len(idx.Revisions))
	for _, e := range idx.Revisions {
		revs = append(revs, ref.Revision{ID: e.Revision, Timestamp: e.Time})
	}
	ref.SortRevisions(revs)
	return revs, nil
}

// addRevision records rev in the index at key. Index updates are read,
// modify, write: concurrent uploads of one reference must be serialized
// by the caller.
func (s *StoreRemote) addRevision(ctx context.Context, key, rev string, ts time.Time) error {
	var idx index
	data, err := s.fetchOnce(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("%s: %s: %w", s.name, key, err)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}
	idx.Revisions = slices.DeleteFunc(idx.Revisions, func(e indexEntry) bool { return e.Revision == rev })
	idx.Revisions = append(idx.Revisions, indexEntry{Revision: rev, Time: ts.UTC()})
	data, err = json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return s.put(ctx, key, data)
}

// searchPrefix returns the literal leading folders of pattern.
func searchPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[@#"); i >= 0 {
		pattern = pattern[:i]
	}
	if i := strings.LastIndexByte(pattern, '/'); i >= 0 {
		return pattern[:i+1]
	}
	return ""
}

func (s *StoreRemote) SearchRecipes(ctx context.Context, pattern string) ([]ref.Reference, error) {
	keys, err := s.store.List(ctx, searchPrefix(pattern))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.name, err)
	}
	var refs []ref.Reference
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) != 5 || parts[4] != "index.json" {
			continue
		}
		r := ref.Reference{Name: parts[0], Version: parts[1]}
		if parts[2] != "_" {
			r.User, r.Channel = parts[2], parts[3]
		}
		if r.Validate() != nil {
			continue
		}
		if ref.Fnmatch(pattern, r.String()) || r.Matches(pattern, false) {
			refs = append(refs, r)
		}
	}
	slices.SortFunc(refs, ref.Compare)
	return refs, nil
}

func (s *StoreRemote) GetRecipeRevisions(ctx context.Context, r ref.Reference) ([]ref.Revision, error) {
	return s.revisions(ctx, path.Join(recipeBase(r), "index.json"))
}

func (s *StoreRemote) GetRecipe(ctx context.Context, r ref.Reference, dst string) error {
	base := path.Join(recipeBase(r), r.RRev)
	return s.download(ctx, r, path.Join(base, "recipe.tgz"), path.Join(base, cache.ManifestFile), dst)
}

func (s *StoreRemote) GetPackageRevisions(ctx context.Context, p ref.Reference) ([]ref.Revision, error) {
	return s.revisions(ctx, path.Join(packageBase(p), "index.json"))
}

func (s *StoreRemote) GetPackage(ctx context.Context, p ref.Reference, dst string) error {
	base := path.Join(packageBase(p), p.PRev)
	return s.download(ctx, p, path.Join(base, "package.tgz"), path.Join(base, cache.ManifestFile), dst)
}

// download unpacks the archive at key into dst and checks the files
// against the manifest at manifestKey.
func (s *StoreRemote) download(ctx context.Context, r ref.Reference, key, manifestKey, dst string) error {
	want, err := s.get(ctx, manifestKey)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", s.name, r, err)
	}
	manifest, err := cache.ParseManifest(want)
	if err != nil {
		return errs.Wrap(errs.ManifestMismatch, r.String(), err)
	}
	data, err := s.get(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", s.name, r, err)
	}
	if err := archive.Unpack(bytes.NewReader(data), dst); err != nil {
		return err
	}
	got, err := cache.ManifestOf(dst)
	if err != nil {
		return err
	}
	if !got.Equal(manifest) {
		return errs.New(errs.ManifestMismatch, r.String(), "downloaded files do not match the manifest of %s", s.name)
	}
	s.logger.Info().Str("ref", r.String()).Str("size", humanize.Bytes(uint64(len(data)))).Msg("Downloaded")
	return nil
}

func (s *StoreRemote) UploadRecipe(ctx context.Context, r ref.Reference, export, sources string, ts time.Time) error {
	base := path.Join(recipeBase(r), r.RRev)
	tree := map[string]string{"export": export, "export_sources": sources}
	if err := s.upload(ctx, tree, path.Join(base, "recipe.tgz"), path.Join(base, cache.ManifestFile)); err != nil {
		return err
	}
	return s.addRevision(ctx, path.Join(recipeBase(r), "index.json"), r.RRev, ts)
}

func (s *StoreRemote) UploadPackage(ctx context.Context, p ref.Reference, dir string, ts time.Time) error {
	base := path.Join(packageBase(p), p.PRev)
	if err := s.upload(ctx, map[string]string{"": dir}, path.Join(base, "package.tgz"), path.Join(base, cache.ManifestFile)); err != nil {
		return err
	}
	info, err := os.ReadFile(filepath.Join(dir, cache.InfoFile))
	if err == nil {
		if err := s.put(ctx, path.Join(base, cache.InfoFile), info); err != nil {
			return err
		}
	}
	return s.addRevision(ctx, path.Join(packageBase(p), "index.json"), p.PRev, ts)
}

func (s *StoreRemote) upload(ctx context.Context, tree map[string]string, key, manifestKey string) error {
	manifest, err := cache.ManifestOfTree(tree)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := archive.PackTree(&buf, tree); err != nil {
		return err
	}
	if err := s.put(ctx, key, buf.Bytes()); err != nil {
		return err
	}
	s.logger.Info().Str("key", key).Str("size", humanize.Bytes(uint64(buf.Len()))).Msg("Uploaded")
	return s.put(ctx, manifestKey, manifest.Bytes())
}

// Config locates a remote.
type Config struct {
	Name      string
	URL       string // folder path, file:// or s3://endpoint/bucket/prefix
	AccessKey string
	SecretKey string
	Region    string
}

// Open returns the remote described by cfg. An s3 URL may carry
// "?region=" and "?insecure=true" query parameters.
func Open(cfg Config, opts ...Option) (*StoreRemote, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", cfg.Name, err)
	}
	switch u.Scheme {
	case "", "file":
		root := cfg.URL
		if u.Scheme == "file" {
			root = u.Path
		}
		return New(cfg.Name, &DirStore{Root: root}, opts...), nil
	case "s3":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		insecure, _ := strconv.ParseBool(u.Query().Get("insecure"))
		region := cfg.Region
		if q := u.Query().Get("region"); q != "" {
			region = q
		}
		store, err := NewS3Store(S3Config{
			Endpoint:  u.Host,
			Bucket:    bucket,
			Prefix:    prefix,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    region,
			UseSSL:    !insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", cfg.Name, err)
		}
		return New(cfg.Name, store, opts...), nil
	}
	return nil, fmt.Errorf("remote %s: unsupported scheme %q", cfg.Name, u.Scheme)
}
