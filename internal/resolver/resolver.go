// Package resolver turns requirement references into loaded recipes:
// it selects versions for ranges, picks recipe revisions, retrieves
// recipes from remotes into the cache and follows aliases.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/loader"
	"github.com/goplus/llpm/internal/lockfile"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/internal/remote"
	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/pkgs/version"
	"github.com/goplus/llpm/recipe"
)

// Resolver resolves references against the local cache and the
// remotes, in that order. It is not safe for concurrent use by the
// graph builder; Download and Recipe may be called concurrently.
type Resolver struct {
	cache       *cache.Cache
	loader      *loader.Loader
	remotes     []remote.Remote
	lock        *lockfile.Lockfile
	update      bool
	prereleases bool
	logger      zerolog.Logger

	mu       sync.Mutex
	searches map[string][]ref.Reference // per source and name
	recipes  map[string]*recipe.Recipe  // by reference with revision
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithUpdate makes every lookup consult all sources and keep the newest
// result instead of stopping at the first source that has one.
func WithUpdate(update bool) Option {
	return func(r *Resolver) {
		r.update = update
	}
}

// WithLockfile restricts versions and revisions to those pinned by l.
func WithLockfile(l *lockfile.Lockfile) Option {
	return func(r *Resolver) {
		r.lock = l
	}
}

// WithPrereleases lets ranges select prereleases.
func WithPrereleases(on bool) Option {
	return func(r *Resolver) {
		r.prereleases = on
	}
}

// New returns a resolver over the cache c and remotes, in priority
// order.
func New(c *cache.Cache, l *loader.Loader, remotes []remote.Remote, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    c,
		loader:   l,
		remotes:  remotes,
		logger:   logging.Get("resolver"),
		searches: make(map[string][]ref.Reference),
		recipes:  make(map[string]*recipe.Recipe),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Remotes returns the configured remotes.
func (r *Resolver) Remotes() []remote.Remote {
	return r.remotes
}

// Reset forgets the search results of the previous expansion.
func (r *Resolver) Reset() {
	r.mu.Lock()
	clear(r.searches)
	r.mu.Unlock()
}

// Result is a resolved requirement.
type Result struct {
	Recipe     *recipe.Recipe
	AliasChain []string // references followed before reaching Recipe
}

// Resolve resolves want, possibly a range, to a loaded recipe, following
// aliases. build selects the lockfile section. Missing references are
// errs.MissingRecipe and alias cycles errs.Loop.
func (r *Resolver) Resolve(ctx context.Context, want ref.Reference, build bool) (*Result, error) {
	res := new(Result)
	seen := map[string]bool{}
	for {
		concrete, err := r.ResolveRange(ctx, want, build)
		if err != nil {
			return nil, err
		}
		rec, err := r.Recipe(ctx, concrete, build)
		if err != nil {
			return nil, err
		}
		if !rec.IsAlias() {
			res.Recipe = rec
			return res, nil
		}
		key := rec.Ref.Key()
		if seen[key] {
			return nil, errs.New(errs.Loop, key, "alias cycle through %v", res.AliasChain)
		}
		seen[key] = true
		res.AliasChain = append(res.AliasChain, rec.Ref.String())
		target, err := ref.Parse(rec.Alias)
		if err != nil {
			return nil, errs.Wrap(errs.Parse, rec.Ref.String(), err)
		}
		r.logger.Debug().Str("alias", rec.Ref.String()).Str("target", target.String()).Msg("Following alias")
		want = target
	}
}

// ResolveRange returns want with a concrete version. Literal versions
// are returned unchanged.
func (r *Resolver) ResolveRange(ctx context.Context, want ref.Reference, build bool) (ref.Reference, error) {
	expr, err := want.Expr()
	if err != nil {
		return want, errs.Wrap(errs.Parse, want.String(), err)
	}
	if !expr.IsRange() {
		return want, nil
	}
	contains := expr.Contains
	if r.prereleases {
		contains = expr.Range().WithPrerelease().Contains
	}
	var locked []string
	if r.lock != nil {
		locked, _ = r.lock.Versions(want.Name, want.User, want.Channel, build)
	}

	var best version.Version
	var found bool
	for _, src := range r.sources() {
		cands, err := r.search(ctx, src, want)
		if err != nil {
			return want, err
		}
		for _, c := range cands {
			if len(locked) > 0 && !slices.Contains(locked, c.Version) {
				continue
			}
			v := version.New(c.Version)
			if !contains(v) {
				continue
			}
			if !found || v.Compare(best) > 0 {
				best, found = v, true
			}
		}
		if found && !r.update {
			break
		}
	}
	if !found {
		return want, errs.New(errs.MissingRecipe, want.String(), "no version satisfies the range")
	}
	out := want
	out.Version = best.String()
	r.logger.Debug().Str("range", want.String()).Str("version", out.Version).Msg("Resolved range")
	return out, nil
}

// source is the local cache (nil remote) or a remote.
type source struct {
	remote remote.Remote
}

func (s source) name() string {
	if s.remote == nil {
		return "local cache"
	}
	return s.remote.Name()
}

func (r *Resolver) sources() []source {
	out := []source{{}}
	for _, rm := range r.remotes {
		out = append(out, source{remote: rm})
	}
	return out
}

// search lists the references of want's name, user and channel known to
// src. Results are cached until Reset.
func (r *Resolver) search(ctx context.Context, src source, want ref.Reference) ([]ref.Reference, error) {
	key := src.name() + "\x00" + want.Name + "@" + want.User + "/" + want.Channel
	r.mu.Lock()
	cached, ok := r.searches[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	var out []ref.Reference
	if src.remote == nil {
		versions, err := r.cache.Versions(want.Name, want.User, want.Channel)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			out = append(out, ref.Reference{Name: want.Name, Version: v, User: want.User, Channel: want.Channel})
		}
	} else {
		found, err := src.remote.SearchRecipes(ctx, want.Name+"/*")
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", src.name(), err)
		}
		for _, f := range found {
			if f.Name == want.Name && f.User == want.User && f.Channel == want.Channel {
				out = append(out, f)
			}
		}
	}
	r.mu.Lock()
	r.searches[key] = out
	r.mu.Unlock()
	return out, nil
}

// candidate is a recipe revision and where it lives.
type candidate struct {
	rev    ref.Revision
	remote remote.Remote // nil when cached
}

// Recipe loads recipe want, which has a concrete version. Without a
// revision the latest admissible one is taken: the local cache wins
// unless update mode is on, and ties favor the cached revision. A
// revision only a remote has is downloaded into the cache first.
func (r *Resolver) Recipe(ctx context.Context, want ref.Reference, build bool) (*recipe.Recipe, error) {
	want = want.Recipe()
	if want.RRev != "" {
		if rec := r.cached(want); rec != nil {
			return rec, nil
		}
	}

	cands, err := r.revisions(ctx, want, build)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, errs.New(errs.MissingRecipe, want.String(), "recipe not found in the cache or any remote")
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if ref.CompareRevisions(c.rev, best.rev) > 0 {
			best = c
		}
	}
	want.RRev = best.rev.ID
	if rec := r.cached(want); rec != nil {
		return rec, nil
	}
	if best.remote != nil {
		if err := r.download(ctx, best.remote, want, best.rev); err != nil {
			return nil, err
		}
	}
	return r.load(want)
}

func (r *Resolver) cached(want ref.Reference) *recipe.Recipe {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recipes[want.String()]
}

func (r *Resolver) revisions(ctx context.Context, want ref.Reference, build bool) ([]candidate, error) {
	admissible := func(id string) bool {
		if want.RRev != "" && id != want.RRev {
			return false
		}
		if r.lock == nil {
			return true
		}
		p := want
		p.RRev = id
		return r.lock.Allows(p, build)
	}

	var out []candidate
	local, err := r.cache.RecipeRevisions(want)
	if err != nil {
		return nil, err
	}
	for _, rev := range local {
		if admissible(rev.ID) {
			out = append(out, candidate{rev: rev})
		}
	}
	if len(out) > 0 && !r.update {
		return out, nil
	}
	for _, rm := range r.remotes {
		revs, err := rm.GetRecipeRevisions(ctx, want.WithoutRevision())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rm.Name(), err)
		}
		found := false
		for _, rev := range revs {
			if !admissible(rev.ID) {
				continue
			}
			found = true
			if i := slices.IndexFunc(out, func(c candidate) bool { return c.rev.ID == rev.ID }); i >= 0 {
				if out[i].rev.Timestamp.IsZero() {
					out[i].rev.Timestamp = rev.Timestamp
				}
				continue
			}
			out = append(out, candidate{rev: rev, remote: rm})
		}
		if found && !r.update {
			break
		}
	}
	return out, nil
}

// download fetches recipe revision want from rm into the cache.
func (r *Resolver) download(ctx context.Context, rm remote.Remote, want ref.Reference, rev ref.Revision) error {
	if r.cache.HasRecipe(want) {
		return nil
	}
	tmp, err := r.cache.TempDir("recipe-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	r.logger.Info().Str("ref", want.String()).Str("remote", rm.Name()).Msg("Downloading recipe")
	if err := rm.GetRecipe(ctx, want, tmp); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return errs.Wrap(errs.MissingRecipe, want.String(), err)
		}
		return err
	}
	export, sources := filepath.Join(tmp, "export"), filepath.Join(tmp, "export_sources")
	name, err := loader.RecipeFile(export)
	if err != nil {
		return errs.Wrap(errs.LoadError, want.String(), err)
	}
	if err := r.verify(want, filepath.Join(export, name), export, sources); err != nil {
		return err
	}
	return r.cache.PutRecipe(want, export, sources, cache.RecipeMetadata{
		Recipe:    name,
		Timestamp: rev.Timestamp,
		Remote:    rm.Name(),
	})
}

// verify recomputes the revision of a downloaded recipe. Revisions in
// "scm" mode name a commit and cannot be checked from the files.
func (r *Resolver) verify(want ref.Reference, file, export, sources string) error {
	rec, err := r.loader.LoadReference(file, want)
	if err != nil {
		return err
	}
	if rec.RevisionMode == loader.RevisionSCM {
		return nil
	}
	got, err := r.loader.Revision(rec, export, sources)
	if err != nil {
		return err
	}
	if got != want.RRev {
		return errs.New(errs.ManifestMismatch, want.String(), "downloaded recipe has revision %s", got)
	}
	return nil
}

// load evaluates cached recipe revision want.
func (r *Resolver) load(want ref.Reference) (*recipe.Recipe, error) {
	unlock, err := r.cache.RLock(cache.LockKey(want))
	if err != nil {
		return nil, err
	}
	defer unlock()

	meta, err := r.cache.RecipeMetadata(want)
	if err != nil {
		return nil, errs.Wrap(errs.MissingRecipe, want.String(), err)
	}
	rec, err := r.loader.LoadReference(filepath.Join(r.cache.ExportDir(want), meta.Recipe), want)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = meta.Timestamp
	rec.Remote = meta.Remote

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.recipes[want.String()]; ok {
		return prev, nil
	}
	r.recipes[want.String()] = rec
	return rec, nil
}
