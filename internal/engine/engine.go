// Copyright 2024 The llpm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine ties the llpm components together behind the
// operations the command line offers: graph, install, export, upload
// and lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/goplus/llpm/internal/binaries"
	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/config"
	"github.com/goplus/llpm/internal/env"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/installer"
	"github.com/goplus/llpm/internal/loader"
	"github.com/goplus/llpm/internal/lockfile"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/internal/packageid"
	"github.com/goplus/llpm/internal/profile"
	"github.com/goplus/llpm/internal/remote"
	"github.com/goplus/llpm/pkgs/ref"
)

// Engine runs llpm operations against one cache and a fixed list of
// remotes.
type Engine struct {
	cfg     *config.Config
	cache   *cache.Cache
	eval    loader.Evaluator
	loader  *loader.Loader
	remotes []remote.Remote
	modes   packageid.Modes
	stdout  io.Writer
	stderr  io.Writer
	logger  zerolog.Logger

	remotesSet bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the ixgo recipe interpreter.
func WithEvaluator(eval loader.Evaluator) Option {
	return func(e *Engine) {
		e.eval = eval
	}
}

// WithRemotes replaces the remotes declared in the configuration.
func WithRemotes(remotes ...remote.Remote) Option {
	return func(e *Engine) {
		e.remotes, e.remotesSet = remotes, true
	}
}

// WithOutput sets where recipe hooks write.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Engine) {
		e.stdout, e.stderr = stdout, stderr
	}
}

// New opens the cache and remotes cfg describes.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		stdout: io.Discard,
		stderr: io.Discard,
		logger: logging.Get("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	modes, err := cfg.Modes()
	if err != nil {
		return nil, err
	}
	e.modes = modes

	home, err := cfg.HomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home: %w", err)
	}
	e.cache, err = cache.Open(home, cache.WithLockTimeout(cfg.LockTimeout))
	if err != nil {
		return nil, err
	}
	if !e.remotesSet {
		e.remotes, err = cfg.OpenRemotes()
		if err != nil {
			return nil, err
		}
	}
	if e.eval == nil {
		e.eval = loader.NewInterpreter()
	}
	e.loader = loader.New(e.eval)
	e.logger.Debug().Str("home", home).Int("remotes", len(e.remotes)).Msg("Engine ready")
	return e, nil
}

// Cache returns the local cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Request describes the graph an operation works on: a consumer recipe
// or a list of requirements, the profiles applied to it and the
// installation choices.
type Request struct {
	Path         string // consumer recipe; empty for a virtual root
	Requires     []string
	ToolRequires []string

	Host  *profile.Profile
	Build *profile.Profile // nil means Host

	Lockfile    *lockfile.Lockfile
	Update      bool
	BuildPolicy []string          // --build arguments
	Editables   map[string]string // "name/version@user/channel" → folder
}

// Graph expands the dependency graph of req. The graph is returned even
// when expansion fails, with the error in its Err field.
func (e *Engine) Graph(ctx context.Context, req *Request) (*graph.Graph, error) {
	defer logging.Start(e.logger, "graph")()
	s, err := e.newSession(req)
	if err != nil {
		return nil, err
	}
	root, err := s.root()
	if err != nil {
		return nil, err
	}
	g := s.builder.Build(ctx, root)
	return g, g.Err
}

// Result is the outcome of Install.
type Result struct {
	Graph  *graph.Graph
	Report *installer.Report
}

// Analyze expands the graph of req and classifies the binary of every
// package without installing anything. Missing binaries and invalid
// configurations are left in the graph, not reported as errors.
func (e *Engine) Analyze(ctx context.Context, req *Request) (*graph.Graph, error) {
	g, _, err := e.analyze(ctx, req)
	return g, err
}

func (e *Engine) analyze(ctx context.Context, req *Request) (*graph.Graph, *binaries.Analyzer, error) {
	policy, err := binaries.ParsePolicy(req.BuildPolicy...)
	if err != nil {
		return nil, nil, err
	}
	g, err := e.Graph(ctx, req)
	if err != nil {
		return g, nil, err
	}
	a := binaries.New(e.cache, packageid.New(e.loader, e.modes), e.remotes, policy,
		binaries.WithLockfile(req.Lockfile),
		binaries.WithUpdate(req.Update),
		binaries.WithEditables(req.Editables),
	)
	if err := a.Analyze(ctx, g); err != nil {
		return g, nil, err
	}
	return g, a, nil
}

// Install expands, analyzes and installs the graph of req. Missing
// binaries and invalid configurations stop it before anything is
// installed.
func (e *Engine) Install(ctx context.Context, req *Request) (*Result, error) {
	defer logging.Start(e.logger, "install")()
	g, a, err := e.analyze(ctx, req)
	res := &Result{Graph: g}
	if err != nil {
		return res, err
	}
	if err := binaries.Check(g); err != nil {
		return res, err
	}

	inst := installer.New(e.cache, e.loader, a, e.remotes,
		installer.WithJobs(e.cfg.Jobs),
		installer.WithOutput(e.stdout, e.stderr),
	)
	res.Report, err = inst.Install(ctx, g)
	if err != nil {
		return res, err
	}
	e.logger.Info().
		Int("succeeded", len(res.Report.Succeeded)).
		Int("failed", len(res.Report.Failed)).
		Int("skipped", len(res.Report.Skipped)).
		Msg("Install finished")
	return res, res.Report.Err()
}

// Lock expands the graph of req and pins it. The pins of req.Lockfile
// are kept. The lockfile is written to path unless path is empty.
func (e *Engine) Lock(ctx context.Context, req *Request, path string) (*lockfile.Lockfile, error) {
	g, err := e.Graph(ctx, req)
	if err != nil {
		return nil, err
	}
	l := lockfile.FromGraph(g)
	if req.Lockfile != nil {
		l.Merge(req.Lockfile)
	}
	if path == "" {
		return l, nil
	}
	if err := l.Save(path); err != nil {
		return nil, fmt.Errorf("failed to write lockfile: %w", err)
	}
	return l, nil
}

// Export copies the recipe at path and the sources it declares into the
// cache. user and channel, when set, replace those the recipe declares.
// It returns the reference with its recipe revision.
func (e *Engine) Export(path, user, channel string) (ref.Reference, error) {
	defer logging.Start(e.logger, "export")()
	rec, err := e.loader.LoadRecipe(path)
	if err != nil {
		return ref.Reference{}, err
	}
	if user != "" || channel != "" {
		rec.Ref.User, rec.Ref.Channel = user, channel
	}
	if rec.Ref.Name == "" || rec.Ref.Version == "" {
		return ref.Reference{}, errs.New(errs.InvalidConfig, path, "recipe must declare a name and a version to be exported")
	}
	if err := rec.Ref.Validate(); err != nil {
		return ref.Reference{}, errs.Wrap(errs.InvalidConfig, path, err)
	}

	tmp, err := e.cache.TempDir("export-")
	if err != nil {
		return ref.Reference{}, err
	}
	defer os.RemoveAll(tmp)
	export, sources := filepath.Join(tmp, "export"), filepath.Join(tmp, "export_sources")
	rrev, err := e.loader.Export(rec, export, sources)
	if err != nil {
		return ref.Reference{}, err
	}
	r := rec.Ref
	r.RRev = rrev
	if e.cache.HasRecipe(r) {
		e.logger.Info().Str("ref", r.String()).Msg("Recipe revision already exported")
		return r, nil
	}
	meta := cache.RecipeMetadata{Recipe: filepath.Base(rec.Path)}
	if err := e.cache.PutRecipe(r, export, sources, meta); err != nil {
		return ref.Reference{}, fmt.Errorf("failed to store %s: %w", r, err)
	}
	e.logger.Info().Str("ref", r.String()).Msg("Exported recipe")
	return r, nil
}

// Upload publishes a cached recipe revision to the remote named
// remoteName, and its cached package revisions when packages is set. A
// reference without revision uploads the latest exported revision.
// Uploads are not retried.
func (e *Engine) Upload(ctx context.Context, r ref.Reference, remoteName string, packages bool) error {
	defer logging.Start(e.logger, "upload")()
	up, err := e.uploader(remoteName)
	if err != nil {
		return err
	}
	r = r.Recipe()
	if r.RRev == "" {
		latest, _, err := e.cache.LatestRecipe(r)
		if err != nil {
			return errs.Wrap(errs.MissingRecipe, r.String(), err)
		}
		r = latest
	}
	meta, err := e.cache.RecipeMetadata(r)
	if err != nil {
		return errs.Wrap(errs.MissingRecipe, r.String(), err)
	}
	if err := up.UploadRecipe(ctx, r, e.cache.ExportDir(r), e.cache.ExportSourcesDir(r), meta.Timestamp); err != nil {
		return fmt.Errorf("failed to upload %s: %w", r, err)
	}
	e.logger.Info().Str("ref", r.String()).Str("remote", remoteName).Msg("Uploaded recipe")
	if !packages {
		return nil
	}

	ids, err := e.cache.PackageIDs(r)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p := r
		p.PkgID = id
		revs, err := e.cache.PackageRevisions(p)
		if err != nil {
			return err
		}
		for _, rev := range revs {
			p.PRev = rev.ID
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := up.UploadPackage(ctx, p, e.cache.PackageDir(p), rev.Timestamp); err != nil {
				return fmt.Errorf("failed to upload %s: %w", p, err)
			}
			e.logger.Info().Str("ref", p.String()).Str("remote", remoteName).Msg("Uploaded package")
		}
	}
	return nil
}

func (e *Engine) uploader(name string) (remote.Uploader, error) {
	for _, r := range e.remotes {
		if r.Name() != name {
			continue
		}
		up, ok := r.(remote.Uploader)
		if !ok {
			return nil, errs.New(errs.InvalidConfig, "", "remote %s does not accept uploads", name)
		}
		return up, nil
	}
	return nil, errs.New(errs.InvalidConfig, "", "no remote named %q", name)
}

// Profile loads the profile named name, a path or a file of the
// profiles folder, and validates it. A missing "default" profile is the
// detected one.
func (e *Engine) Profile(name string) (*profile.Profile, error) {
	if name == "" {
		name = "default"
	}
	path := env.ProfilePath(name)
	p, err := profile.Load(path)
	if errors.Is(err, os.ErrNotExist) && name == "default" {
		e.logger.Debug().Str("path", path).Msg("No default profile, detecting one")
		p, err = profile.Detect(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(e.loader.Schema()); err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "", err)
	}
	return p, nil
}
