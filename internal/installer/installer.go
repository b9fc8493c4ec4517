// Copyright 2024 The llpm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package installer brings the binaries of a classified graph into the
// cache, leaves first, downloading or building them as the analyzer
// decided.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goplus/llpm/internal/binaries"
	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/loader"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/internal/packageid"
	"github.com/goplus/llpm/internal/remote"
	"github.com/goplus/llpm/recipe"
)

// Failure is a node that could not be installed.
type Failure struct {
	Node *graph.Node
	Err  error
}

// Report is the outcome of Install. Skipped lists the nodes left alone
// because an upstream failed or the install was canceled; nodes the
// analyzer skipped are not reported.
type Report struct {
	Succeeded []*graph.Node
	Failed    []Failure
	Skipped   []*graph.Node
}

// Err joins the failures, or returns nil.
func (r *Report) Err() error {
	var errList []error
	for _, f := range r.Failed {
		errList = append(errList, f.Err)
	}
	return errors.Join(errList...)
}

// Installer runs the installation of a graph.
type Installer struct {
	cache    *cache.Cache
	loader   *loader.Loader
	analyzer *binaries.Analyzer
	remotes  map[string]remote.Remote
	jobs     int
	stdout   io.Writer
	stderr   io.Writer
	logger   zerolog.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithJobs bounds the number of nodes installed at once. Zero or less
// means the number of CPUs.
func WithJobs(n int) Option {
	return func(i *Installer) {
		if n > 0 {
			i.jobs = n
		}
	}
}

// WithOutput sets where recipe build and package hooks write.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(i *Installer) {
		i.stdout, i.stderr = stdout, stderr
	}
}

// New returns an installer. The analyzer reevaluates Unknown nodes and
// remotes serve Download nodes, by name.
func New(c *cache.Cache, l *loader.Loader, a *binaries.Analyzer, remotes []remote.Remote, opts ...Option) *Installer {
	i := &Installer{
		cache:    c,
		loader:   l,
		analyzer: a,
		remotes:  make(map[string]remote.Remote, len(remotes)),
		jobs:     runtime.NumCPU(),
		stdout:   io.Discard,
		stderr:   io.Discard,
		logger:   logging.Get("installer"),
	}
	for _, r := range remotes {
		i.remotes[r.Name()] = r
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install processes g level by level. Nodes of one level run in
// parallel; a node starts once all its upstream nodes are done. A
// failure skips the consumers of the failed node but not the other
// branches. The returned error is only set when ctx is canceled.
func (i *Installer) Install(ctx context.Context, g *graph.Graph) (*Report, error) {
	defer logging.Start(i.logger, "install")()
	report := &Report{}
	blocked := map[*graph.Node]bool{}
	var mu sync.Mutex

	for _, level := range g.Levels() {
		var eg errgroup.Group
		eg.SetLimit(i.jobs)
		for _, n := range level {
			if n.IsRoot() || n.Binary == graph.BinarySkip {
				continue
			}
			mu.Lock()
			skip := ctx.Err() != nil || upstreamBlocked(n, blocked)
			if skip {
				blocked[n] = true
				n.State = graph.Skipped
				report.Skipped = append(report.Skipped, n)
			}
			mu.Unlock()
			if skip {
				continue
			}
			eg.Go(func() error {
				err := i.install(ctx, n)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					i.logger.Error().Err(err).Str("ref", n.String()).Msg("Install failed")
					n.State = graph.Failed
					blocked[n] = true
					report.Failed = append(report.Failed, Failure{Node: n, Err: err})
					return nil
				}
				report.Succeeded = append(report.Succeeded, n)
				return nil
			})
		}
		eg.Wait()
	}
	return report, ctx.Err()
}

func upstreamBlocked(n *graph.Node, blocked map[*graph.Node]bool) bool {
	for _, d := range n.Dependencies() {
		if blocked[d] {
			return true
		}
	}
	return false
}

func (i *Installer) install(ctx context.Context, n *graph.Node) error {
	if n.Binary == graph.BinaryUnknown {
		if err := i.analyzer.Reevaluate(ctx, n); err != nil {
			return err
		}
		if n.Binary == graph.BinaryUnknown {
			return errs.New(errs.InvalidConfig, n.String(), "package id still depends on unknown package revisions")
		}
		i.logger.Info().Str("ref", n.Ref.String()).Str("binary", string(n.Binary)).Msg("Package id computed")
	}

	var err error
	switch n.Binary {
	case graph.BinaryCache:
		n.State = graph.Fetched
	case graph.BinaryDownload:
		err = i.download(ctx, n)
	case graph.BinaryBuild:
		err = i.build(ctx, n)
	case graph.BinaryEditable:
		err = i.buildEditable(ctx, n)
	case graph.BinaryInvalid:
		err = errs.Wrap(errs.InvalidConfig, n.String(), n.Invalid)
	case graph.BinaryMissing:
		err = errs.New(errs.MissingBinary, n.String(), "no binary for package id %s", n.Ref.PkgID)
	default:
		err = fmt.Errorf("%s: unexpected binary %q", n, n.Binary)
	}
	if err != nil {
		return err
	}
	return i.packageInfo(n)
}

func config(n *graph.Node) *recipe.Config {
	return &recipe.Config{
		Ref:      n.Ref,
		Context:  string(n.Context),
		Settings: n.Settings,
		Options:  n.Options,
		Conf:     n.Conf,
	}
}

// packageInfo runs the package_info hook, which tells consumers how to
// use the installed package.
func (i *Installer) packageInfo(n *graph.Node) error {
	info := recipe.NewCppInfo()
	if err := i.loader.Call(n.Recipe, recipe.PackageInfo, &recipe.Context{Config: config(n), CppInfo: info}); err != nil {
		return errs.Wrap(errs.BuildFailed, n.String(), err)
	}
	n.CppInfo = info
	return nil
}

// ensureRecipe fetches the recipe of n from r when the cache lost it.
func (i *Installer) ensureRecipe(ctx context.Context, n *graph.Node, r remote.Remote) error {
	rr := n.Ref.Recipe()
	if i.cache.HasRecipe(rr) {
		return nil
	}
	tmp, err := i.cache.TempDir("recipe-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)
	if err := r.GetRecipe(ctx, rr, tmp); err != nil {
		return err
	}
	export := filepath.Join(tmp, "export")
	file, err := loader.RecipeFile(export)
	if err != nil {
		return err
	}
	meta := cache.RecipeMetadata{Recipe: file, Timestamp: n.Recipe.Timestamp, Remote: r.Name()}
	return i.cache.PutRecipe(rr, export, filepath.Join(tmp, "export_sources"), meta)
}

func (i *Installer) download(ctx context.Context, n *graph.Node) error {
	r, ok := i.remotes[n.BinaryRemote]
	if !ok {
		return fmt.Errorf("%s: unknown remote %q", n, n.BinaryRemote)
	}
	if err := i.ensureRecipe(ctx, n, r); err != nil {
		return err
	}
	staged, err := i.cache.TempDir("package-")
	if err != nil {
		return err
	}
	if err := r.GetPackage(ctx, n.Ref, staged); err != nil {
		os.RemoveAll(staged)
		return err
	}
	if err := i.cache.PromotePackage(n.Ref, staged, cache.PackageMetadata{Remote: r.Name()}); err != nil {
		return err
	}
	n.State = graph.Fetched
	return nil
}

// dependencies returns what the build of n sees: every package of its
// transitive table, by name. A library shadows a tool of the same name.
func (i *Installer) dependencies(n *graph.Node) map[string]*recipe.Dependency {
	out := make(map[string]*recipe.Dependency, len(n.Transitive))
	for _, d := range n.TransitiveDeps() {
		if prev, ok := out[d.Node.Ref.Name]; ok && !prev.Tool {
			continue
		}
		out[d.Node.Ref.Name] = &recipe.Dependency{
			Ref:        d.Node.Ref,
			PackageDir: i.packageDir(d.Node),
			CppInfo:    d.Node.CppInfo,
			Tool:       d.Traits.Build,
		}
	}
	return out
}

func (i *Installer) packageDir(n *graph.Node) string {
	if n.Binary == graph.BinaryEditable {
		return filepath.Join(n.Editable, "package")
	}
	return i.cache.PackageDir(n.Ref)
}

// run calls the build and package hooks of n in bc.
func (i *Installer) run(n *graph.Node, bc *recipe.BuildContext) error {
	for _, dir := range []string{bc.SourceDir, bc.BuildDir, bc.PackageDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	for _, m := range []recipe.Method{recipe.Build, recipe.Package} {
		start := time.Now()
		if err := i.loader.Call(n.Recipe, m, &recipe.Context{Build: bc}); err != nil {
			return errs.Wrap(errs.BuildFailed, n.String(), err)
		}
		i.logger.Debug().Str("ref", n.String()).Str("method", string(m)).Dur("duration", time.Since(start)).Msg("Recipe method done")
	}
	return nil
}

// build builds n in a fresh folder below the build root of its recipe
// revision, then stores the packaged files as a new package revision:
// the manifest summary of the package folder.
func (i *Installer) build(ctx context.Context, n *graph.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rr := n.Ref.Recipe()
	dir := filepath.Join(i.cache.BuildRoot(rr), n.Ref.PkgID+"-"+uuid.NewString())
	staged, err := i.cache.TempDir("package-")
	if err != nil {
		return err
	}
	bc := &recipe.BuildContext{
		Config:     config(n),
		SourceDir:  filepath.Join(dir, "src"),
		BuildDir:   filepath.Join(dir, "build"),
		PackageDir: staged,
		Deps:       i.dependencies(n),
		Stdout:     i.stdout,
		Stderr:     i.stderr,
	}
	if _, err := recipe.CopyFiles("**", i.cache.ExportSourcesDir(rr), bc.SourceDir); err != nil {
		os.RemoveAll(staged)
		return fmt.Errorf("%s: copy sources: %w", n, err)
	}
	i.logger.Info().Str("ref", n.Ref.String()).Str("dir", dir).Msg("Building")
	if err := i.run(n, bc); err != nil {
		os.RemoveAll(staged)
		return err
	}

	if err := os.WriteFile(filepath.Join(staged, cache.InfoFile), []byte(packageid.Text(n.Info)), 0644); err != nil {
		os.RemoveAll(staged)
		return err
	}
	m, err := cache.WriteManifest(staged)
	if err != nil {
		os.RemoveAll(staged)
		return err
	}
	size := dirSize(staged)
	n.Ref.PRev = m.Summary()
	if err := i.cache.PromotePackage(n.Ref, staged, cache.PackageMetadata{}); err != nil {
		return err
	}
	os.RemoveAll(dir)
	n.State = graph.Built
	i.logger.Info().Str("ref", n.Ref.String()).Int("files", len(m.Files)).Str("size", humanize.Bytes(uint64(size))).Msg("Built")
	return nil
}

// buildEditable builds n in its user folder. Nothing is stored in the
// cache and no package revision is computed.
func (i *Installer) buildEditable(ctx context.Context, n *graph.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bc := &recipe.BuildContext{
		Config:     config(n),
		SourceDir:  n.Editable,
		BuildDir:   filepath.Join(n.Editable, "build"),
		PackageDir: i.packageDir(n),
		Deps:       i.dependencies(n),
		Stdout:     i.stdout,
		Stderr:     i.stderr,
	}
	i.logger.Info().Str("ref", n.Ref.String()).Str("dir", n.Editable).Msg("Building editable")
	if err := i.run(n, bc); err != nil {
		return err
	}
	n.State = graph.Built
	return nil
}

func dirSize(dir string) int64 {
	var size int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			size += fi.Size()
		}
		return nil
	})
	return size
}
