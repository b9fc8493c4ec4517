// Copyright 2024 The llpm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binaries decides, for every package of an expanded graph,
// where its binary comes from: the cache, a remote, a build, or nowhere.
package binaries

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/lockfile"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/internal/packageid"
	"github.com/goplus/llpm/internal/remote"
	"github.com/goplus/llpm/pkgs/ref"
)

// Analyzer classifies nodes. Reevaluate may be called concurrently for
// distinct nodes.
type Analyzer struct {
	cache     *cache.Cache
	hasher    *packageid.Hasher
	remotes   []remote.Remote
	policy    *Policy
	lock      *lockfile.Lockfile
	update    bool
	editables map[string]string
	logger    zerolog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLockfile restricts package revisions to those l pins.
func WithLockfile(l *lockfile.Lockfile) Option {
	return func(a *Analyzer) {
		a.lock = l
	}
}

// WithUpdate makes remotes compete with the cache: the newest package
// revision wins.
func WithUpdate(update bool) Option {
	return func(a *Analyzer) {
		a.update = update
	}
}

// WithEditables marks the packages keyed by "name/version@user/channel"
// as editable, built in the mapped user folder.
func WithEditables(editables map[string]string) Option {
	return func(a *Analyzer) {
		a.editables = editables
	}
}

// New returns an analyzer looking for binaries in c, then in remotes in
// order. A nil policy builds nothing.
func New(c *cache.Cache, h *packageid.Hasher, remotes []remote.Remote, policy *Policy, opts ...Option) *Analyzer {
	if policy == nil {
		policy = new(Policy)
	}
	a := &Analyzer{
		cache:   c,
		hasher:  h,
		remotes: remotes,
		policy:  policy,
		logger:  logging.Get("binaries"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the package id of every node, leaves first, and
// classifies it, then marks the packages nothing needs as skipped.
// Unknown, Invalid and Missing classifications are not errors here;
// see Check.
func (a *Analyzer) Analyze(ctx context.Context, g *graph.Graph) error {
	defer logging.Start(a.logger, "analyze")()
	for _, n := range g.Order() {
		if n.IsRoot() {
			continue
		}
		if err := a.classify(ctx, n); err != nil {
			return err
		}
	}
	Skip(g)
	return nil
}

// Reevaluate classifies n again once its upstream packages are
// installed. It is how Unknown nodes get an id.
func (a *Analyzer) Reevaluate(ctx context.Context, n *graph.Node) error {
	return a.classify(ctx, n)
}

func (a *Analyzer) classify(ctx context.Context, n *graph.Node) error {
	n.Binary, n.BinaryRemote, n.Compatible, n.Editable = "", "", "", ""
	res, err := a.hasher.Compute(n)
	n.State = graph.Classified
	switch {
	case n.Invalid != nil:
		n.Binary = graph.BinaryInvalid
		return nil
	case err != nil:
		return err
	case res.Unknown:
		n.Binary = graph.BinaryUnknown
		a.logger.Debug().Str("ref", n.String()).Msg("Package id depends on upstream package revisions")
		return nil
	}
	if dir, ok := a.editables[n.Ref.Key()]; ok {
		n.Binary, n.Editable = graph.BinaryEditable, dir
		return nil
	}
	if a.policy.Forced(n.Ref) {
		n.Binary = graph.BinaryBuild
		return nil
	}

	found, err := a.probe(ctx, n, n.Ref)
	if found || err != nil {
		return err
	}
	for _, id := range res.Compatibles {
		p := n.Ref
		p.PkgID = id
		found, err := a.probe(ctx, n, p)
		if err != nil {
			return err
		}
		if found {
			n.Compatible = res.ID
			a.logger.Info().Str("ref", n.String()).Str("id", res.ID).Str("compatible", id).Msg("Using compatible package")
			return nil
		}
	}

	if a.policy.BuildMissing(n.Ref) {
		n.Binary = graph.BinaryBuild
	} else {
		n.Binary = graph.BinaryMissing
	}
	return nil
}

// probe looks for package p, a reference with RRev and PkgID, in the
// cache then the remotes. When found, it stores p with its package
// revision in n.Ref and sets the classification.
func (a *Analyzer) probe(ctx context.Context, n *graph.Node, p ref.Reference) (bool, error) {
	p.PRev = ""
	build := n.Context == graph.Build
	var locked string
	pinned := false
	if a.lock != nil {
		locked, pinned = a.lock.PackageRevision(p, build)
	}

	var best ref.Revision
	var from string // remote name, "" for the cache
	found := false
	if pinned {
		pp := p
		pp.PRev = locked
		if a.cache.HasPackage(pp) {
			best, found = ref.Revision{ID: locked, Local: true}, true
		}
	} else if revs, err := a.cache.PackageRevisions(p); err != nil {
		return false, err
	} else if len(revs) > 0 {
		best, found = revs[0], true
	}

	if !found || a.update {
		for _, r := range a.remotes {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			revs, err := r.GetPackageRevisions(ctx, p)
			if err != nil {
				return false, fmt.Errorf("package revisions of %s in %s: %w", p, r.Name(), err)
			}
			rev, ok := pick(revs, locked, pinned)
			if !ok {
				continue
			}
			if !found || ref.CompareRevisions(rev, best) > 0 {
				best, from, found = rev, r.Name(), true
			}
			if !a.update {
				break
			}
		}
	}
	if !found {
		return false, nil
	}

	p.PRev = best.ID
	n.Ref = p
	if from == "" {
		n.Binary = graph.BinaryCache
	} else {
		n.Binary, n.BinaryRemote = graph.BinaryDownload, from
	}
	a.logger.Debug().Str("ref", p.String()).Str("binary", string(n.Binary)).Str("remote", from).Msg("Binary found")
	return true, nil
}

func pick(revs []ref.Revision, locked string, pinned bool) (ref.Revision, bool) {
	if !pinned {
		return ref.Latest(revs)
	}
	for _, rev := range revs {
		if rev.ID == locked {
			return rev, true
		}
	}
	return ref.Revision{}, false
}

// needsAll reports whether every dependency n sees must be installed:
// n is a root or gets built.
func needsAll(n *graph.Node) bool {
	if n.IsRoot() {
		return true
	}
	switch n.Binary {
	case graph.BinaryBuild, graph.BinaryEditable, graph.BinaryUnknown:
		return true
	}
	return false
}

// Skip marks as skipped the packages outside the closure required by
// the root and the packages to build. A package with a binary only
// needs the libraries it runs with, never its tools.
func Skip(g *graph.Graph) {
	required := map[*graph.Node]bool{}
	order := g.Order()
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if !n.IsRoot() && !required[n] {
			continue
		}
		all := needsAll(n)
		for _, d := range n.TransitiveDeps() {
			t := d.Traits
			if all && (t.Headers || t.Libs || t.Run || t.Build) || !t.Build && t.Run {
				required[d.Node] = true
			}
		}
	}
	for _, n := range g.Nodes {
		if !n.IsRoot() && !required[n] {
			n.Binary = graph.BinarySkip
		}
	}
}

// Check reports the packages that cannot be installed: invalid
// configurations and missing binaries.
func Check(g *graph.Graph) error {
	var errList []error
	for _, n := range g.Nodes {
		switch n.Binary {
		case graph.BinaryInvalid:
			errList = append(errList, errs.Wrap(errs.InvalidConfig, n.String(), n.Invalid))
		case graph.BinaryMissing:
			errList = append(errList, errs.New(errs.MissingBinary, n.String(),
				"no binary for package id %s; build it with --build=missing:%s", n.Ref.PkgID, n.Ref.Name))
		}
	}
	return errors.Join(errList...)
}
