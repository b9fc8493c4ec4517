// Package deps expands a dependency graph from its root: it configures
// every node, computes its requirements, resolves them and propagates
// what each consumer sees of its transitive dependencies.
package deps

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/loader"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/internal/options"
	"github.com/goplus/llpm/internal/profile"
	"github.com/goplus/llpm/internal/resolver"
	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/pkgs/version"
	"github.com/goplus/llpm/recipe"
)

// maxRestarts bounds how often a late force may restart expansion.
const maxRestarts = 16

// Builder expands graphs. Expansion is single threaded and
// deterministic for a given cache, remotes and profiles.
type Builder struct {
	loader   *loader.Loader
	resolver *resolver.Resolver
	host     *profile.Profile
	build    *profile.Profile
	logger   zerolog.Logger
}

// New returns a builder applying host to host-context nodes and build to
// tools and their dependencies. A nil build profile is host.
func New(l *loader.Loader, r *resolver.Resolver, host, build *profile.Profile) *Builder {
	host, build = profile.Pair(host, build)
	return &Builder{
		loader:   l,
		resolver: r,
		host:     host,
		build:    build,
		logger:   logging.Get("deps"),
	}
}

// restart is returned when a force shows up after the forced package was
// already expanded at another version.
type restart struct {
	key graph.Key
	ref ref.Reference
}

func (r *restart) Error() string {
	return fmt.Sprintf("force of %s after %s was expanded", r.ref, r.key)
}

// Build expands the graph below root. Expansion stops at the first error,
// which is stored in the returned graph's Err.
func (b *Builder) Build(ctx context.Context, root *graph.Node) *graph.Graph {
	pins := map[graph.Key]ref.Reference{}
	for range maxRestarts {
		b.resolver.Reset()
		e := &expansion{Builder: b, ctx: ctx, pins: pins}
		g := e.run(root)

		var rs *restart
		if !errors.As(g.Err, &rs) {
			b.logger.Debug().Int("nodes", len(g.Nodes)).Err(g.Err).Msg("Expanded graph")
			return g
		}
		if prev, ok := pins[rs.key]; ok && prev.String() == rs.ref.String() {
			g.Err = errs.New(errs.VersionConflict, rs.ref.String(), "force conflicts with another force of %s", rs.key.Name)
			return g
		}
		b.logger.Info().Str("force", rs.ref.String()).Msg("Restarting expansion with pinned reference")
		pins[rs.key] = rs.ref
	}
	g := graph.New(reset(root))
	g.Err = errs.New(errs.VersionConflict, root.String(), "forces did not settle after %d restarts", maxRestarts)
	return g
}

// reset returns root to the state before expansion.
func reset(root *graph.Node) *graph.Node {
	root.Deps, root.Dependants = nil, nil
	root.Transitive = map[graph.Key]*graph.Dep{}
	root.Overrides = map[graph.Key]*recipe.Requirement{}
	root.Requires = nil
	root.Invalid = nil
	root.Binary = ""
	root.State = graph.Created
	return root
}

type expansion struct {
	*Builder
	ctx   context.Context
	pins  map[graph.Key]ref.Reference
	graph *graph.Graph
	queue []*graph.Node
}

func (e *expansion) run(root *graph.Node) *graph.Graph {
	e.graph = graph.New(reset(root))
	if err := e.configure(root, nil); err != nil {
		e.graph.Err = err
		return e.graph
	}
	e.queue = []*graph.Node{root}
	for len(e.queue) > 0 {
		n := e.queue[0]
		e.queue = e.queue[1:]
		if err := e.expand(n); err != nil {
			e.graph.Err = err
			return e.graph
		}
	}
	return e.graph
}

func (e *expansion) profile(c graph.Context) *profile.Profile {
	if c == graph.Build {
		return e.build
	}
	return e.host
}

func (e *expansion) config(n *graph.Node) *recipe.Config {
	return &recipe.Config{
		Ref:      n.Ref,
		Context:  string(n.Context),
		Settings: n.Settings,
		Options:  n.Options,
		Conf:     n.Conf,
	}
}

// configure computes the settings and options of n, reached from its
// parent through req, then runs the configure and validate hooks. A
// validate failure marks n Invalid without failing the expansion.
func (e *expansion) configure(n *graph.Node, req *recipe.Requirement) error {
	p := e.profile(n.Context)
	rec := n.Recipe
	if n.Kind != graph.Virtual {
		settings, err := e.loader.ProjectSettings(rec, p, n.Ref, n.IsConsumer())
		if err != nil {
			return err
		}
		n.Settings = settings
		res, err := options.Resolve(options.Input{
			Ref:        n.Ref,
			IsConsumer: n.IsConsumer(),
			Schema:     rec.Options,
			Defaults:   rec.DefaultOptions,
			Downstream: downstream(n.Parent, req, n.Ref.Name),
			Profile:    p.Options,
		})
		if err != nil {
			return err
		}
		n.Options, n.Explicit = res.Values, res.Explicit
	}
	n.Conf = maps.Clone(p.Conf)

	cfg := e.config(n)
	if err := e.loader.Call(rec, recipe.Configure, &recipe.Context{Config: cfg}); err != nil {
		return errs.Wrap(errs.InvalidConfig, n.String(), err)
	}
	if err := n.Options.Err(); err != nil {
		return errs.Wrap(errs.InvalidConfig, n.String(), err)
	}
	n.Type = recipe.ResolveType(rec.PackageType, n.Options)
	n.State = graph.Configured

	if err := e.loader.Call(rec, recipe.Validate, &recipe.Context{Config: cfg}); err != nil {
		n.Invalid = errs.Wrap(errs.InvalidConfig, n.String(), err)
		n.Binary = graph.BinaryInvalid
		e.logger.Debug().Str("node", n.String()).Err(err).Msg("Invalid configuration")
	}
	return nil
}

// requirements returns the static requirements of n, those computed by
// its requirements hook and the tool requirements its profile adds.
func (e *expansion) requirements(n *graph.Node) ([]*recipe.Requirement, error) {
	var out []*recipe.Requirement
	for _, r := range n.Recipe.Requires {
		out = append(out, r.Clone())
	}
	deps := new(recipe.Deps)
	ctx := &recipe.Context{Config: e.config(n), Deps: deps}
	if err := e.loader.Call(n.Recipe, recipe.Requirements, ctx); err != nil {
		return nil, errs.Wrap(errs.LoadError, n.String(), err)
	}
	out = append(out, deps.Requirements()...)

	tools := new(recipe.Deps)
	for _, tr := range e.profile(n.Context).ToolRequiresFor(n.Ref, n.IsConsumer()) {
		tools.ToolRequire(tr)
	}
	out = append(out, tools.Requirements()...)
	return out, nil
}

func (e *expansion) expand(n *graph.Node) error {
	reqs, err := e.requirements(n)
	if err != nil {
		return err
	}
	n.Requires = reqs
	n.State = graph.RequirementsComputed
	for _, req := range reqs {
		if req.Traits.Override || req.Traits.Force {
			if r, err := ref.Parse(req.Ref); err == nil {
				n.Overrides[requireKey(n, req, r)] = req
			}
		}
	}

	for _, req := range reqs {
		if err := e.require(n, req); err != nil {
			return err
		}
	}
	n.State = graph.Expanded
	return nil
}

// require adds the dependency req of n.
func (e *expansion) require(n *graph.Node, req *recipe.Requirement) error {
	r, err := ref.Parse(req.Ref)
	if err != nil {
		return errs.Wrap(errs.Parse, n.String(), err)
	}
	key := requireKey(n, req, r)

	if req.Traits.Override {
		// Overrides only replace what the subtree requires.
		return nil
	}
	forced := req.Traits.Force
	if o := e.replacement(n, req, key); o != nil {
		if r, err = ref.Parse(o.Ref); err != nil {
			return errs.Wrap(errs.Parse, n.String(), err)
		}
		forced = forced || o.Traits.Force
	}
	if pin, ok := e.pins[key]; ok {
		r, forced = pin, true
	}

	for _, a := range n.Ancestors() {
		if a.Kind == graph.Regular && a.Key() == key {
			return errs.New(errs.Loop, r.String(), "%s requires itself through %s", a, n)
		}
	}

	if existing := findExisting(n, key); existing != nil {
		return e.unify(n, req, r, forced, key, existing)
	}
	return e.create(n, req, r, forced, key)
}

// requireKey returns the key of the dependency req of n: tools live in
// the build context, everything else in the context of n.
func requireKey(n *graph.Node, req *recipe.Requirement, r ref.Reference) graph.Key {
	if req.Tool {
		return graph.Key{Name: r.Name, Context: graph.Build}
	}
	return graph.Key{Name: r.Name, Context: n.Context}
}

// replacement returns the override or force of key declared by an
// ancestor of n. The one nearest to the root wins.
func (e *expansion) replacement(n *graph.Node, req *recipe.Requirement, key graph.Key) *recipe.Requirement {
	var found *recipe.Requirement
	for _, a := range n.Ancestors() {
		if o, ok := a.Overrides[key]; ok && o != req {
			found = o
		}
	}
	return found
}

// findExisting looks up key in the transitive tables of n and its
// ancestors, nearest first.
func findExisting(n *graph.Node, key graph.Key) *graph.Dep {
	for _, a := range n.Ancestors() {
		if d, ok := a.Transitive[key]; ok {
			return d
		}
	}
	return nil
}

// create resolves r and adds a new node for it below n.
func (e *expansion) create(n *graph.Node, req *recipe.Requirement, r ref.Reference, forced bool, key graph.Key) error {
	res, err := e.resolver.Resolve(e.ctx, r, key.Context == graph.Build)
	if err != nil {
		return err
	}
	rec := res.Recipe
	dep := graph.NewNode(graph.Regular, rec.Ref, rec, key.Context)
	dep.Parent = n
	dep.AliasChain = res.AliasChain
	e.graph.Add(dep)
	e.logger.Debug().Str("node", dep.String()).Str("from", n.String()).Msg("Added node")

	if err := e.configure(dep, req); err != nil {
		return err
	}
	if err := e.connect(n, dep, req, forced); err != nil {
		return err
	}
	e.queue = append(e.queue, dep)
	return nil
}

// unify connects n to the node already reachable as key, provided it
// satisfies r and the options req demands.
func (e *expansion) unify(n *graph.Node, req *recipe.Requirement, r ref.Reference, forced bool, key graph.Key, existing *graph.Dep) error {
	dep := existing.Node
	if !satisfies(dep.Ref, r) {
		switch {
		case existing.Traits.Force:
		case forced:
			return &restart{key: key, ref: r}
		default:
			return errs.New(errs.VersionConflict, n.String(),
				"requires %s but %s already requires %s", r, existing.Require.Ref, dep.Ref)
		}
	}
	if k, bad := options.Conflict(dep.Options, demands(n, req, dep, e.profile(dep.Context).Options)); bad {
		return errs.New(errs.ConfigConflict, dep.String(),
			"%s demands option %s different from %q", n, k, dep.Options.Get(k))
	}
	if n.Edge(dep) != nil {
		return nil
	}
	if dep == n || slices.Contains(graph.Upstream(dep), n) {
		return errs.New(errs.Loop, dep.Ref.String(), "%s and %s require each other", n, dep)
	}
	return e.connect(n, dep, req, forced)
}

// satisfies reports whether the resolved reference got meets want.
func satisfies(got, want ref.Reference) bool {
	if got.Name != want.Name || got.User != want.User || got.Channel != want.Channel {
		return false
	}
	if want.RRev != "" && got.RRev != "" && want.RRev != got.RRev {
		return false
	}
	expr, err := want.Expr()
	if err != nil {
		return false
	}
	return expr.Contains(version.New(got.Version))
}

// connect adds the edge n → dep and propagates it, and what dep already
// exposes, to n and its consumers.
func (e *expansion) connect(n, dep *graph.Node, req *recipe.Requirement, forced bool) error {
	t := graph.DirectTraits(req, dep.Type)
	t.Force = t.Force || forced
	e.graph.Connect(n, dep, req, t)
	if err := e.addTransitive(n, &graph.Dep{Node: dep, Traits: t, Require: req}); err != nil {
		return err
	}
	for _, up := range dep.TransitiveDeps() {
		pt, ok := graph.Propagate(t, dep.Type, up.Traits, up.Node.Type)
		if !ok {
			continue
		}
		pt.Direct = false
		if err := e.addTransitive(n, &graph.Dep{Node: up.Node, Traits: pt, Require: up.Require}); err != nil {
			return err
		}
	}
	return nil
}

// addTransitive records d in the table of n and in the tables of the
// consumers n propagates it to.
func (e *expansion) addTransitive(n *graph.Node, d *graph.Dep) error {
	key := d.Node.Key()
	if cur, ok := n.Transitive[key]; ok {
		if cur.Node != d.Node {
			if cur.Node.Ref.Equal(d.Node.Ref) {
				return nil
			}
			return errs.New(errs.VersionConflict, n.String(),
				"sees both %s and %s", cur.Node.Ref, d.Node.Ref)
		}
		merged := cur.Traits.Merge(d.Traits)
		if merged == cur.Traits {
			return nil
		}
		cur.Traits = merged
		d = cur
	} else {
		n.Transitive[key] = d
	}
	for _, down := range n.Dependants {
		pt, ok := graph.Propagate(down.Traits, n.Type, d.Traits, d.Node.Type)
		if !ok {
			continue
		}
		pt.Direct = false
		if err := e.addTransitive(down.Src, &graph.Dep{Node: d.Node, Traits: pt, Require: d.Require}); err != nil {
			return err
		}
	}
	return nil
}
