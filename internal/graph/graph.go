// Package graph holds the dependency graph: nodes bound to loaded
// recipes, typed edges and the transitive tables the builder keeps.
package graph

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/recipe"
)

// Context tells which profile applies to a node.
type Context string

const (
	Host  Context = "host"
	Build Context = "build"
)

// Binary is the classification of a node's binary.
type Binary string

const (
	BinaryUnknown  Binary = "Unknown" // id depends on upstream package revisions
	BinaryCache    Binary = "Cache"
	BinaryDownload Binary = "Download"
	BinaryBuild    Binary = "Build"
	BinarySkip     Binary = "Skip"
	BinaryInvalid  Binary = "Invalid"
	BinaryMissing  Binary = "Missing"
	BinaryEditable Binary = "EditableBuild"
)

// State is the position of a node in its lifecycle.
type State int

const (
	Created State = iota
	Configured
	RequirementsComputed
	Expanded
	IDComputed
	Classified
	Built
	Fetched
	Skipped
	Failed
)

var stateNames = [...]string{
	"Created", "Configured", "RequirementsComputed", "Expanded",
	"IDComputed", "Classified", "Built", "Fetched", "Skipped", "Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Kind distinguishes referenced packages from graph roots.
type Kind int

const (
	Regular  Kind = iota
	Consumer      // root loaded from a user recipe file
	Virtual       // synthetic root carrying requirements
)

// Key identifies a dependency within a transitive table. The same
// package may live once per context.
type Key struct {
	Name    string
	Context Context
}

func (k Key) String() string {
	return k.Name + "@" + string(k.Context)
}

// Dep is an entry of a transitive table: an upstream node and what the
// table owner sees of it.
type Dep struct {
	Node    *Node
	Traits  Traits
	Require *recipe.Requirement // the requirement that introduced it
}

// Node is a package in the graph.
type Node struct {
	ID      int
	Kind    Kind
	Ref     ref.Reference // resolved, with RRev; PkgID and PRev once known
	Recipe  *recipe.Recipe
	Context Context
	Parent  *Node // the consumer that first required the node

	// AliasChain lists the references followed to reach Ref.
	AliasChain []string

	Settings *recipe.Values
	Options  *recipe.Values
	Conf     map[string]string
	Type     recipe.Type

	// Explicit holds the option values consumers or the profile
	// demanded, checked against later consumers of the same node.
	Explicit map[string]string

	Requires   []*recipe.Requirement
	Deps       []*Edge // towards upstream
	Dependants []*Edge // towards downstream

	Transitive map[Key]*Dep
	// Overrides holds the override and force requirements this node
	// declared, by the key they replace.
	Overrides map[Key]*recipe.Requirement

	State        State
	Binary       Binary
	BinaryRemote string // remote providing a Download
	Info         *recipe.Info
	// Compatible is the original package id when a compatible binary
	// replaced it.
	Compatible string
	Invalid    error
	Editable   string // user folder of an editable package
	CppInfo    *recipe.CppInfo
}

// NewNode returns a node in the Created state.
func NewNode(kind Kind, r ref.Reference, rec *recipe.Recipe, ctx Context) *Node {
	return &Node{
		Kind:       kind,
		Ref:        r,
		Recipe:     rec,
		Context:    ctx,
		Conf:       map[string]string{},
		Explicit:   map[string]string{},
		Transitive: map[Key]*Dep{},
		Overrides:  map[Key]*recipe.Requirement{},
		Settings:   recipe.NewValues(nil),
		Options:    recipe.NewOptions(nil),
		Type:       recipe.Unknown,
	}
}

// Key returns the transitive table key of n.
func (n *Node) Key() Key {
	return Key{Name: n.Ref.Name, Context: n.Context}
}

// IsRoot reports whether n is a consumer or virtual root.
func (n *Node) IsRoot() bool {
	return n.Kind != Regular
}

// IsConsumer reports whether n is the user recipe at the root.
func (n *Node) IsConsumer() bool {
	return n.Kind == Consumer
}

// PackageID returns the current package id, or "".
func (n *Node) PackageID() string {
	return n.Ref.PkgID
}

func (n *Node) String() string {
	switch n.Kind {
	case Virtual:
		return "virtual"
	case Consumer:
		if n.Recipe != nil && n.Recipe.Path != "" {
			return n.Recipe.Path
		}
		return "consumer"
	}
	if n.Context == Build {
		return n.Ref.Recipe().String() + " (build)"
	}
	return n.Ref.Recipe().String()
}

// Dependencies returns the direct upstream nodes, in requirement order.
func (n *Node) Dependencies() []*Node {
	out := make([]*Node, 0, len(n.Deps))
	for _, e := range n.Deps {
		out = append(out, e.Dst)
	}
	return out
}

// Edge returns the edge from n to dst, or nil.
func (n *Node) Edge(dst *Node) *Edge {
	for _, e := range n.Deps {
		if e.Dst == dst {
			return e
		}
	}
	return nil
}

// TransitiveDeps returns the transitive table ordered by key.
func (n *Node) TransitiveDeps() []*Dep {
	keys := slices.SortedFunc(maps.Keys(n.Transitive), func(a, b Key) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Context, b.Context)
	})
	out := make([]*Dep, 0, len(keys))
	for _, k := range keys {
		out = append(out, n.Transitive[k])
	}
	return out
}

// Ancestors returns n and the chain of consumers that first required
// it, from n to the root.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for a := n; a != nil; a = a.Parent {
		out = append(out, a)
	}
	return out
}

// Edge is a requirement from Src, the consumer, to Dst.
type Edge struct {
	Src     *Node
	Dst     *Node
	Require *recipe.Requirement
	Traits  Traits
}

// Graph is the expanded dependency graph. Expansion failures are kept
// in Err rather than returned so that callers can render the partial
// graph.
type Graph struct {
	Root  *Node
	Nodes []*Node
	Err   error
}

// New returns a graph rooted at root.
func New(root *Node) *Graph {
	g := &Graph{}
	g.Add(root)
	g.Root = root
	return g
}

// Add inserts n and assigns its id.
func (g *Graph) Add(n *Node) {
	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
}

// Connect adds an edge from src to dst.
func (g *Graph) Connect(src, dst *Node, req *recipe.Requirement, t Traits) *Edge {
	e := &Edge{Src: src, Dst: dst, Require: req, Traits: t}
	src.Deps = append(src.Deps, e)
	dst.Dependants = append(dst.Dependants, e)
	return e
}

// Levels returns the nodes in Kahn levels, leaves first. Nodes of one
// level do not depend on each other and are ordered by id.
func (g *Graph) Levels() [][]*Node {
	pending := make(map[*Node]int, len(g.Nodes))
	for _, n := range g.Nodes {
		pending[n] = len(uniqueDeps(n))
	}
	var levels [][]*Node
	var current []*Node
	for _, n := range g.Nodes {
		if pending[n] == 0 {
			current = append(current, n)
		}
	}
	for len(current) > 0 {
		levels = append(levels, current)
		var next []*Node
		for _, n := range current {
			for _, d := range uniqueDependants(n) {
				pending[d]--
				if pending[d] == 0 {
					next = append(next, d)
				}
			}
		}
		slices.SortFunc(next, func(a, b *Node) int { return cmp.Compare(a.ID, b.ID) })
		current = next
	}
	return levels
}

func uniqueDeps(n *Node) []*Node {
	var out []*Node
	for _, e := range n.Deps {
		if !slices.Contains(out, e.Dst) {
			out = append(out, e.Dst)
		}
	}
	return out
}

func uniqueDependants(n *Node) []*Node {
	var out []*Node
	for _, e := range n.Dependants {
		if !slices.Contains(out, e.Src) {
			out = append(out, e.Src)
		}
	}
	return out
}

// Order returns the nodes flattened from Levels.
func (g *Graph) Order() []*Node {
	var out []*Node
	for _, level := range g.Levels() {
		out = append(out, level...)
	}
	return out
}

// Find returns the first node whose reference key and context match.
func (g *Graph) Find(name string, ctx Context) *Node {
	for _, n := range g.Nodes {
		if n.Kind == Regular && n.Ref.Name == name && n.Context == ctx {
			return n
		}
	}
	return nil
}

// Upstream returns every node n transitively depends on, without n.
func Upstream(n *Node) []*Node {
	seen := map[*Node]bool{n: true}
	var out []*Node
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range cur.Deps {
			if !seen[e.Dst] {
				seen[e.Dst] = true
				out = append(out, e.Dst)
				stack = append(stack, e.Dst)
			}
		}
	}
	slices.SortFunc(out, func(a, b *Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
