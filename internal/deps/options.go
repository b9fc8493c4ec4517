package deps

import (
	"maps"
	"slices"

	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/options"
	"github.com/goplus/llpm/recipe"
)

// downstream returns the option assignments the consumers of a package
// named name impose on it when parent requires it through req: the
// options of the requirement, then the scoped defaults of parent and of
// every ancestor up to the root. Later assignments win, so the consumer
// nearest to the root has the last word.
func downstream(parent *graph.Node, req *recipe.Requirement, name string) []options.Assignment {
	var out []options.Assignment
	if req != nil {
		for _, k := range slices.Sorted(maps.Keys(req.Options)) {
			out = append(out, options.Assignment{Pattern: name, Name: k, Value: req.Options[k]})
		}
	}
	if parent == nil {
		return out
	}
	for _, a := range parent.Ancestors() {
		if a.Recipe != nil && a.Recipe.Definition != nil {
			out = append(out, options.Scoped(a.Recipe.DefaultOptions)...)
		}
	}
	return out
}

// demands returns the option values n, requiring dep through req,
// insists on. Options dep does not hold and options the profile fixes
// for dep are left out: the profile outranks every consumer.
func demands(n *graph.Node, req *recipe.Requirement, dep *graph.Node, profile []options.Assignment) map[string]string {
	out := map[string]string{}
	for _, a := range downstream(n, req, dep.Ref.Name) {
		if a.Applies(dep.Ref, false) && dep.Options.Has(a.Name) {
			out[a.Name] = a.Value
		}
	}
	for _, a := range profile {
		if a.Applies(dep.Ref, false) {
			delete(out, a.Name)
		}
	}
	return out
}
