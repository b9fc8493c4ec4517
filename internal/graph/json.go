package graph

import (
	"encoding/json"
	"strconv"
)

// nodeJSON is the machine-readable form of a node, as printed by
// "llpm graph --format json".
type nodeJSON struct {
	ID           int                    `json:"id"`
	Ref          string                 `json:"ref"`
	Context      Context                `json:"context"`
	Type         string                 `json:"package_type"`
	State        string                 `json:"state"`
	Binary       Binary                 `json:"binary,omitempty"`
	BinaryRemote string                 `json:"binary_remote,omitempty"`
	PackageID    string                 `json:"package_id,omitempty"`
	PRev         string                 `json:"prev,omitempty"`
	Compatible   string                 `json:"compatible_from,omitempty"`
	Invalid      string                 `json:"invalid,omitempty"`
	AliasChain   []string               `json:"alias_chain,omitempty"`
	Settings     map[string]string      `json:"settings"`
	Options      map[string]string      `json:"options"`
	Dependencies map[string]Traits      `json:"dependencies"`
	Transitive   map[string]*depSummary `json:"transitive,omitempty"`
}

type depSummary struct {
	ID     int    `json:"id"`
	Traits Traits `json:"traits"`
}

type graphJSON struct {
	Root  int        `json:"root"`
	Nodes []nodeJSON `json:"nodes"`
	Error string     `json:"error,omitempty"`
}

// MarshalJSON renders the graph with nodes keyed by id.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{Nodes: make([]nodeJSON, 0, len(g.Nodes))}
	if g.Root != nil {
		out.Root = g.Root.ID
	}
	if g.Err != nil {
		out.Error = g.Err.Error()
	}
	for _, n := range g.Nodes {
		nj := nodeJSON{
			ID:           n.ID,
			Ref:          n.String(),
			Context:      n.Context,
			Type:         string(n.Type),
			State:        n.State.String(),
			Binary:       n.Binary,
			BinaryRemote: n.BinaryRemote,
			PackageID:    n.Ref.PkgID,
			PRev:         n.Ref.PRev,
			Compatible:   n.Compatible,
			AliasChain:   n.AliasChain,
			Settings:     n.Settings.Map(),
			Options:      n.Options.Map(),
			Dependencies: make(map[string]Traits, len(n.Deps)),
		}
		if n.Invalid != nil {
			nj.Invalid = n.Invalid.Error()
		}
		for _, e := range n.Deps {
			nj.Dependencies[strconv.Itoa(e.Dst.ID)] = e.Traits
		}
		for _, d := range n.TransitiveDeps() {
			if nj.Transitive == nil {
				nj.Transitive = map[string]*depSummary{}
			}
			nj.Transitive[d.Node.Key().String()] = &depSummary{ID: d.Node.ID, Traits: d.Traits}
		}
		out.Nodes = append(out.Nodes, nj)
	}
	return json.Marshal(out)
}
