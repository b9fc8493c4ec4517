package graph

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/recipe"
)

func regular(name string) *Node {
	return NewNode(Regular, ref.MustParse(name+"/1.0#r1"), nil, Host)
}

// diamond returns root → {libb, libc} → liba.
func diamond() (*Graph, map[string]*Node) {
	root := NewNode(Virtual, ref.Reference{}, nil, Host)
	g := New(root)
	nodes := map[string]*Node{"root": root}
	for _, name := range []string{"libb", "libc", "liba"} {
		n := regular(name)
		g.Add(n)
		nodes[name] = n
	}
	lib := Traits{Headers: true, Libs: true, Visible: true, Direct: true}
	g.Connect(root, nodes["libb"], nil, lib)
	g.Connect(root, nodes["libc"], nil, lib)
	g.Connect(nodes["libb"], nodes["liba"], nil, lib)
	g.Connect(nodes["libc"], nodes["liba"], nil, lib)
	return g, nodes
}

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.String())
	}
	return out
}

func TestLevels(t *testing.T) {
	g, _ := diamond()
	var got [][]string
	for _, level := range g.Levels() {
		got = append(got, names(level))
	}
	want := [][]string{{"liba/1.0#r1"}, {"libb/1.0#r1", "libc/1.0#r1"}, {"virtual"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Levels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"liba/1.0#r1", "libb/1.0#r1", "libc/1.0#r1", "virtual"}, names(g.Order())); diff != "" {
		t.Errorf("Order (-want +got):\n%s", diff)
	}
}

func TestUpstream(t *testing.T) {
	g, nodes := diamond()
	if diff := cmp.Diff([]string{"libb/1.0#r1", "libc/1.0#r1", "liba/1.0#r1"}, names(Upstream(g.Root))); diff != "" {
		t.Errorf("Upstream(root) (-want +got):\n%s", diff)
	}
	if got := Upstream(nodes["liba"]); len(got) != 0 {
		t.Errorf("Upstream(liba) = %v", names(got))
	}
	if e := nodes["libb"].Edge(nodes["liba"]); e == nil || e.Src != nodes["libb"] {
		t.Errorf("Edge(libb, liba) = %v", e)
	}
	if e := nodes["libb"].Edge(nodes["libc"]); e != nil {
		t.Errorf("Edge(libb, libc) = %v, want nil", e)
	}
}

func TestFind(t *testing.T) {
	g, nodes := diamond()
	tool := NewNode(Regular, ref.MustParse("liba/1.0#r1"), nil, Build)
	g.Add(tool)
	if got := g.Find("liba", Host); got != nodes["liba"] {
		t.Errorf("Find(liba, host) = %v", got)
	}
	if got := g.Find("liba", Build); got != tool {
		t.Errorf("Find(liba, build) = %v", got)
	}
	if got := tool.String(); got != "liba/1.0#r1 (build)" {
		t.Errorf("String = %q", got)
	}
	if got := g.Find("virtual", Host); got != nil {
		t.Errorf("Find(virtual) = %v, want nil", got)
	}
}

func TestDirectTraits(t *testing.T) {
	no := false
	tests := []struct {
		name string
		req  *recipe.Requirement
		typ  recipe.Type
		want Traits
	}{
		{"static", &recipe.Requirement{}, recipe.StaticLibrary, Traits{Headers: true, Libs: true, Visible: true, Direct: true}},
		{"shared", &recipe.Requirement{}, recipe.SharedLibrary, Traits{Headers: true, Libs: true, Run: true, Visible: true, Direct: true}},
		{"header", &recipe.Requirement{}, recipe.HeaderLibrary, Traits{Headers: true, Visible: true, Direct: true}},
		{"application", &recipe.Requirement{}, recipe.Application, Traits{Run: true, Visible: true, Direct: true}},
		{"tool", &recipe.Requirement{Tool: true}, recipe.Application, Traits{Run: true, Build: true, Direct: true}},
		{"private", &recipe.Requirement{Traits: recipe.Traits{Visible: &no}}, recipe.StaticLibrary, Traits{Headers: true, Libs: true, Direct: true}},
		{"no libs", &recipe.Requirement{Traits: recipe.Traits{Libs: &no}}, recipe.StaticLibrary, Traits{Headers: true, Visible: true, Direct: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, DirectTraits(tt.req, tt.typ)); diff != "" {
				t.Errorf("DirectTraits (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPropagate(t *testing.T) {
	lib := Traits{Headers: true, Libs: true, Visible: true, Direct: true}
	shared := Traits{Headers: true, Libs: true, Run: true, Visible: true, Direct: true}
	tool := Traits{Build: true, Run: true, Direct: true}
	tests := []struct {
		name   string
		down   Traits
		mid    recipe.Type
		up     Traits
		upType recipe.Type
		want   Traits
		ok     bool
	}{
		{"static static", lib, recipe.StaticLibrary, lib, recipe.StaticLibrary, Traits{Headers: true, Libs: true, Visible: true}, true},
		{"static shared", lib, recipe.StaticLibrary, lib, recipe.SharedLibrary, Traits{Libs: true, Run: true, Visible: true}, true},
		{"shared static", lib, recipe.SharedLibrary, lib, recipe.StaticLibrary, Traits{Visible: true}, true},
		{"header only", lib, recipe.HeaderLibrary, lib, recipe.StaticLibrary, Traits{Headers: true, Visible: true}, true},
		{"private", lib, recipe.StaticLibrary, Traits{Headers: true, Libs: true}, recipe.StaticLibrary, Traits{}, false},
		{"tool of a library", lib, recipe.StaticLibrary, tool, recipe.Application, Traits{}, false},
		{"through a tool edge", tool, recipe.Application, shared, recipe.SharedLibrary, Traits{Run: true, Build: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Propagate(tt.down, tt.mid, tt.up, tt.upType)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Propagate (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	a := Traits{Headers: true, Build: true, Visible: false}
	b := Traits{Libs: true, Build: false, Visible: true, Direct: true}
	want := Traits{Headers: true, Libs: true, Visible: true, Direct: true}
	if diff := cmp.Diff(want, a.Merge(b)); diff != "" {
		t.Errorf("Merge (-want +got):\n%s", diff)
	}
	if got := want.String(); got != "headers,libs,visible,direct" {
		t.Errorf("String = %q", got)
	}
}

func TestMarshalJSON(t *testing.T) {
	g, nodes := diamond()
	nodes["liba"].Binary = BinaryCache
	nodes["liba"].Ref = ref.MustParse("liba/1.0#r1:p1#v1")
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Root  int `json:"root"`
		Nodes []struct {
			ID           int                        `json:"id"`
			Binary       string                     `json:"binary"`
			PackageID    string                     `json:"package_id"`
			Dependencies map[string]json.RawMessage `json:"dependencies"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Root != 0 || len(out.Nodes) != 4 {
		t.Fatalf("root %d, %d nodes", out.Root, len(out.Nodes))
	}
	if got := len(out.Nodes[0].Dependencies); got != 2 {
		t.Errorf("root dependencies = %d, want 2", got)
	}
	liba := out.Nodes[nodes["liba"].ID]
	if liba.Binary != "Cache" || liba.PackageID != "p1" {
		t.Errorf("liba = %+v", liba)
	}
}
