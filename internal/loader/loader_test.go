package loader

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/profile"
	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/recipe"
)

// counting wraps an Evaluator and counts evaluations.
type counting struct {
	Evaluator
	n atomic.Int32
}

func (c *counting) Evaluate(path string) (*recipe.Definition, error) {
	c.n.Add(1)
	return c.Evaluator.Evaluate(path)
}

func writeRecipe(t *testing.T, dir, name, key string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(key), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRegistry() *Registry {
	reg := NewRegistry()
	reg.Add("zlib/1.3", func(app *recipe.RecipeApp) {
		app.Name("zlib")
		app.Version("1.3")
		app.PackageType("library")
		app.Settings("os", "arch", "build_type")
		app.Option("shared", []string{"True", "False"}, "False")
		app.ExportSources("src/*.c")
	})
	reg.Add("app", func(app *recipe.RecipeApp) {
		app.Settings("os", "arch")
		app.Requires("zlib/1.3")
	})
	return reg
}

func linuxProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Parse("linux", []byte(`
[settings]
os = "Linux"
arch = "x86_64"
build_type = "Release"
compiler = "gcc"
"compiler.version" = "13"
"compiler.libcxx" = "libstdc++11"
"zlib:build_type" = "Debug"
`))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadRecipe(t *testing.T) {
	eval := &counting{Evaluator: newRegistry()}
	l := New(eval)
	path := writeRecipe(t, t.TempDir(), "zlib_recipe.gox", "zlib/1.3")

	for range 2 {
		rec, err := l.LoadRecipe(path)
		if err != nil {
			t.Fatal(err)
		}
		if got := rec.Ref.String(); got != "zlib/1.3" {
			t.Errorf("Ref = %q, want zlib/1.3", got)
		}
		if rec.PackageType != recipe.Library {
			t.Errorf("PackageType = %q", rec.PackageType)
		}
	}
	if n := eval.n.Load(); n != 1 {
		t.Errorf("evaluated %d times, want 1", n)
	}
}

func TestLoadRecipeError(t *testing.T) {
	l := New(newRegistry())
	path := writeRecipe(t, t.TempDir(), "bad_recipe.gox", "bzip2/1.0")
	if _, err := l.LoadRecipe(path); !errors.Is(err, errs.LoadError) {
		t.Errorf("LoadRecipe = %v, want LoadError", err)
	}
	if _, err := l.LoadRecipe(filepath.Join(t.TempDir(), "missing_recipe.gox")); !errors.Is(err, errs.LoadError) {
		t.Errorf("LoadRecipe(missing) = %v, want LoadError", err)
	}
}

func TestLoadReference(t *testing.T) {
	l := New(newRegistry())
	path := writeRecipe(t, t.TempDir(), "zlib_recipe.gox", "zlib/1.3")

	rec, err := l.LoadReference(path, ref.MustParse("zlib/1.3#abc"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Ref.RRev != "abc" {
		t.Errorf("RRev = %q, want abc", rec.Ref.RRev)
	}
	if _, err := l.LoadReference(path, ref.MustParse("bzip2/1.0#abc")); !errors.Is(err, errs.LoadError) {
		t.Errorf("LoadReference(other name) = %v, want LoadError", err)
	}
}

func TestProjectSettings(t *testing.T) {
	l := New(newRegistry())
	host := linuxProfile(t)
	path := writeRecipe(t, t.TempDir(), "zlib_recipe.gox", "zlib/1.3")
	rec, err := l.LoadRecipe(path)
	if err != nil {
		t.Fatal(err)
	}

	got, err := l.ProjectSettings(rec, host, rec.Ref, false)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"os": "Linux", "arch": "x86_64", "build_type": "Debug"}
	if diff := cmp.Diff(want, got.Map()); diff != "" {
		t.Errorf("ProjectSettings (-want +got):\n%s", diff)
	}

	bad := host.Clone()
	bad.Settings["os"] = "Plan9"
	if _, err := l.ProjectSettings(rec, bad, rec.Ref, false); !errors.Is(err, errs.InvalidConfig) {
		t.Errorf("ProjectSettings(os=Plan9) = %v, want InvalidConfig", err)
	}
}

func TestLoadConsumer(t *testing.T) {
	l := New(newRegistry())
	path := writeRecipe(t, t.TempDir(), "app_recipe.gox", "app")

	n, err := l.LoadConsumer(path, linuxProfile(t))
	if err != nil {
		t.Fatal(err)
	}
	if !n.IsConsumer() || n.Context != "host" {
		t.Errorf("node kind %v context %v", n.Kind, n.Context)
	}
	want := map[string]string{"os": "Linux", "arch": "x86_64"}
	if diff := cmp.Diff(want, n.Settings.Map()); diff != "" {
		t.Errorf("consumer settings (-want +got):\n%s", diff)
	}
	if len(n.Recipe.Requires) != 1 || n.Recipe.Requires[0].Ref != "zlib/1.3" {
		t.Errorf("consumer requires = %v", n.Recipe.Requires)
	}
}

func TestLoadVirtual(t *testing.T) {
	l := New(newRegistry())
	n, err := l.LoadVirtual([]string{"zlib/1.3"}, []string{"cmake/3.27"}, profile.New("default"))
	if err != nil {
		t.Fatal(err)
	}
	reqs := n.Recipe.Requires
	if len(reqs) != 2 || reqs[0].Tool || !reqs[1].Tool {
		t.Errorf("virtual requires = %+v", reqs)
	}
	if _, err := l.LoadVirtual([]string{"zlib"}, nil, profile.New("default")); !errors.Is(err, errs.Parse) {
		t.Errorf("LoadVirtual(zlib) = %v, want Parse", err)
	}
}

func TestExport(t *testing.T) {
	l := New(newRegistry())
	src := t.TempDir()
	path := writeRecipe(t, src, "zlib_recipe.gox", "zlib/1.3")
	writeRecipe(t, src, "src/deflate.c", "int deflate;")
	writeRecipe(t, src, "src/notes.txt", "not exported")
	rec, err := l.LoadRecipe(path)
	if err != nil {
		t.Fatal(err)
	}

	export := func() (string, string) {
		out := t.TempDir()
		rrev, err := l.Export(rec, filepath.Join(out, "export"), filepath.Join(out, "export_sources"))
		if err != nil {
			t.Fatal(err)
		}
		return rrev, out
	}
	rrev1, out := export()
	for _, f := range []string{"export/zlib_recipe.gox", "export_sources/src/deflate.c"} {
		if _, err := os.Stat(filepath.Join(out, f)); err != nil {
			t.Errorf("exported %s: %v", f, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "export_sources/src/notes.txt")); err == nil {
		t.Error("exported a file no pattern selects")
	}

	rrev2, _ := export()
	if rrev1 != rrev2 {
		t.Errorf("revision not stable: %s != %s", rrev1, rrev2)
	}
	writeRecipe(t, src, "src/deflate.c", "int deflate2;")
	if rrev3, _ := export(); rrev3 == rrev1 {
		t.Error("revision did not change with the sources")
	}
}

type fakeVCS struct {
	head  string
	clean bool
}

func (f fakeVCS) Head(dir string) (string, error)  { return f.head, nil }
func (f fakeVCS) IsClean(dir string) (bool, error) { return f.clean, nil }

func TestRevisionSCM(t *testing.T) {
	reg := NewRegistry()
	reg.Add("tool/1.0", func(app *recipe.RecipeApp) {
		app.Name("tool")
		app.Version("1.0")
		app.RevisionMode("scm")
	})
	path := writeRecipe(t, t.TempDir(), "tool_recipe.gox", "tool/1.0")

	l := New(reg, WithVCS(fakeVCS{head: "4b825dc642cb6eb9a060e54bf8d69288fbee4904", clean: true}))
	rec, err := l.LoadRecipe(path)
	if err != nil {
		t.Fatal(err)
	}
	rrev, err := l.Revision(rec, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if rrev != "4b825dc642cb6eb9a060e54bf8d69288fbee4904" {
		t.Errorf("Revision = %s", rrev)
	}

	l = New(reg, WithVCS(fakeVCS{head: "4b825dc", clean: false}))
	if rec, err = l.LoadRecipe(path); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Revision(rec, t.TempDir(), t.TempDir()); !errors.Is(err, errs.InvalidConfig) {
		t.Errorf("Revision(dirty) = %v, want InvalidConfig", err)
	}
}

func TestPeek(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Header
	}{
		{
			name: "identity",
			src:  "name \"zlib\"\nversion \"1.3.1\"\nuser \"llpm\"\nchannel \"stable\"\n",
			want: Header{Name: "zlib", Version: "1.3.1", User: "llpm", Channel: "stable"},
		},
		{
			name: "alias",
			src:  "name \"zlib\"\nversion \"latest\"\nalias \"zlib/1.3.1\"\n",
			want: Header{Name: "zlib", Version: "latest", Alias: "zlib/1.3.1"},
		},
		{
			name: "revision mode",
			src:  "name \"tool\"\nrevisionMode \"scm\"\n",
			want: Header{Name: "tool", RevisionMode: "scm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Peek("pkg_recipe.gox", []byte(tt.src))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("Peek (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInterpreter(t *testing.T) {
	l := New(NewInterpreter())
	rec, err := l.LoadRecipe(filepath.Join("testdata", "zlib", "zlib_recipe.gox"))
	if err != nil {
		t.Fatalf("LoadRecipe: %v", err)
	}
	if got := rec.Ref.String(); got != "zlib/1.3.1" {
		t.Errorf("Ref = %q, want zlib/1.3.1", got)
	}
	if diff := cmp.Diff([]string{"os", "arch", "compiler", "build_type"}, rec.Settings); diff != "" {
		t.Errorf("Settings (-want +got):\n%s", diff)
	}
	if got := rec.DefaultOptions["fPIC"]; got != "True" {
		t.Errorf("default fPIC = %q", got)
	}

	opts := recipe.NewOptions(rec.Options)
	opts.Set("shared", "True")
	opts.Set("fPIC", "True")
	cfg := &recipe.Config{Ref: rec.Ref, Options: opts, Settings: recipe.NewValues(nil)}
	if err := l.Call(rec, recipe.Configure, &recipe.Context{Config: cfg}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if opts.Has("fPIC") {
		t.Error("configure kept fPIC for a shared build")
	}

	info := recipe.NewCppInfo()
	if err := l.Call(rec, recipe.PackageInfo, &recipe.Context{Config: cfg, CppInfo: info}); err != nil {
		t.Fatalf("package_info: %v", err)
	}
	if diff := cmp.Diff([]string{"z"}, info.Libs); diff != "" {
		t.Errorf("Libs (-want +got):\n%s", diff)
	}

	out := t.TempDir()
	if _, err := l.Export(rec, filepath.Join(out, "export"), filepath.Join(out, "export_sources")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "export_sources", "src", "zlib.h")); err != nil {
		t.Errorf("header not exported: %v", err)
	}
}
