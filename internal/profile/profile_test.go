package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/options"
	"github.com/goplus/llpm/pkgs/ref"
)

const linuxGcc = `
[settings]
os = "Linux"
arch = "x86_64"
compiler = "gcc"
"compiler.version" = "13"
"compiler.libcxx" = "libstdc++11"
build_type = "Release"
"zlib/*:build_type" = "Debug"
"zlib:compiler.cppstd" = "17"

[options]
"*:shared" = true
"&:fPIC" = false

[conf]
"tools.build:jobs" = 8

[tool_requires]
"*" = ["cmake/3.28"]
"&" = ["ninja/1.11"]
`

func mustParse(t *testing.T, data string) *Profile {
	t.Helper()
	p, err := Parse("linux", []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParse(t *testing.T) {
	p := mustParse(t, linuxGcc)
	if got := p.Settings["compiler.version"]; got != "13" {
		t.Errorf("compiler.version = %q, want 13", got)
	}
	wantPkg := map[string]map[string]string{
		"zlib/*": {"build_type": "Debug"},
		"zlib":   {"compiler.cppstd": "17"},
	}
	if diff := cmp.Diff(wantPkg, p.PackageSettings); diff != "" {
		t.Errorf("package settings (-want +got):\n%s", diff)
	}
	wantOpts := []options.Assignment{
		{Pattern: "&", Name: "fPIC", Value: "False"},
		{Pattern: "*", Name: "shared", Value: "True"},
	}
	if diff := cmp.Diff(wantOpts, p.Options); diff != "" {
		t.Errorf("options (-want +got):\n%s", diff)
	}
	if got := p.Conf["tools.build:jobs"]; got != "8" {
		t.Errorf("conf = %q, want 8", got)
	}
	if err := p.Validate(DefaultSchema()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	for name, data := range map[string]string{
		"syntax":       "[settings\nos=1",
		"include":      `include = ["base"]`,
		"bad tool ref": "[tool_requires]\n\"*\" = [\"cmake\"]",
		"bad option":   "[options]\n\"x:\" = 1",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(name, []byte(data)); err == nil {
				t.Errorf("Parse succeeded")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
		ok       bool
	}{
		{"valid", map[string]string{"os": "Linux", "arch": "armv8"}, true},
		{"optional sub-setting", map[string]string{"os": "Macos", "os.version": "14.0"}, true},
		{"any value", map[string]string{"os": "Android", "os.api_level": "31"}, true},
		{"unknown arch", map[string]string{"arch": "z80"}, false},
		{"unknown setting", map[string]string{"flavor": "vanilla"}, false},
		{"sub-setting of another value", map[string]string{"os": "Linux", "os.version": "1"}, false},
		{"sub-setting without parent", map[string]string{"compiler.version": "13"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.name)
			p.Settings = tt.settings
			err := p.Validate(DefaultSchema())
			if tt.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, errs.InvalidConfig) {
				t.Errorf("got %v, want InvalidConfig", err)
			}
		})
	}
}

func TestSettingsFor(t *testing.T) {
	p := mustParse(t, linuxGcc)
	tests := []struct {
		ref       string
		consumer  bool
		buildType string
		cppstd    string
	}{
		{"zlib/1.3", false, "Debug", "17"},
		{"zlibx/1.3", false, "Release", ""},
		{"bzip2/1.0", false, "Release", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			s := p.SettingsFor(ref.MustParse(tt.ref), tt.consumer)
			if s["build_type"] != tt.buildType {
				t.Errorf("build_type = %q, want %q", s["build_type"], tt.buildType)
			}
			if s["compiler.cppstd"] != tt.cppstd {
				t.Errorf("compiler.cppstd = %q, want %q", s["compiler.cppstd"], tt.cppstd)
			}
			if s["os"] != "Linux" {
				t.Errorf("os = %q, want Linux", s["os"])
			}
		})
	}
}

func TestSettingsForExactWins(t *testing.T) {
	p := New("x")
	p.Settings["build_type"] = "Release"
	p.PackageSettings["zlib"] = map[string]string{"build_type": "MinSizeRel"}
	p.PackageSettings["zlib*"] = map[string]string{"build_type": "Debug"}
	p.PackageSettings["*"] = map[string]string{"build_type": "RelWithDebInfo"}
	got := p.SettingsFor(ref.MustParse("zlib/1.3"), false)["build_type"]
	if got != "MinSizeRel" {
		t.Errorf("got %q, want MinSizeRel", got)
	}
	got = p.SettingsFor(ref.MustParse("zlibng/2.0"), false)["build_type"]
	if got != "Debug" {
		t.Errorf("got %q, want Debug", got)
	}
}

func TestToolRequiresFor(t *testing.T) {
	p := mustParse(t, linuxGcc)
	tests := []struct {
		ref      ref.Reference
		consumer bool
		want     []string
	}{
		{ref.Reference{Name: "app"}, true, []string{"ninja/1.11", "cmake/3.28"}},
		{ref.MustParse("zlib/1.3"), false, []string{"cmake/3.28"}},
		{ref.MustParse("cmake/3.28"), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.ref.String(), func(t *testing.T) {
			got := p.ToolRequiresFor(tt.ref, tt.consumer)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	base := "[settings]\nos = \"Linux\"\nbuild_type = \"Debug\"\n[conf]\n\"a\" = \"1\"\n"
	child := "include = [\"base.toml\"]\n[settings]\nbuild_type = \"Release\"\n"
	if err := os.WriteFile(filepath.Join(dir, "base.toml"), []byte(base), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "child.toml"), []byte(child), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(filepath.Join(dir, "child.toml"))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"os": "Linux", "build_type": "Release"}
	if diff := cmp.Diff(want, p.Settings); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
	if p.Conf["a"] != "1" {
		t.Errorf("conf a = %q, want 1", p.Conf["a"])
	}
	if p.Name != "child" {
		t.Errorf("name = %q, want child", p.Name)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.toml"), []byte(`include = ["a.toml"]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filepath.Join(dir, "a.toml")); err == nil {
		t.Error("Load succeeded on a self-including profile")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	p := mustParse(t, linuxGcc)
	data, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	q, err := Parse("linux", data)
	if err != nil {
		t.Fatalf("Parse(Marshal()): %v\n%s", err, data)
	}
	if diff := cmp.Diff(p, q); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestPair(t *testing.T) {
	host := New("host")
	h, b := Pair(host, nil)
	if h != host || b != host {
		t.Errorf("Pair(host, nil) = %v, %v; want host twice", h.Name, b.Name)
	}
	build := New("build")
	if _, b := Pair(host, build); b != build {
		t.Errorf("build profile replaced")
	}
}

func TestPreprocessMsvc(t *testing.T) {
	s := map[string]string{"compiler": "msvc", "build_type": "Debug"}
	Preprocess(s)
	if s["compiler.runtime"] != "dynamic" || s["compiler.runtime_type"] != "Debug" {
		t.Errorf("got %v", s)
	}
}

func TestDetect(t *testing.T) {
	p := Detect()
	if p.Settings["os"] == "" || p.Settings["arch"] == "" {
		t.Errorf("incomplete profile: %v", p.Settings)
	}
	if p.Settings["build_type"] != "Release" {
		t.Errorf("build_type = %q", p.Settings["build_type"])
	}
}
