package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
)

func useXDG(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv(HomeEnv, "")
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func TestHome(t *testing.T) {
	dir := useXDG(t)

	home, err := Home()
	if err != nil {
		t.Fatalf("Home() returned error: %v", err)
	}
	if want := filepath.Join(dir, "cache", "llpm"); home != want {
		t.Errorf("Home() = %q, want %q", home, want)
	}
	info, err := os.Stat(home)
	if err != nil {
		t.Fatalf("Directory was not created: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0700 {
		t.Errorf("Directory has permissions %v, want %v", mode, os.FileMode(0700))
	}
}

func TestHomeOverride(t *testing.T) {
	useXDG(t)
	custom := filepath.Join(t.TempDir(), "custom")
	t.Setenv(HomeEnv, custom)

	home, err := Home()
	if err != nil {
		t.Fatal(err)
	}
	if home != custom {
		t.Errorf("Home() = %q, want %q", home, custom)
	}
}

func TestProfilePath(t *testing.T) {
	dir := useXDG(t)

	if got, want := ProfilePath("linux"), filepath.Join(dir, "config", "llpm", "profiles", "linux.toml"); got != want {
		t.Errorf("ProfilePath(linux) = %q, want %q", got, want)
	}
	local := filepath.Join(t.TempDir(), "host.toml")
	if err := os.WriteFile(local, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got := ProfilePath(local); got != local {
		t.Errorf("ProfilePath(%q) = %q", local, got)
	}
	if got, want := ConfigFile(), filepath.Join(dir, "config", "llpm", "config.toml"); got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
	if got, want := LogFile(), filepath.Join(dir, "state", "llpm", "llpm.log"); got != want {
		t.Errorf("LogFile() = %q, want %q", got, want)
	}
}
