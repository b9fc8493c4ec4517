package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"include/zlib.h": "header",
		"lib/libz.a":     "archive",
		MetadataFile:     "{}",
	})
	m, err := WriteManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Files[MetadataFile]; ok {
		t.Errorf("metadata file is part of the manifest")
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("manifest has %d lines, want 3:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "include/zlib.h: ") || !strings.HasPrefix(lines[1], "lib/libz.a: ") {
		t.Errorf("entries not sorted:\n%s", data)
	}
	if lines[2] != m.Summary() {
		t.Errorf("summary line %q, want %q", lines[2], m.Summary())
	}

	parsed, err := ParseManifest(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m.Files, parsed.Files); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}

	// The manifest file itself does not change the summary.
	again, err := ManifestOf(dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.Summary() != m.Summary() {
		t.Errorf("summary changed after writing the manifest")
	}
}

func TestManifestTampered(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"lib/libz.a": "archive"})
	m, err := WriteManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(dir, m.Summary()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := Verify(dir, "0000"); err == nil {
		t.Error("Verify accepted a wrong summary")
	}
	writeFiles(t, dir, map[string]string{"lib/libz.a": "tampered"})
	if _, err := Verify(dir, ""); err == nil {
		t.Error("Verify accepted modified files")
	}
	if _, err := ParseManifest([]byte("a: 1\nbadsummary\n")); err == nil {
		t.Error("ParseManifest accepted a wrong summary")
	}
}

func openCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func putRecipe(t *testing.T, c *Cache, r ref.Reference, ts time.Time) {
	t.Helper()
	export, err := c.TempDir("export-")
	if err != nil {
		t.Fatal(err)
	}
	writeFiles(t, export, map[string]string{"pkg_recipe.gox": "name \"" + r.Name + "\""})
	if err := c.PutRecipe(r, export, "", RecipeMetadata{Recipe: "pkg_recipe.gox", Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
}

func TestRecipeRevisions(t *testing.T) {
	c := openCache(t)
	base := ref.MustParse("zlib/1.3")
	old, newer := base, base
	old.RRev, newer.RRev = "aaa", "bbb"
	putRecipe(t, c, old, time.Unix(100, 0))
	putRecipe(t, c, newer, time.Unix(200, 0))

	latest, rev, err := c.LatestRecipe(base)
	if err != nil {
		t.Fatal(err)
	}
	if latest.RRev != "bbb" || !rev.Local {
		t.Errorf("LatestRecipe = %v %+v, want bbb local", latest, rev)
	}
	path, err := c.RecipeFile(old)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(c.Root(), "zlib", "1.3", "_", "_", "aaa", "export", "pkg_recipe.gox"); path != want {
		t.Errorf("RecipeFile = %q, want %q", path, want)
	}
	versions, err := c.Versions("zlib", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1.3"}, versions); diff != "" {
		t.Errorf("Versions (-want +got):\n%s", diff)
	}
	if v, _ := c.Versions("zlib", "user", "stable"); len(v) != 0 {
		t.Errorf("Versions with user/channel = %v, want none", v)
	}
	if _, _, err := c.LatestRecipe(ref.MustParse("bzip2/1.0")); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestRecipe(missing) = %v, want ErrNotFound", err)
	}
}

func TestPutRecipeMissingSources(t *testing.T) {
	c := openCache(t)
	r := ref.MustParse("zlib/1.3#aaa")
	export, err := c.TempDir("export-")
	if err != nil {
		t.Fatal(err)
	}
	writeFiles(t, export, map[string]string{"pkg_recipe.gox": "name \"zlib\""})
	// An unpacked archive of a recipe without sources has no such folder.
	sources := filepath.Join(filepath.Dir(export), "export_sources")
	if err := c.PutRecipe(r, export, sources, RecipeMetadata{Recipe: "pkg_recipe.gox"}); err != nil {
		t.Fatal(err)
	}
	if !c.HasRecipe(r) {
		t.Fatal("recipe not stored")
	}
	entries, err := os.ReadDir(c.ExportSourcesDir(r))
	if err != nil || len(entries) != 0 {
		t.Errorf("export_sources = %v, %v, want an empty folder", entries, err)
	}
}

func TestPromotePackage(t *testing.T) {
	c := openCache(t)
	p := ref.MustParse("zlib/1.3#aaa:pkg1")

	stage := func(content string) (string, string) {
		dir, err := c.TempDir("pkg-")
		if err != nil {
			t.Fatal(err)
		}
		writeFiles(t, dir, map[string]string{"lib/libz.a": content, InfoFile: "[settings]\n"})
		m, err := WriteManifest(dir)
		if err != nil {
			t.Fatal(err)
		}
		return dir, m.Summary()
	}

	dir, prev := stage("archive")
	p.PRev = prev
	if err := c.PromotePackage(p, dir, PackageMetadata{}); err != nil {
		t.Fatal(err)
	}
	if !c.HasPackage(p) {
		t.Fatal("package not stored")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("staging folder left behind")
	}
	if got, ok := c.LatestPackage(ref.MustParse("zlib/1.3#aaa:pkg1")); !ok || got.PRev != prev {
		t.Errorf("LatestPackage = %v, %v", got, ok)
	}

	bad, _ := stage("other")
	q := p
	q.PRev = "0123456789abcdef0123456789abcdef01234567"
	if err := c.PromotePackage(q, bad, PackageMetadata{}); !errors.Is(err, errs.ManifestMismatch) {
		t.Errorf("PromotePackage with wrong prev = %v, want ManifestMismatch", err)
	}
	if c.HasPackage(q) {
		t.Error("mismatching package stored")
	}
}

func TestLockTimeout(t *testing.T) {
	c := openCache(t, WithLockTimeout(50*time.Millisecond))
	unlock, err := c.Lock("zlib/1.3#aaa")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lock("zlib/1.3#aaa"); !errors.Is(err, errs.CacheLockTimeout) {
		t.Errorf("second Lock = %v, want CacheLockTimeout", err)
	}
	unlock()
	unlock2, err := c.Lock("zlib/1.3#aaa")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	unlock2()
}

func TestSharedLocks(t *testing.T) {
	c := openCache(t, WithLockTimeout(time.Second))
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := c.RLock("zlib/1.3#aaa")
			if err != nil {
				t.Error(err)
				return
			}
			time.Sleep(10 * time.Millisecond)
			unlock()
		}()
	}
	wg.Wait()
}

func TestLockKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"zlib/1.3#aaa", "zlib/1.3#aaa"},
		{"zlib/1.3@user/stable#aaa:pkg1#prev", "zlib/1.3@user/stable#aaa:pkg1"},
	}
	for _, tt := range tests {
		if got := LockKey(ref.MustParse(tt.in)); got != tt.want {
			t.Errorf("LockKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
