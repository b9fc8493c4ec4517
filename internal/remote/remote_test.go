package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// publish uploads a recipe revision and one package of it.
func publish(t *testing.T, r *StoreRemote, rr, pref ref.Reference) {
	t.Helper()
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "export", "pkg_recipe.gox"), `name "`+rr.Name+`"`)
	writeFile(t, filepath.Join(src, "export_sources", "src", "a.c"), "int a;")
	if err := r.UploadRecipe(ctx, rr, filepath.Join(src, "export"), filepath.Join(src, "export_sources"), time.Unix(100, 0)); err != nil {
		t.Fatal(err)
	}
	pkg := t.TempDir()
	writeFile(t, filepath.Join(pkg, "lib", "liba.a"), "archive")
	writeFile(t, filepath.Join(pkg, cache.InfoFile), "[settings]\nos=Linux\n")
	if _, err := cache.WriteManifest(pkg); err != nil {
		t.Fatal(err)
	}
	if err := r.UploadPackage(ctx, pref, pkg, time.Unix(200, 0)); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := New("origin", &DirStore{Root: t.TempDir()})
	rr := ref.MustParse("zlib/1.3#r1")
	pref := ref.MustParse("zlib/1.3#r1:pkg1#p1")
	publish(t, r, rr, pref)
	publish(t, r, ref.MustParse("zlib/1.2.13@user/stable#r0"), ref.MustParse("zlib/1.2.13@user/stable#r0:pkg1#p0"))

	refs, err := r.SearchRecipes(ctx, "zlib/*")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, x := range refs {
		got = append(got, x.String())
	}
	if diff := cmp.Diff([]string{"zlib/1.2.13@user/stable", "zlib/1.3"}, got); diff != "" {
		t.Errorf("SearchRecipes (-want +got):\n%s", diff)
	}

	revs, err := r.GetRecipeRevisions(ctx, ref.MustParse("zlib/1.3"))
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 || revs[0].ID != "r1" || revs[0].Local {
		t.Errorf("GetRecipeRevisions = %+v", revs)
	}

	dst := t.TempDir()
	if err := r.GetRecipe(ctx, rr, dst); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"export/pkg_recipe.gox", "export_sources/src/a.c"} {
		if _, err := os.Stat(filepath.Join(dst, f)); err != nil {
			t.Errorf("recipe file %s: %v", f, err)
		}
	}

	prevs, err := r.GetPackageRevisions(ctx, ref.MustParse("zlib/1.3#r1:pkg1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(prevs) != 1 || prevs[0].ID != "p1" {
		t.Errorf("GetPackageRevisions = %+v", prevs)
	}
	pdst := t.TempDir()
	if err := r.GetPackage(ctx, pref, pdst); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Verify(pdst, ""); err != nil {
		t.Errorf("downloaded package does not verify: %v", err)
	}

	if err := r.GetPackage(ctx, ref.MustParse("zlib/1.3#r1:pkg2#p9"), t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPackage(missing) = %v, want ErrNotFound", err)
	}
	if revs, err := r.GetRecipeRevisions(ctx, ref.MustParse("bzip2/1.0")); err != nil || len(revs) != 0 {
		t.Errorf("GetRecipeRevisions(missing) = %v, %v", revs, err)
	}
}

func TestGetPackageManifestMismatch(t *testing.T) {
	ctx := context.Background()
	store := &DirStore{Root: t.TempDir()}
	r := New("origin", store)
	rr := ref.MustParse("zlib/1.3#r1")
	pref := ref.MustParse("zlib/1.3#r1:pkg1#p1")
	publish(t, r, rr, pref)

	other := cache.Manifest{Files: map[string]string{"lib/liba.a": "0000"}}
	data := other.Bytes()
	key := "zlib/1.3/_/_/r1/package/pkg1/p1/" + cache.ManifestFile
	if err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatal(err)
	}
	if err := r.GetPackage(ctx, pref, t.TempDir()); !errors.Is(err, errs.ManifestMismatch) {
		t.Errorf("GetPackage = %v, want ManifestMismatch", err)
	}
}

// flakyStore fails the first n GETs.
type flakyStore struct {
	Store
	fails int32
	gets  atomic.Int32
	delay time.Duration
}

func (s *flakyStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	n := s.gets.Add(1)
	time.Sleep(s.delay)
	if n <= s.fails {
		return nil, errors.New("connection reset")
	}
	return s.Store.Get(ctx, key)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	dir := &DirStore{Root: t.TempDir()}
	if err := dir.Put(ctx, "k", bytes.NewReader([]byte("v")), 1); err != nil {
		t.Fatal(err)
	}

	store := &flakyStore{Store: dir, fails: 2}
	r := New("origin", store, WithRetry(Retry{Count: 2, Backoff: time.Millisecond}))
	data, err := r.get(ctx, "k")
	if err != nil {
		t.Fatalf("get with retries: %v", err)
	}
	if string(data) != "v" || store.gets.Load() != 3 {
		t.Errorf("data %q after %d GETs, want v after 3", data, store.gets.Load())
	}

	store = &flakyStore{Store: dir, fails: 5}
	r = New("origin", store, WithRetry(Retry{Count: 1, Backoff: time.Millisecond}))
	if _, err := r.get(ctx, "k"); err == nil {
		t.Error("get succeeded past the retry budget")
	}
	if store.gets.Load() != 2 {
		t.Errorf("%d GETs, want 2", store.gets.Load())
	}

	store = &flakyStore{Store: dir}
	r = New("origin", store, WithRetry(Retry{Count: 3, Backoff: time.Millisecond}))
	if _, err := r.get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get(missing) = %v, want ErrNotFound", err)
	}
	if store.gets.Load() != 1 {
		t.Errorf("missing key fetched %d times, want 1", store.gets.Load())
	}
}

func TestCoalescedGets(t *testing.T) {
	ctx := context.Background()
	dir := &DirStore{Root: t.TempDir()}
	if err := dir.Put(ctx, "k", bytes.NewReader([]byte("v")), 1); err != nil {
		t.Fatal(err)
	}
	store := &flakyStore{Store: dir, delay: 50 * time.Millisecond}
	r := New("origin", store)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if data, err := r.get(ctx, "k"); err != nil || string(data) != "v" {
				t.Errorf("get = %q, %v", data, err)
			}
		}()
	}
	wg.Wait()
	if n := store.gets.Load(); n >= 8 {
		t.Errorf("%d GETs for 8 concurrent callers, want them coalesced", n)
	}
}

// countingStore counts PUTs and fails all of them.
type countingStore struct {
	DirStore
	puts atomic.Int32
}

func (s *countingStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	s.puts.Add(1)
	return errors.New("service unavailable")
}

func TestUploadNotRetried(t *testing.T) {
	store := &countingStore{DirStore: DirStore{Root: t.TempDir()}}
	r := New("origin", store, WithRetry(Retry{Count: 5, Backoff: time.Millisecond}))
	pkg := t.TempDir()
	writeFile(t, filepath.Join(pkg, "lib", "liba.a"), "archive")
	err := r.UploadPackage(context.Background(), ref.MustParse("zlib/1.3#r1:pkg1#p1"), pkg, time.Now())
	if err == nil {
		t.Fatal("upload succeeded")
	}
	if n := store.puts.Load(); n != 1 {
		t.Errorf("%d PUTs, want 1", n)
	}
}

func TestSearchPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"zlib/*", "zlib/"},
		{"zlib/1.3", "zlib/"},
		{"zl*", ""},
		{"*", ""},
		{"zlib/1.*@user/*", "zlib/"},
	}
	for _, tt := range tests {
		if got := searchPrefix(tt.in); got != tt.want {
			t.Errorf("searchPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		url     string
		wantErr bool
	}{
		{dir, false},
		{"file://" + dir, false},
		{"s3://minio.local:9000/packages/llpm?insecure=true", false},
		{"s3://minio.local:9000", true},
		{"ftp://example.com/pkgs", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			r, err := Open(Config{Name: "origin", URL: tt.url, AccessKey: "ak", SecretKey: "sk"})
			if tt.wantErr {
				if err == nil {
					t.Error("Open succeeded")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if r.Name() != "origin" {
				t.Errorf("Name = %q", r.Name())
			}
		})
	}
}
