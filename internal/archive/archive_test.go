package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestPackUnpack(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"include/zlib.h":    "header",
		"lib/libz.a":        "archive",
		"conanmanifest.txt": "manifest",
	}
	for name, content := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var first, second bytes.Buffer
	if err := Pack(&first, src); err != nil {
		t.Fatal(err)
	}
	if err := Pack(&second, src); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("packing the same folder twice gave different bytes")
	}

	dst := t.TempDir()
	if err := Unpack(&first, dst); err != nil {
		t.Fatal(err)
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestPackFile(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "recipe.tgz")
	size, err := PackFile(out, src)
	if err != nil {
		t.Fatal(err)
	}
	if size == 0 {
		t.Error("empty archive")
	}
	dst := t.TempDir()
	if err := UnpackFile(out, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); err != nil {
		t.Error(err)
	}
}

func TestUnpackRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	if err := tw.WriteHeader(&tar.Header{Name: "../evil", Typeflag: tar.TypeReg, Mode: 0644, Size: 1}); err != nil {
		t.Fatal(err)
	}
	tw.Write([]byte("x"))
	tw.Close()
	zw.Close()

	if err := Unpack(&buf, t.TempDir()); err == nil {
		t.Error("Unpack accepted an entry escaping the folder")
	}
}
