package cache

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// Files kept next to the package contents but outside its manifest.
const (
	ManifestFile = "conanmanifest.txt"
	MetadataFile = "metadata.json"
	InfoFile     = "conaninfo.txt"
)

// Manifest maps every file of a folder, by slash-separated relative
// path, to the SHA-1 of its contents. Its summary is the revision of the
// folder.
type Manifest struct {
	Files map[string]string
}

// ManifestOf hashes the files below dir. The manifest and metadata files
// at its top are left out.
func ManifestOf(dir string) (*Manifest, error) {
	return ManifestOfTree(map[string]string{"": dir})
}

// ManifestOfTree hashes several folders, listing the files of each
// below its key.
func ManifestOfTree(tree map[string]string) (*Manifest, error) {
	m := &Manifest{Files: map[string]string{}}
	for prefix, dir := range tree {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if prefix != "" && p == dir && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			rel = path.Join(prefix, filepath.ToSlash(rel))
			if rel == ManifestFile || rel == MetadataFile {
				return nil
			}
			sum, err := fileSHA1(p)
			if err != nil {
				return err
			}
			m.Files[rel] = sum
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("manifest of %s: %w", dir, err)
		}
	}
	return m, nil
}

// ManifestOfFiles hashes the given files, keyed by their path relative
// to base.
func ManifestOfFiles(base string, files []string) (*Manifest, error) {
	m := &Manifest{Files: map[string]string{}}
	for _, f := range files {
		rel, err := filepath.Rel(base, f)
		if err != nil {
			return nil, err
		}
		sum, err := fileSHA1(f)
		if err != nil {
			return nil, err
		}
		m.Files[filepath.ToSlash(rel)] = sum
	}
	return m, nil
}

func fileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (m *Manifest) lines() []byte {
	var b bytes.Buffer
	for _, p := range slices.Sorted(maps.Keys(m.Files)) {
		fmt.Fprintf(&b, "%s: %s\n", p, m.Files[p])
	}
	return b.Bytes()
}

// Summary returns the SHA-1 of the sorted "path: sha1" lines.
func (m *Manifest) Summary() string {
	sum := sha1.Sum(m.lines())
	return hex.EncodeToString(sum[:])
}

// Bytes renders the manifest file: the sorted lines followed by the
// summary on a line of its own.
func (m *Manifest) Bytes() []byte {
	return append(m.lines(), m.Summary()+"\n"...)
}

// Equal reports whether both manifests list the same files and contents.
func (m *Manifest) Equal(o *Manifest) bool {
	return maps.Equal(m.Files, o.Files)
}

// ParseManifest parses a manifest file and checks its summary line.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{Files: map[string]string{}}
	var summary string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		path, sum, ok := strings.Cut(line, ": ")
		if !ok {
			if summary != "" {
				return nil, fmt.Errorf("invalid manifest line %q", line)
			}
			summary = line
			continue
		}
		if summary != "" {
			return nil, fmt.Errorf("manifest entry %q after the summary", path)
		}
		m.Files[path] = sum
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if summary == "" {
		return nil, fmt.Errorf("manifest has no summary")
	}
	if got := m.Summary(); got != summary {
		return nil, fmt.Errorf("manifest summary %s does not match its entries (%s)", summary, got)
	}
	return m, nil
}

// ReadManifest reads the manifest file of dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// WriteManifest computes the manifest of dir and stores it there.
func WriteManifest(dir string) (*Manifest, error) {
	m, err := ManifestOf(dir)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), m.Bytes(), 0644); err != nil {
		return nil, err
	}
	return m, nil
}

// Verify recomputes the manifest of dir and compares it with the stored
// one and with want, the expected summary. An empty want only checks the
// files against the stored manifest.
func Verify(dir, want string) (*Manifest, error) {
	stored, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	actual, err := ManifestOf(dir)
	if err != nil {
		return nil, err
	}
	if !stored.Equal(actual) {
		return nil, fmt.Errorf("files of %s do not match its manifest", dir)
	}
	if want != "" && stored.Summary() != want {
		return nil, fmt.Errorf("manifest summary %s, want %s", stored.Summary(), want)
	}
	return stored, nil
}
