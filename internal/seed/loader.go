// Package seed loads scenario fixtures from YAML files, validates them and
// writes them to the entity store.
package seed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/trialscope/internal/store"
)

// Loader reads seed files and computes their SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new seed Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll loads every path in order. A directory is scanned recursively for
// *.yaml and *.yml files.
func (l *Loader) LoadAll(paths []string) ([]File, error) {
	var files []File

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", root, err)
		}
		if !info.IsDir() {
			f, err := l.LoadFile(root)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			f, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			files = append(files, f)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", root, err)
		}
	}

	return files, nil
}

// LoadFile loads and parses a single seed file. Unknown fields are rejected.
// It computes the SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	f.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	f.SourceFile = path
	return f, nil
}

// Checksum combines the checksums of files into one digest that does not
// depend on load order.
func Checksum(files []File) string {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, f.Checksum)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, ":"))))
}

// VerifyChecksum compares the combined checksum of files with want. An empty
// want accepts any content.
func VerifyChecksum(files []File, want string) error {
	if want == "" {
		return nil
	}
	if got := Checksum(files); got != want {
		return fmt.Errorf("seed checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}

// Apply writes every scenario of files to st.
func Apply(ctx context.Context, st store.Store, files []File, now time.Time) (int, error) {
	records := Records(files, now)
	for _, rec := range records {
		if err := st.Create(ctx, rec); err != nil {
			return 0, fmt.Errorf("seeding scenario %s: %w", rec.Scenario.ID, err)
		}
	}
	return len(records), nil
}
