// Package snapshot persists product records as tabular files and reads back
// the identifiers of a previous run.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-product-monitor/models"
)

// ErrWrite wraps every failure to persist a snapshot.
var ErrWrite = errors.New("snapshot write failed")

// Header is the first row of every snapshot file.
var Header = []string{"Title", "SKU", "Original Price", "Current Price", "Description", "URL"}

// identifierColumn is the 0-based column holding the SKU.
const identifierColumn = 1

// Store reads and writes snapshot files of one format.
type Store interface {
	// LoadIdentifiers returns the set of non-empty SKUs in the file at path.
	// A missing file yields an empty set.
	LoadIdentifiers(path string) (map[string]struct{}, error)
	// Write replaces the file at path with records.
	Write(path string, records []models.Product) error
}

// ForPath picks a store by the file extension of path.
func ForPath(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return XLSXStore{}, nil
	case ".csv":
		return CSVStore{}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", filepath.Ext(path))
	}
}

// Exists reports whether a snapshot file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Remove deletes the file at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func row(p models.Product) []string {
	return []string{p.Title, p.SKU, p.PriceOriginal, p.PriceCurrent, p.Description, p.URL}
}

func identifiers(rows [][]string) map[string]struct{} {
	ids := make(map[string]struct{})
	for i, r := range rows {
		if i == 0 || len(r) <= identifierColumn {
			continue
		}
		if id := strings.TrimSpace(r[identifierColumn]); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// writeAtomic streams into a temp file next to path and renames it over the
// target once fully written.
func writeAtomic(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrWrite, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename to %s: %w", ErrWrite, path, err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
