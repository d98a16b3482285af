package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Document is one persisted store: a single JSON array of flat records,
// always rewritten whole.
type Document[T any] struct {
	path    string
	saveMtx sync.Mutex
}

func NewDocument[T any](path string) *Document[T] {
	return &Document[T]{path: path}
}

func (d *Document[T]) Path() string {
	return d.path
}

// Load reads every record. A missing file is a first run and yields no
// records; a file that does not parse is an error so that it is never
// silently replaced by an empty snapshot.
func (d *Document[T]) Load() ([]T, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("empty document", "path", d.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", d.path, err)
	}
	return records, nil
}

// Save writes records to a sibling temp file and renames it over the
// document, so a crash leaves either the old or the new content.
func (d *Document[T]) Save(records []T) error {
	d.saveMtx.Lock()
	defer d.saveMtx.Unlock()
	if records == nil {
		records = []T{}
	}
	dirpath := filepath.Dir(d.path)
	if err := os.MkdirAll(dirpath, 0755); err != nil {
		return fmt.Errorf("create document dir %s: %w", dirpath, err)
	}
	tmp, err := os.CreateTemp(dirpath, d.tempPrefix()+"*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := json.NewEncoder(tmp).Encode(records); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", d.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		return fmt.Errorf("replace %s: %w", d.path, err)
	}
	return nil
}

func (d *Document[T]) tempPrefix() string {
	return "." + filepath.Base(d.path) + "."
}

// Sweep removes temp files an interrupted Save left next to the document
// and returns how many were removed.
func (d *Document[T]) Sweep() (int, error) {
	d.saveMtx.Lock()
	defer d.saveMtx.Unlock()
	dirpath := filepath.Dir(d.path)
	entries, err := os.ReadDir(dirpath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read document dir %s: %w", dirpath, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), d.tempPrefix()) {
			continue
		}
		path := filepath.Join(dirpath, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("remove stale temp document failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
