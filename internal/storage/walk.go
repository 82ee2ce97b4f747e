package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/vaultpath"
)

// WalkFunc is called for every note found by Walk.
type WalkFunc func(rel, abs string, info fs.FileInfo) error

// Walk visits every note under dir (relative to root), skipping excluded
// entries. Entries that vanish mid-walk are ignored. A missing dir yields an
// error wrapping apperr.ErrNotFound.
func (f *FS) Walk(dir string, fn WalkFunc) error {
	base, err := f.sandbox.Resolve(dir)
	if err != nil {
		return err
	}
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				if errors.Is(walkErr, fs.ErrNotExist) {
					return fmt.Errorf("%w: %s", apperr.ErrNotFound, dir)
				}
				return walkErr
			}
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if p != base && vaultpath.Excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !vaultpath.IsMarkdown(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := f.sandbox.Rel(p)
		if err != nil {
			return err
		}
		return fn(rel, p, info)
	})
	if err != nil {
		return fmt.Errorf("storage: walk %s: %w", dir, err)
	}
	return nil
}

// List returns metadata for every note under dir, sorted by path.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	out := []models.NoteMetadata{}
	err := f.Walk(dir, func(rel, _ string, info fs.FileInfo) error {
		out = append(out, models.NoteMetadata{
			Path:      rel,
			UpdatedAt: info.ModTime(),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b models.NoteMetadata) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out, nil
}

// Folders returns every non-excluded directory under dir, depth first, as
// vault-relative paths.
func (f *FS) Folders(dir string) ([]string, error) {
	base, err := f.sandbox.Resolve(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if err := f.folders(base, &out); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("storage: folders %s: %w", dir, err)
	}
	return out, nil
}

func (f *FS) folders(abs string, out *[]string) error {
	entries, err := os.ReadDir(abs)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || vaultpath.Excluded(e.Name()) {
			continue
		}
		child := filepath.Join(abs, e.Name())
		rel, err := f.sandbox.Rel(child)
		if err != nil {
			return err
		}
		*out = append(*out, rel)
		if err := f.folders(child, out); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
