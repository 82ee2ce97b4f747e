// Package vaultpath maps untrusted, slash-separated note paths onto the
// filesystem while keeping every result inside the vault root.
package vaultpath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/noteapi/internal/apperr"
)

// Sandbox resolves relative vault paths against a canonical root.
type Sandbox struct {
	root string // absolute, symlink-free
}

// New canonicalizes root. A root that does not exist yet is accepted in its
// absolute, lexical form so the caller may create it later.
func New(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vaultpath: resolve root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	switch {
	case err == nil:
		abs = real
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("vaultpath: canonicalize root: %w", err)
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the canonical vault root.
func (s *Sandbox) Root() string { return s.root }

// Resolve returns the canonical absolute path for rel. It fails with
// apperr.ErrPathTraversal when the target, after symlink resolution, is
// neither the root nor one of its descendants.
func (s *Sandbox) Resolve(rel string) (string, error) {
	var joined string
	if native := filepath.FromSlash(rel); filepath.IsAbs(native) {
		joined = filepath.Clean(native)
	} else {
		joined = filepath.Join(s.root, native)
	}

	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("vaultpath: resolve %s: %w", rel, err)
		}
		// The leaf does not exist yet, but its existing ancestors may still
		// be symlinks pointing elsewhere.
		real, err = resolveMissing(joined)
		if err != nil {
			return "", fmt.Errorf("vaultpath: resolve %s: %w", rel, err)
		}
	}

	if !s.Contains(real) {
		return "", fmt.Errorf("%w: %s", apperr.ErrPathTraversal, rel)
	}
	return real, nil
}

// Contains reports whether abs is the root or lies beneath it.
func (s *Sandbox) Contains(abs string) bool {
	return abs == s.root || strings.HasPrefix(abs, s.root+string(os.PathSeparator))
}

// Rel converts an absolute path under the root into a slash-separated
// VaultPath.
func (s *Sandbox) Rel(abs string) (string, error) {
	if !s.Contains(abs) {
		return "", fmt.Errorf("%w: %s", apperr.ErrPathTraversal, abs)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", fmt.Errorf("vaultpath: rel %s: %w", abs, err)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// IsMarkdown classifies a path as a note by extension only.
func IsMarkdown(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".md")
}

// resolveMissing resolves the deepest existing ancestor of p and re-appends
// the missing tail.
func resolveMissing(p string) (string, error) {
	var tail []string
	dir := p
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return p, nil
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent

		real, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{real}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
}

// syncMeta names folders maintained by sync tools and NAS software.
var syncMeta = map[string]struct{}{
	".stfolder":   {},
	".stversions": {},
	"@eaDir":      {},
	"#recycle":    {},
}

// Excluded reports whether a single path segment is hidden from enumeration,
// indexing and graph traversal: dot entries, sync-tool folders and
// conflict copies.
func Excluded(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, "sync-conflict") {
		return true
	}
	_, ok := syncMeta[name]
	return ok
}
