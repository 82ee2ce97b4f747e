// Package attachment stores uploaded files in the vault's flat attachments
// folder.
package attachment

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/vaultpath"
)

// Dir is the vault-relative folder holding attachments.
const Dir = "attachments"

// Store reads and writes attachments through the vault sandbox.
type Store struct {
	sandbox *vaultpath.Sandbox
}

// New creates a store under sb's root.
func New(sb *vaultpath.Sandbox) *Store {
	return &Store{sandbox: sb}
}

// Resolve validates that name is a plain, visible file name and returns its
// absolute path.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: filename is required", apperr.ErrInvalidInput)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("%w: invalid filename: %s", apperr.ErrInvalidInput, name)
	}
	return s.sandbox.Resolve(path.Join(Dir, cleaned))
}

// Open returns the absolute path of an existing attachment.
func (s *Store) Open(name string) (string, error) {
	abs, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", fmt.Errorf("%w: attachment %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return abs, nil
}

// Save writes r to the attachment name atomically and returns the number of
// bytes written. Unless overwrite is set an existing file yields
// apperr.ErrExists.
func (s *Store) Save(name string, r io.Reader, overwrite bool) (int64, error) {
	abs, err := s.Resolve(name)
	if err != nil {
		return 0, err
	}
	if !overwrite {
		if _, err := os.Lstat(abs); err == nil {
			return 0, fmt.Errorf("%w: attachment %s", apperr.ErrExists, name)
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, fmt.Errorf("attachment: mkdir: %w", err)
	}

	cr := &countingReader{r: r}
	if err := atomic.WriteFile(abs, cr); err != nil {
		return 0, fmt.Errorf("attachment: write %s: %w", name, err)
	}
	return cr.n, nil
}

// URL is the server path under which name is served.
func URL(name string) string {
	return "/" + Dir + "/" + url.PathEscape(name)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
