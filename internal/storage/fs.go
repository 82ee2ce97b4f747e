package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/natefinch/atomic"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/checksum"
	"github.com/starford/noteapi/internal/frontmatter"
	"github.com/starford/noteapi/internal/models"
	"github.com/starford/noteapi/internal/parser"
	"github.com/starford/noteapi/internal/vaultpath"
)

// TrashDir is the vault-relative folder that receives deleted notes when the
// trash policy is on.
const TrashDir = ".trash"

const dirPerm = 0o755

// FS is the note store backed by the local file system.
type FS struct {
	sandbox *vaultpath.Sandbox
	trash   bool
	mode    os.FileMode
	uid     int
	gid     int
	now     func() time.Time
	locks   pathLocks
}

// Option configures an FS.
type Option func(*FS)

// WithTrash moves deleted notes under TrashDir instead of unlinking them.
func WithTrash(enabled bool) Option {
	return func(f *FS) { f.trash = enabled }
}

// WithFileMode sets the permission bits of written notes.
func WithFileMode(mode os.FileMode) Option {
	return func(f *FS) { f.mode = mode }
}

// WithOwner chowns written notes. Both ids must be set (>= 0) to take effect.
func WithOwner(uid, gid int) Option {
	return func(f *FS) { f.uid, f.gid = uid, gid }
}

// WithClock overrides time.Now for trash timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *FS) { f.now = now }
}

// NewFS creates a store rooted at the given directory, which must exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	sb, err := vaultpath.New(root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	info, err := os.Stat(sb.Root())
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", sb.Root())
	}

	f := &FS{sandbox: sb, mode: 0o644, uid: -1, gid: -1, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the canonical vault root.
func (f *FS) Root() string { return f.sandbox.Root() }

// Sandbox exposes the path resolver.
func (f *FS) Sandbox() *vaultpath.Sandbox { return f.sandbox }

// Canonical returns the VaultPath that rel resolves to, following symlinks
// and accepting absolute paths inside the vault. The target need not exist.
func (f *FS) Canonical(rel string) (string, error) {
	abs, err := f.resolveNote(rel)
	if err != nil {
		return "", err
	}
	return f.sandbox.Rel(abs)
}

// resolveNote resolves rel and checks that it names a Markdown file.
func (f *FS) resolveNote(rel string) (string, error) {
	abs, err := f.sandbox.Resolve(rel)
	if err != nil {
		return "", err
	}
	if !vaultpath.IsMarkdown(abs) {
		return "", fmt.Errorf("%w: %s", apperr.ErrNotMarkdown, rel)
	}
	return abs, nil
}

// Read loads the note at rel.
func (f *FS) Read(rel string) (*models.Note, error) {
	abs, err := f.resolveNote(rel)
	if err != nil {
		return nil, err
	}
	return f.Load(abs)
}

// Load reads a note by absolute path. The path must lie inside the vault.
func (f *FS) Load(abs string) (*models.Note, error) {
	rel, err := f.sandbox.Rel(abs)
	if err != nil {
		return nil, err
	}
	data, info, err := readFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return newNote(rel, data, info.ModTime()), nil
}

// Create writes a new note. It fails with apperr.ErrExists if anything is
// already at rel.
func (f *FS) Create(rel string, fm *frontmatter.FrontMatter, body string) (*models.Note, error) {
	abs, err := f.resolveNote(rel)
	if err != nil {
		return nil, err
	}
	unlock := f.locks.lock(abs)
	defer unlock()

	if err := f.ensureAbsent(abs, rel); err != nil {
		return nil, err
	}
	data, err := parser.Compose(fm, body)
	if err != nil {
		return nil, fmt.Errorf("storage: compose %s: %w", rel, err)
	}
	return f.commit(abs, data)
}

// UpdateInput lists the parts of a note an update replaces. Nil fields keep
// the current value.
type UpdateInput struct {
	FrontMatter *frontmatter.FrontMatter
	Body        *string
	NewPath     *string
}

// Update rewrites the note at rel if ifMatch equals its current ETag,
// optionally renaming it. The old file is removed only after the new one is
// in place.
func (f *FS) Update(rel, ifMatch string, in UpdateInput) (*models.Note, error) {
	abs, err := f.resolveNote(rel)
	if err != nil {
		return nil, err
	}
	if ifMatch == "" {
		return nil, fmt.Errorf("%w: %s", apperr.ErrPreconditionMissing, rel)
	}

	dest := abs
	if in.NewPath != nil && *in.NewPath != rel {
		if dest, err = f.resolveNote(*in.NewPath); err != nil {
			return nil, err
		}
	}
	unlock := f.locks.lock(abs, dest)
	defer unlock()

	cur, err := f.checkedRead(abs, rel, ifMatch)
	if err != nil {
		return nil, err
	}
	if dest != abs {
		if err := f.ensureAbsent(dest, *in.NewPath); err != nil {
			return nil, err
		}
	}

	fm, body := cur.FrontMatter, cur.Body
	if in.FrontMatter != nil {
		fm = in.FrontMatter
	}
	if in.Body != nil {
		body = *in.Body
	}
	data, err := parser.Compose(fm, body)
	if err != nil {
		return nil, fmt.Errorf("storage: compose %s: %w", rel, err)
	}

	note, err := f.commit(dest, data)
	if err != nil {
		return nil, err
	}
	if dest != abs {
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: remove old %s: %w", rel, err)
		}
	}
	return note, nil
}

// Move renames the note at rel to newRel keeping its bytes. ifMatch is
// optional; when given it must equal the current ETag.
func (f *FS) Move(rel, newRel, ifMatch string) (*models.Note, error) {
	abs, err := f.resolveNote(rel)
	if err != nil {
		return nil, err
	}
	dest, err := f.resolveNote(newRel)
	if err != nil {
		return nil, err
	}
	unlock := f.locks.lock(abs, dest)
	defer unlock()

	cur, err := f.read(abs, rel)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !checksum.MatchETag(ifMatch, cur.ETag) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrPreconditionMismatch, rel)
	}
	if dest == abs {
		return cur, nil
	}
	if err := f.ensureAbsent(dest, newRel); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return nil, fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(abs, dest); err != nil {
		return nil, fmt.Errorf("storage: move: %w", err)
	}
	return f.Load(dest)
}

// DeleteResult describes where a deleted note went.
type DeleteResult struct {
	Path      string `json:"path"`
	TrashedTo string `json:"trashed_to,omitempty"`
}

// Delete removes the note at rel if ifMatch equals its current ETag. Under
// the trash policy the file moves to .trash/<timestamp>/<rel>.
func (f *FS) Delete(rel, ifMatch string) (DeleteResult, error) {
	abs, err := f.resolveNote(rel)
	if err != nil {
		return DeleteResult{}, err
	}
	if ifMatch == "" {
		return DeleteResult{}, fmt.Errorf("%w: %s", apperr.ErrPreconditionMissing, rel)
	}
	unlock := f.locks.lock(abs)
	defer unlock()

	cur, err := f.checkedRead(abs, rel, ifMatch)
	if err != nil {
		return DeleteResult{}, err
	}
	res := DeleteResult{Path: cur.Path}

	if !f.trash {
		if err := os.Remove(abs); err != nil {
			return DeleteResult{}, fmt.Errorf("storage: delete %s: %w", rel, err)
		}
		return res, nil
	}

	trashRel := path.Join(TrashDir, f.now().UTC().Format(time.RFC3339Nano), cur.Path)
	trashAbs, err := f.sandbox.Resolve(trashRel)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(trashAbs), dirPerm); err != nil {
		return DeleteResult{}, fmt.Errorf("storage: mkdir trash: %w", err)
	}
	if err := os.Rename(abs, trashAbs); err != nil {
		return DeleteResult{}, fmt.Errorf("storage: trash %s: %w", rel, err)
	}
	res.TrashedTo = trashRel
	return res, nil
}

// MkdirAll creates the folder rel and any missing parents.
func (f *FS) MkdirAll(rel string) (string, error) {
	abs, err := f.sandbox.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		if errors.Is(err, fs.ErrExist) || errors.Is(err, syscall.ENOTDIR) {
			return "", fmt.Errorf("%w: %s", apperr.ErrExists, rel)
		}
		return "", fmt.Errorf("storage: mkdir %s: %w", rel, err)
	}
	return f.sandbox.Rel(abs)
}

func (f *FS) read(abs, rel string) (*models.Note, error) {
	data, info, err := readFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	canon, err := f.sandbox.Rel(abs)
	if err != nil {
		return nil, err
	}
	return newNote(canon, data, info.ModTime()), nil
}

func (f *FS) checkedRead(abs, rel, ifMatch string) (*models.Note, error) {
	cur, err := f.read(abs, rel)
	if err != nil {
		return nil, err
	}
	if !checksum.MatchETag(ifMatch, cur.ETag) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrPreconditionMismatch, rel)
	}
	return cur, nil
}

func (f *FS) ensureAbsent(abs, rel string) error {
	_, err := os.Lstat(abs)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", apperr.ErrExists, rel)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("storage: stat %s: %w", rel, err)
	}
}

// commit writes data to abs through the atomic primitive and returns the
// note as stored.
func (f *FS) commit(abs string, data []byte) (*models.Note, error) {
	if err := os.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := f.writeAtomic(abs, data); err != nil {
		return nil, err
	}
	rel, err := f.sandbox.Rel(abs)
	if err != nil {
		return nil, err
	}
	mtime := f.now()
	if info, err := os.Stat(abs); err == nil {
		mtime = info.ModTime()
	}
	return newNote(rel, data, mtime), nil
}

// writeAtomic replaces abs with data: temp sibling, fsync, rename. Readers
// see either the old or the new bytes, never a partial file. Permissions and
// ownership are applied after the rename.
func (f *FS) writeAtomic(abs string, data []byte) error {
	if err := atomic.WriteFile(abs, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage: atomic write: %w", err)
	}
	// atomic.WriteFile doesn't set permissions for new files.
	if err := os.Chmod(abs, f.mode); err != nil {
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if f.uid >= 0 && f.gid >= 0 {
		if err := os.Chown(abs, f.uid, f.gid); err != nil {
			return fmt.Errorf("storage: chown: %w", err)
		}
	}
	return nil
}

func readFile(abs string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, apperr.ErrNotFound
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, err
	}
	return data, info, nil
}

func newNote(rel string, data []byte, mtime time.Time) *models.Note {
	res := parser.Parse(data)
	toc := []models.TOCEntry{}
	for _, h := range res.Headings {
		if h.Level <= 3 {
			toc = append(toc, models.TOCEntry{Level: h.Level, Title: h.Text, Line: h.Line})
		}
	}
	return &models.Note{
		Path:        rel,
		FrontMatter: res.FrontMatter,
		Body:        res.Body,
		TOC:         toc,
		ETag:        checksum.ETag(data),
		ModTime:     mtime,
		Raw:         data,
	}
}
