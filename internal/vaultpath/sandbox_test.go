package vaultpath

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/noteapi/internal/apperr"
)

func tempSandbox(t *testing.T) *Sandbox {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestResolve_InsideRoot(t *testing.T) {
	s := tempSandbox(t)

	cases := map[string]string{
		"note.md":         filepath.Join(s.Root(), "note.md"),
		"a/b/c.md":        filepath.Join(s.Root(), "a", "b", "c.md"),
		"a/../b.md":       filepath.Join(s.Root(), "b.md"),
		"":                s.Root(),
		"My Notes/ü ñ.md": filepath.Join(s.Root(), "My Notes", "ü ñ.md"),
		"./dir/./deep.md": filepath.Join(s.Root(), "dir", "deep.md"),
	}
	for rel, want := range cases {
		got, err := s.Resolve(rel)
		if err != nil {
			t.Errorf("Resolve(%q): %v", rel, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", rel, got, want)
		}
	}
}

func TestResolve_TraversalBlocked(t *testing.T) {
	s := tempSandbox(t)

	cases := []string{
		"../outside.md",
		"../../etc/passwd",
		"a/../../escape.md",
		"/etc/shadow",
	}
	for _, rel := range cases {
		_, err := s.Resolve(rel)
		if !errors.Is(err, apperr.ErrPathTraversal) {
			t.Errorf("Resolve(%q) err = %v, want ErrPathTraversal", rel, err)
		}
	}

	// Nothing was created as a side effect.
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 0 {
		t.Errorf("resolve mutated the vault: %v", entries)
	}
}

func TestResolve_AbsolutePaths(t *testing.T) {
	s := tempSandbox(t)

	inside := filepath.Join(s.Root(), "sub", "n.md")
	got, err := s.Resolve(inside)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", inside, err)
	}
	if got != inside {
		t.Errorf("Resolve(%q) = %q, want it unchanged", inside, got)
	}

	// An absolute path is not re-rooted under the vault.
	outside := filepath.Join(t.TempDir(), "n.md")
	if _, err := s.Resolve(outside); !errors.Is(err, apperr.ErrPathTraversal) {
		t.Errorf("Resolve(%q) err = %v, want ErrPathTraversal", outside, err)
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	s := tempSandbox(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	// Existing file behind the link.
	if _, err := s.Resolve("link/secret.md"); !errors.Is(err, apperr.ErrPathTraversal) {
		t.Errorf("existing target: err = %v, want ErrPathTraversal", err)
	}
	// Not-yet-existing file behind the link must not escape either.
	if _, err := s.Resolve("link/new/deeper.md"); !errors.Is(err, apperr.ErrPathTraversal) {
		t.Errorf("missing target: err = %v, want ErrPathTraversal", err)
	}
}

func TestResolve_SymlinkInsideRootAllowed(t *testing.T) {
	s := tempSandbox(t)
	if err := os.MkdirAll(filepath.Join(s.Root(), "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(s.Root(), "real"), filepath.Join(s.Root(), "alias")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	got, err := s.Resolve("alias/n.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(s.Root(), "real", "n.md"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRel(t *testing.T) {
	s := tempSandbox(t)
	rel, err := s.Rel(filepath.Join(s.Root(), "x", "y.md"))
	if err != nil || rel != "x/y.md" {
		t.Errorf("Rel = %q, %v", rel, err)
	}
	if _, err := s.Rel("/definitely/elsewhere.md"); !errors.Is(err, apperr.ErrPathTraversal) {
		t.Errorf("Rel outside root: err = %v", err)
	}
}

func TestIsMarkdown(t *testing.T) {
	for p, want := range map[string]bool{
		"a.md":        true,
		"A.MD":        true,
		"dir/b.Md":    true,
		"c.markdown":  false,
		"d.md.txt":    false,
		"md":          false,
		"folder.md/x": false,
	} {
		if got := IsMarkdown(p); got != want {
			t.Errorf("IsMarkdown(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestExcluded(t *testing.T) {
	for name, want := range map[string]bool{
		".git":                                  true,
		".trash":                                true,
		".stfolder":                             true,
		"@eaDir":                                true,
		"note.sync-conflict-20240101-123456.md": true,
		"note.md":                               false,
		"folder":                                false,
		"has.dot.md":                            false,
	} {
		if got := Excluded(name); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", name, got, want)
		}
	}
}
