// Package graph derives the wiki-link graph of the vault: outgoing links,
// backlinks and aliases.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/parser"
	"github.com/starford/noteapi/internal/storage"
)

// Note is one vertex: a note path, its outgoing link targets (normalized to
// .md paths) and the aliases declared in its front matter.
type Note struct {
	Path    string
	Links   []string
	Aliases []string
}

// Graph is an immutable snapshot of the link structure.
type Graph struct {
	notes  []Note
	byPath map[string]int
	// Backward: note index → indexes of notes linking to it.
	backward map[int][]int
}

// Load walks the vault and builds a snapshot.
func Load(ctx context.Context, store storage.Reader) (*Graph, error) {
	var notes []Note
	err := store.Walk("", func(rel, abs string, _ fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := store.Load(abs)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			return err
		}
		notes = append(notes, Note{
			Path:    rel,
			Links:   parser.Links(n.Body),
			Aliases: parser.Aliases(n.FrontMatter),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: load: %w", err)
	}
	return Build(notes), nil
}

// Build links the given notes together.
func Build(notes []Note) *Graph {
	g := &Graph{
		notes:    notes,
		byPath:   make(map[string]int, len(notes)),
		backward: make(map[int][]int),
	}
	// Lowercase link key → notes answering to it by path, base name or alias.
	targets := make(map[string][]int)
	for i, n := range notes {
		g.byPath[n.Path] = i
		keys := []string{stem(n.Path), stem(path.Base(n.Path))}
		for _, a := range n.Aliases {
			keys = append(keys, strings.ToLower(a))
		}
		for _, k := range dedupe(keys) {
			targets[k] = append(targets[k], i)
		}
	}
	for i, n := range notes {
		seen := make(map[int]bool)
		for _, l := range n.Links {
			for _, t := range targets[stem(l)] {
				if t == i || seen[t] {
					continue
				}
				seen[t] = true
				g.backward[t] = append(g.backward[t], i)
			}
		}
	}
	return g
}

// stem lowercases p and drops a trailing .md.
func stem(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	return strings.TrimSuffix(p, ".md")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Len returns the number of notes.
func (g *Graph) Len() int { return len(g.notes) }

// Note returns the vertex for p.
func (g *Graph) Note(p string) (Note, bool) {
	i, ok := g.byPath[p]
	if !ok {
		return Note{}, false
	}
	return g.notes[i], true
}

func (g *Graph) lookup(p string) (int, error) {
	i, ok := g.byPath[p]
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperr.ErrNotFound, p)
	}
	return i, nil
}

// Backlinks returns the notes linking to p, in vault order.
func (g *Graph) Backlinks(p string) ([]string, error) {
	i, err := g.lookup(p)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(g.backward[i]))
	for _, j := range g.backward[i] {
		out = append(out, g.notes[j].Path)
	}
	return out, nil
}

// Aliases returns the aliases declared by p.
func (g *Graph) Aliases(p string) ([]string, error) {
	i, err := g.lookup(p)
	if err != nil {
		return nil, err
	}
	return append([]string{}, g.notes[i].Aliases...), nil
}

// Neighbors returns the outgoing links of p followed by its backlinks,
// without duplicates.
func (g *Graph) Neighbors(p string) ([]string, error) {
	i, err := g.lookup(p)
	if err != nil {
		return nil, err
	}
	back, _ := g.Backlinks(p)
	out := make([]string, 0, len(g.notes[i].Links)+len(back))
	seen := make(map[string]bool)
	for _, s := range append(append([]string{}, g.notes[i].Links...), back...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
