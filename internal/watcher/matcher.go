package watcher

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/noteapi/internal/vaultpath"
)

// RuleKind selects how a Rule's pattern is compared.
type RuleKind uint8

const (
	// Exact, Prefix, Suffix and Contains test the base name.
	Exact RuleKind = iota
	Prefix
	Suffix
	Contains
	// Glob tests the whole vault-relative path with doublestar syntax.
	Glob
)

// Rule is one ignore pattern.
type Rule struct {
	Kind    RuleKind
	Pattern string
	Reason  string
}

func (r Rule) match(rel, base string) bool {
	switch r.Kind {
	case Exact:
		return base == r.Pattern
	case Prefix:
		return strings.HasPrefix(base, r.Pattern)
	case Suffix:
		return strings.HasSuffix(base, r.Pattern)
	case Contains:
		return strings.Contains(base, r.Pattern)
	case Glob:
		ok, _ := doublestar.Match(r.Pattern, rel)
		return ok
	}
	return false
}

// DefaultRules drop editor, sync-tool and OS artifacts.
var DefaultRules = []Rule{
	{Kind: Suffix, Pattern: ".swp", Reason: "vim swap"},
	{Kind: Suffix, Pattern: ".swx", Reason: "vim swap"},
	{Kind: Suffix, Pattern: ".swo", Reason: "vim swap"},
	{Kind: Suffix, Pattern: "~", Reason: "backup"},
	{Kind: Exact, Pattern: "4913", Reason: "vim write probe"},
	{Kind: Suffix, Pattern: ".tmp", Reason: "temp"},
	{Kind: Suffix, Pattern: ".crswap", Reason: "temp"},
	{Kind: Suffix, Pattern: ".part", Reason: "temp"},
	{Kind: Prefix, Pattern: ".#", Reason: "lock"},
	{Kind: Prefix, Pattern: "~$", Reason: "lock"},
	{Kind: Prefix, Pattern: ".~lock.", Reason: "lock"},
	{Kind: Suffix, Pattern: ".bak", Reason: "backup"},
	{Kind: Suffix, Pattern: ".orig", Reason: "backup"},
	{Kind: Contains, Pattern: "sync-conflict", Reason: "conflict"},
	{Kind: Contains, Pattern: ".conflict", Reason: "conflict"},
	{Kind: Exact, Pattern: "Thumbs.db", Reason: "os"},
	{Kind: Exact, Pattern: "desktop.ini", Reason: "os"},
}

// Matcher decides which vault paths the watcher ignores.
type Matcher struct {
	rules []Rule
}

// NewMatcher compiles DefaultRules plus one Glob rule per extra pattern.
func NewMatcher(globs ...string) (*Matcher, error) {
	rules := append([]Rule(nil), DefaultRules...)
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("watcher: invalid ignore pattern %q", g)
		}
		rules = append(rules, Rule{Kind: Glob, Pattern: g, Reason: "configured"})
	}
	return &Matcher{rules: rules}, nil
}

// Match reports whether rel (slash-separated, vault-relative) is ignored and
// why. Excluded path segments and non-note files are always ignored.
func (m *Matcher) Match(rel string) (string, bool) {
	for _, seg := range strings.Split(rel, "/") {
		if seg != "" && vaultpath.Excluded(seg) {
			return "hidden", true
		}
	}
	base := path.Base(rel)
	for _, r := range m.rules {
		if r.match(rel, base) {
			return r.Reason, true
		}
	}
	if !vaultpath.IsMarkdown(base) {
		return "not-markdown", true
	}
	return "", false
}

// MatchDir reports whether a directory should be left unwatched.
func (m *Matcher) MatchDir(rel string) bool {
	if rel == "" {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if vaultpath.Excluded(seg) {
			return true
		}
	}
	for _, r := range m.rules {
		if r.Kind != Glob {
			continue
		}
		// "attachments/**" also matches the folder itself.
		if ok, _ := doublestar.Match(r.Pattern, rel+"/x"); ok {
			return true
		}
	}
	return false
}
