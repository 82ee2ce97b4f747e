// Package parser splits a note file into front matter and body, and extracts
// headings, wikilinks and aliases from Markdown content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/starford/noteapi/internal/frontmatter"
)

const delim = "---"

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|#]+)(?:#[^\]|]+)?(?:\|[^\]]+)?\]\]`)
)

// Heading is one ATX heading. Line is 1-based within the body.
type Heading struct {
	Level int
	Text  string
	Line  int
}

// Result holds the output of parsing a note file.
type Result struct {
	FrontMatter *frontmatter.FrontMatter
	Body        string
	Headings    []Heading
	Links       []string
	Aliases     []string
	Title       string
}

// Parse splits data and derives headings, links and aliases. It never fails:
// a malformed front-matter block is treated as part of the body.
func Parse(data []byte) *Result {
	fm, body := Split(data)
	headings := Headings(body)

	var title string
	for _, h := range headings {
		if h.Level == 1 {
			title = h.Text
			break
		}
	}

	return &Result{
		FrontMatter: fm,
		Body:        body,
		Headings:    headings,
		Links:       Links(body),
		Aliases:     Aliases(fm),
		Title:       title,
	}
}

// Split separates a leading YAML block (between --- lines) from the body. If
// no closed, valid block is found the entire content is body.
func Split(data []byte) (*frontmatter.FrontMatter, string) {
	text := strings.TrimPrefix(string(data), "\ufeff")

	first, rest, ok := strings.Cut(text, "\n")
	if !ok || !isDelim(first) {
		return frontmatter.New(), string(data)
	}

	for off := 0; ; {
		line, tail, more := strings.Cut(rest[off:], "\n")
		if isDelim(line) {
			fm, err := frontmatter.Decode([]byte(rest[:off]))
			if err != nil {
				// Invalid YAML: keep the file readable as plain Markdown.
				return frontmatter.New(), string(data)
			}
			return fm, tail
		}
		if !more {
			return frontmatter.New(), string(data)
		}
		off += len(line) + 1
	}
}

// Compose renders the on-disk form of a note. An empty front matter produces
// the body alone. The result always ends with a newline.
func Compose(fm *frontmatter.FrontMatter, body string) ([]byte, error) {
	var buf bytes.Buffer
	if fm.Len() > 0 {
		block, err := frontmatter.Encode(fm)
		if err != nil {
			return nil, err
		}
		buf.WriteString(delim + "\n")
		buf.Write(block)
		buf.WriteString(delim + "\n")
	}
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Headings returns every ATX heading in document order. Lines inside fenced
// code blocks are skipped.
func Headings(body string) []Heading {
	var (
		out   []Heading
		fence string
	)
	for i, line := range splitLines(body) {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]
			continue
		}
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Heading{Level: len(m[1]), Text: strings.TrimSpace(m[2]), Line: i + 1})
	}
	return out
}

// Section returns the body lines between the level 1-3 heading titled title
// and the next level 1-3 heading, trimmed.
func Section(body, title string) (string, bool) {
	lines := splitLines(body)
	var toc []Heading
	for _, h := range Headings(body) {
		if h.Level <= 3 {
			toc = append(toc, h)
		}
	}
	for i, h := range toc {
		if h.Text != title {
			continue
		}
		end := len(lines)
		if i+1 < len(toc) {
			end = toc[i+1].Line - 1
		}
		return strings.TrimSpace(strings.Join(lines[h.Line:end], "\n")), true
	}
	return "", false
}

// Lines returns body lines from..to, 1-based and inclusive, clamped to the
// body. to <= 0 means "until the end".
func Lines(body string, from, to int) string {
	lines := splitLines(body)
	if from < 1 {
		from = 1
	}
	if to <= 0 || to > len(lines) {
		to = len(lines)
	}
	if from > to {
		return ""
	}
	return strings.Join(lines[from-1:to], "\n")
}

// Links returns deduplicated wikilink targets normalised to note paths:
// [[Target#anchor|Alias]] yields "Target.md".
func Links(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(target), ".md") {
			target += ".md"
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// Aliases reads the "aliases" key (list or scalar), falling back to "alias".
func Aliases(fm *frontmatter.FrontMatter) []string {
	v, ok := fm.Get("aliases")
	if !ok || v.Kind == frontmatter.KindNull {
		v, ok = fm.Get("alias")
	}
	if !ok {
		return nil
	}
	var out []string
	for _, a := range v.Strings() {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func isDelim(line string) bool {
	return strings.TrimRight(line, " \t\r") == delim
}

func splitLines(body string) []string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
