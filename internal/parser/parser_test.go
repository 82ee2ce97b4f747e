package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/noteapi/internal/frontmatter"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\naliases:\n  - Hi\n  - Hey\n---\n# Hello\nBody text.\n")
	r := Parse(input)
	if got, _ := r.FrontMatter.Get("title"); got.Text() != "Hello" {
		t.Errorf("title = %q, want %q", got.Text(), "Hello")
	}
	if diff := cmp.Diff([]string{"Hi", "Hey"}, r.Aliases); diff != "" {
		t.Errorf("aliases (-want +got):\n%s", diff)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if r.Title != "Hello" {
		t.Errorf("Title = %q", r.Title)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r := Parse(input)
	if r.FrontMatter.Len() != 0 {
		t.Errorf("expected empty front matter, got %d keys", r.FrontMatter.Len())
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r := Parse(input)
	if r.FrontMatter.Len() != 0 {
		t.Errorf("expected empty front matter on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("invalid YAML must leave the whole file as body, got %q", r.Body)
	}
}

func TestParse_UnclosedBlock(t *testing.T) {
	input := []byte("---\ntitle: x\nno closing fence\n")
	r := Parse(input)
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestComposeSplitRoundTrip(t *testing.T) {
	fm := frontmatter.New().
		Set("tag", frontmatter.String("x")).
		Set("n", frontmatter.Number(2))

	data, err := Compose(fm, "hello")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\ntag: x\nn: 2\n---\n") {
		t.Errorf("unexpected file:\n%s", data)
	}

	gotFM, body := Split(data)
	if !gotFM.Equal(fm) {
		t.Errorf("front matter changed across round trip")
	}
	if body != "hello\n" {
		t.Errorf("body = %q", body)
	}
}

func TestCompose_EmptyFrontMatter(t *testing.T) {
	data, err := Compose(frontmatter.New(), "plain")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "plain\n" {
		t.Errorf("got %q", data)
	}
}

func TestHeadings_SkipsFences(t *testing.T) {
	body := "# Title\ntext\n```\n# not a heading\n```\n## Sub\n####### too deep\n###### Six\n"
	want := []Heading{
		{Level: 1, Text: "Title", Line: 1},
		{Level: 2, Text: "Sub", Line: 6},
		{Level: 6, Text: "Six", Line: 8},
	}
	if diff := cmp.Diff(want, Headings(body)); diff != "" {
		t.Errorf("headings (-want +got):\n%s", diff)
	}
}

func TestSection(t *testing.T) {
	body := "# A\nintro\n## B\nb one\nb two\n#### deep\nstill b\n## C\nc\n"

	got, ok := Section(body, "B")
	if !ok {
		t.Fatal("section B not found")
	}
	if want := "b one\nb two\n#### deep\nstill b"; got != want {
		t.Errorf("section = %q, want %q", got, want)
	}

	got, ok = Section(body, "C")
	if !ok || got != "c" {
		t.Errorf("last section = %q, %v", got, ok)
	}

	if _, ok := Section(body, "missing"); ok {
		t.Error("expected missing section")
	}
}

func TestLines(t *testing.T) {
	body := "one\ntwo\nthree\nfour"
	cases := []struct {
		from, to int
		want     string
	}{
		{2, 3, "two\nthree"},
		{0, 1, "one"},
		{3, 0, "three\nfour"},
		{3, 99, "three\nfour"},
		{5, 6, ""},
	}
	for _, c := range cases {
		if got := Lines(body, c.from, c.to); got != c.want {
			t.Errorf("Lines(%d,%d) = %q, want %q", c.from, c.to, got, c.want)
		}
	}
}

func TestLinks(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]] and [[c#Heading|x]].\nAlso [[Note A]] again, [[d.md]], [[ ]]."
	want := []string{"Note A.md", "Note B.md", "c.md", "d.md"}
	if diff := cmp.Diff(want, Links(body)); diff != "" {
		t.Errorf("links (-want +got):\n%s", diff)
	}
}

func TestAliases_ScalarFallback(t *testing.T) {
	fm := frontmatter.New().Set("alias", frontmatter.String("Solo"))
	if diff := cmp.Diff([]string{"Solo"}, Aliases(fm)); diff != "" {
		t.Errorf("aliases (-want +got):\n%s", diff)
	}
	if got := Aliases(frontmatter.New()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
