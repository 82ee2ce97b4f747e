package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/noteapi/internal/apperr"
	"github.com/starford/noteapi/internal/frontmatter"
	"github.com/starford/noteapi/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "noteapi-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := OpenSQLite(f.Name())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBleve(t *testing.T) *Bleve {
	t.Helper()
	b, err := OpenBleve("")
	if err != nil {
		t.Fatalf("OpenBleve: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func doc(path, content string) models.SearchDocument {
	return models.SearchDocument{
		ID:          "id-" + strings.ReplaceAll(path, "/", "_"),
		Path:        path,
		Title:       strings.TrimSuffix(path, ".md"),
		FrontMatter: frontmatter.New().Set("tag", frontmatter.String("x")),
		Content:     content,
		MTime:       1,
	}
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

// clients runs fn against every engine.
func clients(t *testing.T, fn func(t *testing.T, c Client)) {
	t.Run("bleve", func(t *testing.T) { fn(t, testBleve(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, testDB(t)) })
}

func TestAddSearchDelete(t *testing.T) {
	clients(t, func(t *testing.T, c Client) {
		info, err := c.AddDocuments(ctx(t), []models.SearchDocument{
			doc("note.md", "banana in folder"),
			doc("other.md", "apples only"),
		})
		require.NoError(t, err)
		assert.Equal(t, StatusEnqueued, info.Status)
		require.NoError(t, Await(ctx(t), c, info))

		hits, err := c.Search(ctx(t), "banana", SearchOptions{Limit: 10, Highlight: true})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "note.md", hits[0].Path)
		assert.Equal(t, "id-note.md", hits[0].ID)
		assert.Contains(t, hits[0].Snippet, "banana")

		hits, err = c.Search(ctx(t), "zeppelin", SearchOptions{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, hits)

		info, err = c.DeleteDocument(ctx(t), "id-note.md")
		require.NoError(t, err)
		require.NoError(t, Await(ctx(t), c, info))

		hits, err = c.Search(ctx(t), "banana", SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestUpsertReplaces(t *testing.T) {
	clients(t, func(t *testing.T, c Client) {
		info, _ := c.AddDocuments(ctx(t), []models.SearchDocument{doc("evo.md", "original text")})
		require.NoError(t, Await(ctx(t), c, info))
		info, _ = c.AddDocuments(ctx(t), []models.SearchDocument{doc("evo.md", "replacement text")})
		require.NoError(t, Await(ctx(t), c, info))

		hits, err := c.Search(ctx(t), "original", SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = c.Search(ctx(t), "replacement", SearchOptions{})
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}

func TestSearch_EmptyQuery(t *testing.T) {
	clients(t, func(t *testing.T, c Client) {
		hits, err := c.Search(ctx(t), "   ", SearchOptions{})
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})
}

func TestClosedClientIsUnavailable(t *testing.T) {
	b, err := OpenBleve("")
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Health(context.Background()), apperr.ErrIndexUnavailable)
	_, err = b.AddDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrIndexUnavailable)
}

func TestBleve_PersistsOnDisk(t *testing.T) {
	path := t.TempDir() + "/notes.bleve"
	b, err := OpenBleve(path)
	require.NoError(t, err)
	info, err := b.AddDocuments(ctx(t), []models.SearchDocument{doc("kept.md", "durable words")})
	require.NoError(t, err)
	require.NoError(t, Await(ctx(t), b, info))
	require.NoError(t, b.Close())

	b, err = OpenBleve(path)
	require.NoError(t, err)
	defer b.Close()
	n, err := b.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTaskQueue_OrderAndFailure(t *testing.T) {
	q := newTaskQueue()
	defer q.close()

	var order []int
	ok, err := q.submit(TaskAddDocuments, func() error { order = append(order, 1); return nil })
	require.NoError(t, err)
	bad, err := q.submit(TaskAddDocuments, func() error { order = append(order, 2); return errors.New("boom") })
	require.NoError(t, err)

	task, err := q.wait(ctx(t), bad.UID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)
	assert.False(t, task.FinishedAt.IsZero())

	task, err = q.wait(ctx(t), ok.UID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, task.Status)
	assert.Equal(t, []int{1, 2}, order)

	_, err = q.wait(ctx(t), "nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskQueue_WaitHonoursContext(t *testing.T) {
	q := newTaskQueue()
	release := make(chan struct{})
	info, err := q.submit(TaskAddDocuments, func() error { <-release; return nil })
	require.NoError(t, err)

	c, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.wait(c, info.UID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	q.close()
	_, err = q.submit(TaskAddDocuments, func() error { return nil })
	assert.Error(t, err)
}

type healthStub struct {
	Client
	err error
}

func (h *healthStub) Health(context.Context) error { return h.err }

func TestGate_ProbeTransitions(t *testing.T) {
	stub := &healthStub{err: ErrUnavailable}
	g := NewGate(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.False(t, g.Probe(context.Background()))
	assert.False(t, g.Enabled())

	stub.err = nil
	assert.True(t, g.Probe(context.Background()), "closed -> open must be reported")
	assert.True(t, g.Enabled())
	assert.False(t, g.Probe(context.Background()), "staying open is not a transition")

	stub.err = ErrUnavailable
	assert.False(t, g.Probe(context.Background()))
	assert.False(t, g.Enabled())
}

func TestSnippetAround(t *testing.T) {
	long := strings.Repeat("x ", 500) + "needle" + strings.Repeat(" y", 500)
	s := snippetAround(long, "NEEDLE")
	assert.Contains(t, s, "needle")
	assert.LessOrEqual(t, len([]rune(s)), MaxSnippet)

	assert.Equal(t, "a <mark>Banana</mark> b", markTerms("a Banana b", "banana"))
}

func TestOpen_Engines(t *testing.T) {
	mem, err := Open(EngineMemory, "", "notes")
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	b, ok := mem.(*Bleve)
	require.True(t, ok)
	assert.Equal(t, "notes", b.index.Name())

	sq, err := Open(EngineSQLite, t.TempDir()+"/notes.db", "ignored")
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	require.NoError(t, sq.Health(context.Background()))

	_, err = Open("elastic", "", "")
	assert.Error(t, err)
}
