package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewbot/internal/logging"
)

func TestSplitChunks_LineRanges(t *testing.T) {
	line := strings.Repeat("a", 9) // 10 chars with the newline
	content := strings.Join([]string{line, line, line, line, line}, "\n")

	chunks := SplitChunks(content, "pkg/a.go", 25)

	require.Len(t, chunks, 3)
	assert.Equal(t, "pkg/a.go:L1-2", chunks[0].Source())
	assert.Equal(t, "pkg/a.go:L3-4", chunks[1].Source())
	assert.Equal(t, "pkg/a.go:L5-5", chunks[2].Source())
	assert.Equal(t, line+"\n"+line, chunks[0].Text)
}

func TestSplitChunks_LongLineAndEmpty(t *testing.T) {
	long := strings.Repeat("x", 50)
	chunks := SplitChunks("short\n"+long+"\nend", "f.go", 20)
	require.Len(t, chunks, 3)
	assert.Equal(t, long, chunks[1].Text)
	assert.Equal(t, 2, chunks[1].StartLine)
	assert.Equal(t, 2, chunks[1].EndLine)

	assert.Empty(t, SplitChunks("  \n", "f.go", 0))
}

func TestShouldIndex(t *testing.T) {
	cases := map[string]bool{
		"main.go":                   true,
		"docs/ARCHITECTURE.md":      true,
		".aiconfig":                 true,
		"web/node_modules/x/y.js":   false,
		"build/out.go":              false,
		"assets/logo.png":           false,
		"src/app/service.ts":        true,
		"Makefile":                  false,
		"internal/vendorish/pkg.go": true,
	}
	for p, want := range cases {
		assert.Equal(t, want, ShouldIndex(p), p)
	}
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"func Open(path string)", "func Open(path string)", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[0]), 1e-5)
	assert.Equal(t, 0.0, cosine(vecs[2], vecs[0]))
}

func TestMemoryStore_SearchRanksAndScopes(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(NewHashEmbedder(0))
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, "acme_api", []Chunk{
		{Path: "db/query.go", StartLine: 1, EndLine: 3, Text: "func ExecQuery(db *sql.DB, query string) error"},
		{Path: "http/server.go", StartLine: 1, EndLine: 2, Text: "func ListenAndServe(addr string, handler Handler)"},
	}))
	require.NoError(t, store.Upsert(ctx, "other", []Chunk{
		{Path: "db/query.go", StartLine: 1, EndLine: 3, Text: "func ExecQuery(db *sql.DB, query string) error"},
	}))

	got, err := store.Search(ctx, "ExecQuery db query", "acme_api", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "db/query.go:L1-3", got[0].Source)
	assert.Greater(t, got[0].Score, 0.0)

	all, err := store.Search(ctx, "anything", "acme_api", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := store.Search(ctx, "ExecQuery", "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, Stats{Namespace: "acme_api", Chunks: 2, Files: 2}, store.Stats("acme_api"))
	store.Delete("acme_api")
	assert.Equal(t, 0, store.Stats("acme_api").Chunks)
	assert.Equal(t, 1, store.Stats("other").Chunks)
}

func TestMemoryStore_TruncatesStoredText(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(NewHashEmbedder(16))
	require.NoError(t, err)

	long := strings.Repeat("é", 1500)
	require.NoError(t, store.Upsert(ctx, "ns", []Chunk{{Path: "a.md", StartLine: 1, EndLine: 1, Text: long}}))

	got, err := store.Search(ctx, "é", "ns", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("é", 1000), got[0].Text)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding quota exceeded")
}
func (failingEmbedder) Dimensions() int { return 1 }

func TestMemoryStore_EmbedderFailure(t *testing.T) {
	store, err := NewMemoryStore(failingEmbedder{})
	require.NoError(t, err)
	_, err = store.Search(context.Background(), "q", "ns", 3)
	assert.ErrorContains(t, err, "quota")
}

func TestIndexer_IndexDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("main.go", "package main\n\nfunc main() {}\n")
	write("README.md", "# demo\n")
	write("node_modules/lib/index.js", "module.exports = {}\n")
	write("logo.png", "\x89PNG")

	store, err := NewMemoryStore(NewHashEmbedder(32))
	require.NoError(t, err)
	ix, err := NewIndexer(store, WithLogger(logging.Discard()), WithConcurrency(2))
	require.NoError(t, err)

	stats, err := ix.IndexDir(context.Background(), root, "demo")
	require.NoError(t, err)
	assert.Equal(t, IndexStats{Namespace: "demo", FilesIndexed: 2, FilesSkipped: 1, Chunks: 2}, stats)
	assert.Equal(t, 2, store.Stats("demo").Files)
}

type fetchFunc func(ctx context.Context, namespace, id string) (string, error)

func (f fetchFunc) Fetch(ctx context.Context, namespace, id string) (string, error) {
	return f(ctx, namespace, id)
}

func TestIndexer_IndexFiles_IsolatesFailures(t *testing.T) {
	store, err := NewMemoryStore(NewHashEmbedder(32))
	require.NoError(t, err)
	ix, err := NewIndexer(store, WithLogger(logging.Discard()))
	require.NoError(t, err)

	src := fetchFunc(func(_ context.Context, _ string, id string) (string, error) {
		if id == "broken.go" {
			return "", errors.New("404")
		}
		return "package x\n", nil
	})
	stats, err := ix.IndexFiles(context.Background(), src, "ns", []string{"a.go", "broken.go", "b.go"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
}
