package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultIndexConcurrency bounds concurrent file fetches while indexing.
const DefaultIndexConcurrency = 4

// Fetcher reads one file of a namespace. content.Source implementations satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, namespace, identifier string) (string, error)
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Namespace    string
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	Chunks       int
}

type Indexer struct {
	store       *MemoryStore
	concurrency int
	chunkSize   int
	logger      *slog.Logger
}

type IndexerOption func(*Indexer)

func WithConcurrency(n int) IndexerOption {
	return func(ix *Indexer) { ix.concurrency = n }
}

func WithChunkSize(n int) IndexerOption {
	return func(ix *Indexer) { ix.chunkSize = n }
}

func WithLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

func NewIndexer(store *MemoryStore, opts ...IndexerOption) (*Indexer, error) {
	if store == nil {
		return nil, errors.New("rag: store is nil")
	}
	ix := &Indexer{store: store, concurrency: DefaultIndexConcurrency, chunkSize: ChunkSize}
	for _, apply := range opts {
		if apply != nil {
			apply(ix)
		}
	}
	if ix.concurrency <= 0 {
		ix.concurrency = DefaultIndexConcurrency
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}
	return ix, nil
}

// IndexFiles fetches, chunks and stores every indexable path. A file that fails
// to fetch or embed is logged and counted; it does not stop the run.
func (ix *Indexer) IndexFiles(ctx context.Context, src Fetcher, namespace string, paths []string) (IndexStats, error) {
	stats := IndexStats{Namespace: namespace}
	if src == nil {
		return stats, errors.New("rag: fetcher is nil")
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(ix.concurrency)
	for _, p := range paths {
		if !ShouldIndex(p) {
			stats.FilesSkipped++
			continue
		}
		g.Go(func() error {
			n, err := ix.indexOne(ctx, src, namespace, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.FilesFailed++
				ix.logger.Warn("index file failed", "namespace", namespace, "path", p, "error", err)
				return nil
			}
			stats.FilesIndexed++
			stats.Chunks += n
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	ix.logger.Info("index complete",
		"namespace", namespace,
		"files", stats.FilesIndexed,
		"chunks", stats.Chunks,
		"failed", stats.FilesFailed)
	return stats, nil
}

func (ix *Indexer) indexOne(ctx context.Context, src Fetcher, namespace, p string) (int, error) {
	body, err := src.Fetch(ctx, namespace, p)
	if err != nil {
		return 0, err
	}
	chunks := SplitChunks(body, p, ix.chunkSize)
	if err := ix.store.Upsert(ctx, namespace, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IndexDir indexes every indexable file under root, using slash-separated
// paths relative to root as identifiers.
func (ix *Indexer) IndexDir(ctx context.Context, root, namespace string) (IndexStats, error) {
	paths, err := ListDir(root)
	if err != nil {
		return IndexStats{Namespace: namespace}, err
	}
	return ix.IndexFiles(ctx, dirFetcher(root), namespace, paths)
}

// ListDir returns the slash-separated relative paths of regular files under
// root, sorted, skipping the directories that are never indexed.
func ListDir(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

type dirFetcher string

func (d dirFetcher) Fetch(_ context.Context, _ string, identifier string) (string, error) {
	b, err := os.ReadFile(filepath.Join(string(d), filepath.FromSlash(identifier)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
