package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"reviewbot/internal/review"
)

// maxStoredText bounds the chunk text kept per record.
const maxStoredText = 1000

type record struct {
	source string
	path   string
	text   string
	vector []float32
}

// Stats describes one namespace of the store.
type Stats struct {
	Namespace string
	Chunks    int
	Files     int
}

// MemoryStore is an in-process vector store keyed by namespace. It implements
// the pipeline's context provider.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder Embedder
	spaces   map[string]map[string]record
}

func NewMemoryStore(e Embedder) (*MemoryStore, error) {
	if e == nil {
		return nil, errors.New("rag: embedder is nil")
	}
	return &MemoryStore{embedder: e, spaces: make(map[string]map[string]record)}, nil
}

// Upsert embeds chunks and stores them under namespace, replacing chunks with
// the same source.
func (s *MemoryStore) Upsert(ctx context.Context, namespace string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	space := s.spaces[namespace]
	if space == nil {
		space = make(map[string]record)
		s.spaces[namespace] = space
	}
	for i, c := range chunks {
		src := c.Source()
		space[src] = record{source: src, path: c.Path, text: truncate(c.Text, maxStoredText), vector: vecs[i]}
	}
	return nil
}

// Search returns the topK chunks of namespace most similar to query. Unknown
// namespaces yield no matches. Ties are broken by source.
func (s *MemoryStore) Search(ctx context.Context, query, namespace string, topK int) ([]review.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	q := vecs[0]

	s.mu.RLock()
	matches := make([]review.Match, 0, len(s.spaces[namespace]))
	for _, r := range s.spaces[namespace] {
		matches = append(matches, review.Match{Score: cosine(q, r.vector), Text: r.text, Source: r.source})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Source < matches[j].Source
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete drops every chunk stored under namespace.
func (s *MemoryStore) Delete(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spaces, namespace)
}

func (s *MemoryStore) Stats(namespace string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make(map[string]struct{})
	for _, r := range s.spaces[namespace] {
		files[r.path] = struct{}{}
	}
	return Stats{Namespace: namespace, Chunks: len(s.spaces[namespace]), Files: len(files)}
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
