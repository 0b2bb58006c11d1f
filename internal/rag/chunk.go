// Package rag indexes repository files into a namespace-scoped vector store
// and serves them back as review context.
package rag

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// ChunkSize is the default maximum number of characters per chunk.
const ChunkSize = 1000

// Chunk is a contiguous run of lines from one file.
type Chunk struct {
	Path      string
	StartLine int
	EndLine   int
	Text      string
}

// Source identifies the chunk as path:Lstart-end.
func (c Chunk) Source() string {
	return fmt.Sprintf("%s:L%d-%d", c.Path, c.StartLine, c.EndLine)
}

// SplitChunks cuts content into chunks of whole lines holding at most size
// characters each, counting one per newline. A single line longer than size
// becomes its own chunk. Empty content yields no chunks.
func SplitChunks(content, filePath string, size int) []Chunk {
	if size <= 0 {
		size = ChunkSize
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var (
		out     []Chunk
		current []string
		curSize int
		start   = 1
	)
	for i, line := range lines {
		n := i + 1
		lineSize := utf8.RuneCountInString(line) + 1
		if curSize+lineSize > size && len(current) > 0 {
			out = append(out, Chunk{Path: filePath, StartLine: start, EndLine: n - 1, Text: strings.Join(current, "\n")})
			current = current[:0]
			curSize = 0
			start = n
		}
		current = append(current, line)
		curSize += lineSize
	}
	if len(current) > 0 {
		out = append(out, Chunk{Path: filePath, StartLine: start, EndLine: len(lines), Text: strings.Join(current, "\n")})
	}
	return out
}

var codeExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {}, ".java": {}, ".cpp": {}, ".c": {}, ".h": {},
	".cs": {}, ".go": {}, ".rs": {}, ".rb": {}, ".php": {}, ".swift": {}, ".kt": {}, ".scala": {},
	".sh": {}, ".bash": {}, ".sql": {}, ".html": {}, ".css": {}, ".scss": {}, ".yaml": {}, ".yml": {},
	".json": {}, ".xml": {}, ".md": {}, ".txt": {},
}

var importantFiles = map[string]struct{}{
	"README.md": {}, "CONTRIBUTING.md": {}, "CODE_OF_CONDUCT.md": {},
	"REVIEW_RULES.md": {}, ".aiconfig": {}, "ARCHITECTURE.md": {},
}

var skipDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "__pycache__": {}, "venv": {}, "env": {},
	"dist": {}, "build": {}, ".next": {}, ".cache": {}, "coverage": {}, "vendor": {},
}

// SkipDir reports whether a directory with this base name is never indexed.
func SkipDir(name string) bool {
	_, ok := skipDirs[name]
	return ok
}

// ShouldIndex reports whether a slash-separated repository path is worth indexing.
func ShouldIndex(p string) bool {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	parts := strings.Split(p, "/")
	for _, part := range parts[:len(parts)-1] {
		if SkipDir(part) {
			return false
		}
	}
	base := parts[len(parts)-1]
	if _, ok := importantFiles[base]; ok {
		return true
	}
	_, ok := codeExtensions[path.Ext(base)]
	return ok
}
