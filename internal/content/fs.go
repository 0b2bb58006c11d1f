package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

var errNotLister = errors.New("source cannot list identifiers")

// FSSource reads items from a local directory tree. The namespace is ignored:
// one FSSource serves one tree.
type FSSource struct {
	root     string
	maxBytes int
}

func NewFSSource(root string, maxBytes int) (*FSSource, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &FSSource{root: root, maxBytes: maxBytes}, nil
}

func (s *FSSource) Root() string { return s.root }

// Fetch reads identifier relative to the root. Paths escaping the root are rejected.
func (s *FSSource) Fetch(ctx context.Context, _ string, identifier string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := os.OpenRoot(s.root)
	if err != nil {
		return "", err
	}
	defer r.Close()

	f, err := r.Open(path.Clean(identifier))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
		}
		return "", err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, int64(s.maxBytes)+1))
	if err != nil {
		return "", err
	}
	if err := checkText(b, s.maxBytes); err != nil {
		return "", fmt.Errorf("%s: %w", identifier, err)
	}
	return string(b), nil
}

// List returns every regular file under the root, sorted, skipping hidden
// directories.
func (s *FSSource) List(ctx context.Context, _ string) ([]string, error) {
	var out []string
	err := fs.WalkDir(os.DirFS(s.root), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	sort.Strings(out)
	return out, nil
}
