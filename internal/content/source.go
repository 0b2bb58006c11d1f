// Package content supplies the text of work items: from a local directory,
// from GitHub, and through a cached single-flight decorator.
package content

import (
	"context"
	"errors"
	"unicode/utf8"
)

var (
	ErrNotFound = errors.New("content not found")
	ErrBinary   = errors.New("content is not text")
	ErrTooLarge = errors.New("content exceeds size limit")
)

// DefaultMaxBytes bounds a single fetched file.
const DefaultMaxBytes = 1 << 20

// Source fetches one item's text. Identifiers are slash-separated paths.
type Source interface {
	Fetch(ctx context.Context, namespace, identifier string) (string, error)
}

// Lister enumerates the identifiers of a namespace.
type Lister interface {
	List(ctx context.Context, namespace string) ([]string, error)
}

// checkText rejects bodies that are too large or not valid UTF-8 text.
func checkText(b []byte, maxBytes int) error {
	if maxBytes > 0 && len(b) > maxBytes {
		return ErrTooLarge
	}
	if !utf8.Valid(b) {
		return ErrBinary
	}
	for _, c := range b {
		if c == 0 {
			return ErrBinary
		}
	}
	return nil
}
