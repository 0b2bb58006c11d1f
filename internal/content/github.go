package content

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/go-github/v81/github"

	gh "reviewbot/internal/github"
)

// GitHubSource reads files of owner/repo namespaces at a fixed ref through the
// contents API, paced by a RequestBudget.
type GitHubSource struct {
	client   *gh.Client
	budget   *RequestBudget
	ref      string
	maxBytes int
}

// NewGitHubSource reads at ref; an empty ref means the default branch.
func NewGitHubSource(client *gh.Client, budget *RequestBudget, ref string) (*GitHubSource, error) {
	if client == nil || client.Client == nil {
		return nil, errors.New("github source: nil client")
	}
	if budget == nil {
		budget = NewRequestBudget()
	}
	return &GitHubSource{client: client, budget: budget, ref: ref, maxBytes: DefaultMaxBytes}, nil
}

func (s *GitHubSource) Budget() *RequestBudget { return s.budget }

// SetMaxBytes changes the size limit; n <= 0 restores DefaultMaxBytes.
func (s *GitHubSource) SetMaxBytes(n int) {
	if n <= 0 {
		n = DefaultMaxBytes
	}
	s.maxBytes = n
}

func (s *GitHubSource) Fetch(ctx context.Context, namespace, identifier string) (string, error) {
	owner, repo, err := gh.ParseRepo(namespace)
	if err != nil {
		return "", err
	}
	if err := s.budget.Acquire(ctx, 1); err != nil {
		return "", err
	}

	var opts *github.RepositoryContentGetOptions
	if s.ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: s.ref}
	}
	file, dir, resp, err := s.client.Client.Repositories.GetContents(ctx, owner, repo, identifier, opts)
	if resp != nil {
		s.budget.UpdateFromResponse(resp.Response)
	}
	if err != nil {
		if gh.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, identifier)
		}
		return "", fmt.Errorf("get contents %s: %w", identifier, err)
	}
	if file == nil || dir != nil {
		return "", fmt.Errorf("%s is a directory", identifier)
	}
	if file.GetSize() > s.maxBytes {
		return "", fmt.Errorf("%s: %w", identifier, ErrTooLarge)
	}

	body, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", identifier, err)
	}
	if err := checkText([]byte(body), s.maxBytes); err != nil {
		return "", fmt.Errorf("%s: %w", identifier, err)
	}
	return body, nil
}

// List returns every blob path of the repository tree at the source ref (or
// HEAD), sorted.
func (s *GitHubSource) List(ctx context.Context, namespace string) ([]string, error) {
	owner, repo, err := gh.ParseRepo(namespace)
	if err != nil {
		return nil, err
	}
	ref := s.ref
	if ref == "" {
		ref = "HEAD"
	}
	if err := s.budget.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	tree, resp, err := s.client.Client.Git.GetTree(ctx, owner, repo, ref, true)
	if resp != nil {
		s.budget.UpdateFromResponse(resp.Response)
	}
	if err != nil {
		return nil, fmt.Errorf("get tree %s@%s: %w", namespace, ref, err)
	}

	var out []string
	for _, e := range tree.Entries {
		if e.GetType() == "blob" {
			out = append(out, e.GetPath())
		}
	}
	sort.Strings(out)
	return out, nil
}
