package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v81/github"
)

// PullRequest is the subset of PR metadata a review needs.
type PullRequest struct {
	Owner   string
	Repo    string
	Number  int
	Title   string
	HeadSHA string
	BaseRef string
}

// FullName is owner/repo.
func (p PullRequest) FullName() string { return p.Owner + "/" + p.Repo }

// ChangedFile is one file of a pull request.
type ChangedFile struct {
	Path   string
	Status string
}

// Removed reports whether the file no longer exists at the PR head.
func (f ChangedFile) Removed() bool { return f.Status == "removed" }

func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	pr, _, err := c.Client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PullRequest{}, fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return PullRequest{
		Owner:   owner,
		Repo:    repo,
		Number:  number,
		Title:   pr.GetTitle(),
		HeadSHA: pr.GetHead().GetSHA(),
		BaseRef: pr.GetBase().GetRef(),
	}, nil
}

// ListPullRequestFiles returns every changed file, following pagination.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]ChangedFile, error) {
	opts := &github.ListOptions{PerPage: 100}
	var out []ChangedFile
	for {
		files, resp, err := c.Client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list files of %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, f := range files {
			out = append(out, ChangedFile{Path: f.GetFilename(), Status: f.GetStatus()})
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// PostComment adds a top-level comment to a pull request and returns its URL.
func (c *Client) PostComment(ctx context.Context, owner, repo string, number int, body string) (string, error) {
	comment, _, err := c.Client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return "", fmt.Errorf("comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return comment.GetHTMLURL(), nil
}
