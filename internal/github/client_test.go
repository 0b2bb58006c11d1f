package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v81/github"
)

func newTestClient(t *testing.T, token string, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), token, append(opts, WithBaseURL(srv.URL))...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_NilContextReturnsError(t *testing.T) {
	var nilCtx context.Context
	_, err := NewClient(nilCtx, "")
	if err == nil || !strings.Contains(err.Error(), "ctx is nil") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClient_WithVerbose_LogsAndAuthHeader(t *testing.T) {
	for _, token := range []string{"", "test-token"} {
		t.Run(fmt.Sprintf("token=%q", token), func(t *testing.T) {
			var gotAuth string
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			c := newTestClient(t, token, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				_, _ = w.Write([]byte("{}"))
			}), WithVerbose(true, logger))

			req, err := c.Client.NewRequest("GET", "rate_limit", nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			if _, err := c.Client.Do(context.Background(), req, nil); err != nil {
				t.Fatalf("Do: %v", err)
			}
			if !strings.Contains(buf.String(), "github api response") || !strings.Contains(buf.String(), "path=/rate_limit") {
				t.Fatalf("expected verbose log, got: %q", buf.String())
			}
			if token == "" && gotAuth != "" {
				t.Fatalf("expected no Authorization header, got %q", gotAuth)
			}
			if token != "" && gotAuth != "Bearer "+token {
				t.Fatalf("unexpected Authorization header %q", gotAuth)
			}
			if strings.Contains(buf.String(), "test-token") {
				t.Fatalf("token leaked into logs")
			}
		})
	}
}

func TestListPullRequestFiles_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/repos/acme/api/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`[{"filename":"old.go","status":"removed"}]`))
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/api/pulls/7/files?page=2>; rel="next"`, base))
		_, _ = w.Write([]byte(`[{"filename":"main.go","status":"modified"},{"filename":"db.go","status":"added"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	base = srv.URL
	c, err := NewClient(context.Background(), "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	files, err := c.ListPullRequestFiles(context.Background(), "acme", "api", 7)
	if err != nil {
		t.Fatalf("ListPullRequestFiles: %v", err)
	}
	if len(files) != 3 || files[0].Path != "main.go" || !files[2].Removed() {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestGetPullRequest(t *testing.T) {
	c := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/pulls/7" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"title":"Add cache","head":{"sha":"abc123"},"base":{"ref":"main"}}`))
	}))

	pr, err := c.GetPullRequest(context.Background(), "acme", "api", 7)
	if err != nil {
		t.Fatalf("GetPullRequest: %v", err)
	}
	want := PullRequest{Owner: "acme", Repo: "api", Number: 7, Title: "Add cache", HeadSHA: "abc123", BaseRef: "main"}
	if pr != want {
		t.Fatalf("got %+v, want %+v", pr, want)
	}
	if pr.FullName() != "acme/api" {
		t.Fatalf("unexpected FullName %q", pr.FullName())
	}
}

func TestPostComment(t *testing.T) {
	var got github.IssueComment
	c := newTestClient(t, "tok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/api/issues/7/comments" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"html_url":"https://github.com/acme/api/pull/7#issuecomment-1"}`))
	}))

	url, err := c.PostComment(context.Background(), "acme", "api", 7, "## Review")
	if err != nil {
		t.Fatalf("PostComment: %v", err)
	}
	if got.GetBody() != "## Review" || !strings.HasSuffix(url, "issuecomment-1") {
		t.Fatalf("unexpected comment %q / url %q", got.GetBody(), url)
	}
}

func TestParseRepo(t *testing.T) {
	owner, name, err := ParseRepo(" acme/api ")
	if err != nil || owner != "acme" || name != "api" {
		t.Fatalf("got %q %q %v", owner, name, err)
	}
	for _, bad := range []string{"", "acme", "/api", "acme/", "a/b/c"} {
		if _, _, err := ParseRepo(bad); err == nil {
			t.Errorf("ParseRepo(%q) should fail", bad)
		}
	}
}

func TestPresentError(t *testing.T) {
	er := &github.ErrorResponse{
		Response: &http.Response{StatusCode: 403, Status: "403 Forbidden"},
		Message:  "Resource not accessible by integration",
	}
	if got, want := PresentError(fmt.Errorf("fetch: %w", er), false), "GitHub API request failed (403 Forbidden): Resource not accessible by integration"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	rl := &github.RateLimitError{Rate: github.Rate{Reset: github.Timestamp{Time: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}}}
	if got := PresentError(rl, false); !strings.Contains(got, "15:04:05 UTC") {
		t.Fatalf("unexpected rate limit presentation %q", got)
	}

	plain := errors.New("GET https://api.github.com/repos/acme/foo/contents/x.go: 500 boom []")
	if got := PresentError(plain, false); got != "500 boom []" {
		t.Fatalf("unexpected scrubbed message %q", got)
	}
	if got := PresentError(plain, true); got != plain.Error() {
		t.Fatalf("verbose should keep the full message, got %q", got)
	}
	if got := PresentError(errors.New("disk full"), false); got != "disk full" {
		t.Fatalf("unrelated errors pass through, got %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	nf := &github.ErrorResponse{Response: &http.Response{StatusCode: 404}}
	if !IsNotFound(fmt.Errorf("wrap: %w", nf)) || IsNotFound(errors.New("x")) {
		t.Fatal("IsNotFound mismatch")
	}
}
