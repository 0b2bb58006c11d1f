// Package github wraps go-github with token auth, request logging and the
// few pull-request operations the reviewer needs.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	verbose bool
	logger  *slog.Logger
	baseURL string
	base    http.RoundTripper
}

type Option func(*options)

// WithVerbose logs one debug line per GitHub request and response to logger
// (slog.Default when nil).
func WithVerbose(enabled bool, logger *slog.Logger) Option {
	return func(o *options) {
		o.verbose = enabled
		o.logger = logger
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithTransport replaces the base transport under auth and logging.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// loggingRoundTripper logs each request and its outcome with latency. URLs are
// logged without query strings.
type loggingRoundTripper struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	path := req.URL.Path
	t.logger.Debug("github api request", "method", req.Method, "path", path)

	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("github api error", "method", req.Method, "path", path, "duration", dur, "error", err)
		return resp, err
	}
	t.logger.Debug("github api response",
		"method", req.Method,
		"path", path,
		"status", resp.StatusCode,
		"remaining", resp.Header.Get("X-RateLimit-Remaining"),
		"duration", dur)
	return resp, nil
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := o.base
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		logger := o.logger
		if logger == nil {
			logger = slog.Default()
		}
		transport = &loggingRoundTripper{base: transport, logger: logger}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport}

	gc := github.NewClient(tc)
	if o.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github client: base url: %w", err)
		}
		gc.BaseURL = u
		gc.UploadURL = u
	}

	return &Client{Client: gc, HTTP: tc}, nil
}

// ParseRepo splits "owner/name".
func ParseRepo(s string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q (expected owner/name)", s)
	}
	return owner, name, nil
}
