// Package webhook receives GitHub webhook deliveries and starts pull request
// reviews in the background.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/go-github/v81/github"
	"golang.org/x/sync/singleflight"
)

// SupportedEvents are the X-GitHub-Event types that can start a review.
var SupportedEvents = []string{"pull_request", "issue_comment"}

// ReviewCommand is the comment prefix that requests a review on a pull request.
const ReviewCommand = "/review"

// DefaultMaxConcurrent bounds how many reviews run at once.
const DefaultMaxConcurrent = 2

// Reviewer reviews one pull request of repo (owner/name).
type Reviewer func(ctx context.Context, repo string, number int) error

// Handler serves the webhook routes. Accepted reviews run on their own
// goroutines, bounded by a semaphore; duplicate deliveries for a PR head that
// is already being reviewed join the running review.
type Handler struct {
	ctx    context.Context
	secret []byte
	review Reviewer
	logger *slog.Logger

	sem   chan struct{}
	group singleflight.Group
	wg    sync.WaitGroup
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMaxConcurrent sets the review concurrency; n < 1 means DefaultMaxConcurrent.
func WithMaxConcurrent(n int) Option {
	return func(h *Handler) {
		if n < 1 {
			n = DefaultMaxConcurrent
		}
		h.sem = make(chan struct{}, n)
	}
}

// NewHandler validates deliveries with secret (no validation when empty) and
// runs reviews under ctx.
func NewHandler(ctx context.Context, secret string, review Reviewer, opts ...Option) (*Handler, error) {
	if ctx == nil {
		return nil, errors.New("webhook: ctx is nil")
	}
	if review == nil {
		return nil, errors.New("webhook: reviewer is nil")
	}
	h := &Handler{ctx: ctx, secret: []byte(secret), review: review}
	for _, apply := range opts {
		if apply != nil {
			apply(h)
		}
	}
	if h.sem == nil {
		h.sem = make(chan struct{}, DefaultMaxConcurrent)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// Routes returns the webhook mux:
//
//	GET  /webhooks/test    liveness and supported events
//	POST /webhooks/github  GitHub deliveries
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhooks/test", h.handleTest)
	mux.HandleFunc("POST /webhooks/github", h.handleGitHub)
	return mux
}

// Wait blocks until every accepted review has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Webhook endpoint is working",
		"supported_events": SupportedEvents,
	})
}

func (h *Handler) handleGitHub(w http.ResponseWriter, r *http.Request) {
	delivery := github.DeliveryID(r)
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn("webhook rejected", "delivery", delivery, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	eventType := github.WebHookType(r)
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		h.logger.Warn("webhook payload not understood", "delivery", delivery, "event", eventType, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported or malformed event"})
		return
	}

	switch e := event.(type) {
	case *github.PingEvent:
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	case *github.PullRequestEvent:
		switch e.GetAction() {
		case "opened", "synchronize", "reopened":
			h.accept(w, delivery, e.GetRepo().GetFullName(), e.GetNumber(), e.GetPullRequest().GetHead().GetSHA())
			return
		}
	case *github.IssueCommentEvent:
		issue := e.GetIssue()
		if e.GetAction() == "created" && issue != nil && issue.IsPullRequest() && isReviewCommand(e.GetComment().GetBody()) {
			h.accept(w, delivery, e.GetRepo().GetFullName(), issue.GetNumber(), "")
			return
		}
	}

	h.logger.Debug("webhook ignored", "delivery", delivery, "event", eventType)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}

func isReviewCommand(body string) bool {
	fields := strings.Fields(body)
	return len(fields) > 0 && fields[0] == ReviewCommand
}

// accept schedules a review of the PR. head is the commit the event refers
// to, when the event carries one.
func (h *Handler) accept(w http.ResponseWriter, delivery, repo string, number int, head string) {
	if repo == "" || number <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event has no pull request"})
		return
	}
	h.logger.Info("review accepted", "delivery", delivery, "repo", repo, "number", number, "head", head)
	h.schedule(repo, number, head)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "repo": repo, "number": number})
}

// schedule starts a review in the background. Deliveries for the same PR and
// head commit share one run; a new head starts a new run.
func (h *Handler) schedule(repo string, number int, head string) {
	key := fmt.Sprintf("%s#%d@%s", repo, number, head)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_, err, shared := h.group.Do(key, func() (any, error) {
			return nil, h.run(repo, number)
		})
		if shared {
			h.logger.Debug("review joined in-flight run", "repo", repo, "number", number)
		}
		if err != nil {
			h.logger.Error("review failed", "repo", repo, "number", number, "error", err)
		}
	}()
}

func (h *Handler) run(repo string, number int) (err error) {
	select {
	case h.sem <- struct{}{}:
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
	defer func() { <-h.sem }()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review panicked: %v", r)
		}
	}()
	return h.review(h.ctx, repo, number)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
