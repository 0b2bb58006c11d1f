package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// PresentError renders err for logs and reports without the request URL that
// go-github puts in its messages. verbose returns the error unchanged.
func PresentError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}
	if verbose {
		return err.Error()
	}

	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Sprintf("GitHub API rate limit exceeded (resets %s)", rl.Rate.Reset.UTC().Format("15:04:05 MST"))
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) {
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response != nil {
			code := er.Response.StatusCode
			return fmt.Sprintf("GitHub API request failed (%d %s): %s", code, http.StatusText(code), msg)
		}
		return "GitHub API request failed: " + msg
	}

	full := err.Error()
	if scrubbed := scrubRequest(strings.TrimSpace(full)); scrubbed != "" {
		return scrubbed
	}
	return full
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var er *github.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound
}

// scrubRequest rewrites "GET https://api.github.com/...: 403 msg" as "403 msg"
// wherever the request prefix appears in s. It returns "" when there is none.
func scrubRequest(s string) string {
	for _, m := range []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "} {
		i := strings.Index(s, m+"http")
		if i < 0 {
			continue
		}
		rest := s[i+len(m):]
		j := strings.Index(rest, ": ")
		if j < 0 {
			return strings.TrimSpace(s[:i])
		}
		return strings.TrimSpace(s[:i] + rest[j+2:])
	}
	return ""
}
