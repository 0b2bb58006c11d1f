package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reviewbot/internal/config"
	gh "reviewbot/internal/github"
	"reviewbot/internal/producer"
	"reviewbot/internal/review"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

// dirConfig reviews root with the security task only and writes findings as
// JSON to the returned path.
func dirConfig(t *testing.T, root string) (*config.Config, string) {
	t.Helper()
	cfg := config.New()
	cfg.Source.Dir = root
	cfg.Tasks.Selector = "security"
	cfg.Producer.Retries = 1
	cfg.Output.NoConsole = true
	cfg.Output.Out = filepath.Join(t.TempDir(), "findings.json")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg, cfg.Output.Out
}

func newTestEngine(client *gh.Client, p producer.Func) (*Engine, *bytes.Buffer) {
	var stderr bytes.Buffer
	e := NewEngine(client)
	e.Stdout = &bytes.Buffer{}
	e.Stderr = &stderr
	e.producer = p
	return e, &stderr
}

func readFindings(t *testing.T, path string) []review.Finding {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out []review.Finding
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v\n%s", path, err, raw)
	}
	return out
}

func noFindings(context.Context, review.ProducerRequest) (string, error) {
	return "[]", nil
}

func highFindingOn(target string) producer.Func {
	return func(_ context.Context, req review.ProducerRequest) (string, error) {
		if req.Identifier != target {
			return "[]", nil
		}
		return `[{"title":"SQL injection","severity":"high","line_number":3}]`, nil
	}
}

func TestExitCodeForRun(t *testing.T) {
	tests := []struct {
		fatal, partial, wrongs bool
		want                   int
	}{
		{want: 0},
		{wrongs: true, want: 1},
		{partial: true, wrongs: true, want: 2},
		{fatal: true, partial: true, wrongs: true, want: 3},
	}
	for _, tt := range tests {
		if got := exitCodeForRun(tt.fatal, tt.partial, tt.wrongs); got != tt.want {
			t.Errorf("exitCodeForRun(%v, %v, %v) = %d, want %d", tt.fatal, tt.partial, tt.wrongs, got, tt.want)
		}
	}
}

func TestEngine_Run_DirCleanReview(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"main.go":           "package main\n\nfunc main() {}\n",
		"assets/logo.png":   "not reviewed",
		"vendor/dep/dep.go": "package dep\n",
	})
	cfg, out := dirConfig(t, root)

	var mu sync.Mutex
	var seen []string
	e, stderr := newTestEngine(nil, func(_ context.Context, req review.ProducerRequest) (string, error) {
		mu.Lock()
		seen = append(seen, req.Identifier)
		mu.Unlock()
		return "[]", nil
	})

	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	if diff := cmp.Diff([]string{"main.go"}, seen); diff != "" {
		t.Fatalf("reviewed items mismatch (-want +got):\n%s", diff)
	}
	if got := readFindings(t, out); len(got) != 0 {
		t.Fatalf("expected no findings, got %+v", got)
	}
	if stderr.Len() != 0 {
		t.Fatalf("expected no progress output with NoConsole, got %q", stderr.String())
	}
}

func TestEngine_Run_FailOnThreshold(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"db/query.go": "package db\n\nfunc q() {}\n",
		"ok.go":       "package ok\n",
	})

	tests := []struct {
		failOn string
		want   int
	}{
		{failOn: "none", want: 0},
		{failOn: "critical", want: 0},
		{failOn: "high", want: 1},
		{failOn: "low", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			cfg, out := dirConfig(t, root)
			cfg.Runtime.FailOn = tt.failOn
			e, _ := newTestEngine(nil, highFindingOn("db/query.go"))

			if code := e.Run(context.Background(), cfg); code != tt.want {
				t.Fatalf("expected exit %d, got %d", tt.want, code)
			}
			got := readFindings(t, out)
			if len(got) != 1 || got[0].Title != "SQL injection" || got[0].Path() != "db/query.go" || got[0].Line() != 3 {
				t.Fatalf("unexpected findings: %+v", got)
			}
		})
	}
}

func TestEngine_Run_PartialFailure(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"good.go":   "package good\n",
		"binary.go": "package bin\x00\x01",
	})
	cfg, out := dirConfig(t, root)
	cfg.Runtime.FailOn = "info"
	report := filepath.Join(t.TempDir(), "report.md")
	cfg.Output.Report = report

	e, _ := newTestEngine(nil, highFindingOn("good.go"))
	if code := e.Run(context.Background(), cfg); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if got := readFindings(t, out); len(got) != 1 {
		t.Fatalf("expected findings of the good item, got %+v", got)
	}
	md, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(md), "## Files Not Reviewed") || !strings.Contains(string(md), "`binary.go`") {
		t.Fatalf("report does not list the failed item:\n%s", md)
	}
}

func TestEngine_Run_FailingProducerIsPartial(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})
	cfg, out := dirConfig(t, root)
	cfg.Runtime.FailOn = "info"

	e, stderr := newTestEngine(nil, func(context.Context, review.ProducerRequest) (string, error) {
		return "", fmt.Errorf("401 bad api key")
	})
	if code := e.Run(context.Background(), cfg); code != 2 {
		t.Fatalf("expected exit 2 when every producer call fails, got %d", code)
	}
	if got := readFindings(t, out); len(got) != 0 {
		t.Fatalf("expected no findings, got %+v", got)
	}
	if !strings.Contains(stderr.String(), "analysis failed for 2 of 2 reviewed items") {
		t.Fatalf("expected analysis warning on stderr, got %q", stderr.String())
	}
}

func TestEngine_Run_FatalErrors(t *testing.T) {
	root := writeFiles(t, map[string]string{"main.go": "package main\n"})

	t.Run("unknown task", func(t *testing.T) {
		cfg, _ := dirConfig(t, root)
		cfg.Tasks.Selector = "does-not-exist"
		e, stderr := newTestEngine(nil, noFindings)
		if code := e.Run(context.Background(), cfg); code != 3 {
			t.Fatalf("expected exit 3, got %d", code)
		}
		if !strings.Contains(stderr.String(), "Error resolving tasks") {
			t.Fatalf("unexpected stderr %q", stderr.String())
		}
	})

	t.Run("unknown task option", func(t *testing.T) {
		cfg, _ := dirConfig(t, root)
		cfg.Tasks.Set = []string{"security.colour=blue"}
		e, _ := newTestEngine(nil, noFindings)
		if code := e.Run(context.Background(), cfg); code != 3 {
			t.Fatalf("expected exit 3, got %d", code)
		}
	})

	t.Run("repo without client", func(t *testing.T) {
		cfg := config.New()
		cfg.Source.Repo = "acme/widgets"
		cfg.Output.NoConsole = true
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		e, stderr := newTestEngine(nil, noFindings)
		if code := e.Run(context.Background(), cfg); code != 3 {
			t.Fatalf("expected exit 3, got %d", code)
		}
		if !strings.Contains(stderr.String(), "Error resolving items") {
			t.Fatalf("unexpected stderr %q", stderr.String())
		}
	})
}

func TestEngine_Run_TaskAllowListSkipsItem(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"db/query.go":      "package db\n",
		"db/query_test.go": "package db\n",
	})
	cfg, out := dirConfig(t, root)
	cfg.Tasks.Set = []string{"security.allow.paths=*_test.go"}

	e, _ := newTestEngine(nil, func(_ context.Context, req review.ProducerRequest) (string, error) {
		return `[{"title":"issue","severity":"medium"}]`, nil
	})
	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	got := readFindings(t, out)
	if len(got) != 1 || got[0].Path() != "db/query.go" {
		t.Fatalf("expected only the non-test file to be reported, got %+v", got)
	}
}

func TestEngine_Run_IndexProvidesContext(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"helper.go": "package app\n\nfunc helper() int { return 42 }\n",
		"main.go":   "package app\n\nfunc main() { helper() }\n",
	})
	cfg, _ := dirConfig(t, root)
	cfg.Context.Index = true
	cfg.Source.Include = []string{"main.go"}

	var gotContext string
	e, _ := newTestEngine(nil, func(_ context.Context, req review.ProducerRequest) (string, error) {
		gotContext = req.Context
		return "[]", nil
	})
	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(gotContext, "From helper.go:L1-") {
		t.Fatalf("expected indexed neighbour in context, got %q", gotContext)
	}
}

func TestEngine_Run_ConsoleText(t *testing.T) {
	root := writeFiles(t, map[string]string{"db/query.go": "package db\n"})
	cfg, _ := dirConfig(t, root)
	cfg.Output.NoConsole = false
	cfg.Output.Out = ""

	var stdout bytes.Buffer
	e, stderr := newTestEngine(nil, highFindingOn("db/query.go"))
	e.Stdout = &stdout
	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "db/query.go:3") || !strings.Contains(stdout.String(), "SQL injection") {
		t.Fatalf("console output missing finding:\n%s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Selected 1 tasks.") {
		t.Fatalf("expected progress output, got %q", stderr.String())
	}
}

type fakeGitHub struct {
	mu       sync.Mutex
	refs     []string
	comments []string
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":7,"title":"Add query","head":{"sha":"abc123"},"base":{"ref":"main"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"filename":"app/query.py","status":"modified"},
			{"filename":"app/old.py","status":"removed"},
			{"filename":"docs/diagram.png","status":"added"}
		]`)
	})
	mux.HandleFunc("/repos/acme/widgets/contents/app/query.py", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refs = append(f.refs, r.URL.Query().Get("ref"))
		f.mu.Unlock()
		body := "def query(q):\n    return db.execute(q)\n"
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","size":%d,"name":"query.py","path":"app/query.py","content":%q}`,
			len(body), base64.StdEncoding.EncodeToString([]byte(body)))
	})
	mux.HandleFunc("/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var c struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			t.Errorf("decode comment: %v", err)
		}
		f.mu.Lock()
		f.comments = append(f.comments, c.Body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1,"html_url":"https://github.com/acme/widgets/pull/7#issuecomment-1"}`)
	})
	return mux
}

func TestEngine_Run_PullRequestComment(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client, err := gh.NewClient(context.Background(), "", gh.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	cfg := config.New()
	cfg.Source.Repo = "https://github.com/acme/widgets"
	cfg.Source.PR = 7
	cfg.Tasks.Selector = "security"
	cfg.Producer.Retries = 1
	cfg.Output.NoConsole = true
	cfg.Output.Comment = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	e, stderr := newTestEngine(client, highFindingOn("app/query.py"))
	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}

	if diff := cmp.Diff([]string{"abc123"}, fake.refs); diff != "" {
		t.Fatalf("content refs mismatch (-want +got):\n%s", diff)
	}
	if len(fake.comments) != 1 {
		t.Fatalf("expected one comment, got %d", len(fake.comments))
	}
	body := fake.comments[0]
	for _, want := range []string{"**Repository:** acme/widgets", "**PR:** #7", "**Files Analyzed:** 1", "SQL injection"} {
		if !strings.Contains(body, want) {
			t.Errorf("comment missing %q:\n%s", want, body)
		}
	}
}

func TestEngine_Run_CommentFailureIsPartial(t *testing.T) {
	fake := &fakeGitHub{}
	mux := http.NewServeMux()
	mux.Handle("/", fake.handler(t))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/comments") {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"Resource not accessible by integration"}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client, err := gh.NewClient(context.Background(), "", gh.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cfg := config.New()
	cfg.Source.Repo = "acme/widgets"
	cfg.Source.PR = 7
	cfg.Tasks.Selector = "security"
	cfg.Producer.Retries = 1
	cfg.Output.NoConsole = true
	cfg.Output.Comment = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	e, stderr := newTestEngine(client, noFindings)
	if code := e.Run(context.Background(), cfg); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Resource not accessible by integration") {
		t.Fatalf("expected presented GitHub error, got %q", stderr.String())
	}
}
