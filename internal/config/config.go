package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"reviewbot/internal/review"
)

type Config struct {
	// MAINTAINER NOTE: fields that change review behavior need a matching flag in
	// internal/cli/review.go and a name in internal/flags.
	Source   Source
	Tasks    Tasks
	Context  Context
	Producer Producer
	Output   Output
	Runtime  Runtime
}

type Source struct {
	// Dir reviews files of a local directory tree (see --dir).
	Dir string

	// Repo reviews a GitHub repository given as OWNER/REPO or a github.com URL (see --repo).
	Repo string

	// PR limits a --repo review to the files changed by this pull request (see --pr).
	// 0 reviews the whole repository tree at Ref.
	PR int

	// Ref pins the git ref used for a whole-tree --repo review (see --ref).
	// Empty means the default branch. PR reviews always read the PR head.
	Ref string

	// Include keeps only items whose path matches one of these path.Match patterns (see --include).
	// A pattern without '/' matches the base name.
	Include []string

	// Exclude drops items whose path matches one of these patterns (see --exclude).
	Exclude []string

	// MaxItems caps how many items are reviewed (see --max-items). 0 means unlimited.
	MaxItems int

	// MaxBytes skips items larger than this (see --max-bytes).
	MaxBytes int
}

type Tasks struct {
	// Selector selects which tasks run: empty or "all", or a comma list of names (see --tasks).
	Selector string

	// File replaces the built-in task descriptors with a YAML file (see --tasks-file).
	File string

	// Set provides per-task option overrides: task.option=value (repeatable; comma-separated accepted; see --set).
	Set []string
}

type Context struct {
	// Index builds the repository context index before reviewing (see --index).
	Index bool

	// TopK is the number of context matches retrieved per item (see --top-k).
	TopK int

	// ChunkSize is the indexing chunk size in characters (see --chunk-size).
	ChunkSize int
}

type Producer struct {
	// Kind selects the analysis producer (see --producer).
	// Allowed values: http, command.
	Kind string

	// Endpoint is the chat-completions base URL for the http producer (see --endpoint).
	Endpoint string

	// Model is the model name sent to the http producer (see --model).
	Model string

	// APIKeyEnv names the environment variable holding the http producer API key (see --api-key-env).
	APIKeyEnv string

	// Command is the command line of the command producer; the prompt is written to its stdin (see --command).
	Command string

	// Timeout bounds a single producer call (see --producer-timeout). 0 disables it.
	Timeout time.Duration

	// Retries is the number of attempts per producer call (see --retries). Must be >= 1.
	Retries int
}

type Output struct {
	// ConsoleFormat controls the console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// MinSeverity hides console findings below this severity (see --min-severity).
	MinSeverity string

	// Report writes a Markdown summary to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// Comment posts the Markdown summary on the pull request (see --comment). Requires --pr.
	Comment bool
}

type Runtime struct {
	// Concurrency is the number of items reviewed at once (see --concurrency). Must be >= 1.
	Concurrency int

	// ItemTimeout bounds each item's review (see --item-timeout). 0 disables it.
	ItemTimeout time.Duration

	// Timeout is the global timeout for the run (see --timeout). Must be > 0.
	Timeout time.Duration

	// FailOn sets the lowest finding severity that makes the run exit 1 (see --fail-on).
	// "none" never fails on findings.
	FailOn string

	// Verbose enables debug logging and unscrubbed error messages.
	Verbose bool
}

func New() *Config {
	return &Config{
		Source: Source{
			MaxBytes: 1 << 20,
		},
		Tasks: Tasks{
			Selector: "all",
		},
		Context: Context{
			TopK:      5,
			ChunkSize: 1000,
		},
		Producer: Producer{
			Kind:      "http",
			Endpoint:  "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "REVIEWBOT_API_KEY",
			Timeout:   2 * time.Minute,
			Retries:   3,
		},
		Output: Output{
			ConsoleFormat: "text",
			MinSeverity:   string(review.SeverityInfo),
		},
		Runtime: Runtime{
			Concurrency: 3,
			Timeout:     30 * time.Minute,
			FailOn:      "none",
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Source.Include = splitCommaList(c.Source.Include)
	c.Source.Exclude = splitCommaList(c.Source.Exclude)
	c.Tasks.Set = splitAssignments(c.Tasks.Set)

	// Source validation
	c.Source.Dir = strings.TrimSpace(c.Source.Dir)
	c.Source.Repo = strings.TrimSpace(c.Source.Repo)
	if c.Source.Dir == "" && c.Source.Repo == "" {
		return errors.New("one of --dir or --repo must be provided")
	}
	if c.Source.Dir != "" && c.Source.Repo != "" {
		return errors.New("--dir and --repo are mutually exclusive")
	}
	if c.Source.Repo != "" {
		repo, err := NormalizeRepo(c.Source.Repo)
		if err != nil {
			return fmt.Errorf("invalid --repo value: %w", err)
		}
		c.Source.Repo = repo
	}
	if c.Source.PR < 0 {
		return errors.New("--pr must be >= 0")
	}
	if c.Source.PR > 0 && c.Source.Repo == "" {
		return errors.New("--pr requires --repo")
	}
	if c.Source.PR > 0 && c.Source.Ref != "" {
		return errors.New("--ref cannot be combined with --pr")
	}
	if c.Source.MaxItems < 0 {
		return errors.New("--max-items must be >= 0")
	}
	if c.Source.MaxBytes <= 0 {
		return errors.New("--max-bytes must be > 0")
	}
	for _, p := range append(append([]string{}, c.Source.Include...), c.Source.Exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
	}

	// Tasks validation
	c.Tasks.Selector = strings.TrimSpace(c.Tasks.Selector)
	if len(c.Tasks.Set) > 0 {
		if _, err := ParseTaskOptionAssignments(c.Tasks.Set); err != nil {
			return err
		}
	}

	// Context validation
	if c.Context.TopK < 1 {
		return errors.New("--top-k must be >= 1")
	}
	if c.Context.ChunkSize < 1 {
		return errors.New("--chunk-size must be >= 1")
	}

	// Producer validation
	c.Producer.Kind = normalizeEnumValue(c.Producer.Kind)
	switch c.Producer.Kind {
	case "http":
		if strings.TrimSpace(c.Producer.Endpoint) == "" {
			return errors.New("--endpoint is required for the http producer")
		}
	case "command":
		if strings.TrimSpace(c.Producer.Command) == "" {
			return errors.New("--command is required for the command producer")
		}
	case "":
		return errors.New("--producer must be one of: http, command")
	default:
		return fmt.Errorf("unsupported --producer: %s (must be one of: http, command)", c.Producer.Kind)
	}
	if c.Producer.Timeout < 0 {
		return errors.New("--producer-timeout must be >= 0")
	}
	if c.Producer.Retries < 1 {
		return errors.New("--retries must be >= 1")
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	c.Output.MinSeverity = normalizeEnumValue(c.Output.MinSeverity)
	if c.Output.MinSeverity == "" {
		c.Output.MinSeverity = string(review.SeverityInfo)
	}
	if !review.ValidSeverity(c.Output.MinSeverity) {
		return fmt.Errorf("unsupported --min-severity: %s (must be one of: %s)", c.Output.MinSeverity, severityList())
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v == "" {
			return errors.New("--emit must be one of: json, ndjson")
		}
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	if c.Output.Comment && c.Source.PR == 0 {
		return errors.New("--comment requires --pr")
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.ItemTimeout < 0 {
		return errors.New("--item-timeout must be >= 0")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	c.Runtime.FailOn = normalizeEnumValue(c.Runtime.FailOn)
	if c.Runtime.FailOn == "" {
		c.Runtime.FailOn = "none"
	}
	if c.Runtime.FailOn != "none" && !review.ValidSeverity(c.Runtime.FailOn) {
		return fmt.Errorf("unsupported --fail-on: %s (must be none or one of: %s)", c.Runtime.FailOn, severityList())
	}

	return nil
}

// FailOnSeverity returns the parsed --fail-on threshold and false when the run
// never fails on findings.
func (r Runtime) FailOnSeverity() (review.Severity, bool) {
	if r.FailOn == "" || r.FailOn == "none" {
		return "", false
	}
	return review.Severity(r.FailOn), true
}

// Namespace is the context and content namespace for the configured source.
func (c *Config) Namespace() string {
	if c.Source.Repo != "" {
		return c.Source.Repo
	}
	abs, err := filepath.Abs(c.Source.Dir)
	if err != nil {
		return filepath.Base(c.Source.Dir)
	}
	return filepath.Base(abs)
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func severityList() string {
	all := review.AllSeverities()
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

// NormalizeRepo accepts OWNER/REPO or a GitHub URL such as
// https://github.com/OWNER/REPO(.git) and returns OWNER/REPO.
func NormalizeRepo(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty repository")
	}
	for _, prefix := range []string{"https://", "http://"} {
		raw = strings.TrimPrefix(raw, prefix)
	}
	raw = strings.TrimPrefix(raw, "www.")
	if rest, ok := strings.CutPrefix(raw, "github.com/"); ok {
		raw = rest
	}
	raw = strings.TrimSuffix(strings.Trim(raw, "/"), ".git")

	parts := strings.Split(raw, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%q: expected OWNER/REPO", raw)
	}
	if len(parts) > 2 {
		// Allow tree/blob/pull suffixes from pasted browser URLs.
		switch parts[2] {
		case "tree", "blob", "pull", "pulls":
		default:
			return "", fmt.Errorf("%q: expected OWNER/REPO", raw)
		}
	}
	return parts[0] + "/" + parts[1], nil
}

// ParseTaskOptionAssignments parses values of the form "task.option=value".
//
// Notes:
// - Entries may be provided via repeated flags and/or comma-delimited lists.
//   A comma-separated part without '=' continues the previous value, so
//   "security.allow.paths=vendor/*,gen/*" keeps both patterns.
// - This validates syntax only; task and option names are checked by the registry.
// - Empty values are allowed ("task.option=").
func ParseTaskOptionAssignments(values []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, raw := range splitAssignments(values) {
		left, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected task.option=value", raw)
		}
		task, opt, ok := strings.Cut(strings.TrimSpace(left), ".")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected task.option=value", raw)
		}
		task = strings.TrimSpace(task)
		opt = strings.TrimSpace(opt)
		if task == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty task and option", raw)
		}
		if _, ok := out[task]; !ok {
			out[task] = make(map[string]string)
		}
		out[task][opt] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitAssignments(values []string) []string {
	var out []string
	for _, v := range values {
		start := len(out)
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			if !strings.Contains(p, "=") && len(out) > start {
				out[len(out)-1] += "," + p
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
