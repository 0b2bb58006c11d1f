package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"reviewbot/internal/config"
	"reviewbot/internal/content"
	gh "reviewbot/internal/github"
	"reviewbot/internal/logging"
	"reviewbot/internal/output"
	"reviewbot/internal/pipeline"
	"reviewbot/internal/producer"
	"reviewbot/internal/rag"
	"reviewbot/internal/resilience"
	"reviewbot/internal/review"
	"reviewbot/internal/tasks"
)

func exitCodeForRun(fatal, partial, wrongs bool) int {
	// Exit code contract:
	// 0 = clean run, no findings at or above --fail-on
	// 1 = findings at or above --fail-on
	// 2 = partial failure (an item or one of its tasks failed, or the PR comment failed)
	// 3 = fatal error (review did not run)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	if wrongs {
		return 1
	}
	return 0
}

// hasBlockingFindings reports whether any finding reaches the --fail-on threshold.
func hasBlockingFindings(findings []review.Finding, rt config.Runtime) bool {
	min, ok := rt.FailOnSeverity()
	if !ok {
		return false
	}
	for _, f := range findings {
		if f.Severity.AtLeast(min) {
			return true
		}
	}
	return false
}

// itemsWithFailedAnalysis counts reviewed items where at least one task failed.
func itemsWithFailedAnalysis(res *pipeline.BatchResult) int {
	n := 0
	for _, item := range res.Items {
		for _, diag := range item.Diagnostics {
			var se *review.StageError
			if errors.As(diag, &se) && se.Stage == review.StageAnalysis {
				n++
				break
			}
		}
	}
	return n
}

type Engine struct {
	Client *gh.Client

	// Stdout receives emit streams and the console sink. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr receives progress messages. Defaults to os.Stderr.
	Stderr io.Writer

	// producer replaces the configured producer; a test seam.
	producer tasks.Producer
}

func NewEngine(client *gh.Client) *Engine {
	return &Engine{
		Client: client,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// target is the resolved review input: where content comes from and which
// identifiers to review.
type target struct {
	namespace string
	source    *content.CachedSource
	ids       []string
	pr        *gh.PullRequest
}

func (e *Engine) progress(cfg *config.Config, format string, args ...any) {
	if cfg.Output.NoConsole || e.Stderr == nil {
		return
	}
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

func (e *Engine) resolveTarget(ctx context.Context, cfg *config.Config) (*target, error) {
	t := &target{namespace: cfg.Namespace()}

	if cfg.Source.Dir != "" {
		fs, err := content.NewFSSource(cfg.Source.Dir, cfg.Source.MaxBytes)
		if err != nil {
			return nil, err
		}
		t.source = content.NewCachedSource(fs)
		ids, err := t.source.List(ctx, t.namespace)
		if err != nil {
			return nil, err
		}
		t.ids = ids
		return t, nil
	}

	if e.Client == nil {
		return nil, errors.New("a GitHub client is required to review a repository")
	}
	owner, repo, err := gh.ParseRepo(cfg.Source.Repo)
	if err != nil {
		return nil, err
	}

	ref := cfg.Source.Ref
	if cfg.Source.PR > 0 {
		pr, err := e.Client.GetPullRequest(ctx, owner, repo, cfg.Source.PR)
		if err != nil {
			return nil, err
		}
		t.pr = &pr
		ref = pr.HeadSHA
	}

	ghs, err := content.NewGitHubSource(e.Client, content.NewRequestBudget(), ref)
	if err != nil {
		return nil, err
	}
	ghs.SetMaxBytes(cfg.Source.MaxBytes)
	t.source = content.NewCachedSource(ghs)

	if t.pr == nil {
		ids, err := t.source.List(ctx, t.namespace)
		if err != nil {
			return nil, err
		}
		t.ids = ids
		return t, nil
	}

	files, err := e.Client.ListPullRequestFiles(ctx, owner, repo, t.pr.Number)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Removed() {
			continue
		}
		t.ids = append(t.ids, f.Path)
	}
	return t, nil
}

// resolveAndConfigureTasks builds the registry, applies --set and resolves the
// task selector.
func resolveAndConfigureTasks(cfg *config.Config) ([]*tasks.Task, error) {
	descriptors := tasks.Defaults()
	if cfg.Tasks.File != "" {
		ds, err := tasks.LoadDescriptors(cfg.Tasks.File)
		if err != nil {
			return nil, err
		}
		descriptors = ds
	}
	reg, err := tasks.NewRegistry(descriptors...)
	if err != nil {
		return nil, err
	}

	if len(cfg.Tasks.Set) > 0 {
		assignments, err := config.ParseTaskOptionAssignments(cfg.Tasks.Set)
		if err != nil {
			return nil, err
		}
		if err := reg.Configure(assignments); err != nil {
			return nil, fmt.Errorf("configure tasks: %w", err)
		}
	}

	return reg.Resolve(cfg.Tasks.Selector)
}

func (e *Engine) buildProducer(cfg *config.Config, logger *slog.Logger) (tasks.Producer, error) {
	var base resilience.Producer
	switch {
	case e.producer != nil:
		base = e.producer
	case cfg.Producer.Kind == "command":
		p, err := producer.NewCommand(cfg.Producer.Command, 0)
		if err != nil {
			return nil, err
		}
		base = p
	default:
		apiKey := ""
		if cfg.Producer.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Producer.APIKeyEnv)
		}
		p, err := producer.NewHTTP(cfg.Producer.Endpoint, apiKey,
			producer.WithModel(cfg.Producer.Model),
			producer.WithTimeout(0),
			producer.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		base = p
	}

	policy := resilience.DefaultPolicy()
	policy.Attempts = cfg.Producer.Retries
	// Each attempt gets its own deadline.
	return resilience.RetryProducer(resilience.TimeoutProducer(base, cfg.Producer.Timeout), policy, logger), nil
}

// buildContextProvider indexes the target when --index is set. Without an
// index the orchestrator runs with empty context.
func (e *Engine) buildContextProvider(ctx context.Context, cfg *config.Config, t *target, logger *slog.Logger) (pipeline.ContextProvider, error) {
	if !cfg.Context.Index {
		return nil, nil
	}
	store, err := rag.NewMemoryStore(rag.NewHashEmbedder(rag.DefaultDimensions))
	if err != nil {
		return nil, err
	}
	ix, err := rag.NewIndexer(store, rag.WithChunkSize(cfg.Context.ChunkSize), rag.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	// A PR review still indexes the whole tree at the head so changed files see
	// their unchanged neighbours.
	paths, err := t.source.List(ctx, t.namespace)
	if err != nil {
		return nil, fmt.Errorf("list files to index: %w", err)
	}
	stats, err := ix.IndexFiles(ctx, t.source, t.namespace, paths)
	if err != nil {
		return nil, err
	}
	e.progress(cfg, "Indexed %d files (%d chunks).", stats.FilesIndexed, stats.Chunks)

	return resilience.RetryProvider(store, resilience.DefaultPolicy(), logger), nil
}

type outputs struct {
	mgr    *output.Manager
	report *output.ReportSink
}

func (e *Engine) setupOutputs(cfg *config.Config, t *target) (*outputs, error) {
	outMgr, err := output.NewManager()
	if err != nil {
		return nil, err
	}
	o := &outputs{mgr: outMgr}

	prNumber := 0
	if t.pr != nil {
		prNumber = t.pr.Number
	}

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(e.Stdout, cfg.Output.ConsoleFormat, review.Severity(cfg.Output.MinSeverity))); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(e.Stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink; a PR comment needs one even without --report.
	switch {
	case cfg.Output.Report != "":
		rs, err := output.NewReportSink(cfg.Output.Report, t.namespace, prNumber)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		o.report = rs
	case cfg.Output.Comment:
		o.report = output.NewReportWriter(nil, t.namespace, prNumber)
	}
	if o.report != nil {
		if err := outMgr.AddSink(o.report); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return o, nil
}

func (e *Engine) postComment(ctx context.Context, t *target, body string) error {
	if t.pr == nil {
		return errors.New("no pull request to comment on")
	}
	url, err := e.Client.PostComment(ctx, t.pr.Owner, t.pr.Repo, t.pr.Number, body)
	if err != nil {
		return err
	}
	slog.Info("posted review comment", "pr", t.pr.FullName(), "number", t.pr.Number, "url", url)
	return nil
}

// Run reviews the configured source and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	logger := logging.New("engine")
	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	e.progress(cfg, "Resolving items...")
	t, err := e.resolveTarget(ctx, cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error resolving items: %s\n", gh.PresentError(err, cfg.Runtime.Verbose))
		return exitCodeForRun(true, false, false)
	}
	found := len(t.ids)
	t.ids = FilterItems(t.ids, cfg.Source)
	e.progress(cfg, "Found %d items, %d selected for review.", found, len(t.ids))

	e.progress(cfg, "Resolving tasks...")
	selected, err := resolveAndConfigureTasks(cfg)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error resolving tasks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	e.progress(cfg, "Selected %d tasks.", len(selected))

	prod, err := e.buildProducer(cfg, logging.New("producer"))
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating producer: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	provider, err := e.buildContextProvider(ctx, cfg, t, logging.New("rag"))
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error indexing %s: %s\n", t.namespace, gh.PresentError(err, cfg.Runtime.Verbose))
		return exitCodeForRun(true, false, false)
	}

	orch, err := pipeline.New(provider, prod, selected,
		pipeline.WithTopK(cfg.Context.TopK),
		pipeline.WithLogger(logging.New("pipeline")))
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating pipeline: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	outs, err := e.setupOutputs(cfg, t)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outs.mgr.Close()

	emitter := output.NewEmitter(outs.mgr, t.namespace, logger)
	verbose := cfg.Runtime.Verbose
	sched, err := pipeline.NewScheduler(orch,
		pipeline.WithItemTimeout(cfg.Runtime.ItemTimeout),
		pipeline.WithErrorSummarizer(func(err error) string { return gh.PresentError(err, verbose) }),
		pipeline.WithObserver(emitter),
		pipeline.WithSchedulerLogger(logging.New("scheduler")))
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error creating scheduler: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	emitter.RunStarted(len(t.ids), orch.TaskNames())
	res, err := sched.RunSourced(ctx, t.source, t.ids, t.namespace, cfg.Runtime.Concurrency)
	if err != nil {
		fmt.Fprintf(e.stderr(), "Error running review: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	partial := len(res.ItemsFailed) > 0
	if degraded := itemsWithFailedAnalysis(res); degraded > 0 {
		fmt.Fprintf(e.stderr(), "Warning: analysis failed for %d of %d reviewed items.\n", degraded, len(res.ItemsSucceeded))
		partial = true
	}
	if cfg.Output.Comment && outs.report != nil {
		if err := e.postComment(ctx, t, outs.report.Markdown()); err != nil {
			logger.Error("post review comment failed", "error", err)
			fmt.Fprintf(e.stderr(), "Error posting review comment: %s\n", gh.PresentError(err, verbose))
			partial = true
		}
	}

	code := exitCodeForRun(false, partial, hasBlockingFindings(res.Findings, cfg.Runtime))
	emitter.RunFinished(res, code)
	logger.Info("run finished",
		"run_id", emitter.RunID(),
		"namespace", t.namespace,
		"items", res.ItemsConsidered,
		"failed", len(res.ItemsFailed),
		"findings", len(res.Findings),
		"exit_code", code)
	return code
}

func (e *Engine) stderr() io.Writer {
	if e.Stderr == nil {
		return io.Discard
	}
	return e.Stderr
}
