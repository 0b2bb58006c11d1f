package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"reviewbot/internal/config"
	"reviewbot/internal/engine"
	"reviewbot/internal/flags"
	gh "reviewbot/internal/github"

	"github.com/spf13/cobra"
)

var cfg = config.New()

const reviewHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
  REVIEWBOT_API_KEY (or the variable named by --api-key-env)
    API key sent to the http producer as a bearer token.

  GITHUB_TOKEN, GH_TOKEN
    GitHub access token, required for --repo. If neither is set, ReviewBot
    reuses GitHub CLI authentication (gh auth token) when gh is installed.

  Token guidance (brief):
  - Reading a repository needs Contents: Read.
  - --comment also needs Pull requests: Write (or Issues: Write).

  Examples:
    # macOS/Linux
    export GITHUB_TOKEN="<your_token>"
    reviewbot review --repo my-org/app --pr 42

    # GitHub CLI auth
    gh auth login
    reviewbot review --repo my-org/app

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review files of a directory, repository or pull request",
	Long: `Review files and report findings.

Every selected file is analyzed by every selected task. Each (file, task) pair
is one call to the analysis producer; the file text, the task instructions and
any indexed context from the rest of the repository are sent together.

Sources (exactly one):
	--dir PATH                  files of a local directory tree
	--repo OWNER/REPO           files of a GitHub repository at --ref
	--repo OWNER/REPO --pr N    files changed by a pull request, read at its head

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON object or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown summary
	- --comment: post the Markdown summary on the pull request
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, item.started, finding, item.failed, item.finished,
	run.finished).

Exit codes:
	0 = clean run, no findings at or above --fail-on
	1 = findings at or above --fail-on
	2 = partial failure (a file or one of its review tasks failed, or the comment failed)
	3 = fatal error (review did not run)

Examples:
	reviewbot review --dir . --include '*.go' --exclude '*_test.go'

	# Use a local model through a command that reads the prompt on stdin
	reviewbot review --dir . --producer command --command "ollama run llama3"

	# CI gate on high severity findings
	reviewbot review --repo my-org/app --pr 42 --fail-on high --comment

	# AI Agent: stream machine-readable events to stdout
	reviewbot review --dir . --no-console --emit ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}

		cfg.Runtime.Verbose = verbose
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		ctx := context.Background()
		var client *gh.Client
		if cfg.Source.Repo != "" {
			var err error
			client, err = newGitHubClient(ctx, cfg.Runtime.Verbose)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(3)
			}
		}

		eng := engine.NewEngine(client)
		os.Exit(eng.Run(ctx, cfg))
	},
}

// newGitHubClient resolves a token and builds the API client.
func newGitHubClient(ctx context.Context, verbose bool) (*gh.Client, error) {
	token, _, err := gh.ResolveAuthToken(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitHub auth token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("GitHub auth token is required (set GITHUB_TOKEN or run 'gh auth login')")
	}
	client, err := gh.NewClient(ctx, token, gh.WithVerbose(verbose, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return client, nil
}

// bindAnalysisFlags wires the flags shared by review and serve: tasks,
// context, producer and runtime.
func bindAnalysisFlags(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()

	// Tasks
	fs.StringVar(&c.Tasks.Selector, flags.FlagTasks, c.Tasks.Selector, "Tasks to run: all, or a comma-separated list of task names")
	fs.StringVar(&c.Tasks.File, flags.FlagTasksFile, "", "YAML file of task descriptors replacing the built-in tasks")
	fs.StringSliceVar(&c.Tasks.Set, flags.FlagSet, nil, "Per-task options as task.option=value (repeatable; comma-separated accepted)")

	// Context
	fs.BoolVar(&c.Context.Index, flags.FlagIndex, false, "Index the repository and send related snippets with each file")
	fs.IntVar(&c.Context.TopK, flags.FlagTopK, c.Context.TopK, "Context snippets per file when --index is set")
	fs.IntVar(&c.Context.ChunkSize, flags.FlagChunkSize, c.Context.ChunkSize, "Index chunk size in characters")

	// Producer
	fs.StringVar(&c.Producer.Kind, flags.FlagProducer, c.Producer.Kind, "Analysis producer: http|command")
	fs.StringVar(&c.Producer.Endpoint, flags.FlagEndpoint, c.Producer.Endpoint, "Chat-completions base URL for the http producer")
	fs.StringVar(&c.Producer.Model, flags.FlagModel, c.Producer.Model, "Model name for the http producer")
	fs.StringVar(&c.Producer.APIKeyEnv, flags.FlagAPIKeyEnv, c.Producer.APIKeyEnv, "Environment variable holding the http producer API key")
	fs.StringVar(&c.Producer.Command, flags.FlagCommand, "", "Command line for the command producer; the prompt is written to its stdin")
	fs.DurationVar(&c.Producer.Timeout, flags.FlagProducerTimeout, c.Producer.Timeout, "Timeout for a single producer call (0 = none)")
	fs.IntVar(&c.Producer.Retries, flags.FlagRetries, c.Producer.Retries, "Attempts per producer call")

	// Runtime
	fs.IntVar(&c.Runtime.Concurrency, flags.FlagConcurrency, c.Runtime.Concurrency, "Files reviewed at once")
	fs.DurationVar(&c.Runtime.ItemTimeout, flags.FlagItemTimeout, 0, "Timeout for each file's review (0 = none)")
	fs.DurationVar(&c.Runtime.Timeout, flags.FlagTimeout, c.Runtime.Timeout, "Global timeout")
	fs.StringVar(&c.Runtime.FailOn, flags.FlagFailOn, c.Runtime.FailOn, "Exit 1 when a finding is at or above this severity: none|info|low|medium|high|critical")
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.SetHelpTemplate(reviewHelpTemplate)

	fs := reviewCmd.Flags()

	// Source
	fs.StringVar(&cfg.Source.Dir, flags.FlagDir, "", "Local directory to review")
	fs.StringVar(&cfg.Source.Repo, flags.FlagRepo, "", "GitHub repository to review as OWNER/REPO or URL")
	fs.IntVar(&cfg.Source.PR, flags.FlagPR, 0, "Review only the files changed by this pull request (requires --repo)")
	fs.StringVar(&cfg.Source.Ref, flags.FlagRef, "", "Git ref for a whole-repository review (default: default branch)")
	fs.StringSliceVar(&cfg.Source.Include, flags.FlagInclude, nil, "Include pattern(s) (repeatable; comma-separated accepted). Go path.Match style; if pattern contains '/', matches the full path, else the base name")
	fs.StringSliceVar(&cfg.Source.Exclude, flags.FlagExclude, nil, "Exclude pattern(s) (repeatable; comma-separated accepted). Same matching rules as --include")
	fs.IntVar(&cfg.Source.MaxItems, flags.FlagMaxItems, 0, "Maximum number of files to review (0 = unlimited)")
	fs.IntVar(&cfg.Source.MaxBytes, flags.FlagMaxBytes, cfg.Source.MaxBytes, "Skip files larger than this many bytes")

	bindAnalysisFlags(reviewCmd, cfg)

	// Output
	fs.StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, cfg.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	fs.StringVar(&cfg.Output.MinSeverity, flags.FlagMinSeverity, cfg.Output.MinSeverity, "Hide console findings below this severity")
	fs.StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown summary to this path")
	fs.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	fs.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	fs.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	fs.BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
	fs.BoolVar(&cfg.Output.Comment, flags.FlagComment, false, "Post the Markdown summary as a pull request comment (requires --pr)")
}
