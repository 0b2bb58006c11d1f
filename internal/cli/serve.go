package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"reviewbot/internal/config"
	"reviewbot/internal/engine"
	"reviewbot/internal/flags"
	gh "reviewbot/internal/github"
	"reviewbot/internal/logging"
	"reviewbot/internal/webhook"

	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

var (
	serveCfg    = config.New()
	serveAddr   string
	serveSecret string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive GitHub webhooks and review pull requests",
	Long: `Run an HTTP server that reviews pull requests on GitHub webhook deliveries.

A review starts when a pull request is opened, reopened or synchronized, or
when someone comments "/review" on it. The Markdown summary is posted back on
the pull request. Deliveries for a pull request already under review join the
running review.

Routes:
	GET  /webhooks/test     liveness and supported events
	POST /webhooks/github   GitHub deliveries (configure the webhook for
	                        "Pull requests" and "Issue comments")

Deliveries are verified with the webhook secret (--webhook-secret or
REVIEWBOT_WEBHOOK_SECRET). Without a secret, signatures are not checked.

Examples:
	export GITHUB_TOKEN="<your_token>"
	export REVIEWBOT_WEBHOOK_SECRET="<secret>"
	reviewbot serve --addr :8080 --tasks security,performance
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		serveCfg.Runtime.Verbose = verbose
		// Catch bad flags before listening.
		if _, err := requestConfig(serveCfg, "owner/repo", 1); err != nil {
			return err
		}
		secret := serveSecret
		if secret == "" {
			secret = os.Getenv("REVIEWBOT_WEBHOOK_SECRET")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := newGitHubClient(ctx, serveCfg.Runtime.Verbose)
		if err != nil {
			return err
		}
		return serve(ctx, serveAddr, secret, reviewerFor(serveCfg, client))
	},
}

func serve(ctx context.Context, addr, secret string, review webhook.Reviewer) error {
	logger := logging.New("serve")
	if secret == "" {
		logger.Warn("webhook secret not set; deliveries are not verified")
	}
	h, err := webhook.NewHandler(ctx, secret, review, webhook.WithLogger(logging.New("webhook")))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}
	h.Wait()
	return nil
}

// requestConfig derives the configuration of one pull request review from
// the server's base configuration.
func requestConfig(base *config.Config, repo string, number int) (*config.Config, error) {
	c := *base
	c.Source = config.Source{
		Repo:     repo,
		PR:       number,
		Include:  slices.Clone(base.Source.Include),
		Exclude:  slices.Clone(base.Source.Exclude),
		MaxItems: base.Source.MaxItems,
		MaxBytes: base.Source.MaxBytes,
	}
	c.Tasks.Set = slices.Clone(base.Tasks.Set)
	c.Output = config.Output{
		ConsoleFormat: base.Output.ConsoleFormat,
		MinSeverity:   base.Output.MinSeverity,
		NoConsole:     true,
		Comment:       true,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// reviewerFor runs one engine review per accepted delivery.
func reviewerFor(base *config.Config, client *gh.Client) webhook.Reviewer {
	return func(ctx context.Context, repo string, number int) error {
		c, err := requestConfig(base, repo, number)
		if err != nil {
			return err
		}
		eng := engine.NewEngine(client)
		if code := eng.Run(ctx, c); code >= 2 {
			return fmt.Errorf("review of %s#%d finished with exit code %d", repo, number, code)
		}
		return nil
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	fs := serveCmd.Flags()
	fs.StringVar(&serveAddr, flags.FlagAddr, ":8080", "Listen address")
	fs.StringVar(&serveSecret, flags.FlagWebhookSecret, "", "GitHub webhook secret (default: $REVIEWBOT_WEBHOOK_SECRET)")
	fs.StringSliceVar(&serveCfg.Source.Include, flags.FlagInclude, nil, "Include pattern(s) for changed files (same rules as review --include)")
	fs.StringSliceVar(&serveCfg.Source.Exclude, flags.FlagExclude, nil, "Exclude pattern(s) for changed files")
	fs.IntVar(&serveCfg.Source.MaxItems, flags.FlagMaxItems, 0, "Maximum number of files per review (0 = unlimited)")
	fs.IntVar(&serveCfg.Source.MaxBytes, flags.FlagMaxBytes, serveCfg.Source.MaxBytes, "Skip files larger than this many bytes")
	bindAnalysisFlags(serveCmd, serveCfg)
}
