package cli

import (
	"fmt"
	"os"

	"reviewbot/internal/flags"
	"reviewbot/internal/logging"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var logFormat string

var rootCmd = &cobra.Command{
	Use:   "reviewbot",
	Short: "Review source files with an analysis model and report findings",
	Long: `ReviewBot runs a set of review tasks over every file of a local tree, a
GitHub repository or a pull request, and reports the findings.

Examples:
	# Show available commands and global flags
	reviewbot --help

	# Review a local directory
	reviewbot review --dir .

	# Review a pull request and post the summary as a comment
	reviewbot review --repo org/repo --pr 42 --comment

	# List review tasks
	reviewbot tasks list

	# Receive GitHub webhooks and review pull requests as they change
	reviewbot serve --addr :8080

Output:
	By default, commands write human-readable output to stdout.
	Logs go to stderr (see --log-format).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := logging.ParseFormat(logFormat)
		if err != nil {
			return err
		}
		logging.Init(logging.Level(verbose), format)
		return nil
	},
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call and full error details)")
	rootCmd.PersistentFlags().StringVar(&logFormat, flags.FlagLogFormat, logging.FormatText, "Log format on stderr: text|json")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
