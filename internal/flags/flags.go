// Package flags defines canonical CLI flag names shared across the CLI and engine.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Source.Repo, flags.FlagRepo, "", "...")
//	arg := "--" + flags.FlagRepo
package flags

const (
	// Global
	FlagVerbose   = "verbose"
	FlagLogFormat = "log-format"

	// Source
	FlagDir      = "dir"
	FlagRepo     = "repo"
	FlagPR       = "pr"
	FlagRef      = "ref"
	FlagInclude  = "include"
	FlagExclude  = "exclude"
	FlagMaxItems = "max-items"
	FlagMaxBytes = "max-bytes"

	// Tasks
	FlagTasks     = "tasks"
	FlagTasksFile = "tasks-file"
	FlagSet       = "set"

	// Context
	FlagIndex     = "index"
	FlagTopK      = "top-k"
	FlagChunkSize = "chunk-size"

	// Producer
	FlagProducer        = "producer"
	FlagEndpoint        = "endpoint"
	FlagModel           = "model"
	FlagAPIKeyEnv       = "api-key-env"
	FlagCommand         = "command"
	FlagProducerTimeout = "producer-timeout"
	FlagRetries         = "retries"

	// Output
	FlagConsoleFormat = "console-format"
	FlagMinSeverity   = "min-severity"
	FlagReport        = "report"
	FlagOut           = "out"
	FlagOutFormat     = "out-format"
	FlagEmit          = "emit"
	FlagNoConsole     = "no-console"
	FlagComment       = "comment"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagItemTimeout = "item-timeout"
	FlagTimeout     = "timeout"
	FlagFailOn      = "fail-on"

	// Serve
	FlagAddr          = "addr"
	FlagWebhookSecret = "webhook-secret"
)
