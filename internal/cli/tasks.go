package cli

import (
	"fmt"
	"io"
	"strings"

	"reviewbot/internal/flags"
	"reviewbot/internal/tasks"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	tasksListQuiet bool
	tasksFile      string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage and list review tasks",
	Long: `Manage ReviewBot tasks.

A task is a named review instruction (security, performance, style,
architecture). Every selected task runs on every reviewed file (see
"reviewbot review --help"). Tasks come built in, or from a YAML file given
with --tasks-file.

Examples:
  # List all available tasks
  reviewbot tasks list

  # List tasks defined in a file
  reviewbot tasks list --tasks-file review-tasks.yaml
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available tasks",
	Long: `List all tasks of this build, or of --tasks-file.

Tasks are sorted by name.

Examples:
  reviewbot tasks list

Output:
  A vertical list of tasks:
    ----------------------------------------
    TASK: {NAME}
    ----------------------------------------
    {TITLE}
    {INSTRUCTIONS}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(tasksFile)
		if err != nil {
			return err
		}
		for _, t := range reg.List() {
			if tasksListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), t.Name())
			} else {
				printTask(cmd.OutOrStdout(), t)
			}
		}
		return nil
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show [task-name]",
	Short: "Show details of a specific task",
	Long: `Show details of a specific task by its name.

Examples:
  reviewbot tasks show security
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(tasksFile)
		if err != nil {
			return err
		}
		selected, err := reg.Resolve(args[0])
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			return fmt.Errorf("task not found: %s", args[0])
		}
		printTask(cmd.OutOrStdout(), selected[0])
		return nil
	},
}

// loadRegistry builds the registry from the built-in descriptors, or from path
// when set.
func loadRegistry(path string) (*tasks.Registry, error) {
	descriptors := tasks.Defaults()
	if strings.TrimSpace(path) != "" {
		loaded, err := tasks.LoadDescriptors(path)
		if err != nil {
			return nil, err
		}
		descriptors = loaded
	}
	return tasks.NewRegistry(descriptors...)
}

func printTask(w io.Writer, t *tasks.Task) {
	d := t.Descriptor()
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "TASK: %s\n", d.Name)
	fmt.Fprintln(w, "----------------------------------------")
	if d.Title != "" {
		fmt.Fprintln(w, d.Title)
	}
	fmt.Fprintln(w, strings.TrimSpace(d.Instructions))
	if len(d.FocusAreas) > 0 {
		fmt.Fprintf(w, "Focus: %s\n", strings.Join(d.FocusAreas, ", "))
	}
	if d.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", d.Category)
	}

	if opts := t.Options(); len(opts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		for _, opt := range opts {
			def := opt.Default
			if def == "" {
				def = "\"\""
			}
			fmt.Fprintf(w, "  %s\n", opt.Name)
			fmt.Fprintf(w, "    Description: %s\n", opt.Description)
			fmt.Fprintf(w, "    Default:     %s\n", def)
		}
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.PersistentFlags().StringVar(&tasksFile, flags.FlagTasksFile, "", "YAML file of task descriptors replacing the built-in tasks")
	tasksCmd.AddCommand(tasksListCmd)
	tasksListCmd.Flags().BoolVarP(&tasksListQuiet, "quiet", "q", false, "Only print task names")
	tasksCmd.AddCommand(tasksShowCmd)
}
