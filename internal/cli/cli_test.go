package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reviewbot/internal/config"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
)

func init() {
	color.NoColor = true
}

const customTasks = `tasks:
  - name: licensing
    title: License Headers
    category: style
    instructions: Report files without a license header.
    focus_areas:
      - SPDX identifiers
`

func writeTasksFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(customTasks), 0o644); err != nil {
		t.Fatalf("write tasks file: %v", err)
	}
	return path
}

func TestPrintTask(t *testing.T) {
	reg, err := loadRegistry(writeTasksFile(t))
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	list := reg.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 task, got %d", len(list))
	}

	var buf bytes.Buffer
	printTask(&buf, list[0])
	out := buf.String()

	for _, want := range []string{
		"TASK: licensing",
		"License Headers",
		"Report files without a license header.",
		"Focus: SPDX identifiers",
		"Category: style",
		"Options:",
		"allow.paths",
		"min_severity",
		"Default:     info",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLoadRegistry_Defaults(t *testing.T) {
	reg, err := loadRegistry("")
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	var names []string
	for _, task := range reg.List() {
		names = append(names, task.Name())
	}
	if diff := cmp.Diff([]string{"architecture", "performance", "security", "style"}, names); diff != "" {
		t.Fatalf("task names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	if _, err := loadRegistry(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing tasks file")
	}
}

func TestTasksListQuiet(t *testing.T) {
	tasksListQuiet = true
	tasksFile = ""
	defer func() { tasksListQuiet = false }()

	var buf bytes.Buffer
	tasksListCmd.SetOut(&buf)
	defer tasksListCmd.SetOut(nil)

	if err := tasksListCmd.RunE(tasksListCmd, nil); err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	if got := buf.String(); got != "architecture\nperformance\nsecurity\nstyle\n" {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestTasksShow_Unknown(t *testing.T) {
	tasksFile = ""
	var buf bytes.Buffer
	tasksShowCmd.SetOut(&buf)
	defer tasksShowCmd.SetOut(nil)

	if err := tasksShowCmd.RunE(tasksShowCmd, []string{"nope"}); err == nil {
		t.Fatal("expected error for unknown task")
	}
	if err := tasksShowCmd.RunE(tasksShowCmd, []string{"security"}); err != nil {
		t.Fatalf("tasks show security: %v", err)
	}
	if !strings.Contains(buf.String(), "TASK: security") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestRequestConfig(t *testing.T) {
	base := config.New()
	base.Source.Include = []string{"*.go"}
	base.Tasks.Set = []string{"security.min_severity=high"}
	base.Output.Emit = []string{"ndjson"}
	base.Output.Report = "report.md"

	c, err := requestConfig(base, "https://github.com/acme/widgets", 7)
	if err != nil {
		t.Fatalf("requestConfig: %v", err)
	}
	if c.Source.Repo != "acme/widgets" || c.Source.PR != 7 {
		t.Fatalf("unexpected source: %+v", c.Source)
	}
	if !c.Output.Comment || !c.Output.NoConsole {
		t.Fatalf("expected comment without console, got %+v", c.Output)
	}
	if c.Output.Report != "" || len(c.Output.Emit) != 0 {
		t.Fatalf("per-request review must not write shared outputs, got %+v", c.Output)
	}

	c.Source.Include[0] = "*.py"
	c.Tasks.Set[0] = "style.min_severity=low"
	if base.Source.Include[0] != "*.go" || base.Tasks.Set[0] != "security.min_severity=high" {
		t.Fatalf("request config shares slices with the base config")
	}
	if base.Source.Repo != "" || base.Source.PR != 0 {
		t.Fatalf("base config was modified: %+v", base.Source)
	}
}

func TestRequestConfig_InvalidBase(t *testing.T) {
	base := config.New()
	base.Runtime.Concurrency = 0
	if _, err := requestConfig(base, "acme/widgets", 1); err == nil {
		t.Fatal("expected validation error")
	}
}
