package producer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"reviewbot/internal/review"
)

// maxStderr bounds how much command stderr is quoted in errors.
const maxStderr = 256

// CommandProducer runs an external program with the prompt on stdin and
// returns its stdout. It lets any local model CLI act as a producer.
type CommandProducer struct {
	name    string
	args    []string
	env     []string
	timeout time.Duration
}

// NewCommand parses a command line such as "llm -m local". Arguments are split
// on whitespace; no shell is involved.
func NewCommand(commandLine string, timeout time.Duration, env ...string) (*CommandProducer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("producer: command is empty")
	}
	return &CommandProducer{name: fields[0], args: fields[1:], env: env, timeout: timeout}, nil
}

func (c *CommandProducer) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	cmdCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, c.name, c.args...)
	cmd.Env = append(os.Environ(), c.env...)
	cmd.Env = append(cmd.Env, "REVIEWBOT_ITEM="+req.Identifier)
	cmd.Stdin = strings.NewReader(BuildPrompt(req))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() != nil {
			return "", fmt.Errorf("producer command %s: %w", c.name, cmdCtx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr] + "..."
		}
		if msg == "" {
			return "", fmt.Errorf("producer command %s: %w", c.name, err)
		}
		return "", fmt.Errorf("producer command %s: %w: %s", c.name, err, msg)
	}
	return stdout.String(), nil
}
