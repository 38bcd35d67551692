package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"ogkb/ogkbd/pkg/shell"
)

// MaxLoggedOutput bounds how much command output reaches the audit log.
const MaxLoggedOutput = 400

// ExecResult is what the executor observed. It is only ever logged.
type ExecResult struct {
	Code     int
	Output   string
	Err      error
	TimedOut bool
	// Signaled means the command started but was killed by a signal.
	Signaled bool
}

// Executor performs the privileged action.
type Executor interface {
	Execute(ctx context.Context) ExecResult
}

// CommandExecutor runs a fixed argv, normally a non-interactive sudo wrapper
// around the power-off script. Timeout <= 0 waits forever.
type CommandExecutor struct {
	Argv    []string
	Timeout time.Duration
}

func (e CommandExecutor) Execute(ctx context.Context) ExecResult {
	if len(e.Argv) == 0 {
		return ExecResult{Code: -1, Err: errors.New("no power-off command configured")}
	}
	res, err := shell.Run(ctx, e.Timeout, e.Argv[0], e.Argv[1:]...)
	out := ExecResult{Code: res.Code, Output: string(res.Output)}
	switch {
	case errors.Is(err, shell.ErrTimeout):
		out.TimedOut = true
		out.Err = err
	case shell.IsSignal(err):
		out.Signaled = true
		out.Err = err
	case err != nil && !shell.IsExit(err):
		out.Err = err
	}
	return out
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context) ExecResult

func (f ExecutorFunc) Execute(ctx context.Context) ExecResult { return f(ctx) }

// FlattenOutput joins output lines with " | " and cuts the result to at most
// max characters.
func FlattenOutput(out string, max int) string {
	out = strings.TrimRight(out, "\r\n")
	if out == "" {
		return ""
	}
	lines := strings.Split(out, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, "\r \t")
	}
	return truncate(strings.Join(lines, " | "), max)
}
