// Package shell provides the command task host: it executes a task's
// command line and exposes its standard output as a task output.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/zerr"
)

// StdoutOutput is the output key under which the task's trimmed standard
// output is reported, for routing through output bindings.
const StdoutOutput = "stdout"

// Runner implements ports.TaskRunner using os/exec.
type Runner struct {
	logger ports.Logger
}

// NewRunner creates a Runner.
func NewRunner(logger ports.Logger) *Runner {
	return &Runner{
		logger: logger,
	}
}

// RunTask executes the task's command. Property references in arguments
// expand from the current property state; task parameters are passed as
// environment variables on top of the process environment. A task with
// no command succeeds without doing anything.
func (r *Runner) RunTask(ctx context.Context, task *domain.TaskSpec, properties map[string]string) (map[string]string, error) {
	if len(task.Command) == 0 {
		return nil, nil
	}

	args := make([]string, len(task.Command))
	for i, arg := range task.Command {
		args[i] = expand(arg, properties)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // user provided command
	cmd.Env = taskEnvironment(task.Parameters, properties)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &logWriter{logger: r.logger}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, zerr.With(zerr.With(zerr.Wrap(err, "command failed"), "command", args[0]), "exit_code", exitCode)
	}

	return map[string]string{
		StdoutOutput: strings.TrimRight(stdout.String(), "\n"),
	}, nil
}

// taskEnvironment layers the task's expanded parameters over the process
// environment as KEY=VALUE entries.
func taskEnvironment(params, properties map[string]string) []string {
	env := os.Environ()
	for k, v := range params {
		env = append(env, k+"="+expand(v, properties))
	}
	return env
}

// expand replaces $(Name) references with property values; undefined
// properties expand to the empty string.
func expand(s string, properties map[string]string) string {
	if !strings.Contains(s, "$(") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '(' {
			if end := strings.IndexByte(s[i+2:], ')'); end >= 0 {
				b.WriteString(properties[s[i+2:i+2+end]])
				i += end + 3
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

type logWriter struct {
	logger ports.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		w.logger.Warn(line)
	}
	return len(p), nil
}
