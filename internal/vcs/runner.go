package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner runs an external command in dir and returns its stdout
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. Env entries are appended to the
// current environment.
type ExecRunner struct {
	Env []string
}

// Run executes the command and folds stderr into the returned error
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %s: %w", describe(name, args), strings.TrimSpace(stderr.String()), err)
	}
	return out, nil
}

// describe names a command by its program and verb, e.g. "git commit"
func describe(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + args[0]
}
