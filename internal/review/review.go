// Package review dispatches a committed bump for code review and starts
// verification ("try") runs, by shelling out to the review tool.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mseaborn/nacl-dev-tools/internal/vcs"
)

var issueURLRegex = regexp.MustCompile(`\((https?://[^)\s]+)\)`)

// Commands are the review tool invocations, each a program followed by
// its leading arguments
type Commands struct {
	Upload []string
	Try    []string
	Issue  []string
}

// Dispatcher runs the configured review commands in the checkout
type Dispatcher struct {
	dir    string
	cmds   Commands
	runner vcs.Runner
}

// NewDispatcher creates a Dispatcher. A nil runner uses os/exec with
// EDITOR=true so the upload tool never opens an editor.
func NewDispatcher(dir string, cmds Commands, runner vcs.Runner) *Dispatcher {
	if runner == nil {
		runner = vcs.ExecRunner{Env: []string{"EDITOR=true"}}
	}
	return &Dispatcher{dir: dir, cmds: cmds, runner: runner}
}

func (d *Dispatcher) run(ctx context.Context, command []string, extra ...string) (string, error) {
	if len(command) == 0 {
		return "", fmt.Errorf("no command configured")
	}
	args := append(append([]string{}, command[1:]...), extra...)
	out, err := d.runner.Run(ctx, d.dir, command[0], args...)
	return string(out), err
}

// Upload sends the current branch for review with message, copying cc
func (d *Dispatcher) Upload(ctx context.Context, message string, cc []string) error {
	extra := []string{"-m", message}
	if len(cc) > 0 {
		extra = append(extra, "--cc", strings.Join(cc, ","))
	}
	if _, err := d.run(ctx, d.cmds.Upload, extra...); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// Try starts verification runs on bots. With no bots the tool's defaults
// are used.
func (d *Dispatcher) Try(ctx context.Context, bots []string) error {
	var extra []string
	for _, bot := range bots {
		extra = append(extra, "-b", bot)
	}
	if _, err := d.run(ctx, d.cmds.Try, extra...); err != nil {
		return fmt.Errorf("try: %w", err)
	}
	return nil
}

// IssueURL returns the review URL of the current branch, or "" if the
// branch has not been uploaded
func (d *Dispatcher) IssueURL(ctx context.Context) (string, error) {
	out, err := d.run(ctx, d.cmds.Issue)
	if err != nil {
		return "", err
	}
	return extractIssueURL(out), nil
}

func extractIssueURL(out string) string {
	// Output format: Issue number: 10458005 (https://codereview.chromium.org/10458005)
	m := issueURLRegex.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1]
}
