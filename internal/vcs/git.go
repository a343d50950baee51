// Package vcs wraps the version-control tools the bump flow drives: the
// downstream git checkout that holds the manifest, and the upstream
// repository (svn or git) whose revisions are pinned.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mseaborn/nacl-dev-tools/internal/depsfile"
)

// Git operates on the downstream working copy
type Git struct {
	dir    string
	runner Runner
}

// NewGit creates a Git client for the checkout at dir
func NewGit(dir string, runner Runner) *Git {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Git{dir: dir, runner: runner}
}

// Dir returns the checkout directory
func (g *Git) Dir() string {
	return g.dir
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	out, err := g.runner.Run(ctx, g.dir, "git", args...)
	return string(out), err
}

// Fetch updates the remote-tracking refs
func (g *Git) Fetch(ctx context.Context) error {
	_, err := g.git(ctx, "fetch")
	return err
}

// CheckoutNewBranch creates branch at base and switches to it. An existing
// branch of the same name is reset to base.
func (g *Git) CheckoutNewBranch(ctx context.Context, branch, base string) error {
	_, err := g.git(ctx, "checkout", "-B", branch, base)
	return err
}

// DirtyFiles lists files with uncommitted changes relative to HEAD
func (g *Git) DirtyFiles(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "diff", "--name-only", "HEAD")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CommitAll commits every tracked modification with message
func (g *Git) CommitAll(ctx context.Context, message string) error {
	_, err := g.git(ctx, "commit", "-a", "-m", message)
	return err
}

// Branches returns the short names of all local branches
func (g *Git) Branches(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// ShowFile returns the contents of path at commit
func (g *Git) ShowFile(ctx context.Context, commit, path string) (string, error) {
	return g.git(ctx, "cat-file", "blob", commit+":"+path)
}

// CommitMessage returns the full message of commit
func (g *Git) CommitMessage(ctx context.Context, commit string) (string, error) {
	return g.git(ctx, "log", "-1", "--format=%B", commit)
}

// FieldChange is a downstream commit that changed a pinned field
type FieldChange struct {
	Commit string
	// Revision is the downstream revision number from the commit footer
	Revision int64
	Value    string
}

// FieldChanges walks the history of manifest reachable from ref, newest
// first, and returns up to limit commits whose value of field differs from
// the previous version of the file. A limit of zero means no limit. The
// walk stops at the first version that lacks the field.
func (g *Git) FieldChanges(ctx context.Context, ref, manifest, field string, limit int) ([]FieldChange, error) {
	out, err := g.git(ctx, "rev-list", ref, "--", manifest)
	if err != nil {
		return nil, err
	}
	commits := splitLines(out)

	var changes []FieldChange
	if len(commits) == 0 {
		return changes, nil
	}

	value, found, err := g.fieldAt(ctx, commits[0], manifest, field)
	if err != nil {
		return nil, err
	}
	if !found {
		return changes, nil
	}
	for i := 0; i+1 < len(commits); i++ {
		prev, prevFound, err := g.fieldAt(ctx, commits[i+1], manifest, field)
		if err != nil {
			return nil, err
		}
		if !prevFound || prev != value {
			rev, err := g.commitRevision(ctx, commits[i])
			if err != nil {
				return nil, err
			}
			changes = append(changes, FieldChange{Commit: commits[i], Revision: rev, Value: value})
			if limit > 0 && len(changes) >= limit {
				break
			}
		}
		if !prevFound {
			break
		}
		value = prev
	}
	return changes, nil
}

// LastFieldChange returns the downstream revision number of the newest
// commit on ref that changed field in manifest
func (g *Git) LastFieldChange(ctx context.Context, ref, manifest, field string) (int64, error) {
	changes, err := g.FieldChanges(ctx, ref, manifest, field, 1)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, fmt.Errorf("no commit on %s changes %s in %s", ref, field, manifest)
	}
	return changes[0].Revision, nil
}

func (g *Git) fieldAt(ctx context.Context, commit, manifest, field string) (string, bool, error) {
	text, err := g.ShowFile(ctx, commit, manifest)
	if err != nil {
		return "", false, err
	}
	value, err := depsfile.Get(text, field)
	if errors.Is(err, depsfile.ErrFieldNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s at %s: %w", manifest, shortHash(commit), err)
	}
	return value, true, nil
}

func (g *Git) commitRevision(ctx context.Context, commit string) (int64, error) {
	msg, err := g.CommitMessage(ctx, commit)
	if err != nil {
		return 0, err
	}
	rev, ok := RevisionFromMessage(msg)
	if !ok {
		return 0, fmt.Errorf("commit %s has no revision footer", shortHash(commit))
	}
	return rev, nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func shortHash(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
