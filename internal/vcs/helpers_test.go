package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner answers commands from a table keyed by "name arg1 arg2 ..."
type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	out, ok := f.outputs[key]
	if !ok {
		return nil, fmt.Errorf("%s: unexpected command", key)
	}
	return []byte(out), nil
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func runGit(t *testing.T, dir string, env []string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %s", args, out)
	}
	return strings.TrimSpace(string(out))
}

func setupGitRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()

	runGit(t, dir, nil, "init", "-q")
	runGit(t, dir, nil, "config", "user.email", "test@test.com")
	runGit(t, dir, nil, "config", "user.name", "Test")
	runGit(t, dir, nil, "config", "commit.gpgsign", "false")
	runGit(t, dir, nil, "checkout", "-q", "-b", "trunk")
	return dir
}

// commitFile writes content to name and commits it at the given time,
// returning the new commit hash
func commitFile(t *testing.T, dir, name, content, message string, at time.Time) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	date := fmt.Sprintf("%d +0000", at.Unix())
	env := []string{"GIT_AUTHOR_DATE=" + date, "GIT_COMMITTER_DATE=" + date}
	runGit(t, dir, env, "add", name)
	runGit(t, dir, env, "commit", "-q", "-m", message)
	return runGit(t, dir, nil, "rev-parse", "HEAD")
}

func svnFooter(n int) string {
	return fmt.Sprintf("git-svn-id: svn://svn.chromium.org/chrome/trunk/src@%d 0039d316-1c4b-4281-b951-d872f2087c98", n)
}

func positionFooter(n int) string {
	return fmt.Sprintf("Cr-Commit-Position: refs/heads/master@{#%d}", n)
}
