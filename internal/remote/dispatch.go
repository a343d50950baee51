package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/vcs"
)

// SyncOnly as the build arguments syncs hosts without building
const SyncOnly = "sync"

// ErrNoTargets is returned when Dispatch is given no target names
var ErrNoTargets = errors.New("no targets given")

// Commander runs commands from the source tree
type Commander interface {
	// Output runs a command and returns its stdout
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Run runs a command with its output passed through
	Run(ctx context.Context, name string, args ...string) error
}

// ExecCommander runs commands in Dir, streaming to Stdout and Stderr
type ExecCommander struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func (c ExecCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return vcs.ExecRunner{}.Run(ctx, c.Dir, name, args...)
}

func (c ExecCommander) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Result is one completed target
type Result struct {
	Target string
	Took   time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("%s: OK, took %.1fs", r.Target, r.Took.Seconds())
}

// Dispatcher syncs and builds targets one after another
type Dispatcher struct {
	config Config
	cmd    Commander
	fs     afero.Fs
	log    *zap.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher. fs holds the temporary file list
// handed to rsync, so it must be the real filesystem outside tests.
func NewDispatcher(cfg Config, cmd Commander, fs afero.Fs, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{config: cfg, cmd: cmd, fs: fs, log: log, now: time.Now}
}

// Dispatch builds args on each target in order. Each host location is
// synced at most once per call. With args == SyncOnly nothing is built.
// On failure the results of the targets that completed are returned with
// the error.
func (d *Dispatcher) Dispatch(ctx context.Context, args string, targets []string) ([]Result, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	// Resolve everything up front so a typo fails before any sync.
	type plan struct {
		name   string
		target Target
		host   Host
		local  bool
	}
	plans := make([]plan, 0, len(targets))
	for _, name := range targets {
		t, h, local, err := d.config.Lookup(name)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan{name, t, h, local})
	}

	synced := make(map[string]bool)
	var results []Result
	for _, p := range plans {
		if !p.local {
			key := p.host.Address + ":" + p.host.Dir
			if !synced[key] {
				if err := d.sync(ctx, p.host); err != nil {
					return results, err
				}
				synced[key] = true
			}
		}

		if args == SyncOnly {
			continue
		}

		start := d.now()
		command := joinNonEmpty(d.config.Command, p.target.Opts, args)
		d.log.Info("running target", zap.String("target", p.name), zap.String("command", command))

		var err error
		if p.local {
			err = d.cmd.Run(ctx, "sh", "-c", command)
		} else {
			remote := fmt.Sprintf("cd %s && %s", p.host.Dir, joinNonEmpty(p.host.Wrapper, command))
			err = d.cmd.Run(ctx, "ssh", "-t", p.host.Address, remote)
		}
		if err != nil {
			return results, fmt.Errorf("target %s: %w", p.name, err)
		}
		results = append(results, Result{Target: p.name, Took: d.now().Sub(start)})
	}
	return results, nil
}

// sync copies the tracked files to the host. Files deleted locally are
// left behind on the host.
func (d *Dispatcher) sync(ctx context.Context, h Host) error {
	d.log.Info("syncing", zap.String("host", h.Address), zap.String("dir", h.Dir))

	files, err := d.cmd.Output(ctx, "git", "ls-files")
	if err != nil {
		return err
	}
	list, err := afero.TempFile(d.fs, "", "nacl-try-filelist-")
	if err != nil {
		return err
	}
	defer d.fs.Remove(list.Name())
	if _, err := list.Write(files); err != nil {
		list.Close()
		return err
	}
	if err := list.Close(); err != nil {
		return err
	}

	return d.cmd.Run(ctx, "rsync", "-avz", "--files-from="+list.Name(), ".", h.Address+":"+h.Dir)
}

// Summary renders results one per line
func Summary(results []Result) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
