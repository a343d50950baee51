// Package bump rewrites the pinned upstream revision in the downstream
// manifest and carries the change through commit, review upload and try.
package bump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/attempts"
	"github.com/mseaborn/nacl-dev-tools/internal/changelog"
	"github.com/mseaborn/nacl-dev-tools/internal/depsfile"
	"github.com/mseaborn/nacl-dev-tools/internal/domain"
	"github.com/mseaborn/nacl-dev-tools/internal/notify"
	"github.com/mseaborn/nacl-dev-tools/internal/vcs"
)

var (
	// ErrDirtyWorkingCopy is returned when the checkout has uncommitted changes
	ErrDirtyWorkingCopy = errors.New("dirty working copy")
	// ErrNoNewChanges is returned when the manifest already pins the target
	ErrNoNewChanges = errors.New("no new changes")
)

// Checkout is the downstream working copy
type Checkout interface {
	DirtyFiles(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context) error
	CheckoutNewBranch(ctx context.Context, branch, base string) error
	CommitAll(ctx context.Context, message string) error
}

// Reviewer dispatches the committed change
type Reviewer interface {
	Upload(ctx context.Context, message string, cc []string) error
	Try(ctx context.Context, bots []string) error
}

// issueLookup is implemented by reviewers that can report the review URL
type issueLookup interface {
	IssueURL(ctx context.Context) (string, error)
}

// Recorder persists run progress
type Recorder interface {
	StartRun(run *domain.Run) error
	UpdateRun(run *domain.Run) error
	FinishRun(run *domain.Run, runErr error) error
}

// Options select the target and which steps run
type Options struct {
	// Revision is the target; zero picks the newest settled revision
	Revision int64
	// NoCommit stops after writing the manifest
	NoCommit bool
	// NoUpload stops after committing; it implies NoTry
	NoUpload bool
	NoTry    bool
}

// Result describes what a run did
type Result struct {
	RunID       string
	Branch      string
	Old         string
	New         string
	OldRevision int64
	NewRevision int64
	Message     string
	CC          []string
	// Manifest is the rewritten manifest text
	Manifest  string
	Committed bool
	Uploaded  bool
	Tried     bool
	ReviewURL string
}

// Executor performs bumps for one profile
type Executor struct {
	Profile  string
	Checkout Checkout
	Source   vcs.RevisionSource
	Reviewer Reviewer
	// FS is rooted at the checkout
	FS afero.Fs

	ManifestPath string
	Field        string
	// PinHash writes the commit hash instead of the revision number
	PinHash bool
	// Companions maps downstream field -> field in UpstreamManifest
	Companions       map[string]string
	UpstreamManifest string

	BranchPrefix string
	BaseRef      string
	QuietPeriod  time.Duration

	Component string
	Test      string
	Changelog changelog.Options
	Bots      []string

	// History and Notifier are optional
	History  Recorder
	Notifier notify.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

// Run executes the bump. Steps already done are left in place when a
// later step fails.
func (e *Executor) Run(ctx context.Context, opts Options) (*Result, error) {
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.Now == nil {
		e.Now = time.Now
	}

	run := &domain.Run{Profile: e.Profile}
	if e.History != nil {
		if err := e.History.StartRun(run); err != nil {
			return nil, err
		}
	}

	result, err := e.execute(ctx, opts, run)
	if result != nil {
		result.RunID = run.ID
	}

	if e.History != nil {
		if herr := e.History.FinishRun(run, err); herr != nil {
			e.Log.Warn("recording run failed", zap.String("run", run.ID), zap.Error(herr))
		}
	}
	if e.Notifier != nil && !opts.NoCommit && !errors.Is(err, ErrNoNewChanges) {
		reviewURL := ""
		if result != nil {
			reviewURL = result.ReviewURL
		}
		if nerr := e.Notifier.Send(notify.ForRun(run, reviewURL, err)); nerr != nil {
			e.Log.Warn("notification failed", zap.Error(nerr))
		}
	}
	return result, err
}

func (e *Executor) execute(ctx context.Context, opts Options, run *domain.Run) (*Result, error) {
	dirty, err := e.Checkout.DirtyFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(dirty) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDirtyWorkingCopy, strings.Join(dirty, ", "))
	}

	target, err := e.resolveTarget(ctx, opts.Revision)
	if err != nil {
		return nil, err
	}
	res := &Result{NewRevision: target.Number}

	if err := e.Checkout.Fetch(ctx); err != nil {
		return nil, err
	}
	res.Branch = attempts.BranchName(e.BranchPrefix, target.Number)
	run.Branch = res.Branch
	if err := e.Checkout.CheckoutNewBranch(ctx, res.Branch, e.BaseRef); err != nil {
		return nil, err
	}
	e.Log.Info("created branch", zap.String("branch", res.Branch), zap.String("base", e.BaseRef))

	text, err := afero.ReadFile(e.FS, e.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	manifest := string(text)

	res.Old, err = depsfile.Get(manifest, e.Field)
	if err != nil {
		return nil, err
	}
	res.New = e.pinValue(target)
	run.OldValue, run.NewValue = res.Old, res.New
	if res.Old == res.New {
		return nil, fmt.Errorf("%w: %s is already %s", ErrNoNewChanges, e.Field, res.New)
	}

	old, err := e.Source.Resolve(ctx, res.Old)
	if err != nil {
		return nil, fmt.Errorf("resolving pinned %s: %w", res.Old, err)
	}
	res.OldRevision = old.Number

	if manifest, err = depsfile.Set(manifest, e.Field, res.New); err != nil {
		return nil, err
	}

	revs, err := e.Source.Log(ctx, old.Number, target.Number)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	summary := changelog.Aggregate(revs, e.Changelog)
	res.CC = summary.CC
	res.Message = changelog.Message(changelog.Header{
		Title: fmt.Sprintf("%s: Update revision in %s, r%d -> r%d", e.Component, e.ManifestPath, old.Number, target.Number),
		Intro: fmt.Sprintf("This pulls in the following %s changes:", e.Component),
		Test:  e.Test,
	}, summary)
	e.Log.Info("aggregated change log",
		zap.Int("revisions", len(revs)),
		zap.Int("listed", len(summary.Lines)),
		zap.Int("cc", len(summary.CC)))

	if manifest, err = e.copyCompanions(ctx, manifest, target.Number); err != nil {
		return nil, err
	}

	if err := e.writeManifest(manifest); err != nil {
		return nil, err
	}
	res.Manifest = manifest
	run.Stage = domain.StagePrepared
	e.update(run)

	if opts.NoCommit {
		return res, nil
	}
	if err := e.Checkout.CommitAll(ctx, res.Message); err != nil {
		return res, err
	}
	res.Committed = true
	run.Stage = domain.StageCommitted
	e.update(run)

	if opts.NoUpload {
		return res, nil
	}
	if err := e.Reviewer.Upload(ctx, res.Message, res.CC); err != nil {
		return res, err
	}
	res.Uploaded = true
	run.Stage = domain.StageUploaded
	e.update(run)
	if lookup, ok := e.Reviewer.(issueLookup); ok {
		if url, err := lookup.IssueURL(ctx); err == nil {
			res.ReviewURL = url
		}
	}

	if opts.NoTry {
		return res, nil
	}
	if err := e.Reviewer.Try(ctx, e.Bots); err != nil {
		return res, err
	}
	res.Tried = true
	run.Stage = domain.StageTried
	e.update(run)
	return res, nil
}

func (e *Executor) resolveTarget(ctx context.Context, n int64) (domain.Revision, error) {
	if n == 0 {
		return vcs.NewestSettled(ctx, e.Source, e.Now(), e.QuietPeriod, e.Log)
	}
	rev, err := e.Source.Revision(ctx, n)
	// A requested revision that did not touch the tracked path is still a
	// valid number to pin.
	if errors.Is(err, vcs.ErrRevisionNotFound) && !e.PinHash {
		return domain.Revision{Number: n}, nil
	}
	return rev, err
}

func (e *Executor) pinValue(rev domain.Revision) string {
	if e.PinHash {
		return rev.Hash
	}
	return strconv.FormatInt(rev.Number, 10)
}

// copyCompanions copies fields by value from the upstream manifest at rev
func (e *Executor) copyCompanions(ctx context.Context, manifest string, rev int64) (string, error) {
	if len(e.Companions) == 0 {
		return manifest, nil
	}
	upstream, err := e.Source.FileAt(ctx, e.UpstreamManifest, rev)
	if err != nil {
		return "", fmt.Errorf("reading upstream %s: %w", e.UpstreamManifest, err)
	}

	keys := make([]string, 0, len(e.Companions))
	for k := range e.Companions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, downstream := range keys {
		value, err := depsfile.Get(upstream, e.Companions[downstream])
		if err != nil {
			return "", fmt.Errorf("upstream %s: %w", e.UpstreamManifest, err)
		}
		if manifest, err = depsfile.Set(manifest, downstream, value); err != nil {
			return "", err
		}
		e.Log.Info("copied companion field", zap.String("field", downstream), zap.String("value", value))
	}
	return manifest, nil
}

func (e *Executor) writeManifest(text string) error {
	mode := os.FileMode(0644)
	if info, err := e.FS.Stat(e.ManifestPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := afero.WriteFile(e.FS, e.ManifestPath, []byte(text), mode); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func (e *Executor) update(run *domain.Run) {
	if e.History == nil {
		return
	}
	if err := e.History.UpdateRun(run); err != nil {
		e.Log.Warn("recording run progress failed", zap.String("run", run.ID), zap.Error(err))
	}
}
