package vcs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

// logFormat separates fields with NUL and records with RS so that
// multi-line messages survive parsing.
const logFormat = "--format=%H%x00%ct%x00%ae%x00%B%x1e"

// GitSource is a RevisionSource over a local clone of the upstream
// project. Revision numbers come from the commit footers.
type GitSource struct {
	dir    string
	ref    string
	fetch  bool
	runner Runner
}

// NewGitSource creates a source reading ref in the clone at dir. When
// fetch is set, Latest runs "git fetch" first.
func NewGitSource(dir, ref string, fetch bool, runner Runner) *GitSource {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &GitSource{dir: dir, ref: ref, fetch: fetch, runner: runner}
}

func (s *GitSource) git(ctx context.Context, args ...string) (string, error) {
	out, err := s.runner.Run(ctx, s.dir, "git", args...)
	return string(out), err
}

func (s *GitSource) logRecords(ctx context.Context, args ...string) ([]domain.Revision, error) {
	out, err := s.git(ctx, append([]string{"log", logFormat}, args...)...)
	if err != nil {
		return nil, err
	}
	var revs []domain.Revision
	for _, record := range strings.Split(out, "\x1e") {
		record = strings.TrimLeft(record, "\n")
		if record == "" {
			continue
		}
		rev, ok, err := parseLogRecord(record)
		if err != nil {
			return nil, err
		}
		if ok {
			revs = append(revs, rev)
		}
	}
	return revs, nil
}

// parseLogRecord reports ok=false for commits without a revision footer
func parseLogRecord(record string) (domain.Revision, bool, error) {
	parts := strings.SplitN(record, "\x00", 4)
	if len(parts) != 4 {
		return domain.Revision{}, false, fmt.Errorf("malformed git log record %q", record)
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.Revision{}, false, fmt.Errorf("commit %s: bad time %q", shortHash(parts[0]), parts[1])
	}
	n, ok := RevisionFromMessage(parts[3])
	if !ok {
		return domain.Revision{}, false, nil
	}
	return domain.Revision{
		Number:  n,
		Hash:    parts[0],
		Time:    time.Unix(unix, 0).UTC(),
		Author:  parts[2],
		Message: strings.TrimRight(parts[3], "\n"),
	}, true, nil
}

// Latest returns the revision number of the newest commit on ref that
// carries a revision footer
func (s *GitSource) Latest(ctx context.Context) (int64, error) {
	if s.fetch {
		if _, err := s.git(ctx, "fetch"); err != nil {
			return 0, err
		}
	}
	revs, err := s.logRecords(ctx, "-1", "-E", "--grep=^(git-svn-id|Cr-Commit-Position): ", s.ref)
	if err != nil {
		return 0, err
	}
	if len(revs) == 0 {
		return 0, fmt.Errorf("no commit on %s has a revision footer", s.ref)
	}
	return revs[0].Number, nil
}

// Revision finds the commit on ref whose footer records revision n
func (s *GitSource) Revision(ctx context.Context, n int64) (domain.Revision, error) {
	pattern := fmt.Sprintf(`^(git-svn-id: .*@%d |Cr-Commit-Position: .*@[{]#%d[}])`, n, n)
	revs, err := s.logRecords(ctx, "-E", "--grep="+pattern, s.ref)
	if err != nil {
		return domain.Revision{}, err
	}
	for _, rev := range revs {
		if rev.Number == n {
			return rev, nil
		}
	}
	return domain.Revision{}, fmt.Errorf("%w: r%d on %s", ErrRevisionNotFound, n, s.ref)
}

// CommitTime returns the commit time of revision n. Every commit on ref
// belongs to the tracked repository, so this is the footer lookup.
func (s *GitSource) CommitTime(ctx context.Context, n int64) (time.Time, error) {
	rev, err := s.Revision(ctx, n)
	if err != nil {
		return time.Time{}, err
	}
	return rev.Time, nil
}

// Log returns the commits on ref in (from, to]
func (s *GitSource) Log(ctx context.Context, from, to int64) ([]domain.Revision, error) {
	if to <= from {
		return nil, nil
	}
	tip, err := s.Revision(ctx, to)
	if err != nil {
		return nil, err
	}
	revRange := tip.Hash
	base, err := s.Revision(ctx, from)
	switch {
	case err == nil:
		revRange = base.Hash + ".." + tip.Hash
	case !errors.Is(err, ErrRevisionNotFound):
		return nil, err
	}
	revs, err := s.logRecords(ctx, revRange)
	if err != nil {
		return nil, err
	}
	kept := revs[:0]
	for _, rev := range revs {
		if rev.Number > from {
			kept = append(kept, rev)
		}
	}
	return kept, nil
}

// FileAt returns path at revision n
func (s *GitSource) FileAt(ctx context.Context, path string, n int64) (string, error) {
	rev, err := s.Revision(ctx, n)
	if err != nil {
		return "", err
	}
	return s.git(ctx, "cat-file", "blob", rev.Hash+":"+path)
}

// Resolve maps a pinned value, either a revision number or a commit hash,
// to its revision
func (s *GitSource) Resolve(ctx context.Context, pinned string) (domain.Revision, error) {
	if len(pinned) < 40 {
		if n, err := domain.ParseRevision(pinned); err == nil {
			return s.Revision(ctx, n)
		}
	}
	revs, err := s.logRecords(ctx, "-1", pinned)
	if err != nil {
		return domain.Revision{}, err
	}
	if len(revs) == 0 {
		return domain.Revision{}, fmt.Errorf("%w: %s", ErrRevisionNotFound, pinned)
	}
	return revs[0], nil
}
