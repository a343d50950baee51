package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

// ErrRevisionNotFound is returned when a revision number has no commit in
// the queried location (for example an SVN revision that only touched a
// branch).
var ErrRevisionNotFound = errors.New("revision not found")

// RevisionSource answers queries about the upstream project
type RevisionSource interface {
	// Latest returns the newest revision number in the repository
	Latest(ctx context.Context) (int64, error)
	// Revision returns the commit for revision n
	Revision(ctx context.Context, n int64) (domain.Revision, error)
	// CommitTime returns when revision n was committed anywhere in the
	// repository, including revisions that did not touch the tracked path
	CommitTime(ctx context.Context, n int64) (time.Time, error)
	// Log returns the commits in the range (from, to], in any order
	Log(ctx context.Context, from, to int64) ([]domain.Revision, error)
	// FileAt returns the contents of path at revision n
	FileAt(ctx context.Context, path string, n int64) (string, error)
	// Resolve maps a pinned manifest value to its revision
	Resolve(ctx context.Context, pinned string) (domain.Revision, error)
}

// NewestSettled walks down from the latest revision and returns the first
// one committed at least quiet before now, so that a revision whose
// artifacts may still be propagating is never picked.
func NewestSettled(ctx context.Context, src RevisionSource, now time.Time, quiet time.Duration, log *zap.Logger) (domain.Revision, error) {
	n, err := src.Latest(ctx)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("getting latest revision: %w", err)
	}

	for ; n > 0; n-- {
		rev, err := src.Revision(ctx, n)
		if errors.Is(err, ErrRevisionNotFound) {
			continue
		}
		if err != nil {
			return domain.Revision{}, err
		}
		log.Debug("candidate revision",
			zap.Int64("rev", rev.Number),
			zap.String("committed", humanize.RelTime(rev.Time, now, "ago", "from now")))
		if rev.Age(now) >= quiet {
			return rev, nil
		}
	}
	return domain.Revision{}, fmt.Errorf("%w: nothing committed more than %s ago", ErrRevisionNotFound, quiet)
}
