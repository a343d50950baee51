package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/attempts"
	"github.com/mseaborn/nacl-dev-tools/internal/domain"
	"github.com/mseaborn/nacl-dev-tools/internal/vcs"
)

// BranchLister lists the downstream branch names
type BranchLister interface {
	Branches(ctx context.Context) ([]string, error)
}

// ManifestHistory finds the downstream revision that last changed a field
type ManifestHistory interface {
	LastFieldChange(ctx context.Context, ref, manifest, field string) (int64, error)
}

// StabilityOracle returns the downstream's last known good revision
type StabilityOracle interface {
	Fetch(ctx context.Context) (int64, error)
}

// Evaluator gathers a State from the collaborators and decides
type Evaluator struct {
	Profile  string
	Branches BranchLister
	Source   vcs.RevisionSource
	History  ManifestHistory
	// Oracle may be nil, which disables the stability gate
	Oracle StabilityOracle

	BranchPrefix string
	BaseRef      string
	Manifest     string
	Field        string
	QuietPeriod  time.Duration
	Thresholds   Thresholds

	Log *zap.Logger
}

// Evaluate computes the decision as of now. Every collaborator failure is
// returned; nothing is retried.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) (Decision, domain.Evaluation, error) {
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	var s State

	branches, err := e.Branches.Branches(ctx)
	if err != nil {
		return Decision{}, domain.Evaluation{}, fmt.Errorf("listing branches: %w", err)
	}
	s.LastAttempted = attempts.LastAttempted(e.BranchPrefix, branches)
	log.Info("last attempted revision", zap.Int64("rev", s.LastAttempted))

	s.Age, err = e.attemptAge(ctx, s.LastAttempted, now)
	if err != nil {
		return Decision{}, domain.Evaluation{}, err
	}

	newest, err := vcs.NewestSettled(ctx, e.Source, now, e.QuietPeriod, log)
	if err != nil {
		return Decision{}, domain.Evaluation{}, fmt.Errorf("finding newest revision: %w", err)
	}
	s.Newest = newest.Number
	log.Info("newest settled revision",
		zap.Int64("rev", s.Newest),
		zap.Int64("since_last_attempt", s.Newest-s.LastAttempted))

	if e.Oracle == nil {
		s.Ungated = true
	} else {
		s.LastManifestChange, err = e.History.LastFieldChange(ctx, e.BaseRef, e.Manifest, e.Field)
		if err != nil {
			return Decision{}, domain.Evaluation{}, fmt.Errorf("finding last %s change: %w", e.Field, err)
		}
		s.StableMarker, err = e.Oracle.Fetch(ctx)
		if err != nil {
			return Decision{}, domain.Evaluation{}, err
		}
		log.Info("stability gate",
			zap.Int64("last_manifest_change", s.LastManifestChange),
			zap.Int64("stable_marker", s.StableMarker))
	}

	d := Decide(s, e.Thresholds)
	ev := domain.Evaluation{
		Profile:            e.Profile,
		EvaluatedAt:        now,
		LastAttempted:      s.LastAttempted,
		Newest:             s.Newest,
		Age:                s.Age,
		StableMarker:       s.StableMarker,
		LastManifestChange: s.LastManifestChange,
		Provisional:        d.Provisional,
		Build:              d.Build,
		Reasons:            d.Reasons,
	}
	return d, ev, nil
}

// attemptAge is the time since rev was committed anywhere upstream, so an
// attempt at a revision outside the tracked path still has a real age
func (e *Evaluator) attemptAge(ctx context.Context, rev int64, now time.Time) (time.Duration, error) {
	committed, err := e.Source.CommitTime(ctx, rev)
	if errors.Is(err, vcs.ErrRevisionNotFound) {
		return UnboundedAge, nil
	}
	if err != nil {
		return 0, fmt.Errorf("looking up r%d: %w", rev, err)
	}
	return now.Sub(committed), nil
}
