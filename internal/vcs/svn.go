package vcs

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

// SVN is a RevisionSource backed by the svn command-line client.
// URL is the tracked directory; RootURL is the repository root, used to
// find the newest revision anywhere in the repository.
type SVN struct {
	URL     string
	RootURL string
	runner  Runner
}

// NewSVN creates an SVN source
func NewSVN(url, rootURL string, runner Runner) *SVN {
	if runner == nil {
		runner = ExecRunner{}
	}
	if rootURL == "" {
		rootURL = url
	}
	return &SVN{URL: url, RootURL: rootURL, runner: runner}
}

type svnLog struct {
	Entries []svnLogEntry `xml:"logentry"`
}

type svnLogEntry struct {
	Revision int64  `xml:"revision,attr"`
	Author   string `xml:"author"`
	Date     string `xml:"date"`
	Msg      string `xml:"msg"`
}

func (e svnLogEntry) revision() (domain.Revision, error) {
	t, err := time.Parse(time.RFC3339Nano, e.Date)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("r%d: bad date %q: %w", e.Revision, e.Date, err)
	}
	return domain.Revision{
		Number:  e.Revision,
		Time:    t,
		Author:  e.Author,
		Message: e.Msg,
	}, nil
}

func (s *SVN) log(ctx context.Context, url, revRange string) ([]domain.Revision, error) {
	out, err := s.runner.Run(ctx, "", "svn", "log", "--xml", "-r", revRange, url)
	if err != nil {
		return nil, err
	}
	var parsed svnLog
	if err := xml.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing svn log: %w", err)
	}
	revs := make([]domain.Revision, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		rev, err := e.revision()
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

// Latest returns the repository's HEAD revision
func (s *SVN) Latest(ctx context.Context) (int64, error) {
	revs, err := s.log(ctx, s.RootURL, "HEAD")
	if err != nil {
		return 0, err
	}
	if len(revs) == 0 {
		return 0, fmt.Errorf("svn log of %s returned no HEAD entry", s.RootURL)
	}
	return revs[0].Number, nil
}

// Revision returns revision n if it touched URL
func (s *SVN) Revision(ctx context.Context, n int64) (domain.Revision, error) {
	revs, err := s.log(ctx, s.URL, fmt.Sprintf("%d", n))
	if err != nil {
		return domain.Revision{}, err
	}
	if len(revs) == 0 {
		return domain.Revision{}, fmt.Errorf("%w: r%d in %s", ErrRevisionNotFound, n, s.URL)
	}
	return revs[0], nil
}

// CommitTime returns the commit time of revision n, looked up at RootURL
func (s *SVN) CommitTime(ctx context.Context, n int64) (time.Time, error) {
	revs, err := s.log(ctx, s.RootURL, fmt.Sprintf("%d", n))
	if err != nil {
		return time.Time{}, err
	}
	if len(revs) == 0 {
		return time.Time{}, fmt.Errorf("%w: r%d in %s", ErrRevisionNotFound, n, s.RootURL)
	}
	return revs[0].Time, nil
}

// Log returns the revisions in (from, to] that touched URL
func (s *SVN) Log(ctx context.Context, from, to int64) ([]domain.Revision, error) {
	if to <= from {
		return nil, nil
	}
	return s.log(ctx, s.URL, fmt.Sprintf("%d:%d", from+1, to))
}

// FileAt returns path (relative to URL) at revision n
func (s *SVN) FileAt(ctx context.Context, path string, n int64) (string, error) {
	out, err := s.runner.Run(ctx, "", "svn", "cat", fmt.Sprintf("%s/%s@%d", s.URL, path, n))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Resolve parses a pinned revision number. No server round trip is made;
// the returned Revision carries only the number.
func (s *SVN) Resolve(ctx context.Context, pinned string) (domain.Revision, error) {
	n, err := domain.ParseRevision(pinned)
	if err != nil {
		return domain.Revision{}, err
	}
	return domain.Revision{Number: n}, nil
}
