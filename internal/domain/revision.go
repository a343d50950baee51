package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var revisionRegex = regexp.MustCompile(`^r?(\d+)$`)

// Revision is one upstream commit as reported by a revision source.
// Hash is only set for sources backed by git.
type Revision struct {
	Number  int64
	Hash    string
	Time    time.Time
	Author  string
	Message string
}

// ParseRevision parses "1234" or "r1234" into a revision number
func ParseRevision(s string) (int64, error) {
	matches := revisionRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, fmt.Errorf("invalid revision format: %q (expected r#### or ####)", s)
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid revision %q: %w", s, err)
	}
	return n, nil
}

// String returns the canonical r#### form
func (r Revision) String() string {
	return fmt.Sprintf("r%d", r.Number)
}

// Summary returns the first line of the commit message
func (r Revision) Summary() string {
	line, _, _ := strings.Cut(r.Message, "\n")
	return strings.TrimRight(line, "\r")
}

// ShortAuthor returns the part of the author identity before '@'
func (r Revision) ShortAuthor() string {
	short, _, _ := strings.Cut(r.Author, "@")
	return short
}

// Age returns how long ago the revision was committed
func (r Revision) Age(now time.Time) time.Duration {
	return now.Sub(r.Time)
}
