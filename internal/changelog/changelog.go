// Package changelog turns a range of upstream revisions into the change
// summary and CC list used for a bump review.
package changelog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

// Style selects how each revision line is rendered
type Style string

const (
	// StyleAuthor renders "r<n>: (<short-author>) <summary>"
	StyleAuthor Style = "author"
	// StylePlain renders "r<n>: <summary>"
	StylePlain Style = "plain"
)

// Options controls filtering and rendering
type Options struct {
	Style Style
	// Revisions whose short author is BotAuthor and whose summary equals
	// BotMarker are dropped from both the log and the CC list.
	BotAuthor string
	BotMarker string
	// CC identities always added to the CC list
	CC []string
}

// Summary is the aggregated view of a revision range
type Summary struct {
	Lines []string
	CC    []string
	Bugs  []string
}

// Aggregate builds a Summary from revisions given in any order
func Aggregate(revs []domain.Revision, opts Options) Summary {
	ordered := make([]domain.Revision, len(revs))
	copy(ordered, revs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Number < ordered[j].Number
	})

	var s Summary
	authors := make(map[string]bool)
	bugs := make(map[string]bool)

	for _, rev := range ordered {
		if isAutomated(rev, opts) {
			continue
		}
		s.Lines = append(s.Lines, formatLine(rev, opts.Style))
		if rev.Author != "" {
			authors[rev.Author] = true
		}
		for _, bug := range extractBugs(rev.Message) {
			if !bugs[bug] {
				bugs[bug] = true
				s.Bugs = append(s.Bugs, bug)
			}
		}
	}

	for _, cc := range opts.CC {
		if cc != "" {
			authors[cc] = true
		}
	}
	for a := range authors {
		s.CC = append(s.CC, a)
	}
	sort.Strings(s.CC)

	return s
}

// Log returns the revision lines, one per line, with a trailing newline
func (s Summary) Log() string {
	if len(s.Lines) == 0 {
		return ""
	}
	return strings.Join(s.Lines, "\n") + "\n"
}

// BugLines returns the BUG= footer lines, defaulting to BUG=none
func (s Summary) BugLines() []string {
	if len(s.Bugs) == 0 {
		return []string{"BUG=none"}
	}
	lines := make([]string, len(s.Bugs))
	for i, b := range s.Bugs {
		lines[i] = "BUG=" + b
	}
	return lines
}

func isAutomated(rev domain.Revision, opts Options) bool {
	if opts.BotAuthor == "" {
		return false
	}
	return rev.ShortAuthor() == opts.BotAuthor && rev.Summary() == opts.BotMarker
}

func formatLine(rev domain.Revision, style Style) string {
	if style == StylePlain || rev.Author == "" {
		return fmt.Sprintf("%s: %s", rev, rev.Summary())
	}
	return fmt.Sprintf("%s: (%s) %s", rev, rev.ShortAuthor(), rev.Summary())
}

func extractBugs(message string) []string {
	var bugs []string
	for _, line := range strings.Split(message, "\n") {
		if !strings.HasPrefix(line, "BUG=") {
			continue
		}
		bug := strings.TrimSpace(line[len("BUG="):])
		if bug == "" || bug == "none" {
			continue
		}
		bugs = append(bugs, bug)
	}
	return bugs
}
