package changelog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

var botOpts = Options{
	Style:     StyleAuthor,
	BotAuthor: "chrome-bot",
	BotMarker: "Automated commit",
	CC:        []string{"native-client-reviews@googlegroups.com"},
}

func sampleRevisions() []domain.Revision {
	// Deliberately newest first, the way svn log and git log report them.
	return []domain.Revision{
		{Number: 142, Author: "bradnelson@google.com", Message: "Add ARM sandbox test\n\nBUG=http://code.google.com/p/nativeclient/issues/detail?id=2781\nTEST=run_arm_test"},
		{Number: 130, Author: "chrome-bot@google.com", Message: "Automated commit"},
		{Number: 121, Author: "mseaborn@chromium.org", Message: "Fix TLS layout on x86-64\nBUG= 2740\n"},
		{Number: 104, Author: "bradnelson@google.com", Message: "Tidy up build script\nBUG=none"},
	}
}

func TestAggregate_OrdersOldestFirst(t *testing.T) {
	s := Aggregate(sampleRevisions(), botOpts)

	want := []string{
		"r104: (bradnelson) Tidy up build script",
		"r121: (mseaborn) Fix TLS layout on x86-64",
		"r142: (bradnelson) Add ARM sandbox test",
	}
	assert.Equal(t, want, s.Lines)
}

func TestAggregate_AnyInputOrder(t *testing.T) {
	revs := sampleRevisions()
	shuffled := []domain.Revision{revs[2], revs[0], revs[3], revs[1]}

	assert.Equal(t, Aggregate(revs, botOpts), Aggregate(shuffled, botOpts))
}

func TestAggregate_FiltersAutomatedCommits(t *testing.T) {
	s := Aggregate(sampleRevisions(), botOpts)

	for _, line := range s.Lines {
		assert.NotContains(t, line, "Automated commit")
	}
	assert.NotContains(t, s.CC, "chrome-bot@google.com")
}

func TestAggregate_BotFilterNeedsBothConditions(t *testing.T) {
	revs := []domain.Revision{
		// Bot author, but a human-looking summary: kept.
		{Number: 1, Author: "chrome-bot@google.com", Message: "Revert r99"},
		// Marker summary, but a human author: kept.
		{Number: 2, Author: "someone@chromium.org", Message: "Automated commit"},
		// Both: dropped.
		{Number: 3, Author: "chrome-bot", Message: "Automated commit\n\nextra detail"},
	}
	s := Aggregate(revs, botOpts)

	assert.Equal(t, []string{
		"r1: (chrome-bot) Revert r99",
		"r2: (someone) Automated commit",
	}, s.Lines)
}

func TestAggregate_CCSortedAndUnique(t *testing.T) {
	s := Aggregate(sampleRevisions(), botOpts)

	assert.Equal(t, []string{
		"bradnelson@google.com",
		"mseaborn@chromium.org",
		"native-client-reviews@googlegroups.com",
	}, s.CC)
}

func TestAggregate_CCDeduplicatesFixedIdentities(t *testing.T) {
	opts := botOpts
	opts.CC = []string{"mseaborn@chromium.org", "", "mseaborn@chromium.org"}
	revs := []domain.Revision{{Number: 5, Author: "mseaborn@chromium.org", Message: "x"}}

	s := Aggregate(revs, opts)
	assert.Equal(t, []string{"mseaborn@chromium.org"}, s.CC)
}

func TestAggregate_PlainStyle(t *testing.T) {
	opts := botOpts
	opts.Style = StylePlain
	s := Aggregate(sampleRevisions(), opts)

	assert.Equal(t, "r104: Tidy up build script\nr121: Fix TLS layout on x86-64\nr142: Add ARM sandbox test\n", s.Log())
}

func TestAggregate_Bugs(t *testing.T) {
	s := Aggregate(sampleRevisions(), botOpts)

	assert.Equal(t, []string{"2740", "http://code.google.com/p/nativeclient/issues/detail?id=2781"}, s.Bugs)
	assert.Equal(t, []string{
		"BUG=2740",
		"BUG=http://code.google.com/p/nativeclient/issues/detail?id=2781",
	}, s.BugLines())
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, botOpts)

	assert.Empty(t, s.Lines)
	assert.Equal(t, "", s.Log())
	assert.Equal(t, []string{"BUG=none"}, s.BugLines())
	assert.Equal(t, []string{"native-client-reviews@googlegroups.com"}, s.CC)
}

func TestMessage(t *testing.T) {
	s := Aggregate(sampleRevisions(), botOpts)
	msg := Message(Header{
		Title: "NaCl: Update revision in DEPS, r100 -> r142",
		Intro: "This pulls in the following Native Client changes:",
		Test:  "trybots",
	}, s)

	want := `NaCl: Update revision in DEPS, r100 -> r142

This pulls in the following Native Client changes:

r104: (bradnelson) Tidy up build script
r121: (mseaborn) Fix TLS layout on x86-64
r142: (bradnelson) Add ARM sandbox test

BUG=2740
BUG=http://code.google.com/p/nativeclient/issues/detail?id=2781
TEST=trybots
`
	assert.Equal(t, want, msg)
}

func TestMessage_NoChanges(t *testing.T) {
	msg := Message(Header{Title: "Title", Intro: "Intro:", Test: "none"}, Summary{})
	assert.Equal(t, "Title\n\nBUG=none\nTEST=none\n", msg)
}
