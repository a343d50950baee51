package vcs

import (
	"regexp"
	"strconv"
)

var (
	gitSvnIDRegex       = regexp.MustCompile(`(?m)^git-svn-id: \S*@(\d+)`)
	commitPositionRegex = regexp.MustCompile(`(?m)^Cr-Commit-Position: \S*@\{#(\d+)\}`)
)

// RevisionFromMessage extracts the revision number recorded in a commit
// message footer, either "git-svn-id: <url>@<n> <uuid>" or
// "Cr-Commit-Position: <ref>@{#<n>}". The last footer wins.
func RevisionFromMessage(message string) (int64, bool) {
	for _, re := range []*regexp.Regexp{commitPositionRegex, gitSvnIDRegex} {
		matches := re.FindAllStringSubmatch(message, -1)
		if len(matches) == 0 {
			continue
		}
		n, err := strconv.ParseInt(matches[len(matches)-1][1], 10, 64)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
