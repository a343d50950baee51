// Package attempts names bump branches and recovers which revisions have
// already been attempted from existing branch names.
package attempts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NoAttempt is returned by LastAttempted when no branch matches. It is a
// valid revision number, so age and delta arithmetic still work.
const NoAttempt int64 = 1

// BranchName returns the branch used for a bump to rev
func BranchName(prefix string, rev int64) string {
	return fmt.Sprintf("%s-r%d", prefix, rev)
}

// Parse extracts the revision from a branch name of the form <prefix>-r<digits>
func Parse(prefix, token string) (int64, bool) {
	token = strings.TrimSpace(token)
	rest, ok := strings.CutPrefix(token, prefix+"-r")
	if !ok || rest == "" {
		return 0, false
	}
	if !digits.MatchString(rest) {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var digits = regexp.MustCompile(`^\d+$`)

// Revisions returns the revisions of every matching branch, in input order.
// Tokens that do not match are ignored.
func Revisions(prefix string, tokens []string) []int64 {
	var revs []int64
	for _, tok := range tokens {
		if n, ok := Parse(prefix, tok); ok {
			revs = append(revs, n)
		}
	}
	return revs
}

// LastAttempted returns the highest attempted revision, or NoAttempt
func LastAttempted(prefix string, tokens []string) int64 {
	last := NoAttempt
	for _, n := range Revisions(prefix, tokens) {
		if n > last {
			last = n
		}
	}
	return last
}
