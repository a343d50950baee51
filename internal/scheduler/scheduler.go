// Package scheduler decides when a new bump attempt should be started.
package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// UnboundedAge stands for the age of an attempt whose upstream commit is
// unknown, such as the "nothing attempted yet" sentinel
const UnboundedAge = time.Duration(math.MaxInt64)

// Thresholds configure the trigger rules
type Thresholds struct {
	// Revisions is the number of new upstream revisions that triggers a bump
	Revisions int64
	// Age is how old the last attempted revision may get before a bump
	Age time.Duration
}

// State is everything the decision looks at
type State struct {
	LastAttempted int64
	Newest        int64
	// Age is the time since LastAttempted was committed upstream
	Age                time.Duration
	StableMarker       int64
	LastManifestChange int64
	// Ungated skips the stability gate (no oracle configured)
	Ungated bool
}

// Decision is the outcome of Decide
type Decision struct {
	Provisional bool
	Build       bool
	// Target is the revision to bump to when Build is set
	Target  int64
	Reasons []string
}

// Gate reports whether the downstream's stable marker has caught up with
// the last change to the pinned field. It can only veto a build.
func Gate(stableMarker, lastManifestChange int64) bool {
	return stableMarker >= lastManifestChange
}

// Decide applies the trigger rules: either threshold sets a provisional
// build and a closed gate retracts it
func Decide(s State, th Thresholds) Decision {
	d := Decision{Target: s.Newest}

	if s.Age > th.Age {
		d.Provisional = true
		d.Reasons = append(d.Reasons, "time threshold passed: "+describeAge(s))
	}
	if diff := s.Newest - s.LastAttempted; diff > th.Revisions {
		d.Provisional = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("revision count threshold passed: %d revisions since r%d", diff, s.LastAttempted))
	}
	if !d.Provisional {
		d.Reasons = append(d.Reasons, "no threshold passed")
	}

	d.Build = d.Provisional
	if s.Ungated {
		return d
	}
	if Gate(s.StableMarker, s.LastManifestChange) {
		d.Reasons = append(d.Reasons, fmt.Sprintf("stable marker r%d includes manifest change r%d", s.StableMarker, s.LastManifestChange))
	} else {
		d.Build = false
		d.Reasons = append(d.Reasons, fmt.Sprintf("stable marker r%d has not caught up with manifest change r%d", s.StableMarker, s.LastManifestChange))
	}
	return d
}

func describeAge(s State) string {
	if s.Age == UnboundedAge {
		return fmt.Sprintf("no upstream commit for r%d", s.LastAttempted)
	}
	var epoch time.Time
	return fmt.Sprintf("r%d was committed %s", s.LastAttempted, humanize.RelTime(epoch, epoch.Add(s.Age), "ago", "from now"))
}
