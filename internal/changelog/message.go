package changelog

import "strings"

// Header holds the fixed parts of a review message
type Header struct {
	Title string
	Intro string
	Test  string
}

// Message renders a review message:
//
//	<title>
//
//	<intro>
//
//	<log lines>
//
//	BUG=...
//	TEST=<test>
//
// The intro and log are left out when the summary has no lines.
func Message(h Header, s Summary) string {
	var b strings.Builder
	b.WriteString(h.Title)
	b.WriteString("\n\n")

	if log := s.Log(); log != "" {
		if h.Intro != "" {
			b.WriteString(h.Intro)
			b.WriteString("\n\n")
		}
		b.WriteString(log)
		b.WriteString("\n")
	}

	for _, line := range s.BugLines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("TEST=")
	b.WriteString(h.Test)
	b.WriteString("\n")
	return b.String()
}
