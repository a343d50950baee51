package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/mseaborn/nacl-dev-tools/internal/bump"
	"github.com/mseaborn/nacl-dev-tools/internal/domain"
	"github.com/mseaborn/nacl-dev-tools/internal/scheduler"
)

var (
	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	buildStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	vetoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	idleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	pinnedStyle = lipgloss.NewStyle().
		Bold(true)
)

func verdict(provisional, build bool) string {
	switch {
	case build:
		return buildStyle.Render("build")
	case provisional:
		return vetoStyle.Render("gated")
	default:
		return idleStyle.Render("wait")
	}
}

func printDecision(w io.Writer, d scheduler.Decision, ev domain.Evaluation) {
	fmt.Fprintf(w, "%s  last attempted r%d, newest r%d\n", headerStyle.Render(ev.Profile), ev.LastAttempted, ev.Newest)
	for _, r := range d.Reasons {
		fmt.Fprintf(w, "  %s\n", r)
	}
	if d.Build {
		fmt.Fprintf(w, "Verdict: %s r%d\n", verdict(d.Provisional, d.Build), d.Target)
		return
	}
	fmt.Fprintf(w, "Verdict: %s\n", verdict(d.Provisional, d.Build))
}

func printResult(w io.Writer, res *bump.Result) {
	fmt.Fprintf(w, "%s  %s -> %s\n", headerStyle.Render(res.Branch), res.Old, res.New)
	fmt.Fprintln(w)
	fmt.Fprint(w, res.Message)
	fmt.Fprintln(w)

	steps := []struct {
		name string
		done bool
	}{
		{"committed", res.Committed},
		{"uploaded", res.Uploaded},
		{"tried", res.Tried},
	}
	for _, s := range steps {
		mark := idleStyle.Render("no")
		if s.done {
		mark = buildStyle.Render("yes")
		}
		fmt.Fprintf(w, "%-10s %s\n", s.name+":", mark)
	}
	if res.ReviewURL != "" {
		fmt.Fprintf(w, "review:    %s\n", res.ReviewURL)
	}
}
