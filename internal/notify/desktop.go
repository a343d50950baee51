package notify

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/mseaborn/nacl-dev-tools/internal/vcs"
)

// DesktopNotifier pops up a notification on the machine running the bump
type DesktopNotifier struct {
	goos   string
	runner vcs.Runner
}

// NewDesktopNotifier returns a notifier for the current OS. A nil runner
// runs the notification tool directly.
func NewDesktopNotifier(runner vcs.Runner) *DesktopNotifier {
	if runner == nil {
		runner = vcs.ExecRunner{}
	}
	return &DesktopNotifier{goos: runtime.GOOS, runner: runner}
}

// Send is a no-op on systems without a known notification tool
func (d *DesktopNotifier) Send(n Notification) error {
	name, args, ok := desktopCommand(d.goos, n)
	if !ok {
		return nil
	}
	_, err := d.runner.Run(context.Background(), "", name, args...)
	return err
}

func desktopCommand(goos string, n Notification) (string, []string, bool) {
	body := n.Message
	if n.ReviewURL != "" && !strings.Contains(body, n.ReviewURL) {
		body += "\n" + n.ReviewURL
	}

	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(body), appleScriptString(n.Title))
		if n.Branch != "" {
			script += " subtitle " + appleScriptString(n.Branch)
		}
		return "osascript", []string{"-e", script}, true
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name=nacl-deps", "--urgency=" + urgency(n.Type), n.Title, body}, true
	}
	return "", nil, false
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// urgency maps a notification type to a notify-send urgency level
func urgency(t NotificationType) string {
	switch t {
	case NotifyError:
		return "critical"
	case NotifyWarning:
		return "normal"
	}
	return "low"
}
