// Package notify reports bump outcomes to operators.
package notify

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/mseaborn/nacl-dev-tools/internal/config"
	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title     string
	Message   string
	Type      NotificationType
	Branch    string // Optional attempt branch
	ReviewURL string // Optional review URL
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to every notifier and returns all failures
func (m *MultiNotifier) Send(n Notification) error {
	var errs error
	for _, notifier := range m.notifiers {
		errs = multierr.Append(errs, notifier.Send(n))
	}
	return errs
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// FromConfig builds the notifiers enabled in cfg
func FromConfig(cfg config.NotificationsConfig) Notifier {
	var notifiers []Notifier
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.SlackWebhook))
	}
	if cfg.Desktop {
		notifiers = append(notifiers, NewDesktopNotifier(nil))
	}
	if len(notifiers) == 0 {
		return NoopNotifier{}
	}
	return NewMultiNotifier(notifiers...)
}

// ForRun describes the outcome of a bump run
func ForRun(run *domain.Run, reviewURL string, runErr error) Notification {
	n := Notification{
		Branch:    run.Branch,
		ReviewURL: reviewURL,
	}
	bump := fmt.Sprintf("%s: r%s -> r%s", run.Profile, run.OldValue, run.NewValue)
	if run.OldValue == "" || run.NewValue == "" {
		bump = run.Profile + " bump"
	}

	if runErr != nil {
		n.Type = NotifyError
		n.Title = "Bump failed: " + bump
		n.Message = runErr.Error()
		if run.Stage != "" {
			n.Message = fmt.Sprintf("after %s: %v", run.Stage, runErr)
		}
		return n
	}

	n.Type = NotifySuccess
	n.Title = "Bump " + string(run.Stage) + ": " + bump
	n.Message = "Branch " + run.Branch
	if reviewURL != "" {
		n.Message += "\n" + reviewURL
	}
	return n
}
