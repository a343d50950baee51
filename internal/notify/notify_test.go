package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/mseaborn/nacl-dev-tools/internal/config"
	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

func TestSlackPayload(t *testing.T) {
	p := newSlackPayload(Notification{
		Title:   "Bump failed: nacl: r8600 -> r8650",
		Message: "dirty working copy",
		Type:    NotifyError,
	})

	require.Len(t, p.Attachments, 1)
	att := p.Attachments[0]
	assert.Equal(t, "danger", att.Color)
	assert.Equal(t, "Bump failed: nacl: r8600 -> r8650", att.Fallback)
	assert.Empty(t, att.Title)
	assert.Empty(t, att.Fields)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "title_link")
}

func TestSlackNotifier_Send(t *testing.T) {
	var got slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:     "Bump tried: nacl: r8600 -> r8650",
		Message:   "Branch nacl-deps-r8650",
		Type:      NotifySuccess,
		Branch:    "nacl-deps-r8650",
		ReviewURL: "https://codereview.chromium.org/1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bump tried: nacl: r8600 -> r8650", got.Text)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "good", got.Attachments[0].Color)
	assert.Equal(t, "nacl-deps-r8650", got.Attachments[0].Title)
	assert.Equal(t, "https://codereview.chromium.org/1", got.Attachments[0].TitleLink)
	assert.Equal(t, "nacl-deps", got.Attachments[0].Footer)
	assert.Equal(t, []slackField{{Title: "Review", Value: "https://codereview.chromium.org/1", Short: true}}, got.Attachments[0].Fields)
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token\n"))
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Send(Notification{Title: "x"})
	assert.EqualError(t, err, "slack webhook returned 403 Forbidden: invalid_token")
}

func TestSlackNotifier_Disabled(t *testing.T) {
	assert.NoError(t, NewSlackNotifier("").Send(Notification{Title: "x"}))
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, ""},
	}

	for _, tt := range tests {
		got := slackColor(tt.typ)
		if got != tt.want {
			t.Errorf("slackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	require.NoError(t, multi.Send(Notification{Title: "Test"}))

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestMultiNotifier_CollectsAllErrors(t *testing.T) {
	var called []string
	err1 := errors.New("slack down")
	err2 := errors.New("no display")

	multi := NewMultiNotifier(
		&mockNotifier{name: "a", calls: &called, err: err1},
		&mockNotifier{name: "b", calls: &called},
		&mockNotifier{name: "c", calls: &called, err: err2},
	)
	err := multi.Send(Notification{Title: "Test"})

	assert.Equal(t, []string{"a", "b", "c"}, called)
	assert.Equal(t, []error{err1, err2}, multierr.Errors(err))
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, NoopNotifier{}, FromConfig(config.NotificationsConfig{}))

	n := FromConfig(config.NotificationsConfig{SlackWebhook: "http://example.invalid/hook", Desktop: true})
	multi, ok := n.(*MultiNotifier)
	require.True(t, ok)
	assert.Len(t, multi.notifiers, 2)
}

func TestForRun(t *testing.T) {
	run := &domain.Run{
		Profile:  "nacl",
		Branch:   "nacl-deps-r8650",
		OldValue: "8600",
		NewValue: "8650",
		Stage:    domain.StageTried,
	}

	n := ForRun(run, "https://codereview.chromium.org/1", nil)
	assert.Equal(t, NotifySuccess, n.Type)
	assert.Equal(t, "Bump tried: nacl: r8600 -> r8650", n.Title)
	assert.Equal(t, "Branch nacl-deps-r8650\nhttps://codereview.chromium.org/1", n.Message)

	run.Stage = domain.StageCommitted
	n = ForRun(run, "", errors.New("upload: exit status 1"))
	assert.Equal(t, NotifyError, n.Type)
	assert.Equal(t, "Bump failed: nacl: r8600 -> r8650", n.Title)
	assert.Equal(t, "after committed: upload: exit status 1", n.Message)

	n = ForRun(&domain.Run{Profile: "llvm"}, "", errors.New("dirty working copy"))
	assert.Equal(t, "Bump failed: llvm bump", n.Title)
	assert.Equal(t, "dirty working copy", n.Message)
}

func TestAppleScriptString(t *testing.T) {
	assert.Equal(t, `"say \"hi\" \\ bye"`, appleScriptString(`say "hi" \ bye`))
}

func TestDesktopCommand(t *testing.T) {
	n := Notification{
		Title:     "Bump uploaded: nacl: r8600 -> r8650",
		Message:   "Branch nacl-deps-r8650",
		Type:      NotifySuccess,
		Branch:    "nacl-deps-r8650",
		ReviewURL: "https://codereview.chromium.org/1",
	}

	name, args, ok := desktopCommand("linux", n)
	require.True(t, ok)
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, []string{
		"--app-name=nacl-deps",
		"--urgency=low",
		"Bump uploaded: nacl: r8600 -> r8650",
		"Branch nacl-deps-r8650\nhttps://codereview.chromium.org/1",
	}, args)

	name, args, ok = desktopCommand("darwin", n)
	require.True(t, ok)
	assert.Equal(t, "osascript", name)
	assert.Equal(t, []string{"-e", "display notification \"Branch nacl-deps-r8650\nhttps://codereview.chromium.org/1\" with title \"Bump uploaded: nacl: r8600 -> r8650\" subtitle \"nacl-deps-r8650\""}, args)

	_, _, ok = desktopCommand("plan9", n)
	assert.False(t, ok)
}

func TestDesktopNotifier_Send(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDesktopNotifier(runner)
	d.goos = "linux"

	require.NoError(t, d.Send(Notification{Title: "Bump failed: llvm bump", Message: "boom", Type: NotifyError}))
	assert.Equal(t, []string{"notify-send --app-name=nacl-deps --urgency=critical Bump failed: llvm bump boom"}, runner.calls)
}

type recordingRunner struct {
	calls []string
}

func (r *recordingRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	return nil, nil
}

type mockNotifier struct {
	name  string
	calls *[]string
	err   error
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}
