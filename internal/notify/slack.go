package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts bump outcomes to a Slack incoming webhook
type SlackNotifier struct {
	webhook string
	client  *http.Client
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Fallback  string       `json:"fallback"`
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier posts to webhook; an empty webhook disables it
func NewSlackNotifier(webhook string) *SlackNotifier {
	return &SlackNotifier{
		webhook: webhook,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func slackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	}
	return ""
}

// newSlackPayload renders n as one attachment titled by the branch and
// linked to the review
func newSlackPayload(n Notification) slackPayload {
	att := slackAttachment{
		Fallback:  n.Title,
		Color:     slackColor(n.Type),
		Title:     n.Branch,
		TitleLink: n.ReviewURL,
		Text:      n.Message,
		Footer:    "nacl-deps",
	}
	if n.ReviewURL != "" {
		att.Fields = append(att.Fields, slackField{Title: "Review", Value: n.ReviewURL, Short: true})
	}
	return slackPayload{Text: n.Title, Attachments: []slackAttachment{att}}
}

func (s *SlackNotifier) Send(n Notification) error {
	if s.webhook == "" {
		return nil
	}
	body, err := json.Marshal(newSlackPayload(n))
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.webhook, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
