package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"tools.zach/dev/clockcord/internal/attendance"
)

// SlackOptions selects how the Slack sink posts. WebhookURL wins when both
// it and Token are set.
type SlackOptions struct {
	WebhookURL string
	Token      string
	Channel    string

	// APIURL overrides the Web API base URL. Tests only.
	APIURL string
	// HTTPClient is used for webhook posts. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Slack mirrors notifications into a Slack channel.
type Slack struct {
	client     *slack.Client
	webhookURL string
	channel    string
	httpClient *http.Client
}

// NewSlack returns a Slack sink, or nil when opts configure nothing.
func NewSlack(opts SlackOptions) (*Slack, error) {
	switch {
	case opts.WebhookURL != "":
		hc := opts.HTTPClient
		if hc == nil {
			hc = http.DefaultClient
		}
		return &Slack{webhookURL: opts.WebhookURL, channel: opts.Channel, httpClient: hc}, nil
	case opts.Token != "":
		if opts.Channel == "" {
			return nil, errors.New("slack: token set without a channel")
		}
		var clientOpts []slack.Option
		if opts.APIURL != "" {
			clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
		}
		return &Slack{client: slack.New(opts.Token, clientOpts...), channel: opts.Channel}, nil
	default:
		return nil, nil
	}
}

// Notify posts n as a message with a colored attachment summarizing the
// session.
func (s *Slack) Notify(ctx context.Context, n attendance.Notification) error {
	text := slackText(n)
	att := slackAttachment(n.Status)

	if s.webhookURL != "" {
		msg := &slack.WebhookMessage{
			Channel:     s.channel,
			Text:        text,
			Attachments: []slack.Attachment{att},
		}
		if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
			return fmt.Errorf("failed to post Slack webhook: %w", err)
		}
		return nil
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(att),
	)
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

// slackText swaps the Discord mention, which Slack cannot resolve, for the
// plain user id.
func slackText(n attendance.Notification) string {
	if n.UserID == "" {
		return n.Text
	}
	return strings.ReplaceAll(n.Text, "<@"+n.UserID+">", "`"+n.UserID+"`")
}

func slackAttachment(st attendance.Status) slack.Attachment {
	fields := []slack.AttachmentField{
		{Title: "Status", Value: st.State.String(), Short: true},
		{Title: "Total", Value: attendance.FormatDuration(st.Elapsed), Short: true},
	}
	if st.Reason != attendance.ReasonNone {
		fields = append(fields, slack.AttachmentField{Title: "Reason", Value: st.Reason.String(), Short: true})
	}
	if !st.StartedAt.IsZero() {
		fields = append(fields, slack.AttachmentField{Title: "Start", Value: st.StartedAt.Format("15:04:05"), Short: true})
	}
	return slack.Attachment{
		Color:  fmt.Sprintf("#%06X", st.State.Color()),
		Fields: fields,
		Footer: st.SessionID,
	}
}
