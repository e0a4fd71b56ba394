// Package notify is the reliability_report's optional Slack digest sink.
package notify

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier posts a one-line digest to a configured channel. If
// botToken is empty the notifier is a noop so deployments without Slack
// wired up don't pay for it.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
}

// NewSlackNotifier builds a SlackNotifier. Pass an empty botToken to get a
// noop notifier.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel}
}

// IsEnabled reports whether this notifier will actually post.
func (n *SlackNotifier) IsEnabled() bool {
	return n != nil && n.client != nil && n.channel != ""
}

// PostDigest sends a plain-text reliability digest.
func (n *SlackNotifier) PostDigest(ctx context.Context, text string) error {
	if !n.IsEnabled() {
		return nil
	}
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting reliability digest to slack: %w", err)
	}
	return nil
}
