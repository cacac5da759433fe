// Package chat sends notifications through the workspace chat bot.
package chat

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"formroom/internal/notification"
	dErrors "formroom/pkg/domain-errors"
)

// Config holds the chat-bot credentials and target channel.
type Config struct {
	BotToken string // xoxb- token for API calls
	Channel  string // channel id or name receiving notifications
}

// client is the slice of the Slack API the adapter calls, extracted so tests
// can run without a workspace.
type client interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Adapter posts rendered notifications to a chat channel. It implements
// notification.Sender.
type Adapter struct {
	cfg    Config
	client client
}

// NewAdapter creates a chat adapter from bot credentials.
func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: slack.New(cfg.BotToken),
	}
}

// Send posts the notification as one message with the title as an
// attachment header. Recipients are mentioned in the body so the channel
// post reaches them even though chat delivery is channel-scoped.
func (a *Adapter) Send(ctx context.Context, delivery notification.Delivery) error {
	attachment := slack.Attachment{
		Title: delivery.Title,
		Text:  delivery.Body,
		Color: colorFor(delivery.Priority),
	}
	_, _, err := a.client.PostMessageContext(ctx, a.cfg.Channel,
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return fmt.Errorf("%w: %v",
			dErrors.New(dErrors.CodeDeliveryFailed, "chat post failed"), err)
	}
	return nil
}

func colorFor(priority string) string {
	switch priority {
	case "critical":
		return "danger"
	case "warning":
		return "warning"
	default:
		return "good"
	}
}
