package repository

import (
	"context"
	"fmt"

	"github.com/remedyops/remedy/domain/entity"
	"github.com/remedyops/remedy/presentation/blocks"
	"github.com/slack-go/slack"
)

// SlackNotifier posts incident updates to a Slack incoming webhook.
// Notification is fire-and-forget from the pipeline's point of view: errors
// are returned for logging but never affect incident state.
type SlackNotifier struct {
	webhookURL string
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

func (n *SlackNotifier) SendIncidentUpdate(ctx context.Context, incident *entity.Incident) error {
	if n.webhookURL == "" {
		return nil
	}

	message := &slack.WebhookMessage{
		Attachments: []slack.Attachment{blocks.IncidentUpdate(incident)},
	}

	if err := slack.PostWebhookContext(ctx, n.webhookURL, message); err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	return nil
}
