// Package notify posts terminal project states to Slack. Notification is
// best-effort: a failed post is logged and never surfaces into workflow
// state.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/blogsmith/blogsmith/internal/workflow"
)

// PostAPI abstracts the Slack API client for testing.
type PostAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts COMPLETED/FAILED transitions to a channel.
type SlackNotifier struct {
	api     PostAPI
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier posting to channel.
func NewSlackNotifier(botToken, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     slack.New(botToken),
		channel: channel,
		logger:  logger.With().Str("component", "notify.slack").Logger(),
	}
}

// NewSlackNotifierWithAPI creates a notifier over an existing API client.
func NewSlackNotifierWithAPI(api PostAPI, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "notify.slack").Logger(),
	}
}

// ProjectTerminal posts a message for a terminal project transition.
// Non-terminal statuses are ignored.
func (n *SlackNotifier) ProjectTerminal(ctx context.Context, projectID string, status workflow.ProjectStatus, message string) {
	if !status.Terminal() {
		return
	}

	blocks := buildTerminalBlocks(projectID, status, message)
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		n.logger.Warn().Err(err).
			Str("project_id", projectID).
			Str("status", string(status)).
			Msg("failed to post project notification")
		return
	}
	n.logger.Info().Str("project_id", projectID).Str("status", string(status)).Msg("project notification posted")
}

func buildTerminalBlocks(projectID string, status workflow.ProjectStatus, message string) []slack.Block {
	icon := "✅"
	headline := "Project completed"
	if status == workflow.StatusFailed {
		icon = "❌"
		headline = "Project failed"
	}

	text := fmt.Sprintf("%s *%s*: `%s`", icon, headline, projectID)
	if message != "" {
		text += "\n" + truncate(message, 500)
	}
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", text, false, false),
			nil, nil,
		),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
