package blocks

import (
	"fmt"
	"strings"

	"github.com/remedyops/remedy/domain/entity"
	"github.com/slack-go/slack"
)

func severityColor(severity entity.Severity) string {
	switch severity {
	case entity.SeverityCritical:
		return "#FF0000"
	case entity.SeverityHigh:
		return "#FFA500"
	case entity.SeverityMedium:
		return "#FFFF00"
	case entity.SeverityLow:
		return "#00FF00"
	default:
		return "#808080"
	}
}

func statusEmoji(status entity.Status) string {
	switch status {
	case entity.StatusDetected:
		return "🔍"
	case entity.StatusAnalyzing:
		return "🤔"
	case entity.StatusResolving:
		return "⚙️"
	case entity.StatusResolved:
		return "✅"
	case entity.StatusFailed:
		return "❌"
	default:
		return "❓"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// IncidentUpdate builds the severity-colored attachment describing an
// incident's current state.
func IncidentUpdate(incident *entity.Incident) slack.Attachment {
	blockSet := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(
				"plain_text",
				fmt.Sprintf("%s Incident %s: %s", statusEmoji(incident.Status), incident.ID, incident.Title),
				false,
				false,
			),
		),
		slack.NewSectionBlock(
			nil,
			[]*slack.TextBlockObject{
				slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Service:*\n%s", incident.ServiceName), false, false),
				slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Severity:*\n%s", strings.ToUpper(string(incident.Severity))), false, false),
				slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Status:*\n%s", titleCase(string(incident.Status))), false, false),
				slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Error Type:*\n%s", incident.ErrorType), false, false),
			},
			nil,
		),
	}

	if incident.RootCause != "" {
		blockSet = append(blockSet, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Root Cause:*\n%s", incident.RootCause), false, false),
			nil,
			nil,
		))
	}

	if len(incident.ResolutionSteps) > 0 {
		var steps strings.Builder
		for _, step := range incident.ResolutionSteps {
			steps.WriteString("• ")
			steps.WriteString(step)
			steps.WriteString("\n")
		}
		blockSet = append(blockSet, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Resolution Steps:*\n%s", steps.String()), false, false),
			nil,
			nil,
		))
	}

	return slack.Attachment{
		Color:  severityColor(incident.Severity),
		Blocks: slack.Blocks{BlockSet: blockSet},
	}
}
