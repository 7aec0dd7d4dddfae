package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/remedyops/remedy/domain/entity"
)

// WebhookPayload is the body monitoring tools post to the incident webhook.
type WebhookPayload struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Service     string         `json:"service"`
	ErrorType   string         `json:"error_type"`
	Metadata    map[string]any `json:"metadata"`
	StackTrace  string         `json:"stack_trace"`
}

// CreateFromWebhook persists a new incident for a signed monitoring webhook
// and queues it for processing.
func (p *Processor) CreateFromWebhook(ctx context.Context, payload WebhookPayload) (*entity.Incident, error) {
	title := payload.Title
	if title == "" {
		title = "Unknown Incident"
	}
	service := payload.Service
	if service == "" {
		service = "unknown"
	}
	errorType := payload.ErrorType
	if errorType == "" {
		errorType = "unknown"
	}

	incident := &entity.Incident{
		ID:          uuid.NewString(),
		Title:       title,
		Description: payload.Description,
		Severity:    entity.ParseSeverity(payload.Severity),
		Status:      entity.StatusDetected,
		Source:      "webhook",
		ServiceName: service,
		ErrorType:   errorType,
		Metadata:    payload.Metadata,
		StackTrace:  payload.StackTrace,
		DetectedAt:  time.Now().UTC(),
	}

	return incident, p.admit(ctx, incident)
}

// CreateFromLogs derives an incident from a log entry that looks like an
// error and queues it for processing.
func (p *Processor) CreateFromLogs(ctx context.Context, payload map[string]any) (*entity.Incident, error) {
	service := stringField(payload, "service", "unknown")
	serviceTitle := service
	if serviceTitle == "unknown" {
		serviceTitle = "Unknown Service"
	}

	incident := &entity.Incident{
		ID:          uuid.NewString(),
		Title:       fmt.Sprintf("Error in %s", serviceTitle),
		Description: stringField(payload, "message", ""),
		Severity:    entity.SeverityMedium,
		Status:      entity.StatusDetected,
		Source:      "logs",
		ServiceName: service,
		ErrorType:   "log_error",
		Metadata:    payload,
		DetectedAt:  time.Now().UTC(),
	}

	return incident, p.admit(ctx, incident)
}

// CreateFromMetrics derives an incident from a metric threshold breach and
// queues it for processing.
func (p *Processor) CreateFromMetrics(ctx context.Context, payload map[string]any) (*entity.Incident, error) {
	incident := &entity.Incident{
		ID:    uuid.NewString(),
		Title: fmt.Sprintf("Threshold breach: %v", payload["metric_name"]),
		Description: fmt.Sprintf("Value %v exceeded threshold %v",
			payload["value"], payload["threshold"]),
		Severity:    entity.SeverityHigh,
		Status:      entity.StatusDetected,
		Source:      "metrics",
		ServiceName: stringField(payload, "service", "unknown"),
		ErrorType:   "threshold_breach",
		Metadata:    payload,
		DetectedAt:  time.Now().UTC(),
	}

	return incident, p.admit(ctx, incident)
}

// admit persists a fresh incident, announces it on the bus and hands it to
// the worker pool. Bus publish is best-effort: observers missing the
// announcement is acceptable, a lost incident is not.
func (p *Processor) admit(ctx context.Context, incident *entity.Incident) error {
	if err := p.repo.SaveIncident(ctx, incident); err != nil {
		return fmt.Errorf("failed to persist incident: %w", err)
	}

	if err := p.bus.PublishIncident(ctx, incident.ID); err != nil {
		slog.Warn("failed to announce incident",
			slog.String("incident_id", incident.ID), slog.Any("error", err))
	}

	return p.Submit(incident.ID)
}

func stringField(payload map[string]any, key, fallback string) string {
	if value, ok := payload[key].(string); ok && value != "" {
		return value
	}
	return fallback
}
