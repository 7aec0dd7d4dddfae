package repository

import (
	"context"

	"github.com/remedyops/remedy/domain/entity"
)

type IncidentRepository interface {
	FindIncidentByID(context.Context, string) (*entity.Incident, error)
	SaveIncident(context.Context, *entity.Incident) error
	// Incidents returns matches newest first; Limit caps the result after
	// ordering.
	Incidents(context.Context, IncidentFilter) ([]entity.Incident, error)
}

// IncidentFilter narrows Incidents; zero values match everything.
type IncidentFilter struct {
	Status   entity.Status
	Severity entity.Severity
	Service  string
	Limit    int
}

type ActionRepository interface {
	AddAction(context.Context, *entity.IncidentAction) error
	ActionsByIncident(context.Context, string) ([]entity.IncidentAction, error)
}

type KnowledgeRepository interface {
	AddKnowledgeEntry(context.Context, *entity.KnowledgeEntry) error
	KnowledgeEntries(context.Context) ([]entity.KnowledgeEntry, error)
}

type Repository interface {
	IncidentRepository
	ActionRepository
	KnowledgeRepository
}

type RepositoryFacade struct {
	IncidentRepository
	ActionRepository
	KnowledgeRepository
}

func NewRepository(incidents IncidentRepository, actions ActionRepository, knowledge KnowledgeRepository) Repository {
	return RepositoryFacade{
		IncidentRepository:  incidents,
		ActionRepository:    actions,
		KnowledgeRepository: knowledge,
	}
}

// Analyzer is the AI analysis collaborator. Implementations absorb their own
// transient failures; AnalyzeIncident never returns an error to the caller.
type Analyzer interface {
	AnalyzeIncident(ctx context.Context, incident *entity.Incident) *entity.AnalysisResult
	SuggestCodeFix(ctx context.Context, incident *entity.Incident, codeSnippet, filePath string) *entity.FixResult
	CheckSimilarIncidents(ctx context.Context, errorPattern string, knowledgeBase []entity.KnowledgeEntry) (*entity.SimilarMatch, error)
}

// WorkflowRunner triggers a remediation workflow and waits for a terminal
// state. All failures, including transport errors and poll timeouts, are
// reported through the result, never as an error.
type WorkflowRunner interface {
	TriggerWorkflow(ctx context.Context, workflowID string, inputs map[string]any) *entity.ExecutionResult
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EventBus is the pub/sub channel between ingestion, the pipeline and the
// broadcast hub.
type EventBus interface {
	PublishIncident(ctx context.Context, incidentID string) error
	PublishIncidentUpdate(ctx context.Context, incidentID string, status entity.Status, data map[string]any) error
	SubscribeNewIncidents(ctx context.Context) (<-chan []byte, error)
	SubscribeIncidentUpdates(ctx context.Context) (<-chan []byte, error)
}

type Notifier interface {
	SendIncidentUpdate(ctx context.Context, incident *entity.Incident) error
}

// ReportExporter publishes a write-up of a resolved incident to an external
// documentation system.
type ReportExporter interface {
	ExportIncidentReport(ctx context.Context, title, body string) (string, error)
}
