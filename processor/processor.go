// Package processor owns the incident state machine. One pipeline run takes
// an incident from DETECTED through ANALYZING and RESOLVING to a terminal
// RESOLVED or FAILED, coordinating the AI analyzer, the workflow engine, the
// knowledge base and the notifier. Runs for different incidents are
// independent jobs on a bounded worker pool.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remedyops/remedy/domain/entity"
	"github.com/remedyops/remedy/domain/repository"
	"github.com/remedyops/remedy/presentation/report"
)

type Options struct {
	Workers    int
	QueueSize  int
	WorkflowID string
}

type Processor struct {
	repo       repository.Repository
	analyzer   repository.Analyzer
	workflows  repository.WorkflowRunner
	embedder   repository.Embedder
	bus        repository.EventBus
	notifier   repository.Notifier
	reporter   repository.ReportExporter
	workflowID string
	workers    int

	jobs chan string
	wg   sync.WaitGroup
}

func New(
	opts Options,
	repo repository.Repository,
	analyzer repository.Analyzer,
	workflows repository.WorkflowRunner,
	embedder repository.Embedder,
	bus repository.EventBus,
	notifier repository.Notifier,
	reporter repository.ReportExporter,
) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.WorkflowID == "" {
		opts.WorkflowID = "incident-resolution"
	}

	return &Processor{
		repo:       repo,
		analyzer:   analyzer,
		workflows:  workflows,
		embedder:   embedder,
		bus:        bus,
		notifier:   notifier,
		reporter:   reporter,
		workflowID: opts.WorkflowID,
		workers:    opts.Workers,
		jobs:       make(chan string, opts.QueueSize),
	}
}

// Start launches the worker pool. Workers run until Shutdown closes the
// queue, and Shutdown drains every accepted job: an incident admitted by
// Submit is always run, never silently dropped. Cancelling ctx fails the
// in-flight external calls but does not abandon queued work.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for incidentID := range p.jobs {
				p.Run(ctx, incidentID)
			}
		}()
	}
}

// Submit queues an incident for processing. The caller's contract is
// "accepted, processing decoupled": the pipeline's outcome is observable
// only via the persisted status and the broadcast channel.
func (p *Processor) Submit(incidentID string) error {
	select {
	case p.jobs <- incidentID:
		return nil
	default:
		return fmt.Errorf("pipeline queue is full")
	}
}

// Shutdown stops accepting jobs and blocks until the queue is drained.
func (p *Processor) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
}

// Run executes the full pipeline for one incident. It never returns an error
// and never panics out: every failure ends with the incident persisted as
// FAILED and the hosting worker intact.
func (p *Processor) Run(ctx context.Context, incidentID string) {
	incident, err := p.repo.FindIncidentByID(ctx, incidentID)
	if err != nil {
		slog.Error("failed to load incident", slog.String("incident_id", incidentID), slog.Any("error", err))
		return
	}
	if incident == nil {
		// Ingestion already acknowledged the caller; nothing to do.
		slog.Debug("incident not found", slog.String("incident_id", incidentID))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, incident, fmt.Errorf("panic in pipeline: %v", r))
		}
	}()

	if err := p.process(ctx, incident); err != nil {
		p.fail(ctx, incident, err)
	}
}

func (p *Processor) process(ctx context.Context, incident *entity.Incident) error {
	slog.Info("analyzing incident", slog.String("incident_id", incident.ID))
	incident.Status = entity.StatusAnalyzing
	if err := p.repo.SaveIncident(ctx, incident); err != nil {
		return fmt.Errorf("failed to persist analyzing state: %w", err)
	}
	p.publishUpdate(ctx, incident, nil)

	p.checkKnowledgeBase(ctx, incident)

	analysis := p.analyzer.AnalyzeIncident(ctx, incident)

	if err := p.repo.AddAction(ctx, &entity.IncidentAction{
		ID:          uuid.NewString(),
		IncidentID:  incident.ID,
		ActionType:  "analysis",
		Description: "AI-powered root cause analysis",
		Result:      analysis.AsMap(),
		Success:     entity.ActionSuccess,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record analysis action: %w", err)
	}

	incident.RootCause = analysis.RootCause
	incident.ResolutionSteps = analysis.ResolutionSteps
	if err := p.repo.SaveIncident(ctx, incident); err != nil {
		return fmt.Errorf("failed to persist analysis result: %w", err)
	}

	slog.Info("triggering resolution workflow", slog.String("incident_id", incident.ID))
	incident.Status = entity.StatusResolving
	if err := p.repo.SaveIncident(ctx, incident); err != nil {
		return fmt.Errorf("failed to persist resolving state: %w", err)
	}
	p.publishUpdate(ctx, incident, map[string]any{"root_cause": incident.RootCause})

	result := p.workflows.TriggerWorkflow(ctx, p.workflowID, map[string]any{
		"incident_id":      incident.ID,
		"service_name":     incident.ServiceName,
		"resolution_steps": incident.ResolutionSteps,
		"severity":         incident.Severity,
	})

	if err := p.repo.AddAction(ctx, &entity.IncidentAction{
		ID:          uuid.NewString(),
		IncidentID:  incident.ID,
		ActionType:  "resolution",
		Description: "Automated resolution workflow",
		Result:      executionResultMap(result),
		Success:     executionSuccessFlag(result),
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to record resolution action: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("resolution workflow failed: %s", result.Err)
	}

	now := time.Now().UTC()
	incident.Status = entity.StatusResolved
	incident.ResolvedAt = &now

	if err := p.addToKnowledgeBase(ctx, incident); err != nil {
		return err
	}

	if err := p.repo.SaveIncident(ctx, incident); err != nil {
		return fmt.Errorf("failed to persist resolved state: %w", err)
	}
	p.publishUpdate(ctx, incident, map[string]any{
		"execution_id": result.ExecutionID,
		"duration":     result.Duration,
	})
	p.notify(ctx, incident)
	p.exportReport(ctx, incident, analysis)

	slog.Info("incident resolved", slog.String("incident_id", incident.ID))
	return nil
}

// fail forces the terminal FAILED state. It is the single funnel for every
// failure flavor: explicit workflow failure, collaborator errors and panics.
func (p *Processor) fail(ctx context.Context, incident *entity.Incident, cause error) {
	slog.Error("incident pipeline failed",
		slog.String("incident_id", incident.ID),
		slog.Any("error", cause))

	incident.Status = entity.StatusFailed
	incident.ResolvedAt = nil
	if err := p.repo.SaveIncident(ctx, incident); err != nil {
		slog.Error("failed to persist failed state",
			slog.String("incident_id", incident.ID), slog.Any("error", err))
	}
	p.publishUpdate(ctx, incident, map[string]any{"error": cause.Error()})
	p.notify(ctx, incident)
}

// checkKnowledgeBase looks for a past incident whose solution may apply.
// Advisory only: a match is recorded as an action, failures are logged and
// the pipeline continues either way.
func (p *Processor) checkKnowledgeBase(ctx context.Context, incident *entity.Incident) {
	entries, err := p.repo.KnowledgeEntries(ctx)
	if err != nil {
		slog.Warn("failed to load knowledge base", slog.Any("error", err))
		return
	}
	if len(entries) == 0 {
		return
	}

	match, err := p.analyzer.CheckSimilarIncidents(ctx, incident.ErrorPattern(), entries)
	if err != nil {
		slog.Warn("similarity check failed", slog.String("incident_id", incident.ID), slog.Any("error", err))
		return
	}
	if match == nil {
		return
	}

	if err := p.repo.AddAction(ctx, &entity.IncidentAction{
		ID:          uuid.NewString(),
		IncidentID:  incident.ID,
		ActionType:  "knowledge_match",
		Description: "Similar past incident found in knowledge base",
		Result: map[string]any{
			"matched_incident_id": match.Entry.IncidentID,
			"solution":            match.Entry.Solution,
			"confidence":          match.Confidence,
			"reasoning":           match.Reasoning,
		},
		Success:   entity.ActionSuccess,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		slog.Warn("failed to record knowledge match", slog.Any("error", err))
	}
}

func (p *Processor) addToKnowledgeBase(ctx context.Context, incident *entity.Incident) error {
	errorPattern := incident.ErrorPattern()
	embedding, err := p.embedder.Embed(ctx, errorPattern)
	if err != nil {
		return fmt.Errorf("failed to embed error pattern: %w", err)
	}

	if err := p.repo.AddKnowledgeEntry(ctx, &entity.KnowledgeEntry{
		ID:           uuid.NewString(),
		IncidentID:   incident.ID,
		ErrorPattern: errorPattern,
		Solution:     incident.RootCause,
		Embedding:    embedding,
		SuccessRate:  100, // updated later from feedback
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to store knowledge entry: %w", err)
	}
	return nil
}

func (p *Processor) publishUpdate(ctx context.Context, incident *entity.Incident, data map[string]any) {
	if err := p.bus.PublishIncidentUpdate(ctx, incident.ID, incident.Status, data); err != nil {
		slog.Warn("failed to publish incident update",
			slog.String("incident_id", incident.ID), slog.Any("error", err))
	}
}

func (p *Processor) notify(ctx context.Context, incident *entity.Incident) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.SendIncidentUpdate(ctx, incident); err != nil {
		slog.Warn("failed to send notification",
			slog.String("incident_id", incident.ID), slog.Any("error", err))
	}
}

func (p *Processor) exportReport(ctx context.Context, incident *entity.Incident, analysis *entity.AnalysisResult) {
	if p.reporter == nil {
		return
	}
	title := fmt.Sprintf("Incident report: %s", incident.Title)
	pageID, err := p.reporter.ExportIncidentReport(ctx, title, report.Render(incident, analysis))
	if err != nil {
		slog.Warn("failed to export incident report",
			slog.String("incident_id", incident.ID), slog.Any("error", err))
		return
	}
	slog.Info("incident report exported",
		slog.String("incident_id", incident.ID), slog.String("page_id", pageID))
}

func executionResultMap(result *entity.ExecutionResult) map[string]any {
	m := map[string]any{
		"success": result.Success,
	}
	if result.ExecutionID != "" {
		m["execution_id"] = result.ExecutionID
	}
	if result.Duration != "" {
		m["duration"] = result.Duration
	}
	if len(result.Outputs) > 0 {
		m["outputs"] = result.Outputs
	}
	if result.Err != "" {
		m["error"] = result.Err
	}
	return m
}

func executionSuccessFlag(result *entity.ExecutionResult) int {
	if result.Success {
		return entity.ActionSuccess
	}
	return entity.ActionFailed
}
