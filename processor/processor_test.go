package processor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyops/remedy/domain/entity"
	"github.com/remedyops/remedy/domain/repository"
	"github.com/remedyops/remedy/processor"
)

// ------------------------
// Mock repositories
// ------------------------
type mockRepository struct {
	mu        sync.Mutex
	incidents map[string]*entity.Incident
	actions   []entity.IncidentAction
	knowledge []entity.KnowledgeEntry

	statusHistory []entity.Status
	saveErr       error
	knowledgeErr  error
}

func newMockRepository(incidents ...*entity.Incident) *mockRepository {
	repo := &mockRepository{incidents: map[string]*entity.Incident{}}
	for _, incident := range incidents {
		copied := *incident
		repo.incidents[incident.ID] = &copied
	}
	return repo
}

func (m *mockRepository) FindIncidentByID(_ context.Context, id string) (*entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[id]
	if !ok {
		return nil, nil
	}
	copied := *incident
	return &copied, nil
}

func (m *mockRepository) SaveIncident(_ context.Context, incident *entity.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	copied := *incident
	m.incidents[incident.ID] = &copied
	m.statusHistory = append(m.statusHistory, incident.Status)
	return nil
}

func (m *mockRepository) Incidents(_ context.Context, _ repository.IncidentFilter) ([]entity.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []entity.Incident
	for _, incident := range m.incidents {
		all = append(all, *incident)
	}
	return all, nil
}

func (m *mockRepository) AddAction(_ context.Context, action *entity.IncidentAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, *action)
	return nil
}

func (m *mockRepository) ActionsByIncident(_ context.Context, incidentID string) ([]entity.IncidentAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []entity.IncidentAction
	for _, action := range m.actions {
		if action.IncidentID == incidentID {
			matched = append(matched, action)
		}
	}
	return matched, nil
}

func (m *mockRepository) AddKnowledgeEntry(_ context.Context, entry *entity.KnowledgeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.knowledgeErr != nil {
		return m.knowledgeErr
	}
	m.knowledge = append(m.knowledge, *entry)
	return nil
}

func (m *mockRepository) KnowledgeEntries(_ context.Context) ([]entity.KnowledgeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knowledge, nil
}

func (m *mockRepository) actionTypes() []string {
	var types []string
	for _, action := range m.actions {
		types = append(types, action.ActionType)
	}
	return types
}

type mockAnalyzer struct {
	analysis *entity.AnalysisResult
	match    *entity.SimilarMatch
	panics   bool
}

func (m *mockAnalyzer) AnalyzeIncident(_ context.Context, _ *entity.Incident) *entity.AnalysisResult {
	if m.panics {
		panic("analyzer blew up")
	}
	return m.analysis
}

func (m *mockAnalyzer) SuggestCodeFix(_ context.Context, _ *entity.Incident, _, _ string) *entity.FixResult {
	return &entity.FixResult{Success: true}
}

func (m *mockAnalyzer) CheckSimilarIncidents(_ context.Context, _ string, _ []entity.KnowledgeEntry) (*entity.SimilarMatch, error) {
	return m.match, nil
}

type mockWorkflowRunner struct {
	result *entity.ExecutionResult
	inputs map[string]any
}

func (m *mockWorkflowRunner) TriggerWorkflow(_ context.Context, _ string, inputs map[string]any) *entity.ExecutionResult {
	m.inputs = inputs
	return m.result
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

type busUpdate struct {
	incidentID string
	status     entity.Status
	data       map[string]any
}

type mockEventBus struct {
	announced []string
	updates   []busUpdate
}

func (m *mockEventBus) PublishIncident(_ context.Context, incidentID string) error {
	m.announced = append(m.announced, incidentID)
	return nil
}

func (m *mockEventBus) PublishIncidentUpdate(_ context.Context, incidentID string, status entity.Status, data map[string]any) error {
	m.updates = append(m.updates, busUpdate{incidentID: incidentID, status: status, data: data})
	return nil
}

func (m *mockEventBus) SubscribeNewIncidents(_ context.Context) (<-chan []byte, error) {
	return nil, nil
}

func (m *mockEventBus) SubscribeIncidentUpdates(_ context.Context) (<-chan []byte, error) {
	return nil, nil
}

type mockNotifier struct {
	sent []entity.Status
	err  error
}

func (m *mockNotifier) SendIncidentUpdate(_ context.Context, incident *entity.Incident) error {
	m.sent = append(m.sent, incident.Status)
	return m.err
}

// ------------------------
// Fixtures
// ------------------------
func detectedIncident() *entity.Incident {
	return &entity.Incident{
		ID:          "inc-1",
		Title:       "DB connection pool exhausted",
		Description: "db timed out",
		Severity:    entity.SeverityHigh,
		Status:      entity.StatusDetected,
		Source:      "webhook",
		ServiceName: "payments",
		ErrorType:   "timeout",
		DetectedAt:  time.Now().UTC(),
	}
}

func goodAnalysis() *entity.AnalysisResult {
	return &entity.AnalysisResult{
		RootCause:       "connection pool too small",
		Impact:          "checkout latency",
		ResolutionSteps: []string{"increase pool size", "restart service"},
		PreventionSteps: []string{"add pool metrics"},
		Confidence:      "high",
	}
}

type pipeline struct {
	processor *processor.Processor
	repo      *mockRepository
	analyzer  *mockAnalyzer
	workflows *mockWorkflowRunner
	embedder  *mockEmbedder
	bus       *mockEventBus
	notifier  *mockNotifier
}

func newPipeline(repo *mockRepository) *pipeline {
	p := &pipeline{
		repo:      repo,
		analyzer:  &mockAnalyzer{analysis: goodAnalysis()},
		workflows: &mockWorkflowRunner{result: &entity.ExecutionResult{Success: true, ExecutionID: "exec-1", Duration: "PT42S"}},
		embedder:  &mockEmbedder{},
		bus:       &mockEventBus{},
		notifier:  &mockNotifier{},
	}
	p.processor = processor.New(processor.Options{}, repo, p.analyzer, p.workflows, p.embedder, p.bus, p.notifier, nil)
	return p
}

// ------------------------
// Tests
// ------------------------
func TestRunResolvesIncident(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	p := newPipeline(repo)

	p.processor.Run(context.Background(), "inc-1")

	incident := repo.incidents["inc-1"]
	require.NotNil(t, incident)
	assert.Equal(t, entity.StatusResolved, incident.Status)
	require.NotNil(t, incident.ResolvedAt)
	assert.Equal(t, "connection pool too small", incident.RootCause)
	assert.Equal(t, []string{"increase pool size", "restart service"}, incident.ResolutionSteps)

	assert.Equal(t, []entity.Status{
		entity.StatusAnalyzing,
		entity.StatusAnalyzing,
		entity.StatusResolving,
		entity.StatusResolved,
	}, repo.statusHistory)

	assert.Equal(t, []string{"analysis", "resolution"}, repo.actionTypes())
	assert.Equal(t, entity.ActionSuccess, repo.actions[0].Success)
	assert.Equal(t, entity.ActionSuccess, repo.actions[1].Success)

	require.Len(t, repo.knowledge, 1)
	assert.Equal(t, "timeout: db timed out", repo.knowledge[0].ErrorPattern)
	assert.Equal(t, "connection pool too small", repo.knowledge[0].Solution)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, repo.knowledge[0].Embedding)

	require.Len(t, p.bus.updates, 3)
	assert.Equal(t, entity.StatusAnalyzing, p.bus.updates[0].status)
	assert.Equal(t, entity.StatusResolving, p.bus.updates[1].status)
	assert.Equal(t, entity.StatusResolved, p.bus.updates[2].status)
	assert.Equal(t, "exec-1", p.bus.updates[2].data["execution_id"])

	assert.Equal(t, []entity.Status{entity.StatusResolved}, p.notifier.sent)

	assert.Equal(t, "inc-1", p.workflows.inputs["incident_id"])
	assert.Equal(t, "payments", p.workflows.inputs["service_name"])
}

func TestRunWorkflowFailure(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	p := newPipeline(repo)
	p.workflows.result = &entity.ExecutionResult{Success: false, ExecutionID: "exec-1", Err: "step restart-service failed"}

	p.processor.Run(context.Background(), "inc-1")

	incident := repo.incidents["inc-1"]
	assert.Equal(t, entity.StatusFailed, incident.Status)
	assert.Nil(t, incident.ResolvedAt)

	require.Equal(t, []string{"analysis", "resolution"}, repo.actionTypes())
	assert.Equal(t, entity.ActionFailed, repo.actions[1].Success)

	assert.Empty(t, repo.knowledge)

	require.Len(t, p.bus.updates, 3)
	assert.Equal(t, entity.StatusFailed, p.bus.updates[2].status)
	assert.Contains(t, p.bus.updates[2].data["error"], "step restart-service failed")

	assert.Equal(t, []entity.Status{entity.StatusFailed}, p.notifier.sent)
}

func TestRunIncidentNotFound(t *testing.T) {
	repo := newMockRepository()
	p := newPipeline(repo)

	p.processor.Run(context.Background(), "missing")

	assert.Empty(t, repo.statusHistory)
	assert.Empty(t, p.bus.updates)
	assert.Empty(t, p.notifier.sent)
}

func TestRunKnowledgeEntryFailureFailsIncident(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	repo.knowledgeErr = errors.New("table unreachable")
	p := newPipeline(repo)

	p.processor.Run(context.Background(), "inc-1")

	assert.Equal(t, entity.StatusFailed, repo.incidents["inc-1"].Status)
	assert.Nil(t, repo.incidents["inc-1"].ResolvedAt)
}

func TestRunEmbedFailureFailsIncident(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	p := newPipeline(repo)
	p.embedder.err = errors.New("embedding endpoint down")

	p.processor.Run(context.Background(), "inc-1")

	assert.Equal(t, entity.StatusFailed, repo.incidents["inc-1"].Status)
	assert.Empty(t, repo.knowledge)
}

func TestRunNotifierFailureDoesNotFlipState(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	p := newPipeline(repo)
	p.notifier.err = errors.New("webhook 500")

	p.processor.Run(context.Background(), "inc-1")

	assert.Equal(t, entity.StatusResolved, repo.incidents["inc-1"].Status)
}

func TestRunRecoversFromPanic(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	p := newPipeline(repo)
	p.analyzer.panics = true

	p.processor.Run(context.Background(), "inc-1")

	incident := repo.incidents["inc-1"]
	assert.Equal(t, entity.StatusFailed, incident.Status)
	require.NotEmpty(t, p.bus.updates)
	last := p.bus.updates[len(p.bus.updates)-1]
	assert.Contains(t, last.data["error"], "panic in pipeline")
}

func TestRunRecordsKnowledgeMatch(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	repo.knowledge = []entity.KnowledgeEntry{{
		ID:           "kb-1",
		IncidentID:   "inc-0",
		ErrorPattern: "timeout: db timed out",
		Solution:     "increase pool size",
	}}
	p := newPipeline(repo)
	p.analyzer.match = &entity.SimilarMatch{
		Entry:      repo.knowledge[0],
		Confidence: "high",
		Reasoning:  "same pool exhaustion signature",
	}

	p.processor.Run(context.Background(), "inc-1")

	require.Equal(t, []string{"knowledge_match", "analysis", "resolution"}, repo.actionTypes())
	assert.Equal(t, "inc-0", repo.actions[0].Result["matched_incident_id"])
	// advisory only, the pipeline still runs to completion
	assert.Equal(t, entity.StatusResolved, repo.incidents["inc-1"].Status)
}

func TestSubmitQueueFull(t *testing.T) {
	repo := newMockRepository()
	p := processor.New(processor.Options{QueueSize: 1},
		repo, &mockAnalyzer{analysis: goodAnalysis()}, &mockWorkflowRunner{}, &mockEmbedder{}, &mockEventBus{}, nil, nil)

	require.NoError(t, p.Submit("inc-1"))
	assert.Error(t, p.Submit("inc-2"))
}

func TestStartProcessesSubmittedIncidents(t *testing.T) {
	repo := newMockRepository(detectedIncident())
	p := newPipeline(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.processor.Start(ctx)

	require.NoError(t, p.processor.Submit("inc-1"))
	p.processor.Shutdown()

	assert.Equal(t, entity.StatusResolved, repo.incidents["inc-1"].Status)
}

func TestShutdownDrainsQueuedIncidents(t *testing.T) {
	first := detectedIncident()
	second := detectedIncident()
	second.ID = "inc-2"
	repo := newMockRepository(first, second)
	p := processor.New(processor.Options{Workers: 1},
		repo,
		&mockAnalyzer{analysis: goodAnalysis()},
		&mockWorkflowRunner{result: &entity.ExecutionResult{Success: true, ExecutionID: "exec-1"}},
		&mockEmbedder{},
		&mockEventBus{},
		&mockNotifier{},
		nil,
	)

	// queued before any worker starts
	require.NoError(t, p.Submit("inc-1"))
	require.NoError(t, p.Submit("inc-2"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Shutdown()

	assert.Equal(t, entity.StatusResolved, repo.incidents["inc-1"].Status)
	assert.Equal(t, entity.StatusResolved, repo.incidents["inc-2"].Status)
}

func TestCreateFromWebhookDefaults(t *testing.T) {
	repo := newMockRepository()
	p := newPipeline(repo)

	incident, err := p.processor.CreateFromWebhook(context.Background(), processor.WebhookPayload{
		Description: "something broke",
	})

	require.NoError(t, err)
	assert.Equal(t, "Unknown Incident", incident.Title)
	assert.Equal(t, "unknown", incident.ServiceName)
	assert.Equal(t, "unknown", incident.ErrorType)
	assert.Equal(t, entity.SeverityMedium, incident.Severity)
	assert.Equal(t, entity.StatusDetected, incident.Status)
	assert.Equal(t, "webhook", incident.Source)
	assert.NotEmpty(t, incident.ID)

	assert.Contains(t, repo.incidents, incident.ID)
	assert.Equal(t, []string{incident.ID}, p.bus.announced)
}

func TestCreateFromLogs(t *testing.T) {
	repo := newMockRepository()
	p := newPipeline(repo)

	incident, err := p.processor.CreateFromLogs(context.Background(), map[string]any{
		"service": "checkout",
		"message": "error: payment gateway unreachable",
	})

	require.NoError(t, err)
	assert.Equal(t, "Error in checkout", incident.Title)
	assert.Equal(t, entity.SeverityMedium, incident.Severity)
	assert.Equal(t, "logs", incident.Source)
	assert.Equal(t, "log_error", incident.ErrorType)
}

func TestCreateFromMetrics(t *testing.T) {
	repo := newMockRepository()
	p := newPipeline(repo)

	incident, err := p.processor.CreateFromMetrics(context.Background(), map[string]any{
		"metric_name": "cpu_usage",
		"value":       97.5,
		"threshold":   90.0,
		"service":     "checkout",
	})

	require.NoError(t, err)
	assert.Equal(t, "Threshold breach: cpu_usage", incident.Title)
	assert.Equal(t, entity.SeverityHigh, incident.Severity)
	assert.Equal(t, "metrics", incident.Source)
	assert.Contains(t, incident.Description, "97.5")
}

func TestCreateFromWebhookSaveFailure(t *testing.T) {
	repo := newMockRepository()
	repo.saveErr = fmt.Errorf("dynamo unavailable")
	p := newPipeline(repo)

	_, err := p.processor.CreateFromWebhook(context.Background(), processor.WebhookPayload{Title: "boom"})

	require.Error(t, err)
	assert.Empty(t, p.bus.announced)
}
