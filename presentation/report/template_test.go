package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/remedyops/remedy/domain/entity"
)

func TestRender(t *testing.T) {
	detected := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	resolved := detected.Add(25 * time.Minute)
	incident := &entity.Incident{
		Title:           "DB connection pool exhausted",
		Description:     "db timed out",
		Severity:        entity.SeverityHigh,
		Status:          entity.StatusResolved,
		Source:          "webhook",
		ServiceName:     "payments",
		RootCause:       "connection pool too small",
		ResolutionSteps: []string{"increase pool size"},
		DetectedAt:      detected,
		ResolvedAt:      &resolved,
	}
	result := &entity.AnalysisResult{
		Impact:          "checkout latency",
		PreventionSteps: []string{"add pool metrics"},
	}

	body := Render(incident, result)

	assert.Contains(t, body, "# DB connection pool exhausted")
	assert.Contains(t, body, "Time to resolution: 25m0s")
	assert.Contains(t, body, "payments (HIGH, source: webhook)")
	assert.Contains(t, body, "* increase pool size")
	assert.Contains(t, body, "* add pool metrics")
}

func TestRenderUnresolved(t *testing.T) {
	incident := &entity.Incident{
		Title:      "Still broken",
		Status:     entity.StatusFailed,
		DetectedAt: time.Now().UTC(),
	}

	body := Render(incident, &entity.AnalysisResult{})

	assert.Contains(t, body, "Resolved: unresolved")
	assert.Contains(t, body, "* None recorded")
}
