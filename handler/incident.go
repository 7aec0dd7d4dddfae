package handler

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/remedyops/remedy/domain/entity"
	"github.com/remedyops/remedy/domain/repository"
)

type IncidentHandler struct {
	repo     repository.Repository
	analyzer repository.Analyzer
}

func (h *IncidentHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	incidents, err := h.repo.Incidents(c.Request.Context(), repository.IncidentFilter{
		Status:   entity.Status(c.Query("status")),
		Severity: entity.Severity(c.Query("severity")),
		Service:  c.Query("service"),
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list incidents"})
		return
	}

	c.JSON(http.StatusOK, incidents)
}

func (h *IncidentHandler) Get(c *gin.Context) {
	incident, err := h.repo.FindIncidentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	c.JSON(http.StatusOK, incident)
}

func (h *IncidentHandler) Actions(c *gin.Context) {
	actions, err := h.repo.ActionsByIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load actions"})
		return
	}

	sort.Slice(actions, func(i, j int) bool {
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})

	c.JSON(http.StatusOK, actions)
}

// UpdateStatus lets remediation workflows report a status change back for
// an incident they are acting on.
func (h *IncidentHandler) UpdateStatus(c *gin.Context) {
	status, ok := entity.ParseStatus(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	incident, err := h.repo.FindIncidentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	incident.Status = status
	if status == entity.StatusResolved {
		if incident.ResolvedAt == nil {
			now := time.Now().UTC()
			incident.ResolvedAt = &now
		}
	} else {
		incident.ResolvedAt = nil
	}

	if err := h.repo.SaveIncident(c.Request.Context(), incident); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save incident"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated", "incident_id": incident.ID})
}

type suggestFixRequest struct {
	CodeSnippet string `json:"code_snippet"`
	FilePath    string `json:"file_path"`
}

func (h *IncidentHandler) SuggestFix(c *gin.Context) {
	incident, err := h.repo.FindIncidentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	var req suggestFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	fix := h.analyzer.SuggestCodeFix(c.Request.Context(), incident, req.CodeSnippet, req.FilePath)
	c.JSON(http.StatusOK, fix)
}

// Dashboard aggregates incident counts for the overview page.
func (h *IncidentHandler) Dashboard(c *gin.Context) {
	incidents, err := h.repo.Incidents(c.Request.Context(), repository.IncidentFilter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incidents"})
		return
	}

	var active, resolvedToday int
	var resolutionMinutes float64
	var resolvedCount int
	bySeverity := map[entity.Severity]int{}
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, incident := range incidents {
		bySeverity[incident.Severity]++

		if !incident.Status.Terminal() {
			active++
		}
		if incident.Status == entity.StatusResolved && incident.ResolvedAt != nil {
			resolvedCount++
			resolutionMinutes += incident.ResolvedAt.Sub(incident.DetectedAt).Minutes()
			if !incident.ResolvedAt.Before(today) {
				resolvedToday++
			}
		}
	}

	avgResolution := 0.0
	if resolvedCount > 0 {
		avgResolution = resolutionMinutes / float64(resolvedCount)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_incidents":        len(incidents),
		"active_incidents":       active,
		"resolved_today":         resolvedToday,
		"avg_resolution_minutes": avgResolution,
		"by_severity":            bySeverity,
	})
}

// MTTR reports the mean time to resolution over a trailing window.
func (h *IncidentHandler) MTTR(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	incidents, err := h.repo.Incidents(c.Request.Context(), repository.IncidentFilter{
		Status: entity.StatusResolved,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incidents"})
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	var minutes float64
	var sampleSize int
	for _, incident := range incidents {
		if incident.ResolvedAt == nil || incident.DetectedAt.Before(since) {
			continue
		}
		sampleSize++
		minutes += incident.ResolvedAt.Sub(incident.DetectedAt).Minutes()
	}

	if sampleSize == 0 {
		c.JSON(http.StatusOK, gin.H{"mttr_minutes": 0, "sample_size": 0})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mttr_minutes": math.Round(minutes/float64(sampleSize)*100) / 100,
		"sample_size":  sampleSize,
		"period_days":  days,
	})
}
