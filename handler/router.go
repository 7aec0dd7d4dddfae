package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/remedyops/remedy/domain/repository"
	"github.com/remedyops/remedy/hub"
	"github.com/remedyops/remedy/processor"
)

type RouterConfig struct {
	Processor     *processor.Processor
	Repository    repository.Repository
	Analyzer      repository.Analyzer
	Hub           *hub.Hub
	WebhookSecret string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	webhooks := &WebhookHandler{
		processor: cfg.Processor,
		secret:    cfg.WebhookSecret,
	}
	incidents := &IncidentHandler{
		repo:     cfg.Repository,
		analyzer: cfg.Analyzer,
	}
	ws := &WebSocketHandler{hub: cfg.Hub}

	api := router.Group("/api/v1")
	{
		api.POST("/webhooks/incident", webhooks.ReceiveIncident)
		api.POST("/webhooks/logs", webhooks.ReceiveLogs)
		api.POST("/webhooks/metrics", webhooks.ReceiveMetrics)

		api.GET("/incidents", incidents.List)
		api.GET("/incidents/:id", incidents.Get)
		api.PUT("/incidents/:id/status", incidents.UpdateStatus)
		api.GET("/incidents/:id/actions", incidents.Actions)
		api.POST("/incidents/:id/suggest-fix", incidents.SuggestFix)

		api.GET("/analytics/dashboard", incidents.Dashboard)
		api.GET("/analytics/mttr", incidents.MTTR)
	}

	router.GET("/ws", ws.Serve)

	return router
}
