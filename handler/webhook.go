package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/remedyops/remedy/processor"
)

// WebhookHandler accepts signals from monitoring tools. Its contract is
// "accepted": pipeline outcomes are observable only via persisted state and
// the broadcast channel, never via these responses.
type WebhookHandler struct {
	processor *processor.Processor
	secret    string
}

// verifySignature checks the HMAC-SHA256 signature a monitoring tool
// computed over the raw body.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *WebhookHandler) ReceiveIncident(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload processor.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	incident, err := h.processor.CreateFromWebhook(c.Request.Context(), payload)
	if err != nil {
		slog.Error("failed to create incident from webhook", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create incident"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "received",
		"incident_id": incident.ID,
		"message":     "Incident processing initiated",
	})
}

func (h *WebhookHandler) ReceiveLogs(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	message, _ := payload["message"].(string)
	level, _ := payload["level"].(string)
	if strings.Contains(strings.ToLower(message), "error") || level == "error" {
		if _, err := h.processor.CreateFromLogs(c.Request.Context(), payload); err != nil {
			slog.Error("failed to create incident from logs", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *WebhookHandler) ReceiveMetrics(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	value, _ := payload["value"].(float64)
	threshold, ok := payload["threshold"].(float64)
	if !ok {
		threshold = 100
	}
	if value > threshold {
		if _, err := h.processor.CreateFromMetrics(c.Request.Context(), payload); err != nil {
			slog.Error("failed to create incident from metrics", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
