package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swarmos-ai/swarmos/pkg/database"
	"github.com/swarmos-ai/swarmos/pkg/models"
	"github.com/swarmos-ai/swarmos/pkg/version"
)

// modelCatalogue lists the selectable models per provider.
var modelCatalogue = map[string][]string{
	"google":     {"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-1.5-pro"},
	"anthropic":  {"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"},
	"openai":     {"gpt-4o", "gpt-4o-mini", "o3-mini"},
	"openrouter": {"openrouter/auto"},
	"ollama":     {"llama3.2", "qwen2.5", "mistral"},
}

// Health handles GET /health. Reports database health when a database is
// wired.
func (s *Server) Health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.Pool())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
		"version":  version.Full(),
	})
}

// ProvidersStatus handles GET /api/providers/status: configured providers
// with their circuit breaker state.
func (s *Server) ProvidersStatus(c *gin.Context) {
	if s.router == nil {
		c.JSON(http.StatusOK, gin.H{"providers": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": s.router.ProviderStatus()})
}

// GetSettings handles GET /api/settings.
func (s *Server) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Settings.Snapshot())
}

// UpdateSettingsRequest is the body of POST /api/settings.
type UpdateSettingsRequest struct {
	DefaultProvider string            `json:"default_provider"`
	Models          map[string]string `json:"models"`
}

// UpdateSettings handles POST /api/settings: persist the per-provider
// model preferences.
func (s *Server) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DefaultProvider != "" && req.DefaultProvider != "auto" && !s.cfg.Providers.Has(req.DefaultProvider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + req.DefaultProvider})
		return
	}
	if err := s.cfg.Settings.Update(req.DefaultProvider, req.Models); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist settings"})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Settings.Snapshot())
}

// ListModels handles GET /api/settings/models: the model catalogue,
// flagged by which providers are actually configured.
func (s *Server) ListModels(c *gin.Context) {
	out := make(map[string]gin.H, len(modelCatalogue))
	for provider, modelList := range modelCatalogue {
		out[provider] = gin.H{
			"models":     modelList,
			"configured": s.cfg.Providers.Has(provider),
		}
	}
	c.JSON(http.StatusOK, out)
}

// Stats handles GET /api/stats: dashboard aggregates over the merged task
// view.
func (s *Server) Stats(c *gin.Context) {
	tasks, err := s.tasks.ListTasks(c.Request.Context(), models.TaskFilters{Limit: 1000})
	if err != nil {
		abortServiceError(c, err)
		return
	}

	byStatus := make(map[string]int)
	totalTokens := 0
	for _, t := range tasks {
		byStatus[string(t.Status)]++
		totalTokens += t.TokensUsed
	}

	c.JSON(http.StatusOK, gin.H{
		"total_tasks":   len(tasks),
		"by_status":     byStatus,
		"tokens_used":   totalTokens,
		"active_agents": len(s.orch.AllAgents()),
	})
}

// Status handles GET /api/status: a lightweight liveness and wiring
// summary.
func (s *Server) Status(c *gin.Context) {
	toolNames := []string{}
	if s.tools != nil {
		toolNames = s.tools.Names()
	}
	c.JSON(http.StatusOK, gin.H{
		"service":        "swarmos",
		"version":        version.Full(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"providers":      s.cfg.Providers.CloudNames(),
		"tools":          toolNames,
	})
}
