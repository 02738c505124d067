package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swarmos-ai/swarmos/pkg/agent"
	"github.com/swarmos-ai/swarmos/pkg/models"
)

// agentView is the wire shape of one registered agent.
type agentView struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Capability string `json:"capability"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
}

func viewOf(a agent.Agent) agentView {
	return agentView{
		ID:         a.ID(),
		Role:       a.RoleLabel(),
		Capability: string(a.Capability()),
		Provider:   a.Provider(),
		Status:     string(a.Status()),
	}
}

// ListAgents handles GET /api/agents, optionally filtered by task_id.
func (s *Server) ListAgents(c *gin.Context) {
	var agents []agent.Agent
	if taskID := c.Query("task_id"); taskID != "" {
		agents = s.orch.Agents(taskID)
	} else {
		agents = s.orch.AllAgents()
	}

	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, viewOf(a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": views, "count": len(views)})
}

// AgentsStatus handles GET /api/agents/status: counts by runtime state.
func (s *Server) AgentsStatus(c *gin.Context) {
	counts := map[string]int{
		string(models.AgentStatusIdle):       0,
		string(models.AgentStatusProcessing): 0,
		string(models.AgentStatusError):      0,
	}
	agents := s.orch.AllAgents()
	for _, a := range agents {
		counts[string(a.Status())]++
	}
	c.JSON(http.StatusOK, gin.H{"total": len(agents), "by_status": counts})
}

// AgentMemory handles GET /api/agents/:id/memory: the agent-scoped
// durable memory entries, newest first.
func (s *Server) AgentMemory(c *gin.Context) {
	agentID := c.Param("id")
	entries, err := s.mem.Entries(c.Request.Context(), "agent:"+agentID, models.ScopeAgent, queryInt(c, "limit", 10))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query agent memory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "entries": entries, "count": len(entries)})
}
