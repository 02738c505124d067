package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/memory"
	"github.com/swarmos-ai/swarmos/pkg/models"
	"github.com/swarmos-ai/swarmos/pkg/tools"
)

// chatResultClip bounds the task result quoted in a chat prompt.
const chatResultClip = 3000

// streamHeartbeat is the keep-alive interval for SSE streams.
const streamHeartbeat = 15 * time.Second

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Description string         `json:"description" binding:"required"`
	Provider    string         `json:"provider"`
	Context     map[string]any `json:"context"`
	// AutoExecute defaults to true; set false to create without running.
	AutoExecute *bool `json:"auto_execute"`
}

// CreateTask handles POST /api/tasks: expand the query, register the
// task, and kick off execution in the background.
func (s *Server) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider := req.Provider
	if provider == "" {
		provider = "auto"
	}

	expansion := s.expander.Expand(c.Request.Context(), req.Description)

	taskContext := req.Context
	if taskContext == nil {
		taskContext = make(map[string]any)
	}
	taskContext["query_expansion"] = expansion

	task := s.orch.CreateTask(req.Description, provider, taskContext)

	if req.AutoExecute == nil || *req.AutoExecute {
		go func() {
			// Detached from the request: the task outlives the HTTP call.
			if err := s.orch.Execute(context.Background(), task.ID); err != nil {
				s.logger.Error("background execution failed", "task_id", task.ID, "error", err)
			}
		}()
	}

	c.JSON(http.StatusCreated, task)
}

// ListTasks handles GET /api/tasks with status, limit, and offset query
// parameters.
func (s *Server) ListTasks(c *gin.Context) {
	filters := models.TaskFilters{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit", 20),
		Offset: queryInt(c, "offset", 0),
	}

	taskList, err := s.tasks.ListTasks(c.Request.Context(), filters)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TaskListResponse{
		Tasks:      taskList,
		TotalCount: len(taskList),
		Limit:      filters.Limit,
		Offset:     filters.Offset,
	})
}

// GetTask handles GET /api/tasks/:id.
func (s *Server) GetTask(c *gin.Context) {
	task, err := s.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GetSubtasks handles GET /api/tasks/:id/subtasks.
func (s *Server) GetSubtasks(c *gin.Context) {
	subtasks, err := s.tasks.Subtasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "subtasks": subtasks})
}

// GetValidation handles GET /api/tasks/:id/validation.
func (s *Server) GetValidation(c *gin.Context) {
	validation, err := s.tasks.Validation(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	if validation == nil {
		c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "validation": nil,
			"message": "no validation performed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "validation": validation})
}

// GetDebate handles GET /api/tasks/:id/debate.
func (s *Server) GetDebate(c *gin.Context) {
	state, err := s.tasks.Debate(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task did not run a debate"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// DeleteTask handles DELETE /api/tasks/:id, cancelling first when the
// task still runs.
func (s *Server) DeleteTask(c *gin.Context) {
	if err := s.tasks.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "deleted": true})
}

// StreamTask handles GET /api/tasks/:id/stream: server-sent events
// bridged from the task's ephemeral memory stream, with periodic status
// heartbeats.
func (s *Server) StreamTask(c *gin.Context) {
	taskID := c.Param("id")
	task, err := s.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	events, unsubscribe := s.mem.Ephemeral().Subscribe(memory.StreamName(taskID))
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("status", s.statusFrame(task))
	c.Writer.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("update", event)
			c.Writer.Flush()
		case <-ticker.C:
			task, err := s.tasks.GetTask(c.Request.Context(), taskID)
			if err != nil {
				return
			}
			c.SSEvent("status", s.statusFrame(task))
			c.Writer.Flush()
			if task.Status.IsTerminal() {
				return
			}
		}
	}
}

func (s *Server) statusFrame(task *models.Task) gin.H {
	return gin.H{
		"task_id":  task.ID,
		"status":   string(task.Status),
		"progress": task.Progress,
	}
}

// ChatRequest is the body of POST /api/tasks/:id/chat.
type ChatRequest struct {
	Message      string         `json:"message" binding:"required"`
	UseWebSearch bool           `json:"use_web_search"`
	TargetAgent  string         `json:"target_agent"`
	Context      map[string]any `json:"context"`
}

// ChatTask handles POST /api/tasks/:id/chat: answer a follow-up question
// grounded on the task's description and result, optionally through a
// specific agent's role and enriched with a web search.
func (s *Server) ChatTask(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	agentRole := s.resolveAgentRole(task.ID, req.TargetAgent)

	var prompt strings.Builder
	if agentRole != "" {
		fmt.Fprintf(&prompt, "You are the %s agent answering a follow-up question about a completed task.\n\n", agentRole)
	} else {
		prompt.WriteString("You are answering a follow-up question about a completed task.\n\n")
	}
	fmt.Fprintf(&prompt, "Task: %s\n\n", task.Description)
	if content, ok := task.Result["content"].(string); ok && content != "" {
		fmt.Fprintf(&prompt, "Task result:\n%s\n\n", clip(content, chatResultClip))
	}
	for _, key := range sortedKeys(req.Context) {
		fmt.Fprintf(&prompt, "Context %s: %v\n", key, req.Context[key])
	}
	if len(req.Context) > 0 {
		prompt.WriteString("\n")
	}

	var sources []tools.SearchHit
	if req.UseWebSearch && s.tools != nil {
		sources = s.searchHits(c.Request.Context(), req.Message)
		for i, hit := range sources {
			fmt.Fprintf(&prompt, "Source [%d] %s (%s): %s\n", i+1, hit.Title, hit.URL, clip(hit.Content, 500))
		}
		if len(sources) > 0 {
			prompt.WriteString("\n")
		}
	}
	fmt.Fprintf(&prompt, "Question: %s\n\nAnswer concisely, grounded on the material above.", req.Message)

	resp, err := s.llm.Completion(c.Request.Context(), llm.Request{
		Model:       task.Provider,
		Messages:    []llm.Message{{Role: "user", Content: prompt.String()}},
		Temperature: 0.7,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("chat completion failed: %v", err)})
		return
	}

	out := gin.H{"task_id": task.ID, "response": resp.Content, "provider": resp.Provider}
	if agentRole != "" {
		out["agent"] = agentRole
	}
	if len(sources) > 0 {
		out["sources"] = sources
	}
	c.JSON(http.StatusOK, out)
}

// resolveAgentRole matches a requested agent by id or role label against
// the task's roster. An unmatched request is taken as a role name.
func (s *Server) resolveAgentRole(taskID, target string) string {
	if target == "" {
		return ""
	}
	for _, a := range s.orch.Agents(taskID) {
		if a.ID() == target || strings.EqualFold(a.RoleLabel(), target) {
			return a.RoleLabel()
		}
	}
	return target
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// searchHits runs the web_search tool, tolerating failure.
func (s *Server) searchHits(ctx context.Context, query string) []tools.SearchHit {
	result := s.tools.Execute(ctx, "web_search", map[string]any{"query": query, "max_results": 3})
	payload, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	hits, _ := payload["results"].([]tools.SearchHit)
	return hits
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
