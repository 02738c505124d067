// Package api exposes the task orchestration engine over HTTP: task CRUD,
// live progress streaming, chat-over-result, and the agents, providers,
// settings, and stats surfaces.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swarmos-ai/swarmos/pkg/agent"
	"github.com/swarmos-ai/swarmos/pkg/config"
	"github.com/swarmos-ai/swarmos/pkg/database"
	"github.com/swarmos-ai/swarmos/pkg/delegator"
	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/memory"
	"github.com/swarmos-ai/swarmos/pkg/orchestrator"
	"github.com/swarmos-ai/swarmos/pkg/services"
	"github.com/swarmos-ai/swarmos/pkg/tools"
)

// Deps are the server's collaborators. DB and Router are optional; LLM
// defaults to Router when unset.
type Deps struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Tasks        *services.TaskService
	Memory       *memory.Manager
	Tools        *tools.Registry
	Router       *llm.Router
	LLM          agent.Completer
	DB           *database.Client
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	tasks    *services.TaskService
	mem      *memory.Manager
	tools    *tools.Registry
	router   *llm.Router
	llm      agent.Completer
	db       *database.Client
	expander *delegator.QueryExpander
	started  time.Time

	logger *slog.Logger
}

// NewServer wires the API server from its dependencies.
func NewServer(deps Deps) *Server {
	completer := deps.LLM
	if completer == nil && deps.Router != nil {
		completer = deps.Router
	}
	return &Server{
		cfg:      deps.Config,
		orch:     deps.Orchestrator,
		tasks:    deps.Tasks,
		mem:      deps.Memory,
		tools:    deps.Tools,
		router:   deps.Router,
		llm:      completer,
		db:       deps.DB,
		expander: delegator.NewExpander(completer),
		started:  time.Now().UTC(),
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders(), corsHeaders())

	r.GET("/health", s.Health)

	api := r.Group("/api")
	{
		api.POST("/tasks", s.CreateTask)
		api.GET("/tasks", s.ListTasks)
		api.GET("/tasks/:id", s.GetTask)
		api.GET("/tasks/:id/subtasks", s.GetSubtasks)
		api.GET("/tasks/:id/validation", s.GetValidation)
		api.GET("/tasks/:id/debate", s.GetDebate)
		api.GET("/tasks/:id/stream", s.StreamTask)
		api.POST("/tasks/:id/chat", s.ChatTask)
		api.DELETE("/tasks/:id", s.DeleteTask)

		api.GET("/agents", s.ListAgents)
		api.GET("/agents/status", s.AgentsStatus)
		api.GET("/agents/:id/memory", s.AgentMemory)

		api.GET("/providers/status", s.ProvidersStatus)

		api.GET("/settings", s.GetSettings)
		api.POST("/settings", s.UpdateSettings)
		api.GET("/settings/models", s.ListModels)

		api.GET("/stats", s.Stats)
		api.GET("/status", s.Status)
	}

	return r
}
