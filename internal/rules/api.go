package rules

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xde-mcp/cmdgate/internal/api"
)

// Observer is told about every classification the API performs.
type Observer func(command string, d Decision)

// APIHandler provides HTTP handlers for classification and rule management
type APIHandler struct {
	engine   *Engine
	observe  Observer
	reloaded func() time.Time
}

// NewAPIHandler creates a new API handler. observe may be nil.
func NewAPIHandler(engine *Engine, observe Observer) *APIHandler {
	return &APIHandler{engine: engine, observe: observe}
}

// WithReloadClock reports the watcher's last reload time in stats.
func (h *APIHandler) WithReloadClock(last func() time.Time) *APIHandler {
	h.reloaded = last
	return h
}

// ClassifyRequest is the body of POST /api/classify.
type ClassifyRequest struct {
	Command string `json:"command" binding:"required,max=65536"`
}

// HandleClassify classifies one command
func (h *APIHandler) HandleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, http.StatusBadRequest, "command is required")
		return
	}
	d := h.engine.Classify(req.Command)
	if h.observe != nil {
		h.observe(req.Command, d)
	}
	api.Success(c, d)
}

// HandleRules returns all active rules
func (h *APIHandler) HandleRules(c *gin.Context) {
	rules := h.engine.GetRules()
	api.Success(c, gin.H{
		"total": len(rules),
		"rules": rules,
	})
}

// HandleReload triggers hot reload of user rules
func (h *APIHandler) HandleReload(c *gin.Context) {
	if err := h.engine.ReloadUserRules(); err != nil {
		api.Success(c, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	api.Success(c, gin.H{
		"status":     "reloaded",
		"rule_count": h.engine.RuleCount(),
	})
}

// HandleValidate lints rule YAML without loading it.
func (h *APIHandler) HandleValidate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		api.Error(c, http.StatusBadRequest, "Failed to read body")
		return
	}
	if err := h.engine.GetLoader().ValidateYAML(body); err != nil {
		api.Success(c, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	api.Success(c, gin.H{"valid": true})
}

// HandleStats returns verdict and rule hit counters
func (h *APIHandler) HandleStats(c *gin.Context) {
	resp := gin.H{"stats": h.engine.Stats()}
	if h.reloaded != nil {
		if t := h.reloaded(); !t.IsZero() {
			resp["last_reload"] = t.UTC().Format(time.RFC3339)
		}
	}
	api.Success(c, resp)
}

// Register mounts the handlers under group.
func (h *APIHandler) Register(group gin.IRouter) {
	group.POST("/classify", h.HandleClassify)
	group.GET("/rules", h.HandleRules)
	group.POST("/rules/reload", h.HandleReload)
	group.POST("/rules/validate", h.HandleValidate)
	group.GET("/stats", h.HandleStats)
}
