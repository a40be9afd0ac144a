// Package server exposes the engine over HTTP: manual runs, webhook
// triggers, workflow management, and the chat endpoint that fronts the
// tool-calling agent.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"flowgrid/runtime"
	"flowgrid/runtime/agent"
)

type Server struct {
	l        *slog.Logger
	app      *runtime.App
	provider agent.Provider
	engine   *gin.Engine
}

// New builds the router. provider may be nil when no model backend is
// configured; the chat endpoint then responds 503.
func New(l *slog.Logger, app *runtime.App, provider agent.Provider) *Server {
	s := &Server{
		l:        l,
		app:      app,
		provider: provider,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/v1/workflows", s.listWorkflows)
	s.engine.POST("/v1/workflows/:id/run", s.runWorkflow)
	s.engine.PUT("/v1/workflows/:id/trigger", s.updateTrigger)
	s.engine.PUT("/v1/workflows/:id/credentials", s.bindCredentials)
	s.engine.POST("/v1/agent/chat", s.chat)

	s.registerWebhooks()
	return s
}

// Run starts serving on addr and blocks.
func (s *Server) Run(addr string) error {
	s.l.Info("server listening", "addr", addr)
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) listWorkflows(c *gin.Context) {
	type entry struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Trigger     string `json:"trigger,omitempty"`
		Steps       int    `json:"steps"`
	}
	workflows := s.app.Workflows()
	out := make([]entry, 0, len(workflows))
	for id, w := range workflows {
		e := entry{ID: id, Name: w.Name, Description: w.Description, Steps: len(w.Config.Steps)}
		if w.Trigger != nil {
			e.Trigger = w.Trigger.Type
		}
		out = append(out, e)
	}
	c.JSON(http.StatusOK, out)
}

// runWorkflow is the manual trigger: the request body becomes the run's
// trigger payload.
func (s *Server) runWorkflow(c *gin.Context) {
	trigger, ok := readJSONBody(c)
	if !ok {
		return
	}
	result := s.app.Run(c.Request.Context(), c.Param("id"), trigger)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (s *Server) updateTrigger(c *gin.Context) {
	var t runtime.Trigger
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid trigger: " + err.Error()})
		return
	}
	if err := s.app.UpdateTrigger(c.Param("id"), t); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) bindCredentials(c *gin.Context) {
	var body struct {
		RequiresCredentials []string `json:"requiresCredentials"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body: " + err.Error()})
		return
	}
	if err := s.app.BindCredentials(c.Param("id"), body.RequiresCredentials); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// registerWebhooks wires a route for every workflow declaring a webhook
// trigger. The JSON body, query parameters and headers named in the trigger
// config become the run's trigger namespace.
func (s *Server) registerWebhooks() {
	for id, w := range s.app.Workflows() {
		if w.Trigger == nil || w.Trigger.Type != runtime.TriggerWebhook {
			continue
		}
		path, _ := w.Trigger.Config["path"].(string)
		if path == "" {
			path = "/hooks/" + id
		}
		method, _ := w.Trigger.Config["method"].(string)
		method = strings.ToUpper(method)
		if method == "" {
			method = http.MethodPost
		}

		id := id
		handler := func(c *gin.Context) {
			trigger := s.webhookPayload(c)
			result := s.app.Run(c.Request.Context(), id, trigger)
			status := http.StatusOK
			if !result.Success {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, result)
		}

		switch method {
		case http.MethodGet:
			s.engine.GET(path, handler)
		case http.MethodPost:
			s.engine.POST(path, handler)
		case http.MethodPut:
			s.engine.PUT(path, handler)
		default:
			s.l.Warn("unsupported webhook method", "workflow", id, "method", method)
			continue
		}
		s.l.Info("webhook registered", "workflow", id, "method", method, "path", path)
	}
}

func (s *Server) webhookPayload(c *gin.Context) map[string]any {
	payload := map[string]any{}

	if c.Request.Body != nil {
		raw, err := io.ReadAll(c.Request.Body)
		if err == nil && len(raw) > 0 {
			payload["rawBody"] = string(raw)
			var parsed any
			if err := json.Unmarshal(raw, &parsed); err == nil {
				payload["body"] = parsed
			}
		}
	}

	query := map[string]any{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	payload["query"] = query

	headers := map[string]any{}
	for k := range c.Request.Header {
		headers[strings.ToLower(k)] = c.GetHeader(k)
	}
	payload["headers"] = headers

	return payload
}

type chatRequest struct {
	Message    string   `json:"message" binding:"required"`
	System     string   `json:"system"`
	MaxSteps   int      `json:"maxSteps"`
	Tools      []string `json:"tools"`      // explicit module paths
	Categories []string `json:"categories"` // or whole categories
	MaxTools   int      `json:"maxTools"`
}

// chat runs the tool-calling agent over the filtered module catalog. With
// ?stream=true the trace is delivered as server-sent events.
func (s *Server) chat(c *gin.Context) {
	if s.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "no model provider configured"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request: " + err.Error()})
		return
	}

	filter := agent.Filter{Names: req.Tools, Categories: req.Categories, MaxTools: req.MaxTools}
	if len(req.Tools) == 0 && len(req.Categories) == 0 {
		filter.All = true
	}
	tools, err := agent.NewGenerator(s.app.Registry(), s.app.Credentials()).Generate(filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	ag, err := agent.New(s.l, s.provider, tools, agent.Config{System: req.System, MaxSteps: req.MaxSteps})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if c.Query("stream") == "true" {
		s.streamChat(c, ag, req.Message)
		return
	}

	result, err := ag.Run(c.Request.Context(), req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": fmt.Sprintf("agent failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) streamChat(c *gin.Context, ag *agent.Agent, message string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	events := ag.RunStream(c.Request.Context(), message)
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		if ev.Err != nil {
			c.SSEvent("error", gin.H{"message": ev.Err.Error()})
			return false
		}
		c.SSEvent(string(ev.Type), ev)
		return true
	})
}

func readJSONBody(c *gin.Context) (map[string]any, bool) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return map[string]any{}, true
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong request body format"})
		return nil, false
	}
	if len(raw) == 0 {
		return map[string]any{}, true
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "wrong request body format"})
		return nil, false
	}
	return payload, true
}
