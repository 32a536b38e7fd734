package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cronkeep/internal/task"
	"cronkeep/internal/tools"
)

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound), errors.Is(err, tools.ErrUnknownTool):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// call runs a tool and writes its structured result.
func (s *Server) call(c *gin.Context, name string, args json.RawMessage, status int) {
	out, err := s.deps.Tools.Call(c.Request.Context(), name, args)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, out.Data)
}

func (s *Server) body(c *gin.Context) (json.RawMessage, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return raw, true
}

func (s *Server) handleCreate(c *gin.Context) {
	if raw, ok := s.body(c); ok {
		s.call(c, "cron_create", raw, http.StatusCreated)
	}
}

func (s *Server) handleList(c *gin.Context) {
	s.call(c, "cron_list", nil, http.StatusOK)
}

func (s *Server) handleGet(c *gin.Context) {
	t, err := s.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDelete(c *gin.Context) {
	args, _ := json.Marshal(map[string]string{"task_id": c.Param("id")})
	s.call(c, "cron_delete", args, http.StatusOK)
}

func (s *Server) handleRunDue(c *gin.Context) {
	if raw, ok := s.body(c); ok {
		s.call(c, "cron_run_due", raw, http.StatusOK)
	}
}

func (s *Server) handleHistory(c *gin.Context) {
	args := map[string]any{}
	if id := c.Query("task_id"); id != "" {
		args["task_id"] = id
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		args["limit"] = n
	}
	b, _ := json.Marshal(args)
	s.call(c, "cron_history", b, http.StatusOK)
}

func (s *Server) handleTools(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Tools.Specs())
}

// handleCallTool returns both the structured data and the agent-facing text.
func (s *Server) handleCallTool(c *gin.Context) {
	raw, ok := s.body(c)
	if !ok {
		return
	}
	out, err := s.deps.Tools.Call(c.Request.Context(), c.Param("name"), raw)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleHealth(c *gin.Context) {
	h := gin.H{"status": "ok"}
	if !s.deps.Started.IsZero() {
		h["uptime"] = time.Since(s.deps.Started).Round(time.Second).String()
	}
	if s.deps.Scheduler != nil {
		h["scheduler"] = s.deps.Scheduler.Snapshot()
	}
	if s.deps.Driver != nil {
		h["driver"] = s.deps.Driver.Snapshot()
	}
	c.JSON(http.StatusOK, h)
}
