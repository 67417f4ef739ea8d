package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoCodeAlone/webpilot/agent"
	"github.com/GoCodeAlone/webpilot/task"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":     s.version,
		"uptime":      time.Since(s.startTime).String(),
		"provider":    s.cfg.Provider.Name,
		"subscribers": s.hub.SubscriberCount(),
		"policy": map[string]any{
			"max_steps":          s.cfg.Policy.MaxSteps,
			"max_parallel_tasks": s.cfg.Policy.MaxParallelTasks,
			"max_wait_ms":        s.cfg.Policy.MaxWaitMs,
		},
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.runtime.Registry().List()})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.runtime.ListTasks()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.runtime.GetTask(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Task not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

type createTaskRequest struct {
	Goal    string        `json:"goal"`
	Context *task.Context `json:"context,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.runtime.CreateTask(req.Goal, req.Context)
	if err != nil {
		switch agent.KindOf(err) {
		case agent.KindValidation, agent.KindConfig:
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("create task", slog.Any("err", err))
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": t})
}

func (s *Server) handleUpdateContext(w http.ResponseWriter, r *http.Request) {
	var patch task.Context
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.runtime.UpdateTaskContext(r.PathValue("id"), patch)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Task not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}
