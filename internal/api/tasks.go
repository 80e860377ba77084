package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aviary-ai/aviary/internal/storage"
)

type taskRequest struct {
	AgentID     int64  `json:"agent_id"`
	ClientID    *int64 `json:"client_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func validTaskStatus(s string) bool {
	switch s {
	case "pending", "in_progress", "completed":
		return true
	}
	return false
}

func handleListTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := parseIntQuery(r, "agent_id", 0)

		tasks, err := deps.Store.ListTasks(agentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tasks: %v", err)
			return
		}
		if tasks == nil {
			tasks = []storage.Task{}
		}
		respondJSON(w, map[string]any{"tasks": tasks})
	}
}

func handleGetTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid task id")
			return
		}

		task, err := deps.Store.GetTask(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}
		respondJSON(w, map[string]any{"task": task})
	}
}

func handleCreateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req taskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.Status != "" && !validTaskStatus(req.Status) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", req.Status)
			return
		}

		if _, err := deps.Store.GetAgent(req.AgentID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check agent: %v", err)
			return
		}

		if req.ClientID != nil {
			if _, err := deps.Store.GetClient(*req.ClientID); errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "client not found")
				return
			} else if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to check client: %v", err)
				return
			}
		}

		task, err := deps.Store.CreateTask(storage.Task{
			AgentID:     req.AgentID,
			ClientID:    req.ClientID,
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create task: %v", err)
			return
		}
		respondJSON(w, map[string]any{"task": task})
	}
}

func handleUpdateTaskStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid task id")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if !validTaskStatus(req.Status) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid status %q", req.Status)
			return
		}

		err = deps.Store.UpdateTaskStatus(id, req.Status)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update task: %v", err)
			return
		}

		task, err := deps.Store.GetTask(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}
		respondJSON(w, map[string]any{"task": task})
	}
}

func handleDeleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid task id")
			return
		}

		err = deps.Store.DeleteTask(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete task: %v", err)
			return
		}
		respondJSON(w, map[string]any{"message": "task deleted"})
	}
}
