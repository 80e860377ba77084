package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aviary-ai/aviary/internal/storage"
)

// agentRequest uses pointers so updates can distinguish "field absent"
// from a zero value; only fields present in the body are applied.
type agentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ParentID    *int64  `json:"parent_id"`
	IsParent    *bool   `json:"is_parent"`
}

func handleListAgents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, err := deps.Store.ListAgents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list agents: %v", err)
			return
		}
		if agents == nil {
			agents = []storage.Agent{}
		}
		respondJSON(w, map[string]any{"agents": agents})
	}
}

func handleGetAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid agent id")
			return
		}

		agent, err := deps.Store.GetAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get agent: %v", err)
			return
		}
		respondJSON(w, map[string]any{"agent": agent})
	}
}

func handleCreateAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req agentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == nil || *req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		if req.ParentID != nil {
			if _, err := deps.Store.GetAgent(*req.ParentID); errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "parent agent not found")
				return
			} else if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to check parent agent: %v", err)
				return
			}
		}

		agent := storage.Agent{Name: *req.Name, ParentID: req.ParentID}
		if req.Description != nil {
			agent.Description = *req.Description
		}
		if req.IsParent != nil {
			agent.IsParent = *req.IsParent
		}

		agent, err := deps.Store.CreateAgent(agent)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create agent: %v", err)
			return
		}
		respondJSON(w, map[string]any{"agent": agent})
	}
}

func handleUpdateAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid agent id")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req agentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		existing, err := deps.Store.GetAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get agent: %v", err)
			return
		}

		// An agent cannot become its own parent.
		if req.ParentID != nil {
			if *req.ParentID == id {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "agent cannot be its own parent")
				return
			}
			if _, err := deps.Store.GetAgent(*req.ParentID); errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "parent agent not found")
				return
			} else if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to check parent agent: %v", err)
				return
			}
		}

		updated := existing
		if req.Name != nil && *req.Name != "" {
			updated.Name = *req.Name
		}
		if req.Description != nil {
			updated.Description = *req.Description
		}
		if req.ParentID != nil {
			updated.ParentID = req.ParentID
		}
		if req.IsParent != nil {
			updated.IsParent = *req.IsParent
		}

		if err := deps.Store.UpdateAgent(updated); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update agent: %v", err)
			return
		}
		respondJSON(w, map[string]any{"agent": updated})
	}
}

func handleDeleteAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid agent id")
			return
		}

		err = deps.Store.DeleteAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete agent: %v", err)
			return
		}
		respondJSON(w, map[string]any{"message": "agent deleted"})
	}
}
