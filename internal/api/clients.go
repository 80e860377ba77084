package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aviary-ai/aviary/internal/storage"
)

type clientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

func handleListClients(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := deps.Store.ListClients()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list clients: %v", err)
			return
		}
		if clients == nil {
			clients = []storage.Client{}
		}
		respondJSON(w, map[string]any{"clients": clients})
	}
}

func handleGetClient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid client id")
			return
		}

		client, err := deps.Store.GetClient(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get client: %v", err)
			return
		}
		respondJSON(w, map[string]any{"client": client})
	}
}

func handleCreateClient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req clientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		client, err := deps.Store.CreateClient(storage.Client{
			Name:    req.Name,
			Email:   req.Email,
			Company: req.Company,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create client: %v", err)
			return
		}
		respondJSON(w, map[string]any{"client": client})
	}
}

func handleUpdateClient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid client id")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req clientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		existing, err := deps.Store.GetClient(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get client: %v", err)
			return
		}

		updated := existing
		if req.Name != "" {
			updated.Name = req.Name
		}
		if req.Email != "" {
			updated.Email = req.Email
		}
		if req.Company != "" {
			updated.Company = req.Company
		}

		if err := deps.Store.UpdateClient(updated); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update client: %v", err)
			return
		}
		respondJSON(w, map[string]any{"client": updated})
	}
}

func handleDeleteClient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid client id")
			return
		}

		err = deps.Store.DeleteClient(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete client: %v", err)
			return
		}
		respondJSON(w, map[string]any{"message": "client deleted"})
	}
}
