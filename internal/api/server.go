// Package api exposes the agent, client, task, document, and chat
// operations over HTTP, plus an MCP tool surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aviary-ai/aviary/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Sender runs one chat turn and returns the updated transcript.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) ([]storage.Message, error)
}

// Ingestor processes an uploaded file into stored chunks.
type Ingestor interface {
	Process(ctx context.Context, documentID int64, path, fileType string) error
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store     *storage.Store
	Sender    Sender
	Ingestor  Ingestor
	UploadDir string
}

// NewHandler builds the full HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Get("/api/agents", handleListAgents(deps))
	r.Post("/api/agents", handleCreateAgent(deps))
	r.Get("/api/agents/{id}", handleGetAgent(deps))
	r.Put("/api/agents/{id}", handleUpdateAgent(deps))
	r.Delete("/api/agents/{id}", handleDeleteAgent(deps))

	r.Get("/api/clients", handleListClients(deps))
	r.Post("/api/clients", handleCreateClient(deps))
	r.Get("/api/clients/{id}", handleGetClient(deps))
	r.Put("/api/clients/{id}", handleUpdateClient(deps))
	r.Delete("/api/clients/{id}", handleDeleteClient(deps))

	r.Get("/api/tasks", handleListTasks(deps))
	r.Post("/api/tasks", handleCreateTask(deps))
	r.Get("/api/tasks/{id}", handleGetTask(deps))
	r.Put("/api/tasks/{id}/status", handleUpdateTaskStatus(deps))
	r.Delete("/api/tasks/{id}", handleDeleteTask(deps))

	r.Get("/api/documents", handleListDocuments(deps))
	r.Post("/api/documents", handleUploadDocument(deps))
	r.Get("/api/documents/{id}", handleGetDocument(deps))
	r.Delete("/api/documents/{id}", handleDeleteDocument(deps))

	r.Post("/api/chats", handleCreateChat(deps))
	r.Get("/api/chats/agent/{agentID}", handleListAgentChats(deps))
	r.Get("/api/chats/agent/{agentID}/chat-history", handleAgentChatHistory(deps))
	r.Get("/api/chats/{id}", handleGetChat(deps))
	r.Post("/api/chats/{id}/message", handleSendMessage(deps))
	r.Get("/api/chats/{id}/linked-chats", handleLinkedChats(deps))
	r.Delete("/api/chats/{id}", handleDeleteChat(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// respondJSON writes the payload with the success flag set.
func respondJSON(w http.ResponseWriter, payload map[string]any) {
	payload["success"] = true
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

// parseIntQuery reads an optional non-negative integer query parameter,
// returning defaultVal when absent or malformed.
func parseIntQuery(r *http.Request, key string, defaultVal int64) int64 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
