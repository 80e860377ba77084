package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aviary-ai/aviary/internal/storage"
)

type chatRequest struct {
	AgentID      int64  `json:"agent_id"`
	ParentChatID *int64 `json:"parent_chat_id"`
	Title        string `json:"title"`
}

func handleCreateChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		agent, err := deps.Store.GetAgent(req.AgentID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check agent: %v", err)
			return
		}

		if req.ParentChatID != nil {
			if _, err := deps.Store.GetChat(*req.ParentChatID); errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "parent chat not found")
				return
			} else if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to check parent chat: %v", err)
				return
			}
		}

		title := req.Title
		if title == "" {
			title = fmt.Sprintf("Chat with %s", agent.Name)
		}

		chat, err := deps.Store.CreateChat(storage.Chat{
			AgentID:      req.AgentID,
			ParentChatID: req.ParentChatID,
			Title:        title,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create chat: %v", err)
			return
		}

		// Seed the persona system message. Not critical if it fails.
		_, err = deps.Store.InsertMessage(storage.Message{
			ChatID:  chat.ID,
			Role:    storage.RoleSystem,
			Content: fmt.Sprintf("You are an AI assistant named %s. %s", agent.Name, agent.Description),
		})
		if err != nil {
			slog.Warn("failed to create system message", "chat_id", chat.ID, "error", err)
		}

		respondJSON(w, map[string]any{"chat": chat})
	}
}

func handleListAgentChats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := parseID(r, "agentID")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid agent id")
			return
		}

		if _, err := deps.Store.GetAgent(agentID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check agent: %v", err)
			return
		}

		chats, err := deps.Store.ListChats(agentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list chats: %v", err)
			return
		}
		if chats == nil {
			chats = []storage.Chat{}
		}
		respondJSON(w, map[string]any{"chats": chats})
	}
}

func handleGetChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid chat id")
			return
		}

		chat, err := deps.Store.GetChat(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "chat not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get chat: %v", err)
			return
		}

		msgs, err := deps.Store.Messages(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get messages: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		respondJSON(w, map[string]any{"chat": chat, "messages": msgs})
	}
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid chat id")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		msgs, err := deps.Sender.SendMessage(r.Context(), id, req.Message)
		if errors.Is(err, storage.ErrNotFound) {
			// The wrapped error says which record was missing (chat or its
			// agent), so pass it through.
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to send message: %v", err)
			return
		}
		respondJSON(w, map[string]any{"messages": msgs})
	}
}

func handleLinkedChats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid chat id")
			return
		}

		chat, err := deps.Store.GetChat(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "chat not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get chat: %v", err)
			return
		}

		var parentChat *storage.Chat
		if chat.ParentChatID != nil {
			if p, err := deps.Store.GetChat(*chat.ParentChatID); err == nil {
				parentChat = &p
			}
		}

		childChats, err := deps.Store.ListChatsByParent(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list child chats: %v", err)
			return
		}
		if childChats == nil {
			childChats = []storage.Chat{}
		}

		respondJSON(w, map[string]any{
			"chat":       chat,
			"parentChat": parentChat,
			"childChats": childChats,
		})
	}
}

func handleAgentChatHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := parseID(r, "agentID")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid agent id")
			return
		}

		agent, err := deps.Store.GetAgent(agentID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get agent: %v", err)
			return
		}

		agentChats, err := deps.Store.ListChats(agentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list chats: %v", err)
			return
		}
		if agentChats == nil {
			agentChats = []storage.Chat{}
		}

		childAgentChats := []storage.Chat{}
		if agent.IsParent {
			children, err := deps.Store.ListChildAgents(agentID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to list child agents: %v", err)
				return
			}
			for _, child := range children {
				chats, err := deps.Store.ListChats(child.ID)
				if err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "failed to list child chats: %v", err)
					return
				}
				childAgentChats = append(childAgentChats, chats...)
			}
		}

		parentAgentChats := []storage.Chat{}
		if agent.ParentID != nil {
			chats, err := deps.Store.ListChats(*agent.ParentID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to list parent chats: %v", err)
				return
			}
			if chats != nil {
				parentAgentChats = chats
			}
		}

		respondJSON(w, map[string]any{
			"agent":            agent,
			"agentChats":       agentChats,
			"childAgentChats":  childAgentChats,
			"parentAgentChats": parentAgentChats,
		})
	}
}

func handleDeleteChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r, "id")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid chat id")
			return
		}

		// A chat that other chats link to cannot be removed.
		children, err := deps.Store.ListChatsByParent(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check child chats: %v", err)
			return
		}
		if len(children) > 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "cannot delete chat with child chats")
			return
		}

		err = deps.Store.DeleteChat(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "chat not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete chat: %v", err)
			return
		}
		respondJSON(w, map[string]any{"message": "chat deleted"})
	}
}
