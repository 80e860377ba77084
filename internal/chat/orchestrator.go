// Package chat runs a single conversational turn: persist the user
// message, gather retrieval and child-history context, call the model,
// and persist the reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aviary-ai/aviary/internal/composer"
	"github.com/aviary-ai/aviary/internal/llm"
	"github.com/aviary-ai/aviary/internal/retrieval"
	"github.com/aviary-ai/aviary/internal/storage"
)

const (
	completionTemperature = 0.7
	completionMaxTokens   = 4000

	// childHistoryLimit caps messages per child when aggregating history
	// for a parent agent's turn.
	childHistoryLimit = 20

	// modelFailureReply stands in for the assistant when the model call
	// itself fails. The turn still completes.
	modelFailureReply = "I'm having trouble connecting to my knowledge base right now. Please try again later or ask a different question."

	// errorReply is the best-effort assistant row written when the turn
	// fails after the user message was persisted.
	errorReply = "I apologize, but I encountered an error processing your request. Please try again later."
)

// Completer produces an assistant reply for a transcript.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32, maxTokens int) (string, error)
}

// Retriever finds chunks relevant to a query for an agent.
type Retriever interface {
	Retrieve(ctx context.Context, agentID int64, query string, limit int, includeParentDocs, includeChildContext bool) (retrieval.Result, error)
}

// Aggregator renders recent child-agent conversation history.
type Aggregator interface {
	Aggregate(parentAgentID int64, perChildLimit int) (string, error)
}

// Store is the slice of the storage layer the orchestrator needs.
type Store interface {
	GetChat(id int64) (storage.Chat, error)
	GetAgent(id int64) (storage.Agent, error)
	Messages(chatID int64) ([]storage.Message, error)
	InsertMessage(m storage.Message) (storage.Message, error)
}

// Orchestrator drives one chat turn end to end.
type Orchestrator struct {
	store      Store
	retriever  Retriever
	aggregator Aggregator
	completer  Completer
	logger     *slog.Logger
}

// New creates an Orchestrator over the given collaborators.
func New(store Store, retriever Retriever, aggregator Aggregator, completer Completer) *Orchestrator {
	return &Orchestrator{
		store:      store,
		retriever:  retriever,
		aggregator: aggregator,
		completer:  completer,
		logger:     slog.Default(),
	}
}

// SendMessage appends the user's message to the chat, produces an
// assistant reply with retrieved context spliced into the system message,
// and returns the full updated transcript.
//
// An unknown chat fails before any write. Once the user message is
// persisted the turn always leaves the transcript consistent: a model
// failure is answered with a fixed fallback reply, and any later failure
// writes a best-effort apology row before returning the original error.
func (o *Orchestrator) SendMessage(ctx context.Context, chatID int64, text string) ([]storage.Message, error) {
	chat, err := o.store.GetChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %d: %w", chatID, err)
	}
	agent, err := o.store.GetAgent(chat.AgentID)
	if err != nil {
		return nil, fmt.Errorf("agent %d for chat %d: %w", chat.AgentID, chatID, err)
	}
	transcript, err := o.store.Messages(chatID)
	if err != nil {
		return nil, fmt.Errorf("loading transcript for chat %d: %w", chatID, err)
	}

	if _, err := o.store.InsertMessage(storage.Message{ChatID: chatID, Role: storage.RoleUser, Content: text}); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	msgs, err := o.respond(ctx, chat, agent, transcript, text)
	if err != nil {
		o.saveApology(chatID)
		return nil, err
	}
	return msgs, nil
}

func (o *Orchestrator) respond(ctx context.Context, chat storage.Chat, agent storage.Agent, transcript []storage.Message, text string) ([]storage.Message, error) {
	contextText := o.gatherContext(ctx, agent, text)

	prompt := composer.Splice(toPrompt(transcript), contextText)
	prompt = append(prompt, llm.Message{Role: storage.RoleUser, Content: text})

	reply, err := o.completer.Complete(ctx, prompt, completionTemperature, completionMaxTokens)
	if err != nil {
		o.logger.Warn("model call failed, using fallback reply", "chat_id", chat.ID, "error", err)
		reply = modelFailureReply
	}

	if _, err := o.store.InsertMessage(storage.Message{ChatID: chat.ID, Role: storage.RoleAssistant, Content: reply}); err != nil {
		return nil, fmt.Errorf("saving assistant message: %w", err)
	}

	msgs, err := o.store.Messages(chat.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading transcript: %w", err)
	}
	return msgs, nil
}

// gatherContext collects document chunks and, for parent agents, child
// conversation history. Context gathering never fails a turn; anything
// broken degrades to less context.
func (o *Orchestrator) gatherContext(ctx context.Context, agent storage.Agent, query string) string {
	var docContext string
	res, err := o.retriever.Retrieve(ctx, agent.ID, query, retrieval.DefaultLimit, agent.ParentID != nil, agent.IsParent)
	if err != nil {
		o.logger.Warn("context retrieval failed, continuing without documents", "agent_id", agent.ID, "error", err)
	} else {
		if res.Degraded {
			o.logger.Warn("context retrieval degraded", "agent_id", agent.ID)
		}
		docContext = composer.FormatChunks(res.Chunks)
	}

	var historyContext string
	if agent.IsParent {
		raw, err := o.aggregator.Aggregate(agent.ID, childHistoryLimit)
		if err != nil {
			o.logger.Warn("child history aggregation failed, continuing without it", "agent_id", agent.ID, "error", err)
		} else {
			historyContext = composer.FormatHistory(raw)
		}
	}

	return docContext + historyContext
}

func (o *Orchestrator) saveApology(chatID int64) {
	if _, err := o.store.InsertMessage(storage.Message{ChatID: chatID, Role: storage.RoleAssistant, Content: errorReply}); err != nil {
		o.logger.Error("saving apology reply", "chat_id", chatID, "error", err)
	}
}

func toPrompt(msgs []storage.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
