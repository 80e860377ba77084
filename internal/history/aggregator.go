// Package history gathers recent question/answer pairs from a parent
// agent's children for prompt injection.
package history

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aviary-ai/aviary/internal/storage"
)

const (
	// DefaultPerChildLimit caps the messages considered per child agent.
	DefaultPerChildLimit = 10
	// recentChatCount is how many of a child's latest chats are scanned.
	recentChatCount = 3
)

// Store is the slice of the storage layer the aggregator needs.
type Store interface {
	ListChildAgents(parentID int64) ([]storage.Agent, error)
	RecentChats(agentID int64, limit int) ([]storage.Chat, error)
	RecentNonSystemMessages(chatIDs []int64, limit int) ([]storage.Message, error)
}

// Aggregator renders child-agent conversation history for a parent agent.
type Aggregator struct {
	store  Store
	logger *slog.Logger
}

// New creates an Aggregator over the given store.
func New(store Store) *Aggregator {
	return &Aggregator{store: store, logger: slog.Default()}
}

type qaPair struct {
	question string
	answer   string
}

// Aggregate returns the recent Q/A pairs of every child of the given
// parent agent, grouped under one heading per child. A child that fails to
// load or has no history contributes nothing; an agent with no children
// yields an empty string.
func (a *Aggregator) Aggregate(parentAgentID int64, perChildLimit int) (string, error) {
	if perChildLimit <= 0 {
		perChildLimit = DefaultPerChildLimit
	}

	children, err := a.store.ListChildAgents(parentAgentID)
	if err != nil {
		return "", fmt.Errorf("listing child agents of %d: %w", parentAgentID, err)
	}

	var sb strings.Builder
	for _, child := range children {
		section, err := a.childSection(child, perChildLimit)
		if err != nil {
			a.logger.Warn("skipping child agent history", "child_id", child.ID, "error", err)
			continue
		}
		if section == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(section)
	}
	return sb.String(), nil
}

func (a *Aggregator) childSection(child storage.Agent, limit int) (string, error) {
	chats, err := a.store.RecentChats(child.ID, recentChatCount)
	if err != nil {
		return "", fmt.Errorf("loading recent chats: %w", err)
	}
	if len(chats) == 0 {
		return "", nil
	}

	chatIDs := make([]int64, len(chats))
	for i, c := range chats {
		chatIDs[i] = c.ID
	}

	msgs, err := a.store.RecentNonSystemMessages(chatIDs, limit)
	if err != nil {
		return "", fmt.Errorf("loading messages: %w", err)
	}

	pairs := pairMessages(msgs)
	if len(pairs) == 0 {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### Conversations with %s:\n", child.Name)
	for _, p := range pairs {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", p.question, p.answer)
	}
	return sb.String(), nil
}

// pairMessages turns a newest-first message list into chronological Q/A
// pairs. Transcripts don't always alternate cleanly, so only a user
// message immediately followed by an assistant message forms a pair;
// anything else is skipped.
func pairMessages(msgs []storage.Message) []qaPair {
	// Reverse into chronological order.
	ordered := make([]storage.Message, len(msgs))
	for i, m := range msgs {
		ordered[len(msgs)-1-i] = m
	}

	var pairs []qaPair
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].Role == storage.RoleUser && ordered[i+1].Role == storage.RoleAssistant {
			pairs = append(pairs, qaPair{question: ordered[i].Content, answer: ordered[i+1].Content})
			i++
		}
	}
	return pairs
}
