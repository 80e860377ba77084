// Package composer renders retrieved context into prompt-ready text and
// splices it into a conversation transcript's system message.
package composer

import (
	"fmt"
	"strings"

	"github.com/aviary-ai/aviary/internal/llm"
	"github.com/aviary-ai/aviary/internal/retrieval"
	"github.com/aviary-ai/aviary/internal/storage"
)

const chunksPreamble = "Here is some relevant information from my knowledge base:\n\n"

// FormatChunks renders ranked chunks as labeled context blocks. An empty
// chunk list yields an empty string.
func FormatChunks(chunks []retrieval.RelevantChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(chunksPreamble)
	for _, rc := range chunks {
		label := "[Unknown Document]"
		if rc.Document != nil {
			label = fmt.Sprintf("[Document: %s]", rc.Document.Filename)
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", label, rc.Chunk.Content)
	}
	return sb.String()
}

// FormatHistory prepares aggregated child-agent history for prompt
// insertion. An empty input yields an empty string; otherwise the block is
// set off with a blank line.
func FormatHistory(raw string) string {
	if raw == "" {
		return ""
	}
	return "\n\n" + raw
}

// Splice injects context into the transcript. The context is appended to
// the first system message; if the transcript has none, a new system
// message carrying the context is prepended. An empty context leaves the
// transcript untouched. The system message is located by role, not by
// position.
func Splice(messages []llm.Message, context string) []llm.Message {
	if context == "" {
		return messages
	}

	for i := range messages {
		if messages[i].Role == storage.RoleSystem {
			messages[i].Content += "\n\n" + context
			return messages
		}
	}

	sys := llm.Message{Role: storage.RoleSystem, Content: "You are an AI assistant. " + context}
	return append([]llm.Message{sys}, messages...)
}
