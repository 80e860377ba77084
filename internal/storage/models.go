package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Agent is a configured chat persona. Agents form a one-level hierarchy:
// an agent with ParentID set is a child, and an agent with IsParent true
// may own zero or more children.
type Agent struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	IsParent    bool      `json:"is_parent"`
	CreatedAt   time.Time `json:"created_at"`
}

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID          int64     `json:"id"`
	AgentID     int64     `json:"agent_id"`
	ClientID    *int64    `json:"client_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // "pending", "in_progress", "completed"
	CreatedAt   time.Time `json:"created_at"`
}

// Document is an uploaded file owned by exactly one agent. FileType is one
// of "pdf", "docx", "txt".
type Document struct {
	ID          int64     `json:"id"`
	AgentID     int64     `json:"agent_id"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is one extracted segment of a document paired with its embedding.
// ChunkIndex gives the segment's position within the document; storage
// order carries no meaning.
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

type Chat struct {
	ID           int64     `json:"id"`
	AgentID      int64     `json:"agent_id"`
	ParentChatID *int64    `json:"parent_chat_id,omitempty"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
