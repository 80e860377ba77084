// Package retrieval ranks stored document chunks against a query by
// cosine similarity, scoped to an agent and optionally its parent and
// children.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aviary-ai/aviary/internal/storage"
)

// DefaultLimit is the number of chunks returned when the caller passes a
// non-positive limit.
const DefaultLimit = 5

// Embedder generates embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the slice of the storage layer the retriever needs.
type Store interface {
	GetAgent(id int64) (storage.Agent, error)
	ListChildAgents(parentID int64) ([]storage.Agent, error)
	DocumentIDsByAgents(agentIDs []int64) ([]int64, error)
	ChunksByDocuments(documentIDs []int64) ([]storage.Chunk, error)
	GetDocument(id int64) (storage.Document, error)
}

// RelevantChunk is a document chunk paired with its similarity score and,
// when resolvable, its owning document. It exists only for the duration of
// one retrieval call.
type RelevantChunk struct {
	Chunk      storage.Chunk     `json:"chunk"`
	Similarity float64           `json:"similarity"`
	Document   *storage.Document `json:"document,omitempty"`
}

// Result carries the ranked chunks plus a flag distinguishing "nothing
// relevant" from "context lookup broke and was degraded to empty".
type Result struct {
	Chunks   []RelevantChunk
	Degraded bool
}

// Retriever combines embedding and similarity scoring over stored chunks.
type Retriever struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// New creates a Retriever backed by the given store and embedder.
func New(store Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder, logger: slog.Default()}
}

// Retrieve embeds the query and returns the top-limit chunks from the
// agent's candidate documents, ranked by descending cosine similarity.
// Candidates always include the agent's own documents; the parent's when
// includeParentDocs is set and the agent has a parent; every child's when
// includeChildContext is set and the agent is a parent.
//
// Hard errors are limited to an unknown agent and a failed query
// embedding. Everything downstream of a successful chunk fetch degrades
// to an empty, flagged Result so retrieval never blocks a chat turn.
func (r *Retriever) Retrieve(ctx context.Context, agentID int64, query string, limit int, includeParentDocs, includeChildContext bool) (Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, fmt.Errorf("agent %d: %w", agentID, err)
		}
		return Result{}, fmt.Errorf("loading agent %d: %w", agentID, err)
	}

	agentIDs := []int64{agentID}
	if includeParentDocs && agent.ParentID != nil && *agent.ParentID != agentID {
		agentIDs = append(agentIDs, *agent.ParentID)
	}
	if includeChildContext && agent.IsParent {
		children, err := r.store.ListChildAgents(agentID)
		if err != nil {
			r.logger.Warn("retrieval degraded: listing child agents", "agent_id", agentID, "error", err)
			return Result{Degraded: true}, nil
		}
		for _, child := range children {
			if child.ID != agentID {
				agentIDs = append(agentIDs, child.ID)
			}
		}
	}

	docIDs, err := r.store.DocumentIDsByAgents(agentIDs)
	if err != nil {
		r.logger.Warn("retrieval degraded: resolving documents", "agent_id", agentID, "error", err)
		return Result{Degraded: true}, nil
	}
	if len(docIDs) == 0 {
		return Result{}, nil
	}

	chunks, err := r.store.ChunksByDocuments(docIDs)
	if err != nil {
		if storage.SchemaMissing(err) {
			r.logger.Warn("retrieval degraded: chunk table not provisioned", "agent_id", agentID)
		} else {
			r.logger.Warn("retrieval degraded: fetching chunks", "agent_id", agentID, "error", err)
		}
		return Result{Degraded: true}, nil
	}
	if len(chunks) == 0 {
		return Result{}, nil
	}

	scored := make([]RelevantChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = RelevantChunk{Chunk: c, Similarity: Cosine(queryVec, c.Embedding)}
	}

	// Stable sort keeps fetch order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	for i := range scored {
		doc, err := r.store.GetDocument(scored[i].Chunk.DocumentID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.Warn("retrieval degraded: resolving chunk document", "document_id", scored[i].Chunk.DocumentID, "error", err)
			return Result{Degraded: true}, nil
		}
		scored[i].Document = &doc
	}

	return Result{Chunks: scored}, nil
}
