// Package ingest turns an uploaded file into embedded, queryable chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aviary-ai/aviary/internal/extract"
	"github.com/aviary-ai/aviary/internal/storage"
)

// Embedder generates embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the slice of the storage layer the processor needs.
type Store interface {
	InsertChunk(c storage.Chunk) error
}

// Processor runs the extract, chunk, embed, persist pipeline for one
// document at a time.
type Processor struct {
	store        Store
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// New creates a Processor with the default chunking parameters.
func New(store Store, embedder Embedder) *Processor {
	return &Processor{
		store:        store,
		embedder:     embedder,
		chunkSize:    extract.DefaultChunkSize,
		chunkOverlap: extract.DefaultChunkOverlap,
		logger:       slog.Default(),
	}
}

// Process extracts text from the file at path, chunks it, and stores one
// embedded chunk row per piece. Chunks are embedded and inserted
// sequentially in order, so a failure partway leaves a readable prefix.
//
// A missing chunk table is tolerated: the document stays uploaded and
// Process reports success with zero chunks stored.
func (p *Processor) Process(ctx context.Context, documentID int64, path, fileType string) error {
	text, err := extract.Text(path, fileType)
	if err != nil {
		return fmt.Errorf("extracting document %d: %w", documentID, err)
	}

	chunks := extract.Chunks(text, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		p.logger.Info("document produced no chunks", "document_id", documentID)
		return nil
	}

	for i, content := range chunks {
		embedding, err := p.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embedding chunk %d/%d of document %d: %w", i+1, len(chunks), documentID, err)
		}

		err = p.store.InsertChunk(storage.Chunk{
			DocumentID:  documentID,
			Content:     content,
			Embedding:   embedding,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
		})
		if err != nil {
			if storage.SchemaMissing(err) {
				p.logger.Warn("chunk table not provisioned, document left unindexed", "document_id", documentID)
				return nil
			}
			return fmt.Errorf("storing chunk %d/%d of document %d: %w", i+1, len(chunks), documentID, err)
		}
	}

	p.logger.Info("document processed", "document_id", documentID, "chunks", len(chunks))
	return nil
}
