package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/aviary-ai/aviary/internal/storage"
)

// fakeEmbedder maps known strings to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func seedAgentWithChunks(t *testing.T, s *storage.Store, name string, parentID *int64, isParent bool, chunks map[string][]float32) storage.Agent {
	t.Helper()
	agent, err := s.CreateAgent(storage.Agent{Name: name, ParentID: parentID, IsParent: isParent})
	if err != nil {
		t.Fatalf("CreateAgent %s: %v", name, err)
	}
	if len(chunks) == 0 {
		return agent
	}
	doc, err := s.CreateDocument(storage.Document{AgentID: agent.ID, Filename: name + ".txt", FileType: "txt"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	i := 0
	for content, vec := range chunks {
		if err := s.InsertChunk(storage.Chunk{DocumentID: doc.ID, Content: content, Embedding: vec, ChunkIndex: i, TotalChunks: len(chunks)}); err != nil {
			t.Fatalf("InsertChunk: %v", err)
		}
		i++
	}
	return agent
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgentWithChunks(t, s, "solo", nil, false, map[string][]float32{
		"exact match":   {1, 0, 0},
		"close match":   {0.9, 0.1, 0},
		"unrelated":     {0, 1, 0},
		"anti-match":    {-1, 0, 0},
		"partial match": {0.5, 0.5, 0},
	})

	emb := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	r := New(s, emb)

	res, err := r.Retrieve(context.Background(), agent.ID, "query", 3, false, false)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(res.Chunks))
	}
	if res.Chunks[0].Chunk.Content != "exact match" {
		t.Errorf("top chunk = %q, want exact match", res.Chunks[0].Chunk.Content)
	}
	for i := 1; i < len(res.Chunks); i++ {
		if res.Chunks[i].Similarity > res.Chunks[i-1].Similarity {
			t.Errorf("chunks not in descending order at %d", i)
		}
	}
	if res.Chunks[0].Document == nil || res.Chunks[0].Document.Filename != "solo.txt" {
		t.Errorf("top chunk document = %+v, want solo.txt", res.Chunks[0].Document)
	}
}

func TestRetrieveUnknownAgent(t *testing.T) {
	s := openTestStore(t)
	r := New(s, &fakeEmbedder{})

	_, err := r.Retrieve(context.Background(), 99, "query", 5, false, false)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgentWithChunks(t, s, "a", nil, false, nil)
	r := New(s, &fakeEmbedder{err: errors.New("provider down")})

	if _, err := r.Retrieve(context.Background(), agent.ID, "query", 5, false, false); err == nil {
		t.Error("expected error when embedding fails")
	}
}

func TestRetrieveNoDocuments(t *testing.T) {
	s := openTestStore(t)
	agent := seedAgentWithChunks(t, s, "empty", nil, false, nil)
	r := New(s, &fakeEmbedder{})

	res, err := r.Retrieve(context.Background(), agent.ID, "query", 5, false, false)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Degraded || len(res.Chunks) != 0 {
		t.Errorf("got %+v, want empty non-degraded result", res)
	}
}

func TestRetrieveParentDocs(t *testing.T) {
	s := openTestStore(t)
	parent := seedAgentWithChunks(t, s, "parent", nil, true, map[string][]float32{
		"parent knowledge": {1, 0, 0},
	})
	child := seedAgentWithChunks(t, s, "child", &parent.ID, false, map[string][]float32{
		"child knowledge": {0.5, 0.5, 0},
	})

	emb := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	r := New(s, emb)

	// Parent docs excluded.
	res, err := r.Retrieve(context.Background(), child.ID, "query", 5, false, false)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Content != "child knowledge" {
		t.Fatalf("without parent docs: got %d chunks", len(res.Chunks))
	}

	// Parent docs included and ranked above the weaker child chunk.
	res, err = r.Retrieve(context.Background(), child.ID, "query", 5, true, false)
	if err != nil {
		t.Fatalf("Retrieve with parent docs: %v", err)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("with parent docs: got %d chunks, want 2", len(res.Chunks))
	}
	if res.Chunks[0].Chunk.Content != "parent knowledge" {
		t.Errorf("top chunk = %q, want parent knowledge", res.Chunks[0].Chunk.Content)
	}
}

func TestRetrieveChildDocs(t *testing.T) {
	s := openTestStore(t)
	parent := seedAgentWithChunks(t, s, "parent", nil, true, nil)
	seedAgentWithChunks(t, s, "child", &parent.ID, false, map[string][]float32{
		"child knowledge": {1, 0, 0},
	})

	emb := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	r := New(s, emb)

	res, err := r.Retrieve(context.Background(), parent.ID, "query", 5, false, false)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("without child context: got %d chunks, want 0", len(res.Chunks))
	}

	res, err = r.Retrieve(context.Background(), parent.ID, "query", 5, false, true)
	if err != nil {
		t.Fatalf("Retrieve with child context: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Content != "child knowledge" {
		t.Errorf("with child context: got %+v", res.Chunks)
	}
}

func TestRetrieveLimitDefault(t *testing.T) {
	s := openTestStore(t)
	chunks := make(map[string][]float32)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		chunks[name] = []float32{1, 0, 0}
	}
	agent := seedAgentWithChunks(t, s, "many", nil, false, chunks)

	r := New(s, &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}})
	res, err := r.Retrieve(context.Background(), agent.ID, "query", 0, false, false)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Chunks) != DefaultLimit {
		t.Errorf("got %d chunks, want default limit %d", len(res.Chunks), DefaultLimit)
	}
}
