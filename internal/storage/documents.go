package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

func (s *Store) CreateDocument(d Document) (Document, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO documents (agent_id, filename, file_type, file_size, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.AgentID, d.Filename, d.FileType, d.FileSize, d.ContentType, now.Format(time.RFC3339),
	)
	if err != nil {
		return Document{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Document{}, err
	}
	d.ID = id
	d.CreatedAt = now
	return d, nil
}

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var d Document
	var createdAt string
	if err := row.Scan(&d.ID, &d.AgentID, &d.Filename, &d.FileType, &d.FileSize, &d.ContentType, &createdAt); err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

func (s *Store) GetDocument(id int64) (Document, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, filename, file_type, file_size, content_type, created_at
		FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

// ListDocuments returns all documents, optionally filtered by agent. Pass 0
// for agentID to list every document.
func (s *Store) ListDocuments(agentID int64) ([]Document, error) {
	query := `SELECT id, agent_id, filename, file_type, file_size, content_type, created_at
		FROM documents ORDER BY created_at DESC, id DESC`
	args := []any{}
	if agentID != 0 {
		query = `SELECT id, agent_id, filename, file_type, file_size, content_type, created_at
			FROM documents WHERE agent_id = ? ORDER BY created_at DESC, id DESC`
		args = append(args, agentID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DocumentIDsByAgents returns the IDs of every document owned by any of the
// given agents, in fetch order.
func (s *Store) DocumentIDsByAgents(agentIDs []int64) ([]int64, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(agentIDs))
	for i, id := range agentIDs {
		args[i] = id
	}
	query := `SELECT id FROM documents WHERE agent_id IN (?` +
		strings.Repeat(",?", len(agentIDs)-1) + `) ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteDocument removes a document and its chunks in one transaction.
func (s *Store) DeleteDocument(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM documents WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec("DELETE FROM document_chunks WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	return tx.Commit()
}

// --- Chunks ---

// InsertChunk writes a single document chunk with its embedding.
func (s *Store) InsertChunk(c Chunk) error {
	now := c.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO document_chunks (document_id, content, embedding, chunk_index, total_chunks, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.DocumentID, c.Content, encodeFloat32s(c.Embedding), c.ChunkIndex, c.TotalChunks, now.Format(time.RFC3339),
	)
	return err
}

// ChunksByDocuments returns every chunk belonging to any of the given
// documents, in a single batch query.
func (s *Store) ChunksByDocuments(documentIDs []int64) ([]Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		args[i] = id
	}
	query := `SELECT id, document_id, content, embedding, chunk_index, total_chunks, created_at
		FROM document_chunks WHERE document_id IN (?` +
		strings.Repeat(",?", len(documentIDs)-1) + `)`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		var createdAt string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &blob, &c.ChunkIndex, &c.TotalChunks, &createdAt); err != nil {
			return nil, err
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %d: %w", c.ID, err)
		}
		c.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of stored chunks for a document.
func (s *Store) CountChunks(documentID int64) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM document_chunks WHERE document_id = ?", documentID).Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
