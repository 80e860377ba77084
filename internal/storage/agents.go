package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func scanAgent(row interface{ Scan(...any) error }) (Agent, error) {
	var a Agent
	var parentID sql.NullInt64
	var isParent int
	var createdAt string
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &parentID, &isParent, &createdAt); err != nil {
		return Agent{}, err
	}
	if parentID.Valid {
		a.ParentID = &parentID.Int64
	}
	a.IsParent = isParent != 0
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Agent{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	return a, nil
}

// CreateAgent inserts an agent and returns it with its assigned ID.
func (s *Store) CreateAgent(a Agent) (Agent, error) {
	now := time.Now().UTC()
	var parentID any
	if a.ParentID != nil {
		parentID = *a.ParentID
	}
	res, err := s.db.Exec(`
		INSERT INTO agents (name, description, parent_id, is_parent, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.Description, parentID, boolToInt(a.IsParent), now.Format(time.RFC3339),
	)
	if err != nil {
		return Agent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Agent{}, err
	}
	a.ID = id
	a.CreatedAt = now
	return a, nil
}

func (s *Store) GetAgent(id int64) (Agent, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, parent_id, is_parent, created_at
		FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, err
	}
	return a, nil
}

func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, parent_id, is_parent, created_at
		FROM agents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListChildAgents returns all agents whose parent_id equals the given agent.
func (s *Store) ListChildAgents(parentID int64) ([]Agent, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, parent_id, is_parent, created_at
		FROM agents WHERE parent_id = ? ORDER BY id ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) UpdateAgent(a Agent) error {
	var parentID any
	if a.ParentID != nil {
		parentID = *a.ParentID
	}
	res, err := s.db.Exec(`
		UPDATE agents SET name = ?, description = ?, parent_id = ?, is_parent = ?
		WHERE id = ?`,
		a.Name, a.Description, parentID, boolToInt(a.IsParent), a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes an agent along with its documents, chunks, chats,
// and messages in one transaction.
func (s *Store) DeleteAgent(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM agents WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	stmts := []string{
		"DELETE FROM document_chunks WHERE document_id IN (SELECT id FROM documents WHERE agent_id = ?)",
		"DELETE FROM documents WHERE agent_id = ?",
		"DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE agent_id = ?)",
		"DELETE FROM chats WHERE agent_id = ?",
		"DELETE FROM tasks WHERE agent_id = ?",
		"DELETE FROM agents WHERE id = ?",
	}
	for _, q := range stmts {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("cascading agent delete: %w", err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
