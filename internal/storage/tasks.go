package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var clientID sql.NullInt64
	var createdAt string
	if err := row.Scan(&t.ID, &t.AgentID, &clientID, &t.Title, &t.Description, &t.Status, &createdAt); err != nil {
		return Task{}, err
	}
	if clientID.Valid {
		t.ClientID = &clientID.Int64
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Task{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.CreatedAt = ts
	return t, nil
}

func (s *Store) CreateTask(t Task) (Task, error) {
	now := time.Now().UTC()
	if t.Status == "" {
		t.Status = "pending"
	}
	var clientID any
	if t.ClientID != nil {
		clientID = *t.ClientID
	}
	res, err := s.db.Exec(`
		INSERT INTO tasks (agent_id, client_id, title, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.AgentID, clientID, t.Title, t.Description, t.Status, now.Format(time.RFC3339),
	)
	if err != nil {
		return Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, err
	}
	t.ID = id
	t.CreatedAt = now
	return t, nil
}

func (s *Store) GetTask(id int64) (Task, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, client_id, title, description, status, created_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// ListTasks returns all tasks, optionally filtered by agent. Pass 0 for
// agentID to list every task.
func (s *Store) ListTasks(agentID int64) ([]Task, error) {
	query := `SELECT id, agent_id, client_id, title, description, status, created_at
		FROM tasks ORDER BY created_at DESC, id DESC`
	args := []any{}
	if agentID != 0 {
		query = `SELECT id, agent_id, client_id, title, description, status, created_at
			FROM tasks WHERE agent_id = ? ORDER BY created_at DESC, id DESC`
		args = append(args, agentID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateTaskStatus(id int64, status string) error {
	res, err := s.db.Exec("UPDATE tasks SET status = ? WHERE id = ?", status, id)
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

func (s *Store) DeleteTask(id int64) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
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
