package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateClient(c Client) (Client, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO clients (name, email, company, created_at)
		VALUES (?, ?, ?, ?)`,
		c.Name, c.Email, c.Company, now.Format(time.RFC3339),
	)
	if err != nil {
		return Client{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Client{}, err
	}
	c.ID = id
	c.CreatedAt = now
	return c, nil
}

func (s *Store) GetClient(id int64) (Client, error) {
	var c Client
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, name, email, company, created_at
		FROM clients WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Company, &createdAt)
	if err == sql.ErrNoRows {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Client{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

func (s *Store) ListClients() ([]Client, error) {
	rows, err := s.db.Query(`
		SELECT id, name, email, company, created_at
		FROM clients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *Store) UpdateClient(c Client) error {
	res, err := s.db.Exec(`
		UPDATE clients SET name = ?, email = ?, company = ? WHERE id = ?`,
		c.Name, c.Email, c.Company, c.ID,
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

func (s *Store) DeleteClient(id int64) error {
	res, err := s.db.Exec("DELETE FROM clients WHERE id = ?", id)
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
