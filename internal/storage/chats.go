package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func scanChat(row interface{ Scan(...any) error }) (Chat, error) {
	var c Chat
	var parentChatID sql.NullInt64
	var createdAt string
	if err := row.Scan(&c.ID, &c.AgentID, &parentChatID, &c.Title, &createdAt); err != nil {
		return Chat{}, err
	}
	if parentChatID.Valid {
		c.ParentChatID = &parentChatID.Int64
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Chat{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

func (s *Store) CreateChat(c Chat) (Chat, error) {
	now := time.Now().UTC()
	var parentChatID any
	if c.ParentChatID != nil {
		parentChatID = *c.ParentChatID
	}
	res, err := s.db.Exec(`
		INSERT INTO chats (agent_id, parent_chat_id, title, created_at)
		VALUES (?, ?, ?, ?)`,
		c.AgentID, parentChatID, c.Title, now.Format(time.RFC3339),
	)
	if err != nil {
		return Chat{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Chat{}, err
	}
	c.ID = id
	c.CreatedAt = now
	return c, nil
}

func (s *Store) GetChat(id int64) (Chat, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, parent_chat_id, title, created_at
		FROM chats WHERE id = ?`, id)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

// ListChats returns an agent's chats, newest first.
func (s *Store) ListChats(agentID int64) ([]Chat, error) {
	return s.queryChats(`
		SELECT id, agent_id, parent_chat_id, title, created_at
		FROM chats WHERE agent_id = ? ORDER BY created_at DESC, id DESC`, agentID)
}

// RecentChats returns an agent's most recent chats, capped at limit.
func (s *Store) RecentChats(agentID int64, limit int) ([]Chat, error) {
	return s.queryChats(`
		SELECT id, agent_id, parent_chat_id, title, created_at
		FROM chats WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, agentID, limit)
}

// ListChatsByParent returns chats whose parent_chat_id equals the given chat.
func (s *Store) ListChatsByParent(parentChatID int64) ([]Chat, error) {
	return s.queryChats(`
		SELECT id, agent_id, parent_chat_id, title, created_at
		FROM chats WHERE parent_chat_id = ? ORDER BY created_at DESC, id DESC`, parentChatID)
}

func (s *Store) queryChats(query string, args ...any) ([]Chat, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages in one transaction.
func (s *Store) DeleteChat(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM chats WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE chat_id = ?", id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chats WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	return tx.Commit()
}

// --- Messages ---

// InsertMessage appends a message to a chat and returns it with its ID.
func (s *Store) InsertMessage(m Message) (Message, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO messages (chat_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`,
		m.ChatID, m.Role, m.Content, now.Format(time.RFC3339),
	)
	if err != nil {
		return Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	m.ID = id
	m.CreatedAt = now
	return m, nil
}

// Messages returns a chat's messages in creation order. The insert ID
// breaks ties between messages created within the same second.
func (s *Store) Messages(chatID int64) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, role, content, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// RecentNonSystemMessages returns up to limit user/assistant messages across
// the given chats, newest first.
func (s *Store) RecentNonSystemMessages(chatIDs []int64, limit int) ([]Message, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(chatIDs)+1)
	for _, id := range chatIDs {
		args = append(args, id)
	}
	args = append(args, limit)
	query := `SELECT id, chat_id, role, content, created_at
		FROM messages WHERE chat_id IN (?` + strings.Repeat(",?", len(chatIDs)-1) + `)
		AND role != 'system'
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
