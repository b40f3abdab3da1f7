package store

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"
)

// Store is the sqlite-backed persistence layer: chat history, reminders,
// the per-chat last-command record and the durable agent context.
type Store struct {
	DB *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			description TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
		`CREATE TABLE IF NOT EXISTS last_commands (
			chat_id TEXT PRIMARY KEY,
			payload TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS agent_contexts (
			chat_id TEXT PRIMARY KEY,
			payload TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) AddMessage(chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := s.DB.Exec(query, chatID, role, content)
	return err
}

func (s *Store) GetHistory(chatID string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "human":
			msgRole = llms.ChatMessageTypeHuman
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.MessageContent{
			Role: msgRole,
			Parts: []llms.ContentPart{
				llms.TextPart(content),
			},
		})
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// Reminders

func (s *Store) AddReminder(chatID string, description string, intervalSeconds int) error {
	query := `INSERT INTO reminders (chat_id, description, interval_seconds, last_run) VALUES (?, ?, ?, datetime('now', '-365 days'))`
	_, err := s.DB.Exec(query, chatID, description, intervalSeconds)
	return err
}

func (s *Store) GetDueReminders() ([]map[string]any, error) {
	query := `
		SELECT id, chat_id, description, interval_seconds, last_run
		FROM reminders
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`
	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []map[string]any
	for rows.Next() {
		var id, interval int
		var chatID, desc, lastRun string
		if err := rows.Scan(&id, &chatID, &desc, &interval, &lastRun); err != nil {
			return nil, err
		}
		due = append(due, map[string]any{
			"id":               id,
			"chat_id":          chatID,
			"description":      desc,
			"interval_seconds": interval,
		})
	}
	return due, nil
}

func (s *Store) UpdateReminderLastRun(id int) error {
	query := `UPDATE reminders SET last_run = datetime('now') WHERE id = ?`
	_, err := s.DB.Exec(query, id)
	return err
}

func (s *Store) DeleteReminder(chatID string, id int) error {
	query := `DELETE FROM reminders WHERE chat_id = ? AND id = ?`
	_, err := s.DB.Exec(query, chatID, id)
	return err
}

func (s *Store) ClearReminders(chatID string) error {
	query := `DELETE FROM reminders WHERE chat_id = ?`
	_, err := s.DB.Exec(query, chatID)
	return err
}

// Last command and agent context are stored as opaque JSON payloads owned
// by the agent core; last-writer-wins per chat.

func (s *Store) GetLastCommand(chatID string) ([]byte, error) {
	return s.getPayload(`SELECT payload FROM last_commands WHERE chat_id = ?`, chatID)
}

func (s *Store) SetLastCommand(chatID string, payload []byte) error {
	query := `INSERT INTO last_commands (chat_id, payload, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(chat_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	_, err := s.DB.Exec(query, chatID, string(payload))
	return err
}

func (s *Store) GetAgentContext(chatID string) ([]byte, error) {
	return s.getPayload(`SELECT payload FROM agent_contexts WHERE chat_id = ?`, chatID)
}

func (s *Store) SetAgentContext(chatID string, payload []byte) error {
	query := `INSERT INTO agent_contexts (chat_id, payload, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(chat_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	_, err := s.DB.Exec(query, chatID, string(payload))
	return err
}

func (s *Store) getPayload(query string, chatID string) ([]byte, error) {
	var payload string
	err := s.DB.QueryRow(query, chatID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}
