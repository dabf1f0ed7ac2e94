package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"refactchat/internal/models"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("chat not found")

// DefaultPath is <UserConfigDir>/refactchat/history.db.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "refactchat", "history.db"), nil
}

// History stores finished chat threads.
type History struct {
	db *sql.DB
}

func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps the foreign_keys pragma in effect and
	// serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			is_title_generated INTEGER NOT NULL DEFAULT 0,
			tool_use TEXT NOT NULL DEFAULT '',
			last_user_prompt TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id, position);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

// SaveThread upserts the chat row and replaces its messages in one
// transaction.
func (h *History) SaveThread(ctx context.Context, thread models.ChatThread) error {
	if thread.ID == "" {
		return errors.New("save chat: empty id")
	}

	created := thread.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := thread.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	toolUse := ""
	if thread.ToolUse != nil {
		toolUse = string(*thread.ToolUse)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chats(id, created_at, updated_at, model, title, is_title_generated, tool_use, last_user_prompt)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			model = excluded.model,
			title = excluded.title,
			is_title_generated = excluded.is_title_generated,
			tool_use = excluded.tool_use,
			last_user_prompt = excluded.last_user_prompt`,
		thread.ID,
		created.Unix(),
		updated.Unix(),
		thread.Model,
		thread.Title,
		thread.IsTitleGenerated,
		toolUse,
		thread.LastUserPrompt(),
	)
	if err != nil {
		return fmt.Errorf("save chat %s: %w", thread.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", thread.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages(chat_id, position, role, body) VALUES(?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range thread.Messages {
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, thread.ID, i, m.Role, string(body)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (h *History) GetThread(ctx context.Context, id string) (models.ChatThread, error) {
	var (
		t              models.ChatThread
		created, upd   int64
		toolUse        string
		titleGenerated bool
	)
	err := h.db.QueryRowContext(ctx,
		"SELECT id, created_at, updated_at, model, title, is_title_generated, tool_use FROM chats WHERE id = ?",
		id,
	).Scan(&t.ID, &created, &upd, &t.Model, &t.Title, &titleGenerated, &toolUse)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatThread{}, ErrNotFound
	}
	if err != nil {
		return models.ChatThread{}, err
	}
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(upd, 0)
	t.IsTitleGenerated = titleGenerated
	t.Read = true
	if toolUse != "" {
		if tu, err := models.ParseToolUse(toolUse); err == nil {
			t.ToolUse = &tu
		}
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT body FROM messages WHERE chat_id = ? ORDER BY position ASC",
		id,
	)
	if err != nil {
		return models.ChatThread{}, err
	}
	defer rows.Close()

	t.Messages = []models.ChatMessage{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return models.ChatThread{}, err
		}
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return models.ChatThread{}, fmt.Errorf("decode message of chat %s: %w", id, err)
		}
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return models.ChatThread{}, err
	}
	return t, nil
}

// GetRecentChats returns one page of chats, newest first, and the total count.
func (h *History) GetRecentChats(ctx context.Context, limit, offset int) (int, []models.ChatListItem, error) {
	var count int
	if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chats").Scan(&count); err != nil {
		return 0, nil, err
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, title, updated_at, last_user_prompt, model, tool_use FROM chats
		ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	items := make([]models.ChatListItem, 0, limit)
	for rows.Next() {
		var it models.ChatListItem
		if err := rows.Scan(&it.ID, &it.Title, &it.UpdatedAtUnix, &it.LastUserPrompt, &it.ModelID, &it.ToolUse); err != nil {
			return 0, nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	return count, items, nil
}

func (h *History) DeleteChat(ctx context.Context, id string) error {
	res, err := h.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
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
