package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"medichat/internal/models"
)

// SQLStore keeps sessions and messages in the tables created by storage.Migrate.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore builds a store over an opened and migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateSession inserts a new session and returns the record.
func (s *SQLStore) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (title, created_at, updated_at) VALUES (?, ?, ?)`,
		title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return &models.Session{ID: formatRowID(id), Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// InsertMessage stores a message and touches the session's updated_at timestamp.
func (s *SQLStore) InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error) {
	if err := validateMessage(sessionID, role, content); err != nil {
		return nil, err
	}
	rowID, ok := parseRowID(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_sessions WHERE id = ?)`, rowID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		rowID, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, rowID); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return &models.Message{
		ID:        formatRowID(id),
		SessionID: formatRowID(rowID),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// ListMessages returns the session's messages in insertion order.
func (s *SQLStore) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rowID, ok := parseRowID(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_sessions WHERE id = ?)`, rowID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY id ASC`,
		rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var id, sid int64
		m := new(models.Message)
		if err := rows.Scan(&id, &sid, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID, m.SessionID = formatRowID(id), formatRowID(sid)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// parseRowID maps an opaque id onto an integer primary key. Ids this store
// never issued match no row.
func parseRowID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	return n, err == nil && n > 0
}

func formatRowID(id int64) string {
	return strconv.FormatInt(id, 10)
}
