package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medichat/internal/models"
)

// RESTConfig describes a hosted table API speaking the PostgREST dialect.
type RESTConfig struct {
	BaseURL       string
	APIKey        string
	SessionsTable string
	MessagesTable string
	// Timeout bounds each request when HTTPClient is nil. Zero means no limit.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RESTStore persists rows through a hosted backend-as-a-service table API.
type RESTStore struct {
	baseURL       string
	apiKey        string
	sessionsTable string
	messagesTable string
	client        *http.Client
}

// NewRESTStore validates cfg and returns a store bound to it.
func NewRESTStore(cfg RESTConfig) (*RESTStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("rest base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse rest base url: %w", err)
	}
	sessions := cfg.SessionsTable
	if sessions == "" {
		sessions = "chat_sessions"
	}
	messages := cfg.MessagesTable
	if messages == "" {
		messages = "chat_messages"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RESTStore{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		sessionsTable: sessions,
		messagesTable: messages,
		client:        client,
	}, nil
}

// restID carries a primary key of any column type. Numeric keys are sent
// back as JSON numbers, everything else as strings.
type restID string

func (id *restID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = restID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported id %s", data)
		}
		*id = restID(n.String())
	}
	return nil
}

func (id restID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id restID) numeric() bool {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

type restSession struct {
	ID        restID    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type restMessage struct {
	ID        restID      `json:"id,omitempty"`
	SessionID restID      `json:"session_id"`
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt *time.Time  `json:"created_at,omitempty"`
}

func (m restMessage) toModel() *models.Message {
	msg := &models.Message{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Role:      m.Role,
		Content:   m.Content,
	}
	if m.CreatedAt != nil {
		msg.CreatedAt = *m.CreatedAt
	}
	return msg
}

// CreateSession inserts a row into the sessions table and returns it.
func (s *RESTStore) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	var rows []restSession
	if err := s.insert(ctx, s.sessionsTable, map[string]string{"title": title}, &rows); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return nil, errors.New("create session: no row returned")
	}
	row := rows[0]
	session := &models.Session{ID: string(row.ID), Title: row.Title, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	return session, nil
}

// InsertMessage inserts a row into the messages table and returns it.
func (s *RESTStore) InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error) {
	if err := validateMessage(sessionID, role, content); err != nil {
		return nil, err
	}
	var rows []restMessage
	body := restMessage{SessionID: restID(sessionID), Role: role, Content: content}
	if err := s.insert(ctx, s.messagesTable, body, &rows); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("insert message: no row returned")
	}
	return rows[0].toModel(), nil
}

// ListMessages fetches the session's rows in insertion order. Keys need not
// be sequential, so rows are ordered by creation time first.
func (s *RESTStore) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("session_id", "eq."+sessionID)
	q.Set("order", "created_at.asc,id.asc")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL(s.messagesTable)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	s.authorize(req)

	var rows []restMessage
	if err := s.do(req, &rows); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages := make([]*models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toModel())
	}
	return messages, nil
}

func (s *RESTStore) insert(ctx context.Context, table string, row interface{}, out interface{}) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tableURL(table), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build insert request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	return s.do(req, out)
}

func (s *RESTStore) tableURL(table string) string {
	return s.baseURL + "/rest/v1/" + url.PathEscape(table)
}

func (s *RESTStore) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func (s *RESTStore) do(req *http.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("table api status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("table api status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}
