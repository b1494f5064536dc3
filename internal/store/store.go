// Package store persists chat sessions and messages.
//
// Every implementation follows an "insert row, return inserted row" contract:
// the returned records carry the identifiers and timestamps assigned by the
// backing store, and callers display those records rather than their inputs.
package store

import (
	"context"
	"errors"
	"strings"

	"medichat/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrEmptyTitle      = errors.New("title cannot be empty")
	ErrInvalidRole     = errors.New("invalid message role")
)

// Store is the write path used by the conversation controller.
type Store interface {
	CreateSession(ctx context.Context, title string) (*models.Session, error)
	InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error)
}

// Transcripts reads back a session's messages in insertion order.
type Transcripts interface {
	ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error)
}

// Backend is a store that can also replay transcripts.
type Backend interface {
	Store
	Transcripts
}

func validateMessage(sessionID string, role models.Role, content string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session_id is required")
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}
