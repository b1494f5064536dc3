package models

import "time"

// Session groups the messages of one conversation. IDs are assigned by the
// store and treated as opaque strings.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
