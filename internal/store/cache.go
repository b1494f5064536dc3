package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"medichat/internal/models"
	"medichat/internal/redis"
)

const (
	transcriptTTL = 30 * time.Minute
	// first element of every cached transcript; its presence means the list is complete
	transcriptHeader = "#transcript"
)

// CachedStore mirrors transcripts into redis lists in front of another backend.
// Cache failures are logged and never fail a write.
type CachedStore struct {
	inner  Backend
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewCachedStore wraps inner with a redis transcript cache.
func NewCachedStore(inner Backend, client *redis.Client, log logrus.FieldLogger) *CachedStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedStore{inner: inner, client: client, ttl: transcriptTTL, log: log}
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("medichat:session:%s:messages", sessionID)
}

// CreateSession creates the session and seeds an empty cached transcript.
func (c *CachedStore) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	session, err := c.inner.CreateSession(ctx, title)
	if err != nil {
		return nil, err
	}
	key := transcriptKey(session.ID)
	if err := c.client.Del(ctx, key); err != nil {
		c.log.WithError(err).WithField("session_id", session.ID).Warn("reset cached transcript failed")
		return session, nil
	}
	if err := c.client.AppendList(ctx, key, c.ttl, transcriptHeader); err != nil {
		c.log.WithError(err).WithField("session_id", session.ID).Warn("seed cached transcript failed")
	}
	return session, nil
}

// InsertMessage writes through to the inner store, then extends the cached transcript if present.
func (c *CachedStore) InsertMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error) {
	msg, err := c.inner.InsertMessage(ctx, sessionID, role, content)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Warn("encode cached message failed")
		c.invalidate(ctx, sessionID)
		return msg, nil
	}
	if _, err := c.client.ExtendList(ctx, transcriptKey(sessionID), c.ttl, payload); err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("extend cached transcript failed")
		c.invalidate(ctx, sessionID)
	}
	return msg, nil
}

// ListMessages serves the cached transcript, falling back to the inner store and back-filling.
func (c *CachedStore) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	if cached, ok := c.load(ctx, sessionID); ok {
		return cached, nil
	}
	messages, err := c.inner.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, sessionID, messages)
	return messages, nil
}

func (c *CachedStore) load(ctx context.Context, sessionID string) ([]*models.Message, bool) {
	items, err := c.client.ListAll(ctx, transcriptKey(sessionID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.log.WithError(err).WithField("session_id", sessionID).Warn("read cached transcript failed")
		}
		return nil, false
	}
	if len(items) == 0 || items[0] != transcriptHeader {
		c.invalidate(ctx, sessionID)
		return nil, false
	}
	messages := make([]*models.Message, 0, len(items)-1)
	for _, item := range items[1:] {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			c.log.WithError(err).WithField("session_id", sessionID).Warn("decode cached message failed")
			c.invalidate(ctx, sessionID)
			return nil, false
		}
		messages = append(messages, &m)
	}
	return messages, true
}

func (c *CachedStore) fill(ctx context.Context, sessionID string, messages []*models.Message) {
	values := make([]interface{}, 0, len(messages)+1)
	values = append(values, transcriptHeader)
	for _, m := range messages {
		payload, err := json.Marshal(m)
		if err != nil {
			return
		}
		values = append(values, payload)
	}
	key := transcriptKey(sessionID)
	if err := c.client.Del(ctx, key); err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("reset cached transcript failed")
		return
	}
	if err := c.client.AppendList(ctx, key, c.ttl, values...); err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("fill cached transcript failed")
	}
}

func (c *CachedStore) invalidate(ctx context.Context, sessionID string) {
	if err := c.client.Del(ctx, transcriptKey(sessionID)); err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("invalidate cached transcript failed")
	}
}
