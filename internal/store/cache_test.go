package store

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"medichat/internal/config"
	"medichat/internal/models"
	"medichat/internal/redis"
)

func TestCachedStoreServesTranscriptFromRedis(t *testing.T) {
	client := newRedisClient(t)
	inner := newTestSQLStore(t)
	st := NewCachedStore(inner, client, nil)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Medical Consultation")
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	if _, err := st.InsertMessage(ctx, session.ID, models.RoleAssistant, "welcome"); err != nil {
		t.Fatalf("InsertMessage error: %v", err)
	}
	if _, err := st.InsertMessage(ctx, session.ID, models.RoleUser, "question"); err != nil {
		t.Fatalf("InsertMessage error: %v", err)
	}

	items, err := client.ListAll(ctx, transcriptKey(session.ID))
	if err != nil {
		t.Fatalf("read transcript list: %v", err)
	}
	if len(items) != 3 || items[0] != transcriptHeader {
		t.Fatalf("unexpected cached list: %#v", items)
	}

	// Rows removed behind the cache's back stay visible through the cache.
	if _, err := inner.db.Exec(`DELETE FROM chat_messages WHERE session_id = ?`, session.ID); err != nil {
		t.Fatalf("delete rows: %v", err)
	}
	messages, err := st.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "welcome" || messages[1].Content != "question" {
		t.Fatalf("unexpected cached transcript: %#v", messages)
	}
}

func TestCachedStoreBackfillsOnMiss(t *testing.T) {
	client := newRedisClient(t)
	inner := newTestSQLStore(t)
	st := NewCachedStore(inner, client, nil)
	ctx := context.Background()

	session, err := inner.CreateSession(ctx, "Medical Consultation")
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	// Written without the cache: the later insert must not create a partial list.
	if _, err := inner.InsertMessage(ctx, session.ID, models.RoleAssistant, "welcome"); err != nil {
		t.Fatalf("InsertMessage error: %v", err)
	}
	if _, err := st.InsertMessage(ctx, session.ID, models.RoleUser, "question"); err != nil {
		t.Fatalf("InsertMessage error: %v", err)
	}
	if ok, err := client.Exists(ctx, transcriptKey(session.ID)); err != nil || ok {
		t.Fatalf("expected no partial transcript, exists=%v err=%v", ok, err)
	}

	messages, err := st.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	ttl, err := client.TTL(ctx, transcriptKey(session.ID))
	if err != nil || ttl <= 0 || ttl > transcriptTTL {
		t.Fatalf("expected back-filled transcript with ttl, ttl=%v err=%v", ttl, err)
	}
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed store tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Raw().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
