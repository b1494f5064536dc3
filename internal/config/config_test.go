package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadResolvesRelativeSQLitePath(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":9000", "max_workers": 2},
		"databases": {"sqlite3": {"dsn": "data/chat.db"}},
		"providers": {"gemini": {"model": "gemini-flash-latest", "api_key": "k"}},
		"assistant": {"provider": "gemini"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("server address mismatch: %s", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.MaxWorkers != 2 {
		t.Fatalf("max workers mismatch: %d", cfg.BasicConfig.MaxWorkers)
	}
	want := filepath.Join(filepath.Dir(path), "data/chat.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("sqlite dsn not resolved: want %s got %s", want, got)
	}
	if cfg.Chat.SessionTitle != "Medical Consultation" {
		t.Fatalf("default session title missing: %q", cfg.Chat.SessionTitle)
	}
	if cfg.Assistant.TopK != 3 || cfg.Assistant.ChunkSize != 500 || cfg.Assistant.ChunkOverlap != 20 {
		t.Fatalf("retrieval defaults not applied: %+v", cfg.Assistant)
	}
	p, ok := cfg.Provider()
	if !ok || p.Model != "gemini-flash-latest" || p.APIKey != "k" {
		t.Fatalf("provider lookup failed: %+v ok=%v", p, ok)
	}
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEDICHAT_CHAT_ANSWER_URL", "http://answers.internal:8000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Chat.AnswerURL != "http://answers.internal:8000" {
		t.Fatalf("env override not applied: %s", cfg.Chat.AnswerURL)
	}
	if cfg.Store.Driver != "sqlite3" {
		t.Fatalf("default driver mismatch: %s", cfg.Store.Driver)
	}
	if cfg.Databases["sqlite3"].DSN != "medichat.db" {
		t.Fatalf("default dsn mismatch: %s", cfg.Databases["sqlite3"].DSN)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestValidateRestDriverRequiresURL(t *testing.T) {
	path := writeConfig(t, `{"store": {"driver": "rest"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for rest driver without url")
	}

	path = writeConfig(t, `{"store": {"driver": "rest", "rest_url": "https://example.supabase.co", "rest_key": "anon"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.SessionsTable != "chat_sessions" || cfg.Store.MessagesTable != "chat_messages" || cfg.Store.RESTTimeout != 0 {
		t.Fatalf("table defaults missing: %+v", cfg.Store)
	}
}

func TestProviderFallsBackToEnvKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "from-env")
	path := writeConfig(t, `{"assistant": {"provider": "gemini", "model": "gemini-flash-latest"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	p, ok := cfg.Provider()
	if !ok || p.APIKey != "from-env" || p.Model != "gemini-flash-latest" {
		t.Fatalf("unexpected provider: %+v ok=%v", p, ok)
	}
}
