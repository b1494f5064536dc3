package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the client and the answer service.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Assistant   AssistantConfig           `mapstructure:"assistant"`
	Store       StoreConfig               `mapstructure:"store"`
	Chat        ChatConfig                `mapstructure:"chat"`
	Log         LogConfig                 `mapstructure:"log"`
	CORS        CORSConfig                `mapstructure:"cors"`
}

type BasicConfig struct {
	ServerAddress     string `mapstructure:"server_address"`
	MinWorkers        int    `mapstructure:"min_workers"`
	MaxWorkers        int    `mapstructure:"max_workers"`
	QueueSize         int    `mapstructure:"queue_size"`
	WorkerIdleTimeout int    `mapstructure:"worker_idle_timeout"` // minutes
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// AssistantConfig drives answer generation on the server side.
type AssistantConfig struct {
	Provider     string  `mapstructure:"provider"`
	Model        string  `mapstructure:"model"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	KnowledgeDir string  `mapstructure:"knowledge_dir"`
	TopK         int     `mapstructure:"top_k"`
	ChunkSize    int     `mapstructure:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap"`
}

// StoreConfig selects the persistence store used by the chat client.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite3, mysql or rest
	RESTURL       string `mapstructure:"rest_url"`
	RESTKey       string `mapstructure:"rest_key"`
	SessionsTable string `mapstructure:"sessions_table"`
	MessagesTable string `mapstructure:"messages_table"`
	RESTTimeout   int    `mapstructure:"rest_timeout"` // seconds, 0 disables
}

// ChatConfig configures the chat client.
type ChatConfig struct {
	AnswerURL     string `mapstructure:"answer_url"`
	AnswerTimeout int    `mapstructure:"answer_timeout"` // seconds, 0 disables
	SessionTitle  string `mapstructure:"session_title"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

const envPrefix = "MEDICHAT"

// providerKeyEnv lists the conventional API key variables per provider.
var providerKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
	"gemini": "GOOGLE_API_KEY",
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error: defaults and MEDICHAT_* variables apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileRead := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
			fileRead = false
		default:
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if fileRead {
		resolveSQLitePath(&cfg, filepath.Dir(absPath))
	}
	applyProviderKeys(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":8000")
	v.SetDefault("basic_config.min_workers", 1)
	v.SetDefault("basic_config.max_workers", 4)
	v.SetDefault("basic_config.queue_size", 32)
	v.SetDefault("basic_config.worker_idle_timeout", 5)

	v.SetDefault("databases.sqlite3.dsn", "medichat.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("assistant.provider", "gemini")
	v.SetDefault("assistant.max_tokens", 3000)
	v.SetDefault("assistant.temperature", 0.2)
	v.SetDefault("assistant.top_k", 3)
	v.SetDefault("assistant.chunk_size", 500)
	v.SetDefault("assistant.chunk_overlap", 20)

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.sessions_table", "chat_sessions")
	v.SetDefault("store.messages_table", "chat_messages")
	v.SetDefault("store.rest_timeout", 0)

	v.SetDefault("chat.answer_url", "http://localhost:8000")
	v.SetDefault("chat.answer_timeout", 0)
	v.SetDefault("chat.session_title", "Medical Consultation")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "sqlite3", "mysql":
		if _, ok := c.Databases[strings.ToLower(c.Store.Driver)]; !ok {
			return fmt.Errorf("database config for %s not found", c.Store.Driver)
		}
	case "rest":
		if c.Store.RESTURL == "" {
			return errors.New("store.rest_url must be configured for the rest driver")
		}
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if c.Assistant.TopK < 0 {
		return errors.New("assistant.top_k cannot be negative")
	}
	if c.Assistant.ChunkOverlap >= c.Assistant.ChunkSize && c.Assistant.ChunkSize > 0 {
		return errors.New("assistant.chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

// Provider returns the configuration of the assistant's provider.
func (c *Config) Provider() (ProviderConfig, bool) {
	p, ok := c.Providers[strings.ToLower(c.Assistant.Provider)]
	if !ok {
		key := os.Getenv(providerKeyEnv[strings.ToLower(c.Assistant.Provider)])
		if key == "" {
			return ProviderConfig{}, false
		}
		return ProviderConfig{APIKey: key, Model: c.Assistant.Model}, true
	}
	if c.Assistant.Model != "" {
		p.Model = c.Assistant.Model
	}
	return p, true
}

func resolveSQLitePath(cfg *Config, base string) {
	for _, name := range []string{"sqlite", "sqlite3"} {
		db, ok := cfg.Databases[name]
		if !ok || db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(base, db.DSN)
			cfg.Databases[name] = db
		}
	}
}

func applyProviderKeys(cfg *Config) {
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			continue
		}
		if env, ok := providerKeyEnv[name]; ok {
			p.APIKey = os.Getenv(env)
			cfg.Providers[name] = p
		}
	}
}
