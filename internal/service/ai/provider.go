package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"medichat/internal/config"
)

var defaultModels = map[string]string{
	"openai": "gpt-4o-mini",
	"claude": "claude-3-5-haiku-latest",
	"gemini": "gemini-flash-latest",
}

// NewChatModel builds the chat model of the configured assistant provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	provider := strings.ToLower(cfg.Assistant.Provider)
	provCfg, ok := cfg.Provider()
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no api key", provider)
	}
	modelName := provCfg.Model
	if modelName == "" {
		modelName = defaultModels[provider]
	}

	var maxTokens *int
	if cfg.Assistant.MaxTokens > 0 {
		n := cfg.Assistant.MaxTokens
		maxTokens = &n
	}
	temperature := cfg.Assistant.Temperature

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     provCfg.BaseURL,
			Model:       modelName,
			APIKey:      provCfg.APIKey,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
		})
	case "gemini":
		client, clientErr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("init gemini client: %w", clientErr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: &temperature,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		tokens := 3000
		if maxTokens != nil {
			tokens = *maxTokens
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:      provCfg.APIKey,
			Model:       modelName,
			BaseURL:     baseURLPtr,
			MaxTokens:   tokens,
			Temperature: &temperature,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}
