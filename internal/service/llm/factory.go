package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wutongtree/backend/internal/config"
	"github.com/wutongtree/backend/pkg/log"
)

// NewClient 根据配置中的 provider 选择具体实现。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg.AnthropicKey, cfg.BaseURL, cfg.Model, httpClient)
	case "openai":
		return NewOpenAIClient(cfg.OpenAIKey, cfg.BaseURL, cfg.Model, httpClient)
	case "vllm":
		return NewVLLMClient(cfg.VLLMKey, cfg.BaseURL, cfg.Model, httpClient), nil
	case "ark":
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return NewChatModelClient(chatModel), nil
	case "mock":
		log.Warnf("[llm] using mock provider, replies are canned")
		return NewMockClient(cfg.Mock.ShouldFail, cfg.Mock.Delay), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
