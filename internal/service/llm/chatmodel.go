package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelClient adapts any eino chat model (for example the Ark model) to Client.
type ChatModelClient struct {
	model model.BaseChatModel
}

// NewChatModelClient 包装一个 eino 模型。
func NewChatModelClient(m model.BaseChatModel) *ChatModelClient {
	return &ChatModelClient{model: m}
}

// Generate implements Client.
func (c *ChatModelClient) Generate(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	input := ToSchemaMessages(messages)

	resp, err := c.model.Generate(ctx, input,
		model.WithTemperature(float32(temperature)),
		model.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", &NetworkError{Err: fmt.Errorf("chat model generate: %w", err)}
	}
	if resp == nil {
		return "", ErrNoContent
	}
	return firstNonBlank(resp.Content)
}

// ToSchemaMessages 转换为 eino 的消息结构。
func ToSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}
	return out
}

// FromSchemaMessages 是 ToSchemaMessages 的逆操作，用于把模板渲染结果交给 Client。
func FromSchemaMessages(messages []*schema.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		out = append(out, Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
