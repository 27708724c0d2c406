// Package llm 定义文本生成能力的统一契约，并提供多家厂商的实现。
//
// 所有实现都满足同一个 Client 接口：调用方只关心“给定带角色的消息列表生成一段文本”，
// 不关心具体后端。客户端自身不做重试，失败时返回下列错误之一，由调用方决定降级策略。
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNoContent 厂商返回了零个生成片段，或生成文本为空白。
	ErrNoContent = errors.New("no content in response")
	// ErrMissingAPIKey 没有配置凭证。
	ErrMissingAPIKey = errors.New("missing api key")
)

// Message is one role-tagged entry of a prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces a text completion from an ordered list of messages.
// Each call performs at most one outbound request.
type Client interface {
	Generate(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
}

// EncodingError 请求体无法序列化。
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode request: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// NetworkError 传输层失败。
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is returned for any non-success HTTP response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Body)
}

// firstNonBlank 把空白文本视为无内容。
func firstNonBlank(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoContent
	}
	return text, nil
}
