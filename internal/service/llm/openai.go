package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = openai.GPT3Dot5Turbo
	defaultVLLMBaseURL   = "http://localhost:8000"
	defaultVLLMModel     = "default"
)

// completionAPI is the subset of the go-openai client used here.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAICompatibleClient talks the OpenAI chat completion dialect. It backs
// both the hosted OpenAI API and self hosted vLLM servers.
type OpenAICompatibleClient struct {
	api   completionAPI
	model string
}

// NewOpenAIClient 创建访问 OpenAI 官方接口的客户端，密钥必填。
func NewOpenAIClient(apiKey, baseURL, model string, httpClient *http.Client) (*OpenAICompatibleClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return newOpenAICompatible(apiKey, baseURL, model, httpClient), nil
}

// NewVLLMClient 创建访问自建推理服务的客户端。baseURL 为服务根地址，
// 只有配置了密钥时才携带 Bearer 认证头。
func NewVLLMClient(apiKey, baseURL, model string, httpClient *http.Client) *OpenAICompatibleClient {
	if baseURL == "" {
		baseURL = defaultVLLMBaseURL
	}
	if model == "" {
		model = defaultVLLMModel
	}
	return newOpenAICompatible(apiKey, strings.TrimRight(baseURL, "/")+"/v1", model, httpClient)
}

func newOpenAICompatible(apiKey, baseURL, model string, httpClient *http.Client) *OpenAICompatibleClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAICompatibleClient{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

// Generate implements Client.
func (c *OpenAICompatibleClient) Generate(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoContent
	}
	return firstNonBlank(resp.Choices[0].Message.Content)
}

// classifyOpenAIError 把 go-openai 的错误映射到统一的错误分类。
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := reqErr.HTTPStatus
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: body}
	}

	var unsupportedValue *json.UnsupportedValueError
	var unsupportedType *json.UnsupportedTypeError
	var marshalerErr *json.MarshalerError
	if errors.As(err, &unsupportedValue) || errors.As(err, &unsupportedType) || errors.As(err, &marshalerErr) {
		return &EncodingError{Err: err}
	}

	return &NetworkError{Err: err}
}
