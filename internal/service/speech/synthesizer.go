package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/wutongtree/backend/internal/config"
)

// LocalCharDuration 本地合成每个字符的播放时长。
const LocalCharDuration = 100 * time.Millisecond

// ErrEmptyText 没有可朗读的文本。
var ErrEmptyText = errors.New("text is empty")

// Request describes one synthesis call.
type Request struct {
	Text    string
	Role    VoiceRole
	Emotion string
}

// Audio is the synthesized result. Data may be empty for on-device synthesis.
type Audio struct {
	Data     []byte
	Format   string
	Duration time.Duration
	Voice    string
	Vendor   string
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
	Name() string
}

// EstimateDuration 按字符数估算朗读时长。
func EstimateDuration(text string, perChar time.Duration) time.Duration {
	return time.Duration(utf8.RuneCountInString(text)) * perChar
}

// StatusError 厂商返回了非 2xx 响应。
type StatusError struct {
	Vendor     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s tts error (%d): %s", e.Vendor, e.StatusCode, e.Body)
}

// LocalSynthesizer stands in for the platform speech synthesizer: it produces
// no bytes, only a paced duration.
type LocalSynthesizer struct {
	perChar time.Duration
}

// NewLocalSynthesizer perChar 为 0 时使用 LocalCharDuration。
func NewLocalSynthesizer(perChar time.Duration) *LocalSynthesizer {
	if perChar <= 0 {
		perChar = LocalCharDuration
	}
	return &LocalSynthesizer{perChar: perChar}
}

func (s *LocalSynthesizer) Name() string { return "local" }

// Synthesize implements Synthesizer.
func (s *LocalSynthesizer) Synthesize(_ context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}
	return Audio{
		Format:   "none",
		Duration: EstimateDuration(req.Text, s.perChar),
		Voice:    string(req.Role),
		Vendor:   s.Name(),
	}, nil
}

// ElevenLabsSynthesizer 调用 ElevenLabs text-to-speech 接口。
type ElevenLabsSynthesizer struct {
	apiKey     string
	baseURL    string
	voices     map[string]string
	httpClient *http.Client
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// NewElevenLabsSynthesizer creates the ElevenLabs backend.
func NewElevenLabsSynthesizer(apiKey, baseURL string, voices map[string]string, httpClient *http.Client) *ElevenLabsSynthesizer {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ElevenLabsSynthesizer{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		voices:     voices,
		httpClient: httpClient,
	}
}

func (s *ElevenLabsSynthesizer) Name() string { return "elevenlabs" }

// Synthesize implements Synthesizer.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return Audio{}, errors.New("elevenlabs api key not configured")
	}
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}

	voice := ResolveVoice(s.Name(), req.Role, s.voices)
	payload := elevenLabsRequest{
		Text:    req.Text,
		ModelID: "eleven_multilingual_v2",
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.75,
			Style:           0.5,
			UseSpeakerBoost: true,
		},
	}

	data, err := postJSON(ctx, s.httpClient, s.Name(), s.baseURL+"/text-to-speech/"+voice, payload, map[string]string{
		"xi-api-key": s.apiKey,
		"Accept":     "audio/mpeg",
	})
	if err != nil {
		return Audio{}, err
	}
	return Audio{
		Data:     data,
		Format:   "mp3",
		Duration: EstimateDuration(req.Text, LocalCharDuration),
		Voice:    voice,
		Vendor:   s.Name(),
	}, nil
}

// speechAPI 是 go-openai 中语音合成相关的子集。
type speechAPI interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAISynthesizer uses the OpenAI speech endpoint through go-openai.
type OpenAISynthesizer struct {
	api    speechAPI
	voices map[string]string
	hasKey bool
}

// NewOpenAISynthesizer creates the OpenAI backend.
func NewOpenAISynthesizer(apiKey, baseURL string, voices map[string]string, httpClient *http.Client) *OpenAISynthesizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAISynthesizer{
		api:    openai.NewClientWithConfig(cfg),
		voices: voices,
		hasKey: strings.TrimSpace(apiKey) != "",
	}
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

// Synthesize implements Synthesizer.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if !s.hasKey {
		return Audio{}, errors.New("openai tts api key not configured")
	}
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}

	voice := ResolveVoice(s.Name(), req.Role, s.voices)
	resp, err := s.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1HD,
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          1.0,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Audio{}, fmt.Errorf("read openai speech: %w", err)
	}
	return Audio{
		Data:     data,
		Format:   "mp3",
		Duration: EstimateDuration(req.Text, LocalCharDuration),
		Voice:    voice,
		Vendor:   s.Name(),
	}, nil
}

// CustomSynthesizer 调用自建 GPU 集群上的 TTS 服务。
type CustomSynthesizer struct {
	serverURL  string
	voices     map[string]string
	httpClient *http.Client
}

type customRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Emotion string  `json:"emotion"`
	Format  string  `json:"format"`
}

// NewCustomSynthesizer creates the self hosted backend.
func NewCustomSynthesizer(serverURL string, voices map[string]string, httpClient *http.Client) *CustomSynthesizer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CustomSynthesizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		voices:     voices,
		httpClient: httpClient,
	}
}

func (s *CustomSynthesizer) Name() string { return "custom" }

// Synthesize implements Synthesizer.
func (s *CustomSynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}

	emotion := req.Emotion
	if emotion == "" {
		emotion = "neutral"
	}
	voice := ResolveVoice(s.Name(), req.Role, s.voices)
	data, err := postJSON(ctx, s.httpClient, s.Name(), s.serverURL+"/synthesize", customRequest{
		Text:    req.Text,
		VoiceID: voice,
		Speed:   1.0,
		Emotion: emotion,
		Format:  "wav",
	}, nil)
	if err != nil {
		return Audio{}, err
	}
	return Audio{
		Data:     data,
		Format:   "wav",
		Duration: EstimateDuration(req.Text, LocalCharDuration),
		Voice:    voice,
		Vendor:   s.Name(),
	}, nil
}

func postJSON(ctx context.Context, client *http.Client, vendor, url string, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", vendor, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", vendor, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", vendor, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Vendor: vendor, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// NewSynthesizer 根据配置创建厂商实现。provider 为 local 时返回本地合成器。
func NewSynthesizer(cfg config.TTSConfig) Synthesizer {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "elevenlabs":
		return NewElevenLabsSynthesizer(cfg.ElevenLabsKey, cfg.ElevenLabsBaseURL, cfg.Voices, httpClient)
	case "openai":
		return NewOpenAISynthesizer(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Voices, httpClient)
	case "custom":
		return NewCustomSynthesizer(cfg.CustomURL, cfg.Voices, httpClient)
	default:
		return NewLocalSynthesizer(0)
	}
}
