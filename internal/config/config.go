package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Config 聚合整个服务的配置项，进程启动时构建一次并按引用传递给各组件。
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	TTS     TTSConfig
	Room    RoomConfig
	Storage StorageConfig
	Log     LogConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// LLMConfig 描述文本生成后端配置。Provider 决定使用哪一种实现。
type LLMConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	AnthropicKey string
	OpenAIKey    string
	VLLMKey      string
	Timeout      time.Duration
	Ark          ArkConfig
	Mock         MockConfig
}

// ArkConfig 火山方舟模型配置。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// MockConfig 控制本地 mock 后端的行为，便于离线演示与测试。
type MockConfig struct {
	ShouldFail bool
	Delay      time.Duration
}

// TTSConfig 描述语音合成配置。
type TTSConfig struct {
	Provider          string
	ElevenLabsKey     string
	ElevenLabsBaseURL string
	OpenAIKey         string
	OpenAIBaseURL     string
	CustomURL         string
	Timeout           time.Duration
	// Voices 按角色覆盖默认音色，key 为 host/participant/neutral。
	Voices map[string]string
}

// RoomConfig 控制对话编排的节奏。
type RoomConfig struct {
	HostInterval            time.Duration
	ParticipantInitialDelay time.Duration
	ParticipantMinInterval  time.Duration
	ParticipantMaxInterval  time.Duration
	ReplyDelay              time.Duration
	QuietThreshold          time.Duration
	LevelTick               time.Duration
	RecordingDir            string
	HostWindow              int
	ParticipantWindow       int
}

// StorageConfig 本地持久化路径。
type StorageConfig struct {
	BoltPath       string
	TranscriptPath string
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string
	Format string
}

var (
	supportedLLMProviders = map[string]struct{}{"anthropic": {}, "openai": {}, "vllm": {}, "ark": {}, "mock": {}}
	supportedTTSProviders = map[string]struct{}{"elevenlabs": {}, "openai": {}, "custom": {}, "local": {}}
)

// Load 读取可选的 config.yaml（CONFIG_PATH 可覆盖路径），再叠加环境变量。
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig(v)
	if err != nil {
		return nil, err
	}

	tts, err := loadTTSConfig(v, llm)
	if err != nil {
		return nil, err
	}

	room, err := loadRoomConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		LLM:    llm,
		TTS:    tts,
		Room:   room,
		Storage: StorageConfig{
			BoltPath:       v.GetString("storage.bolt_path"),
			TranscriptPath: v.GetString("storage.transcript_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.ark.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("llm.ark.region", "cn-beijing")
	v.SetDefault("llm.mock.should_fail", false)
	v.SetDefault("llm.mock.delay", "100ms")

	v.SetDefault("tts.provider", "elevenlabs")
	v.SetDefault("tts.elevenlabs_base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("tts.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("tts.custom_url", "http://localhost:8000")
	v.SetDefault("tts.timeout", "30s")

	v.SetDefault("room.host_interval", "25s")
	v.SetDefault("room.participant_initial_delay", "10s")
	v.SetDefault("room.participant_min_interval", "20s")
	v.SetDefault("room.participant_max_interval", "35s")
	v.SetDefault("room.reply_delay", "2s")
	v.SetDefault("room.quiet_threshold", "8s")
	v.SetDefault("room.level_tick", "100ms")
	v.SetDefault("room.recording_dir", "recordings")
	v.SetDefault("room.host_window", 5)
	v.SetDefault("room.participant_window", 6)

	v.SetDefault("storage.bolt_path", "data/wutong.bolt")
	v.SetDefault("storage.transcript_path", "data/transcript.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// bindEnv 兼容原有的环境变量命名（ANTHROPIC_KEY、OPENAI_KEY 等）。
func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("llm.anthropic_key", "ANTHROPIC_KEY")
	_ = v.BindEnv("llm.openai_key", "OPENAI_KEY")
	_ = v.BindEnv("llm.vllm_key", "VLLM_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL", "VLLM_BASE_URL")
	_ = v.BindEnv("llm.ark.api_key", "ARK_API_KEY")
	_ = v.BindEnv("llm.ark.access_key", "ARK_ACCESS_KEY")
	_ = v.BindEnv("llm.ark.secret_key", "ARK_SECRET_KEY")
	_ = v.BindEnv("llm.ark.model", "ARK_MODEL")
	_ = v.BindEnv("tts.elevenlabs_key", "ELEVENLABS_KEY")
	_ = v.BindEnv("tts.openai_key", "OPENAI_TTS_KEY")
	_ = v.BindEnv("tts.custom_url", "CUSTOM_TTS_URL")
}

func readConfigFile(v *viper.Viper) error {
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("server.port"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadLLMConfig(v *viper.Viper) (LLMConfig, error) {
	provider := strings.ToLower(strings.TrimSpace(v.GetString("llm.provider")))
	if _, ok := supportedLLMProviders[provider]; !ok {
		return LLMConfig{}, fmt.Errorf("invalid llm provider %q", provider)
	}

	return LLMConfig{
		Provider:     provider,
		Model:        strings.TrimSpace(v.GetString("llm.model")),
		BaseURL:      strings.TrimSpace(v.GetString("llm.base_url")),
		AnthropicKey: strings.TrimSpace(v.GetString("llm.anthropic_key")),
		OpenAIKey:    strings.TrimSpace(v.GetString("llm.openai_key")),
		VLLMKey:      strings.TrimSpace(v.GetString("llm.vllm_key")),
		Timeout:      v.GetDuration("llm.timeout"),
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(v.GetString("llm.ark.api_key")),
			AccessKey: strings.TrimSpace(v.GetString("llm.ark.access_key")),
			SecretKey: strings.TrimSpace(v.GetString("llm.ark.secret_key")),
			Model:     strings.TrimSpace(v.GetString("llm.ark.model")),
			BaseURL:   strings.TrimSpace(v.GetString("llm.ark.base_url")),
			Region:    strings.TrimSpace(v.GetString("llm.ark.region")),
		},
		Mock: MockConfig{
			ShouldFail: v.GetBool("llm.mock.should_fail"),
			Delay:      v.GetDuration("llm.mock.delay"),
		},
	}, nil
}

func loadTTSConfig(v *viper.Viper, llm LLMConfig) (TTSConfig, error) {
	provider := strings.ToLower(strings.TrimSpace(v.GetString("tts.provider")))
	if _, ok := supportedTTSProviders[provider]; !ok {
		return TTSConfig{}, fmt.Errorf("invalid tts provider %q", provider)
	}

	openAIKey := strings.TrimSpace(v.GetString("tts.openai_key"))
	if openAIKey == "" {
		// 没有单独的语音密钥时复用文本生成的 OpenAI 密钥
		openAIKey = llm.OpenAIKey
	}

	return TTSConfig{
		Provider:          provider,
		ElevenLabsKey:     strings.TrimSpace(v.GetString("tts.elevenlabs_key")),
		ElevenLabsBaseURL: strings.TrimSpace(v.GetString("tts.elevenlabs_base_url")),
		OpenAIKey:         openAIKey,
		OpenAIBaseURL:     strings.TrimSpace(v.GetString("tts.openai_base_url")),
		CustomURL:         strings.TrimSpace(v.GetString("tts.custom_url")),
		Timeout:           v.GetDuration("tts.timeout"),
		Voices:            v.GetStringMapString("tts.voices"),
	}, nil
}

func loadRoomConfig(v *viper.Viper) (RoomConfig, error) {
	cfg := RoomConfig{
		HostInterval:            v.GetDuration("room.host_interval"),
		ParticipantInitialDelay: v.GetDuration("room.participant_initial_delay"),
		ParticipantMinInterval:  v.GetDuration("room.participant_min_interval"),
		ParticipantMaxInterval:  v.GetDuration("room.participant_max_interval"),
		ReplyDelay:              v.GetDuration("room.reply_delay"),
		QuietThreshold:          v.GetDuration("room.quiet_threshold"),
		LevelTick:               v.GetDuration("room.level_tick"),
		RecordingDir:            strings.TrimSpace(v.GetString("room.recording_dir")),
		HostWindow:              v.GetInt("room.host_window"),
		ParticipantWindow:       v.GetInt("room.participant_window"),
	}

	if cfg.ParticipantMaxInterval < cfg.ParticipantMinInterval {
		return RoomConfig{}, fmt.Errorf("room.participant_max_interval (%s) must not be shorter than room.participant_min_interval (%s)",
			cfg.ParticipantMaxInterval, cfg.ParticipantMinInterval)
	}
	if cfg.HostWindow < 1 {
		cfg.HostWindow = 1
	}
	if cfg.ParticipantWindow < 1 {
		cfg.ParticipantWindow = 1
	}
	return cfg, nil
}

// APIKey 返回当前 Provider 对应的凭证。
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicKey
	case "openai":
		return c.OpenAIKey
	case "vllm":
		return c.VLLMKey
	case "ark":
		return c.Ark.APIKey
	default:
		return ""
	}
}

// Enabled 表示方舟凭证是否齐全。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用方舟配置创建一个 eino 模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}
