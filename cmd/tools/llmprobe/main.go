package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wutongtree/backend/internal/config"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/service/speech"
	"github.com/wutongtree/backend/pkg/log"
)

func main() {
	_ = log.Init("debug", "console")
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Warnf("无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "llm", "测试模式: llm 或 tts")
	provider := flag.String("provider", "", "覆盖配置中的 provider (llm: anthropic/openai/vllm/ark/mock; tts: elevenlabs/openai/custom/local)")
	prompt := flag.String("prompt", "", "LLM 用户消息，或 TTS 待合成文本")
	system := flag.String("system", "You are MoMo, a friendly conversation host. Keep replies short.", "LLM system prompt")
	temperature := flag.Float64("temperature", 0.8, "采样温度")
	maxTokens := flag.Int("max-tokens", 150, "最大生成 token 数")
	role := flag.String("role", string(speech.VoiceHost), "TTS 音色角色: host/participant/neutral")
	emotion := flag.String("emotion", "", "自建 TTS 的情绪标签")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if strings.TrimSpace(*prompt) == "" {
		flag.Usage()
		log.Fatalf("请通过 -prompt 提供输入文本")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "llm":
		if *provider != "" {
			cfg.LLM.Provider = *provider
		}
		runLLM(ctx, cfg.LLM, *system, *prompt, *temperature, *maxTokens)
	case "tts":
		if *provider != "" {
			cfg.TTS.Provider = *provider
		}
		runTTS(ctx, cfg.TTS, *prompt, speech.VoiceRole(*role), *emotion, *outputPath)
	default:
		flag.Usage()
		log.Fatalf("请通过 -mode=llm 或 -mode=tts 指定测试模式")
	}
}

func runLLM(ctx context.Context, cfg config.LLMConfig, system, prompt string, temperature float64, maxTokens int) {
	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("创建 %s 客户端失败: %v", cfg.Provider, err)
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}
	if strings.TrimSpace(system) != "" {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: system}}, messages...)
	}

	log.Infof("开始进行 LLM 测试: provider=%s model=%s temperature=%.2f max_tokens=%d", cfg.Provider, cfg.Model, temperature, maxTokens)

	start := time.Now()
	reply, err := client.Generate(ctx, messages, temperature, maxTokens)
	if err != nil {
		log.Fatalf("LLM 调用失败: %v", err)
	}

	log.Infof("LLM 生成成功: 耗时=%s", time.Since(start).Round(time.Millisecond))
	fmt.Println(reply)
}

func runTTS(ctx context.Context, cfg config.TTSConfig, text string, role speech.VoiceRole, emotion, outputPath string) {
	synth := speech.NewSynthesizer(cfg)

	log.Infof("开始进行 TTS 测试: provider=%s role=%s", synth.Name(), role)

	audio, err := synth.Synthesize(ctx, speech.Request{Text: text, Role: role, Emotion: emotion})
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if len(audio.Data) == 0 {
		log.Infof("TTS 合成完成 (无音频数据): vendor=%s 估算时长=%s", audio.Vendor, audio.Duration)
		return
	}

	if outputPath == "" {
		format := audio.Format
		if format == "" {
			format = "mp3"
		}
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	if err := os.WriteFile(outputPath, audio.Data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Infof("TTS 合成成功: 输出文件 %s, voice=%s 时长=%s", outputPath, audio.Voice, audio.Duration)
}
