// Package personality 根据最近的对话选择主持人的情绪与回复方式，并渲染 system prompt。
package personality

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/qmuntal/stateless"

	"github.com/wutongtree/backend/internal/analysis/tone"
	"github.com/wutongtree/backend/internal/model/chat"
)

const (
	contextWindow = 3
	// longMessageChars 超过这个长度视为对方分享了较多内容。
	longMessageChars = 50

	livelyTemperature = 0.95
	calmTemperature   = 0.85
)

// Rendering is the output of one Render call.
type Rendering struct {
	SystemPrompt string
	Temperature  float64
	Mood         Mood
	Style        Style
	Tone         tone.Label
}

// Policy keeps the host mood across calls. Mood transitions run on a
// finite state machine whose destinations are drawn from an injectable source.
type Policy struct {
	mu  sync.Mutex
	rng *rand.Rand
	fsm *stateless.StateMachine
}

// NewPolicy 创建策略。src 为 nil 时使用随机种子。
func NewPolicy(src rand.Source) *Policy {
	if src == nil {
		src = rand.NewSource(rand.Int63())
	}
	p := &Policy{rng: rand.New(src)}
	p.fsm = p.newMachine()
	return p
}

func (p *Policy) newMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(InitialMood)
	for _, mood := range Moods() {
		cfg := fsm.Configure(mood)
		for _, label := range tone.Labels() {
			cfg.PermitDynamic(label, p.selector(label))
		}
	}
	return fsm
}

// selector 在与基调一致的候选中随机挑选下一个情绪。调用方已持有 p.mu。
func (p *Policy) selector(label tone.Label) stateless.DestinationSelectorFunc {
	return func(_ context.Context, _ ...any) (stateless.State, error) {
		candidates := Candidates(label)
		return candidates[p.rng.Intn(len(candidates))], nil
	}
}

// Mood returns the current mood.
func (p *Policy) Mood() Mood {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fsm.MustState().(Mood)
}

// Advance fires the tone trigger and returns the resulting mood.
func (p *Policy) Advance(label tone.Label) (Mood, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fsm.Fire(label); err != nil {
		return p.fsm.MustState().(Mood), fmt.Errorf("mood transition on %s: %w", label, err)
	}
	return p.fsm.MustState().(Mood), nil
}

// DetectTone 对最近消息做基调判断。
func DetectTone(recent []chat.Message) tone.Label {
	contents := make([]string, 0, len(recent))
	for _, m := range recent {
		contents = append(contents, m.Content)
	}
	return tone.Detect(contents)
}

// ChooseStyle 只依赖最后一条消息的内容与消息条数。
func ChooseStyle(recent []chat.Message) Style {
	last := ""
	if len(recent) > 0 {
		last = recent[len(recent)-1].Content
	}

	switch {
	case strings.Contains(last, "?"):
		return StyleReactiveListener
	case len(recent)%3 == 0:
		return StyleTopicBridger
	case utf8.RuneCountInString(last) > longMessageChars:
		return StyleEncourager
	default:
		return StyleQuestionAsker
	}
}

// Render 推进情绪状态机并生成 system prompt 与采样温度。
func (p *Policy) Render(recent []chat.Message) Rendering {
	label := DetectTone(recent)
	mood, err := p.Advance(label)
	if err != nil {
		// 所有情绪都配置了全部基调，这里只可能是状态机内部错误，保持原情绪继续
		mood = p.Mood()
	}
	style := ChooseStyle(recent)

	temperature := calmTemperature
	if mood.Lively() {
		temperature = livelyTemperature
	}

	return Rendering{
		SystemPrompt: buildPrompt(mood, style, recent),
		Temperature:  temperature,
		Mood:         mood,
		Style:        style,
		Tone:         label,
	}
}

func buildPrompt(mood Mood, style Style, recent []chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You're a skilled human conversation host with a %s personality right now.\n\n", mood.Description())
	fmt.Fprintf(&b, "Your role: %s\n\n", style.Instruction())
	b.WriteString("Context from recent conversation:\n")
	b.WriteString(conversationContext(recent))
	b.WriteString("\n\n")
	b.WriteString("Respond like a real person would - be genuinely interested and natural. Reference specific things they mentioned.\n")
	b.WriteString(`Use natural speech patterns: "Oh that's actually really cool", "Wait, so you're saying...", "That reminds me of..."`)
	b.WriteString("\n\nKeep it conversational (10-20 words) and sound authentically human.")
	return b.String()
}

func conversationContext(recent []chat.Message) string {
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	if len(recent) == 0 {
		return "Conversation is just starting"
	}

	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, m.SenderName+": "+m.Content)
	}
	return "Recent messages:\n" + strings.Join(lines, "\n")
}
