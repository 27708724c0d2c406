// Package onboarding 实现 MoMo 主持的引导访谈：按脚本提问，后续问题由 LLM 根据回答生成，
// 最后给出个性化总结，并从回答中提取用户资料。
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wutongtree/backend/internal/model/user"
	"github.com/wutongtree/backend/internal/service/auth"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/pkg/log"
)

var (
	ErrNotStarted   = errors.New("onboarding interview not started")
	ErrComplete     = errors.New("onboarding interview already complete")
	ErrNotComplete  = errors.New("onboarding interview not complete")
	ErrEmptyAnswer  = errors.New("answer is empty")
	ErrNoCompletion = errors.New("onboarding completion is not configured")
)

const (
	followUpTemperature = 0.8
	followUpMaxTokens   = 100
	analysisTemperature = 0.7
	analysisMaxTokens   = 150

	defaultLookingFor = "Meaningful conversations"

	// DefaultAnalysis 生成总结失败时使用。
	DefaultAnalysis = "Perfect! Based on your responses, I can see you're someone who values meaningful connections and interesting conversations. I'm excited to help you find like-minded people to chat with on WutongTree! 🌟"
)

// Questions is the scripted interview. The last entry is replaced by the
// personalized analysis.
var Questions = []string{
	"Hi there! I'm MoMo, your AI guide. What's your name?",
	"Nice to meet you! How old are you?",
	"What topics do you love talking about? Tell me about your interests and hobbies.",
	"What kind of conversations are you hoping to have on WutongTree? Deep discussions, casual chats, or something else?",
	"Tell me about a recent experience or thought that's been on your mind lately.",
	"What's something you're passionate about that you'd love to share with someone new?",
	"Perfect! Let me analyze your responses to help find great conversation matches for you.",
}

const followUpSystemPrompt = `You are MoMo, a friendly AI guide conducting an onboarding interview for WutongTree, a voice chat app.

Your goal is to understand the user's personality, interests, and conversation preferences to help with matching.

Guidelines:
- Ask natural, engaging follow-up questions
- Be warm and conversational
- Focus on interests, personality, and what they want from conversations
- Keep questions concise (1-2 sentences max)
- Use emojis sparingly and naturally
- Build on their previous responses

Current question number: %d of %d`

const analysisSystemPrompt = `You are MoMo, analyzing a user's onboarding responses for WutongTree. Create a brief, encouraging summary of their personality and interests that shows you understand them.

Guidelines:
- Be warm and positive
- Highlight their key interests and personality traits
- Mention what kind of conversations they'd enjoy
- Keep it concise (2-3 sentences)
- End with excitement about finding them great matches`

// Message is one line of the interview transcript.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	FromAI    bool      `json:"isFromAI"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot 访谈的当前状态。
type Snapshot struct {
	Messages      []Message `json:"messages"`
	QuestionIndex int       `json:"currentQuestionIndex"`
	Typing        bool      `json:"isTyping"`
	Complete      bool      `json:"isComplete"`
	Responses     []string  `json:"userResponses"`
}

// Completer stores the extracted profile on the signed-in user.
type Completer interface {
	CompleteOnboarding(profile auth.Onboarding) (user.User, error)
}

// Service runs the interview of the local user.
type Service struct {
	client    llm.Client
	completer Completer
	now       func() time.Time

	// opMu 串行化 Start/Answer，LLM 调用期间不持有 mu
	opMu sync.Mutex

	mu        sync.Mutex
	started   bool
	messages  []Message
	responses []string
	index     int
	typing    bool
	complete  bool
}

// NewService client 为 nil 时只使用脚本问题与默认总结。
func NewService(client llm.Client, completer Completer) *Service {
	return &Service{client: client, completer: completer, now: time.Now}
}

// Start resets the interview and asks the first scripted question.
func (s *Service) Start() Snapshot {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.messages = nil
	s.responses = nil
	s.index = 0
	s.typing = false
	s.complete = false
	s.appendLocked(Questions[0], true)
	return s.snapshotLocked()
}

// Answer records a response and produces the next AI line: a follow-up
// question, or the analysis once the script is exhausted.
func (s *Service) Answer(ctx context.Context, text string) (Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Snapshot{}, ErrEmptyAnswer
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	switch {
	case !s.started:
		s.mu.Unlock()
		return Snapshot{}, ErrNotStarted
	case s.complete:
		s.mu.Unlock()
		return Snapshot{}, ErrComplete
	}
	s.appendLocked(text, false)
	s.responses = append(s.responses, text)
	s.index++
	index := s.index
	responses := append([]string(nil), s.responses...)
	s.typing = true
	s.mu.Unlock()

	var reply string
	last := index >= len(Questions)-1
	if last {
		reply = s.analysis(ctx, responses)
	} else {
		reply = s.followUp(ctx, index, responses)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = false
	s.appendLocked(reply, true)
	if last {
		s.complete = true
		log.Infof("[onboarding] interview complete after %d answers", len(s.responses))
	}
	return s.snapshotLocked(), nil
}

// Snapshot returns the interview state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Finish 访谈完成后把提取的资料写入当前用户。
func (s *Service) Finish() (user.User, error) {
	s.mu.Lock()
	complete := s.complete
	responses := append([]string(nil), s.responses...)
	s.mu.Unlock()

	if !complete {
		return user.User{}, ErrNotComplete
	}
	if s.completer == nil {
		return user.User{}, ErrNoCompletion
	}
	return s.completer.CompleteOnboarding(ExtractProfile(responses))
}

func (s *Service) followUp(ctx context.Context, index int, responses []string) string {
	scripted := Questions[index]
	if s.client == nil {
		return scripted
	}

	history := make([]string, 0, len(responses))
	for i, answer := range responses {
		history = append(history, fmt.Sprintf("Q%d: %s\nA%d: %s", i+1, Questions[i], i+1, answer))
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(followUpSystemPrompt, index+1, len(Questions))},
		{Role: llm.RoleUser, Content: "Based on this conversation history, generate the next engaging question:\n\n" +
			strings.Join(history, "\n\n") +
			"\n\nGenerate a natural follow-up question that builds on their responses and helps understand their personality and conversation preferences."},
	}

	question, err := s.client.Generate(ctx, messages, followUpTemperature, followUpMaxTokens)
	if err != nil {
		log.Warnf("[onboarding] follow-up question failed, using script: %v", err)
		return scripted
	}
	return strings.TrimSpace(question)
}

func (s *Service) analysis(ctx context.Context, responses []string) string {
	if s.client == nil {
		return DefaultAnalysis
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: analysisSystemPrompt},
		{Role: llm.RoleUser, Content: "Analyze these onboarding responses and create a personalized summary:\n\n" +
			strings.Join(responses, " | ") +
			"\n\nGenerate an encouraging analysis that shows understanding of their personality and conversation preferences."},
	}

	summary, err := s.client.Generate(ctx, messages, analysisTemperature, analysisMaxTokens)
	if err != nil {
		log.Warnf("[onboarding] analysis failed, using default: %v", err)
		return DefaultAnalysis
	}
	return strings.TrimSpace(summary)
}

func (s *Service) appendLocked(content string, fromAI bool) {
	s.messages = append(s.messages, Message{
		ID:        uuid.NewString(),
		Content:   content,
		FromAI:    fromAI,
		Timestamp: s.now(),
	})
}

func (s *Service) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:      append([]Message{}, s.messages...),
		QuestionIndex: s.index,
		Typing:        s.typing,
		Complete:      s.complete,
		Responses:     append([]string{}, s.responses...),
	}
}
