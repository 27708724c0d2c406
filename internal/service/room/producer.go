package room

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wutongtree/backend/internal/model/chat"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/service/speech"
	"github.com/wutongtree/backend/pkg/log"
)

const (
	welcomeInstruction     = "Generate your welcome message to start the conversation."
	hostInstruction        = "Generate your next host message to keep the conversation engaging."
	participantInstruction = "Generate your natural response to continue the conversation."

	welcomeTemperature     = 0.8
	welcomeMaxTokens       = 100
	hostMaxTokens          = 150
	participantTemperature = 0.9
	participantMaxTokens   = 120

	// readingTimePerRune 估算读完上一条消息需要的时间，上限 maxReadingTime。
	readingTimePerRune = 60 * time.Millisecond
	maxReadingTime     = 10 * time.Second
)

var chatTemplate = prompt.FromMessages(
	schema.FString,
	schema.SystemMessage("{system}"),
	schema.MessagesPlaceholder("history", true),
	schema.UserMessage("{query}"),
)

// composed 是一次生成请求的全部输入。
type composed struct {
	messages    []llm.Message
	temperature float64
	maxTokens   int
	emotion     string
}

// turnPlan 描述一个 AI 槽位如何产出下一条消息。
type turnPlan struct {
	slot     Slot
	speaker  chat.Participant
	voice    speech.VoiceRole
	window   int
	// fallback 只入日志，不播放
	fallback string
	compose  func(ctx context.Context, window []chat.Message) (composed, error)
}

// TriggerHost runs one host turn synchronously: exactly one message is
// appended, either the generated reply or the host fallback.
func (r *Room) TriggerHost() (chat.Message, error) {
	return r.produce(r.ctx, r.hostPlan())
}

// TriggerParticipant runs one participant turn synchronously.
func (r *Room) TriggerParticipant() (chat.Message, error) {
	return r.produce(r.ctx, r.participantPlan())
}

// produce 占用槽位、生成文本、追加消息并交给播放器。LLM 调用在 actor 之外进行，
// 房间关闭后返回的结果会被丢弃。
func (r *Room) produce(ctx context.Context, plan turnPlan) (chat.Message, error) {
	var (
		window   []chat.Message
		accepted bool
	)
	err := r.do(func(s *state) {
		if !s.turns[plan.slot].fire(triggerCompose) {
			return
		}
		accepted = true
		window = s.recent(plan.window)
	})
	if err != nil {
		return chat.Message{}, err
	}
	if !accepted {
		return chat.Message{}, ErrSlotBusy
	}

	req, err := plan.compose(ctx, window)
	text := ""
	if err == nil {
		text, err = r.llm.Generate(ctx, req.messages, req.temperature, req.maxTokens)
	}
	if ctx.Err() != nil {
		_ = r.do(func(s *state) { s.turns[plan.slot].fire(triggerReset) })
		return chat.Message{}, ErrRoomClosed
	}
	speak := err == nil
	if !speak {
		log.Warnf("[room] %s %s reply failed, using fallback: %v", r.id, plan.slot, err)
		text = plan.fallback
	}

	var (
		msg     chat.Message
		gen     uint64
		dropped bool
	)
	err = r.do(func(s *state) {
		// End 先取消 ctx 再关闭 actor，这里看到取消就说明房间正在结束
		if ctx.Err() != nil {
			s.turns[plan.slot].fire(triggerReset)
			dropped = true
			return
		}
		msg = r.append(s, chat.Message{
			SenderID:   plan.speaker.ID,
			SenderName: plan.speaker.DisplayName,
			Content:    text,
			Kind:       chat.KindAI,
		})
		if !speak {
			s.turns[plan.slot].fire(triggerSettle)
			return
		}
		s.turns[plan.slot].fire(triggerSpeak)
		gen = r.markSpeaking(s, plan.speaker.ID)
	})
	if err != nil {
		return chat.Message{}, err
	}
	if dropped {
		return chat.Message{}, ErrRoomClosed
	}
	if !speak {
		return msg, nil
	}

	done := r.playback.Speak(r.ctx, text, plan.speaker.ID, plan.voice, speech.WithEmotion(req.emotion))
	settle := func(ctx context.Context) {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		_ = r.do(func(s *state) {
			r.clearSpeaking(s, plan.speaker.ID, gen)
			s.turns[plan.slot].fire(triggerSettle)
		})
	}
	r.spawn(settle)
	return msg, nil
}

func (r *Room) hostSpeaker() chat.Participant {
	host := chat.Participant{ID: r.host.ID, DisplayName: r.host.Name, Role: chat.RoleHost}
	if sp, ok := r.sessionParticipant(chat.RoleHost); ok {
		host = sp
	}
	return host
}

func (r *Room) otherSpeaker() chat.Participant {
	other := chat.Participant{ID: r.participant.ID, DisplayName: r.participant.Name, Role: chat.RoleOther}
	if sp, ok := r.sessionParticipant(chat.RoleOther); ok {
		other = sp
	}
	return other
}

func (r *Room) sessionParticipant(role chat.Role) (chat.Participant, bool) {
	for _, p := range r.participants {
		if p.Role == role {
			return p, true
		}
	}
	return chat.Participant{}, false
}

func (r *Room) hostPlan() turnPlan {
	speaker := r.hostSpeaker()
	return turnPlan{
		slot:     SlotHost,
		speaker:  speaker,
		voice:    speech.VoiceHost,
		window:   r.cfg.HostWindow,
		fallback: r.host.Fallback,
		compose: func(ctx context.Context, window []chat.Message) (composed, error) {
			rendering := r.policy.Render(window)
			system := r.host.SystemPrompt + "\n\n" + rendering.SystemPrompt
			messages, err := formatPrompt(ctx, system, history(window, speaker.ID, true), hostInstruction)
			if err != nil {
				return composed{}, err
			}
			return composed{
				messages:    messages,
				temperature: rendering.Temperature,
				maxTokens:   hostMaxTokens,
				emotion:     speech.EmotionForMood(string(rendering.Mood)),
			}, nil
		},
	}
}

func (r *Room) participantPlan() turnPlan {
	speaker := r.otherSpeaker()
	return turnPlan{
		slot:     SlotParticipant,
		speaker:  speaker,
		voice:    speech.VoiceParticipant,
		window:   r.cfg.ParticipantWindow,
		fallback: r.participant.Fallback,
		compose: func(ctx context.Context, window []chat.Message) (composed, error) {
			system := r.participant.PromptFor(speaker.DisplayName)
			messages, err := formatPrompt(ctx, system, history(window, speaker.ID, false), participantInstruction)
			if err != nil {
				return composed{}, err
			}
			return composed{
				messages:    messages,
				temperature: participantTemperature,
				maxTokens:   participantMaxTokens,
			}, nil
		},
	}
}

func (r *Room) welcomePlan() turnPlan {
	plan := r.hostPlan()
	plan.fallback = r.host.OpeningLine
	plan.compose = func(context.Context, []chat.Message) (composed, error) {
		return composed{
			messages: []llm.Message{
				{Role: llm.RoleSystem, Content: r.host.WelcomePrompt()},
				{Role: llm.RoleUser, Content: welcomeInstruction},
			},
			temperature: welcomeTemperature,
			maxTokens:   welcomeMaxTokens,
			emotion:     "happy",
		}, nil
	}
	return plan
}

// history 把窗口内的消息转换成对话历史。selfID 发出的消息标为 assistant，
// 其余标为 user 并带上发言人；labelSelf 为 true 时 assistant 消息也带上发言人。
func history(window []chat.Message, selfID string, labelSelf bool) []*schema.Message {
	out := make([]*schema.Message, 0, len(window))
	for _, m := range window {
		labelled := fmt.Sprintf("%s: %s", m.SenderName, m.Content)
		if m.SenderID == selfID {
			content := m.Content
			if labelSelf {
				content = labelled
			}
			out = append(out, schema.AssistantMessage(content, nil))
			continue
		}
		out = append(out, schema.UserMessage(labelled))
	}
	return out
}

func formatPrompt(ctx context.Context, system string, hist []*schema.Message, query string) ([]llm.Message, error) {
	msgs, err := chatTemplate.Format(ctx, map[string]any{
		"system":  system,
		"history": hist,
		"query":   query,
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	return llm.FromSchemaMessages(msgs), nil
}

// QuietThreshold 返回主持人插话前需要的安静时长：基础阈值加上读完上一条消息的时间。
func QuietThreshold(base time.Duration, last string) time.Duration {
	reading := time.Duration(utf8.RuneCountInString(last)) * readingTimePerRune
	if reading > maxReadingTime {
		reading = maxReadingTime
	}
	return base + reading
}

func (r *Room) welcome(ctx context.Context) {
	if _, err := r.produce(ctx, r.welcomePlan()); err != nil && !errors.Is(err, ErrRoomClosed) {
		log.Warnf("[room] %s welcome failed: %v", r.id, err)
	}
}

func (r *Room) hostLoop(ctx context.Context) {
	if r.cfg.HostInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.HostInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		quiet := false
		err := r.do(func(s *state) {
			last := ""
			if n := len(s.messages); n > 0 {
				last = s.messages[n-1].Content
			}
			quiet = r.now().Sub(s.lastAppend) >= QuietThreshold(r.cfg.QuietThreshold, last)
		})
		if err != nil {
			return
		}
		if !quiet {
			continue
		}
		if _, err := r.produce(ctx, r.hostPlan()); err != nil && !errors.Is(err, ErrSlotBusy) && !errors.Is(err, ErrRoomClosed) {
			log.Warnf("[room] %s host turn failed: %v", r.id, err)
		}
	}
}

func (r *Room) participantLoop(ctx context.Context) {
	if !sleep(ctx, r.cfg.ParticipantInitialDelay) {
		return
	}
	for {
		if _, err := r.produce(ctx, r.participantPlan()); err != nil {
			if errors.Is(err, ErrRoomClosed) {
				return
			}
			if !errors.Is(err, ErrSlotBusy) {
				log.Warnf("[room] %s participant turn failed: %v", r.id, err)
			}
		}
		if !sleep(ctx, r.participantInterval()) {
			return
		}
	}
}

func (r *Room) participantInterval() time.Duration {
	lo, hi := r.cfg.ParticipantMinInterval, r.cfg.ParticipantMaxInterval
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.randFloat(0, float64(hi-lo)))
}

// levelLoop 模拟音量：正在说话的参与者电平较高，主持人沉默时为 0。
func (r *Room) levelLoop(ctx context.Context) {
	if r.cfg.LevelTick <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.LevelTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := r.do(r.updateLevels); err != nil {
			return
		}
	}
}

func (r *Room) updateLevels(s *state) {
	levels := make(map[string]float64, len(s.session.Participants))
	for _, p := range s.session.Participants {
		_, speaking := s.speaking[p.ID]
		switch {
		case p.Role == chat.RoleHost && speaking:
			levels[p.ID] = r.randFloat(0.6, 1.0)
		case p.Role == chat.RoleHost:
			levels[p.ID] = 0
		case speaking:
			levels[p.ID] = r.randFloat(0.4, 0.9)
		default:
			levels[p.ID] = r.randFloat(0, 0.1)
		}
	}
	s.levels = levels
	s.volume = r.randFloat(0.3, 0.8)

	published := make(map[string]float64, len(levels))
	for id, v := range levels {
		published[id] = v
	}
	s.hub.publish(Event{Type: EventLevels, RoomID: r.id, Levels: published, Volume: s.volume})
}

func (r *Room) watchCaptureErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-r.capture.Errors():
			log.Warnf("[room] %s speech capture error: %v", r.id, err)
		}
	}
}
