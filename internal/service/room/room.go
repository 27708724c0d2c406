// Package room 编排一个三方语音聊天房间：人类发言、AI 主持人与 AI 陪聊者。
//
// 每个房间由一个 actor goroutine 独占全部可变状态（消息日志、发言集合、音量、开关）。
// 生产者通过 do 提交命令并等待确认，消息追加因此是串行的。
package room

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wutongtree/backend/internal/config"
	"github.com/wutongtree/backend/internal/model/chat"
	"github.com/wutongtree/backend/internal/model/conversation"
	"github.com/wutongtree/backend/internal/model/persona"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/service/personality"
	"github.com/wutongtree/backend/internal/service/speech"
	"github.com/wutongtree/backend/pkg/log"
)

var (
	ErrRoomClosed         = errors.New("room is closed")
	ErrMuted              = errors.New("microphone is muted")
	ErrNotListening       = errors.New("not listening")
	ErrSlotBusy           = errors.New("slot is busy")
	ErrCaptureUnavailable = errors.New("speech capture unavailable")
)

// SystemSenderName 系统提示消息的显示名。
const SystemSenderName = "System"

const (
	noticeMuted            = "You are now muted"
	noticeUnmuted          = "You are now unmuted"
	noticeRecordingStarted = "🔴 Recording started"
	noticeRecordingStopped = "⏹️ Recording stopped and saved to your phone"
)

// RecordStore persists conversation summary records.
type RecordStore interface {
	UpsertConversation(rec conversation.Record) error
}

// Archive keeps an audit copy of every appended message.
type Archive interface {
	Archive(ctx context.Context, msg chat.Message) error
}

// Options 构造房间所需的依赖。
type Options struct {
	Config      config.RoomConfig
	LLM         llm.Client
	Playback    *speech.Playback
	Feed        *speech.FeedEngine
	Capture     *speech.Capture
	Policy      *personality.Policy
	Host        persona.Persona
	Participant persona.Persona
	Records     RecordStore
	Archive     Archive
	Rand        rand.Source
	Now         func() time.Time
}

// Room is one live conversation.
type Room struct {
	id           string
	participants []chat.Participant
	cfg          config.RoomConfig
	llm          llm.Client
	policy       *personality.Policy
	playback     *speech.Playback
	capture      *speech.Capture
	feed         *speech.FeedEngine
	host         persona.Persona
	participant  persona.Persona
	records      RecordStore
	archive      Archive
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan func(*state)
	done   chan struct{}

	lifeMu    sync.Mutex
	started   bool
	ending    bool
	wg        sync.WaitGroup
	archiveWG sync.WaitGroup
}

// state 只在 actor goroutine 中读写。
type state struct {
	session        chat.Session
	messages       []chat.Message
	speaking       map[string]uint64
	speakGen       uint64
	currentSpeaker string
	levels         map[string]float64
	volume         float64
	muted          bool
	speakerOn      bool
	recorder       *Recorder
	turns          map[Slot]*turnMachine
	hub            *hub
	lastAppend     time.Time
	closed         bool
}

// Snapshot is a consistent copy of the room's observable state.
type Snapshot struct {
	Session          chat.Session       `json:"session"`
	Messages         []chat.Message     `json:"messages"`
	Speaking         []string           `json:"speaking"`
	CurrentSpeaker   string             `json:"currentSpeaker,omitempty"`
	Levels           map[string]float64 `json:"levels"`
	Volume           float64            `json:"volume"`
	Toggles          Toggles            `json:"toggles"`
	RecordingSeconds int                `json:"recordingSeconds"`
	Listening        bool               `json:"listening"`
	Transcript       string             `json:"transcript,omitempty"`
	Turns            map[Slot]TurnState `json:"turns"`
}

// New 创建房间并启动 actor。定时器与开场白要等 Start 才会运行。
func New(session chat.Session, opts Options) *Room {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.NewSource(opts.Now().UnixNano())
	}
	if opts.Feed == nil {
		opts.Feed = speech.NewFeedEngine()
	}
	if opts.Capture == nil {
		opts.Capture = speech.NewCapture(opts.Feed)
	}
	if opts.Playback == nil {
		opts.Playback = speech.NewPlayback(nil, speech.PlaybackOptions{})
	}
	if opts.Policy == nil {
		opts.Policy = personality.NewPolicy(nil)
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartTime.IsZero() {
		session.StartTime = opts.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:           session.ID,
		participants: append([]chat.Participant(nil), session.Participants...),
		cfg:          opts.Config,
		llm:          opts.LLM,
		policy:       opts.Policy,
		playback:     opts.Playback,
		capture:      opts.Capture,
		feed:         opts.Feed,
		host:         opts.Host,
		participant:  opts.Participant,
		records:      opts.Records,
		archive:      opts.Archive,
		now:          opts.Now,
		rng:          rand.New(opts.Rand),
		ctx:          ctx,
		cancel:       cancel,
		cmds:         make(chan func(*state)),
		done:         make(chan struct{}),
	}

	s := &state{
		session:   session,
		speaking:  make(map[string]uint64),
		levels:    make(map[string]float64),
		speakerOn: true,
		turns: map[Slot]*turnMachine{
			SlotHuman:       newTurnMachine(),
			SlotHost:        newTurnMachine(),
			SlotParticipant: newTurnMachine(),
		},
		hub:        newHub(),
		lastAppend: session.StartTime,
	}
	for _, p := range session.Participants {
		s.levels[p.ID] = 0
	}

	r.capture.OnUpdate(func(transcript string) {
		_ = r.do(func(s *state) {
			s.hub.publish(Event{Type: EventTranscript, RoomID: r.id, Transcript: transcript})
		})
	})

	go r.loop(s)
	return r
}

// ID returns the room id, equal to the session id.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) loop(s *state) {
	defer close(r.done)
	for cmd := range r.cmds {
		cmd(s)
		if s.closed {
			return
		}
	}
}

// do 把命令交给 actor 执行并等待完成。房间关闭后返回 ErrRoomClosed。
func (r *Room) do(fn func(*state)) error {
	ack := make(chan struct{})
	cmd := func(s *state) {
		defer close(ack)
		fn(s)
	}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRoomClosed
	}
	<-ack
	return nil
}

// spawn 启动一个随房间结束而退出的后台任务。
func (r *Room) spawn(fn func(ctx context.Context)) bool {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.ending {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
	return true
}

// Start 发送开场白并启动主持人、陪聊者与音量模拟的定时循环。重复调用无效。
func (r *Room) Start() {
	r.lifeMu.Lock()
	if r.started || r.ending {
		r.lifeMu.Unlock()
		return
	}
	r.started = true
	r.lifeMu.Unlock()

	r.spawn(r.welcome)
	r.spawn(r.hostLoop)
	r.spawn(r.participantLoop)
	r.spawn(r.levelLoop)
	r.spawn(r.watchCaptureErrors)
	log.Infof("[room] %s started", r.id)
}

// append 追加一条消息。时间戳保持严格递增。
func (r *Room) append(s *state, msg chat.Message) chat.Message {
	msg.ID = uuid.NewString()
	msg.SessionID = r.id
	now := r.now()
	if n := len(s.messages); n > 0 && !now.After(s.messages[n-1].CreatedAt) {
		now = s.messages[n-1].CreatedAt.Add(time.Nanosecond)
	}
	msg.CreatedAt = now

	s.messages = append(s.messages, msg)
	s.lastAppend = now
	s.hub.publish(Event{Type: EventMessage, RoomID: r.id, Message: &msg})

	if r.archive != nil {
		r.archiveWG.Add(1)
		go func() {
			defer r.archiveWG.Done()
			if err := r.archive.Archive(context.Background(), msg); err != nil {
				log.Warnf("[room] archive message %s failed: %v", msg.ID, err)
			}
		}()
	}
	return msg
}

func (r *Room) notice(s *state, content string) {
	r.append(s, chat.Message{
		SenderID:   chat.SystemSenderID,
		SenderName: SystemSenderName,
		Content:    content,
		Kind:       chat.KindSystem,
	})
}

// markSpeaking 后写入者覆盖 currentSpeaker；返回的代号用于之后的清理。
func (r *Room) markSpeaking(s *state, id string) uint64 {
	s.speakGen++
	s.speaking[id] = s.speakGen
	s.currentSpeaker = id
	s.hub.publish(Event{Type: EventSpeaking, RoomID: r.id, Speaking: speakingIDs(s)})
	return s.speakGen
}

// clearSpeaking 只有代号仍匹配时才移除，gen 为 0 表示无条件移除。
func (r *Room) clearSpeaking(s *state, id string, gen uint64) {
	current, ok := s.speaking[id]
	if !ok || (gen != 0 && current != gen) {
		return
	}
	delete(s.speaking, id)
	if s.currentSpeaker == id {
		s.currentSpeaker = ""
	}
	s.hub.publish(Event{Type: EventSpeaking, RoomID: r.id, Speaking: speakingIDs(s)})
}

func speakingIDs(s *state) []string {
	ids := make([]string, 0, len(s.speaking))
	for id := range s.speaking {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *state) recent(n int) []chat.Message {
	if n <= 0 || n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]chat.Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

func (s *state) toggles() Toggles {
	return Toggles{Muted: s.muted, SpeakerOn: s.speakerOn, Recording: s.recorder != nil}
}

func (r *Room) publishToggles(s *state) {
	t := s.toggles()
	s.hub.publish(Event{Type: EventState, RoomID: r.id, Toggles: &t})
}

func (r *Room) randFloat(lo, hi float64) float64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return lo + r.rng.Float64()*(hi-lo)
}

// Snapshot returns a copy of the observable state.
func (r *Room) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := r.do(func(s *state) {
		snap = Snapshot{
			Session:        s.session,
			Messages:       append([]chat.Message(nil), s.messages...),
			Speaking:       speakingIDs(s),
			CurrentSpeaker: s.currentSpeaker,
			Levels:         make(map[string]float64, len(s.levels)),
			Volume:         s.volume,
			Toggles:        s.toggles(),
			Turns:          make(map[Slot]TurnState, len(s.turns)),
		}
		for id, level := range s.levels {
			snap.Levels[id] = level
		}
		for slot, m := range s.turns {
			snap.Turns[slot] = m.state()
		}
		if s.recorder != nil {
			snap.RecordingSeconds = int(r.now().Sub(s.recorder.started) / time.Second)
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap.Listening = r.capture.Listening()
	snap.Transcript = r.capture.Transcript()
	return snap, nil
}

// Messages returns the ordered message log.
func (r *Room) Messages() ([]chat.Message, error) {
	var out []chat.Message
	err := r.do(func(s *state) {
		out = append([]chat.Message(nil), s.messages...)
	})
	return out, err
}

// Subscribe registers an event listener. The returned func unsubscribes.
func (r *Room) Subscribe() (<-chan Event, func(), error) {
	var (
		id int
		ch chan Event
	)
	if err := r.do(func(s *state) { id, ch = s.hub.add() }); err != nil {
		return nil, nil, err
	}
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = r.do(func(s *state) { s.hub.remove(id) })
		})
	}
	return ch, unsubscribe, nil
}

// StartListening starts capturing the local user's speech.
func (r *Room) StartListening() error {
	var selfID string
	var opErr error
	err := r.do(func(s *state) {
		if s.muted {
			opErr = ErrMuted
			return
		}
		if !s.turns[SlotHuman].fire(triggerListen) {
			opErr = ErrSlotBusy
			return
		}
		if self, ok := s.session.Self(); ok {
			selfID = self.ID
			r.markSpeaking(s, selfID)
		}
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	r.capture.Start()
	if r.capture.Listening() {
		return nil
	}

	_ = r.do(func(s *state) {
		s.turns[SlotHuman].fire(triggerReset)
		r.clearSpeaking(s, selfID, 0)
	})
	return ErrCaptureUnavailable
}

// PushTranscript feeds a recognized fragment into the active capture.
func (r *Room) PushTranscript(fragment string) error {
	if !r.feed.Push(fragment) {
		return ErrNotListening
	}
	return nil
}

// StopListening finalizes the utterance. A non-empty transcript becomes a
// human message and the participant persona is scheduled to reply.
func (r *Room) StopListening() (*chat.Message, error) {
	transcript := strings.TrimSpace(r.capture.Stop())
	r.capture.Reset()

	var appended *chat.Message
	var opErr error
	err := r.do(func(s *state) {
		human := s.turns[SlotHuman]
		if !human.fire(triggerTranscribe) {
			opErr = ErrNotListening
			return
		}
		self, _ := s.session.Self()
		r.clearSpeaking(s, self.ID, 0)
		if transcript != "" {
			msg := r.append(s, chat.Message{
				SenderID:   self.ID,
				SenderName: self.DisplayName,
				Content:    transcript,
				Kind:       chat.KindHuman,
			})
			appended = &msg
		}
		human.fire(triggerSettle)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	if appended != nil {
		r.spawn(func(ctx context.Context) {
			if !sleep(ctx, r.cfg.ReplyDelay) {
				return
			}
			if _, err := r.produce(ctx, r.participantPlan()); err != nil && !errors.Is(err, ErrSlotBusy) && !errors.Is(err, ErrRoomClosed) {
				log.Warnf("[room] %s participant reply failed: %v", r.id, err)
			}
		})
	}
	return appended, nil
}

// ToggleMute flips the microphone and appends a system notice.
func (r *Room) ToggleMute() (bool, error) {
	var muted bool
	err := r.do(func(s *state) {
		s.muted = !s.muted
		muted = s.muted
		if muted {
			r.notice(s, noticeMuted)
		} else {
			r.notice(s, noticeUnmuted)
		}
		r.publishToggles(s)
	})
	if err != nil {
		return false, err
	}

	if muted && r.capture.Listening() {
		// 静音时丢弃正在进行的听写
		r.capture.Stop()
		r.capture.Reset()
		_ = r.do(func(s *state) {
			s.turns[SlotHuman].fire(triggerReset)
			if self, ok := s.session.Self(); ok {
				r.clearSpeaking(s, self.ID, 0)
			}
		})
	}
	return muted, nil
}

// ToggleSpeaker flips audio output.
func (r *Room) ToggleSpeaker() (bool, error) {
	var on bool
	err := r.do(func(s *state) {
		s.speakerOn = !s.speakerOn
		on = s.speakerOn
		r.playback.SetOutputEnabled(on)
		r.publishToggles(s)
	})
	return on, err
}

// ToggleRecording starts or stops writing the room audio to a file. Stopping
// also stores a summary record. File errors are logged and leave recording off.
func (r *Room) ToggleRecording() (bool, error) {
	var (
		recording bool
		stopped   *Recorder
		record    conversation.Record
	)
	err := r.do(func(s *state) {
		now := r.now()
		if s.recorder == nil {
			rec, err := StartRecorder(r.cfg.RecordingDir, now)
			if err != nil {
				log.Errorf("[room] %s failed to start recording: %v", r.id, err)
				return
			}
			s.recorder = rec
			s.session.RecordingEnabled = true
			s.session.RecordingPath = rec.Path()
			r.playback.SetTap(rec.Write)
			recording = true
			r.notice(s, noticeRecordingStarted)
			r.publishToggles(s)
			return
		}

		r.playback.SetTap(nil)
		stopped = s.recorder
		s.recorder = nil
		seconds, err := stopped.Stop(now)
		if err != nil {
			log.Errorf("[room] %s failed to close recording %s: %v", r.id, stopped.Path(), err)
		}
		record = summarize(s.session, seconds, now, true)
		r.notice(s, noticeRecordingStopped)
		r.publishToggles(s)
	})
	if err != nil {
		return false, err
	}

	if stopped != nil {
		r.saveRecord(record)
	}
	return recording, nil
}

// End tears the room down: timers and in-flight calls are cancelled, playback
// and recording stop, and the summary record is stored.
func (r *Room) End() (conversation.Record, error) {
	r.lifeMu.Lock()
	if r.ending {
		r.lifeMu.Unlock()
		return conversation.Record{}, ErrRoomClosed
	}
	r.ending = true
	r.lifeMu.Unlock()

	r.cancel()
	r.playback.Stop()
	r.capture.Stop()
	r.capture.Reset()

	var (
		record   conversation.Record
		recorder *Recorder
	)
	err := r.do(func(s *state) {
		now := r.now()
		s.session.EndTime = &now
		recorder = s.recorder
		s.recorder = nil
		if recorder != nil {
			r.playback.SetTap(nil)
		}
		record = summarize(s.session, int(now.Sub(s.session.StartTime)/time.Second), now, s.session.RecordingEnabled)
		for _, m := range s.turns {
			m.fire(triggerReset)
		}
		s.hub.publish(Event{Type: EventEnded, RoomID: r.id})
		s.hub.closeAll()
		s.closed = true
	})
	if err != nil {
		return conversation.Record{}, err
	}

	if recorder != nil {
		if _, err := recorder.Stop(r.now()); err != nil {
			log.Errorf("[room] %s failed to close recording: %v", r.id, err)
		}
	}

	r.wg.Wait()
	r.archiveWG.Wait()
	r.saveRecord(record)
	log.Infof("[room] %s ended after %ds", r.id, record.DurationSeconds)
	return record, nil
}

// Ended reports whether End has been called.
func (r *Room) Ended() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) saveRecord(record conversation.Record) {
	if r.records == nil {
		return
	}
	if err := r.records.UpsertConversation(record); err != nil {
		log.Errorf("[room] %s failed to save conversation record: %v", r.id, err)
	}
}

// summarize 生成摘要记录，伙伴名取对方参与者。
func summarize(session chat.Session, seconds int, now time.Time, hasRecording bool) conversation.Record {
	partner := "Unknown"
	if other, ok := session.Other(); ok && other.DisplayName != "" {
		partner = other.DisplayName
	}
	topic := session.Topic
	if topic == "" {
		topic = conversation.DefaultTopic
	}
	if seconds < 0 {
		seconds = 0
	}
	return conversation.Record{
		ID:              session.ID,
		PartnerName:     partner,
		Topic:           topic,
		DurationSeconds: seconds,
		Date:            now,
		Rating:          0,
		HasRecording:    hasRecording,
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
