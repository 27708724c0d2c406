package room

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wutongtree/backend/internal/config"
	"github.com/wutongtree/backend/internal/model/chat"
	"github.com/wutongtree/backend/internal/model/conversation"
	"github.com/wutongtree/backend/internal/model/persona"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/service/speech"
)

type byteSynth struct{}

func (byteSynth) Name() string { return "bytes" }

func (byteSynth) Synthesize(_ context.Context, req speech.Request) (speech.Audio, error) {
	return speech.Audio{Data: []byte(req.Text), Format: "mp3", Vendor: "bytes"}, nil
}

type instantSink struct{}

func (instantSink) Play(context.Context, speech.Audio) error { return nil }

type gateSink struct{ release chan struct{} }

func (g gateSink) Play(ctx context.Context, _ speech.Audio) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
		return nil
	}
}

type memoryRecords struct {
	mu    sync.Mutex
	items []conversation.Record
}

// memoryRecords 与 kv.Store 语义一致：覆盖写保留已有评分，RateConversation 无条件覆盖。
func (m *memoryRecords) UpsertConversation(rec conversation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == rec.ID {
			if rec.Rating == 0 {
				rec.Rating = m.items[i].Rating
			}
			m.items[i] = rec
			return nil
		}
	}
	m.items = append(m.items, rec)
	return nil
}

func (m *memoryRecords) RateConversation(id string, rating int) (conversation.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Rating = rating
			return m.items[i], true, nil
		}
	}
	return conversation.Record{}, false, nil
}

func (m *memoryRecords) Conversations() ([]conversation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]conversation.Record(nil), m.items...), nil
}

type memoryArchive struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (a *memoryArchive) Archive(_ context.Context, msg chat.Message) error {
	a.mu.Lock()
	a.msgs = append(a.msgs, msg)
	a.mu.Unlock()
	return nil
}

func (a *memoryArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

// capturingClient 记录每次请求的消息，并返回固定文本。
type capturingClient struct {
	mu       sync.Mutex
	requests [][]llm.Message
	reply    string
}

func (c *capturingClient) Generate(_ context.Context, messages []llm.Message, _ float64, _ int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, append([]llm.Message(nil), messages...))
	return c.reply, nil
}

func (c *capturingClient) last() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	room    *Room
	records *memoryRecords
	archive *memoryArchive
	clock   *clock
}

func testRoomConfig(t *testing.T) config.RoomConfig {
	return config.RoomConfig{
		HostWindow:        5,
		ParticipantWindow: 6,
		ReplyDelay:        10 * time.Millisecond,
		QuietThreshold:    8 * time.Second,
		RecordingDir:      t.TempDir(),
	}
}

func newFixture(t *testing.T, client llm.Client, sink speech.Sink) *fixture {
	t.Helper()
	personas := persona.NewMemoryStore(persona.Seed())
	clk := &clock{now: time.Unix(1700000000, 0)}
	f := &fixture{records: &memoryRecords{}, archive: &memoryArchive{}, clock: clk}

	session := chat.Session{
		ID: "room-1",
		Participants: []chat.Participant{
			{ID: "self", DisplayName: "You", Role: chat.RoleSelf},
			{ID: persona.ParticipantID, DisplayName: "Jamie", Role: chat.RoleOther},
			{ID: persona.HostID, DisplayName: "MoMo", Role: chat.RoleHost},
		},
		StartTime: clk.Now(),
	}
	f.room = New(session, Options{
		Config:      testRoomConfig(t),
		LLM:         client,
		Playback:    speech.NewPlayback(byteSynth{}, speech.PlaybackOptions{Sink: sink}),
		Host:        personas.MustFind(persona.HostID),
		Participant: personas.MustFind(persona.ParticipantID),
		Records:     f.records,
		Archive:     f.archive,
		Rand:        rand.NewSource(1),
		Now:         clk.Now,
	})
	t.Cleanup(func() { _, _ = f.room.End() })
	return f
}

func TestTriggerParticipantFallbackAppendsExactlyOneMessage(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(true, 0), instantSink{})

	msg, err := f.room.TriggerParticipant()
	require.NoError(t, err)

	msgs, err := f.room.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, "That's really interesting! I'd love to hear more about that.", msgs[0].Content)
	assert.Equal(t, "Jamie", msgs[0].SenderName)
	assert.Equal(t, chat.KindAI, msgs[0].Kind)

	snap, err := f.room.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Speaking, "fallback replies are not spoken")
	assert.Equal(t, TurnIdle, snap.Turns[SlotParticipant])
}

func TestTriggerHostSpeaksUntilPlaybackEnds(t *testing.T) {
	sink := gateSink{release: make(chan struct{})}
	f := newFixture(t, llm.NewMockClient(false, 0), sink)

	msg, err := f.room.TriggerHost()
	require.NoError(t, err)
	assert.Equal(t, persona.HostID, msg.SenderID)
	assert.Contains(t, msg.Content, "What do you all think")

	snap, err := f.room.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{persona.HostID}, snap.Speaking)
	assert.Equal(t, persona.HostID, snap.CurrentSpeaker)
	assert.Equal(t, TurnSpeaking, snap.Turns[SlotHost])

	close(sink.release)
	require.Eventually(t, func() bool {
		snap, err := f.room.Snapshot()
		return err == nil && len(snap.Speaking) == 0 && snap.Turns[SlotHost] == TurnIdle
	}, time.Second, 5*time.Millisecond)
}

func TestBusySlotRejectsSecondTurn(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 300*time.Millisecond), instantSink{})

	first := make(chan error, 1)
	go func() {
		_, err := f.room.TriggerHost()
		first <- err
	}()

	require.Eventually(t, func() bool {
		snap, err := f.room.Snapshot()
		return err == nil && snap.Turns[SlotHost] == TurnComposing
	}, time.Second, 5*time.Millisecond)

	_, err := f.room.TriggerHost()
	assert.ErrorIs(t, err, ErrSlotBusy)
	require.NoError(t, <-first)

	msgs, err := f.room.Messages()
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestEndDropsLateReplies(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 5*time.Second), instantSink{})

	result := make(chan error, 1)
	go func() {
		_, err := f.room.TriggerParticipant()
		result <- err
	}()
	require.Eventually(t, func() bool {
		snap, err := f.room.Snapshot()
		return err == nil && snap.Turns[SlotParticipant] == TurnComposing
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(90 * time.Second)
	rec, err := f.room.End()
	require.NoError(t, err)
	assert.ErrorIs(t, <-result, ErrRoomClosed)

	assert.Equal(t, "room-1", rec.ID)
	assert.Equal(t, "Jamie", rec.PartnerName)
	assert.Equal(t, conversation.DefaultTopic, rec.Topic)
	assert.Equal(t, 90, rec.DurationSeconds)
	assert.False(t, rec.HasRecording)
	assert.Zero(t, f.archive.count())

	saved, _ := f.records.Conversations()
	require.Len(t, saved, 1)
	assert.Equal(t, rec, saved[0])

	_, err = f.room.Messages()
	assert.ErrorIs(t, err, ErrRoomClosed)
	_, err = f.room.End()
	assert.ErrorIs(t, err, ErrRoomClosed)
	assert.True(t, f.room.Ended())
}

func TestHumanUtteranceTriggersParticipantReply(t *testing.T) {
	client := &capturingClient{reply: "Oh nice, tell me more!"}
	f := newFixture(t, client, instantSink{})

	require.NoError(t, f.room.StartListening())
	require.NoError(t, f.room.PushTranscript("hello"))
	require.NoError(t, f.room.PushTranscript("there"))
	require.Eventually(t, func() bool {
		return f.room.capture.Transcript() == "hello there"
	}, time.Second, 5*time.Millisecond)

	msg, err := f.room.StopListening()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, chat.KindHuman, msg.Kind)
	assert.Equal(t, "self", msg.SenderID)

	require.Eventually(t, func() bool {
		msgs, err := f.room.Messages()
		return err == nil && len(msgs) == 2
	}, time.Second, 5*time.Millisecond)

	req := client.last()
	require.Len(t, req, 3)
	assert.Equal(t, llm.RoleSystem, req[0].Role)
	assert.True(t, strings.HasPrefix(req[0].Content, "You are Jamie, "))
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "You: hello there"}, req[1])
	assert.Equal(t, participantInstruction, req[2].Content)

	assert.ErrorIs(t, f.room.PushTranscript("late"), ErrNotListening)
	_, err = f.room.StopListening()
	assert.ErrorIs(t, err, ErrNotListening)
}

func TestEmptyUtteranceAppendsNothing(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 0), instantSink{})

	require.NoError(t, f.room.StartListening())
	msg, err := f.room.StopListening()
	require.NoError(t, err)
	assert.Nil(t, msg)

	msgs, err := f.room.Messages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHostPromptLabelsHistory(t *testing.T) {
	client := &capturingClient{reply: "So what brought you here today?"}
	f := newFixture(t, client, instantSink{})

	require.NoError(t, f.room.do(func(s *state) {
		f.room.append(s, chat.Message{SenderID: "self", SenderName: "You", Content: "I love hiking", Kind: chat.KindHuman})
		f.room.append(s, chat.Message{SenderID: persona.HostID, SenderName: "MoMo", Content: "Nice!", Kind: chat.KindAI})
	}))

	_, err := f.room.TriggerHost()
	require.NoError(t, err)

	req := client.last()
	require.Len(t, req, 4)
	assert.True(t, strings.HasPrefix(req[0].Content, "You are MoMo"))
	assert.Contains(t, req[0].Content, "Context from recent conversation")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "You: I love hiking"}, req[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "MoMo: Nice!"}, req[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: hostInstruction}, req[3])
}

func TestMuteTogglePostsNoticesAndBlocksListening(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 0), instantSink{})

	muted, err := f.room.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)
	assert.ErrorIs(t, f.room.StartListening(), ErrMuted)

	muted, err = f.room.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)

	msgs, err := f.room.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "You are now muted", msgs[0].Content)
	assert.Equal(t, "You are now unmuted", msgs[1].Content)
	for _, m := range msgs {
		assert.Equal(t, chat.KindSystem, m.Kind)
		assert.Equal(t, chat.SystemSenderID, m.SenderID)
		assert.Equal(t, SystemSenderName, m.SenderName)
	}
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
}

func TestSpeakerToggle(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 0), instantSink{})

	on, err := f.room.ToggleSpeaker()
	require.NoError(t, err)
	assert.False(t, on)

	snap, err := f.room.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.Toggles.SpeakerOn)
	assert.Empty(t, snap.Messages)
}

func TestStartRecorderDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)

	first, err := StartRecorder(dir, now)
	require.NoError(t, err)
	first.Write("host", speech.Audio{Data: []byte("first")})
	_, err = first.Stop(now)
	require.NoError(t, err)

	second, err := StartRecorder(dir, now)
	require.NoError(t, err)
	defer second.Stop(now)

	assert.Equal(t, filepath.Join(dir, "conversation_1700000000.mp3"), first.Path())
	assert.Equal(t, filepath.Join(dir, "conversation_1700000000_1.mp3"), second.Path())

	data, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestRecordingToggleWritesFileAndRecord(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 0), instantSink{})

	on, err := f.room.ToggleRecording()
	require.NoError(t, err)
	require.True(t, on)

	path := filepath.Join(f.room.cfg.RecordingDir, "conversation_1700000000.mp3")
	require.FileExists(t, path)

	_, err = f.room.TriggerHost()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() > 0
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(42 * time.Second)
	on, err = f.room.ToggleRecording()
	require.NoError(t, err)
	assert.False(t, on)

	saved, _ := f.records.Conversations()
	require.Len(t, saved, 1)
	assert.Equal(t, 42, saved[0].DurationSeconds)
	assert.True(t, saved[0].HasRecording)
	assert.Equal(t, "Jamie", saved[0].PartnerName)

	msgs, err := f.room.Messages()
	require.NoError(t, err)
	assert.Equal(t, "🔴 Recording started", msgs[0].Content)
	assert.Equal(t, "⏹️ Recording stopped and saved to your phone", msgs[len(msgs)-1].Content)

	f.clock.Advance(10 * time.Second)
	rec, err := f.room.End()
	require.NoError(t, err)
	assert.True(t, rec.HasRecording)
	assert.Equal(t, 52, rec.DurationSeconds)
}

func TestLevelsFollowSpeakingSet(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 0), instantSink{})

	require.NoError(t, f.room.do(func(s *state) {
		f.room.markSpeaking(s, persona.HostID)
		f.room.updateLevels(s)
	}))

	snap, err := f.room.Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 0.8, snap.Levels[persona.HostID], 0.2)
	assert.InDelta(t, 0.05, snap.Levels["self"], 0.05)
	assert.InDelta(t, 0.05, snap.Levels[persona.ParticipantID], 0.05)
	assert.InDelta(t, 0.55, snap.Volume, 0.25)

	require.NoError(t, f.room.do(func(s *state) {
		f.room.clearSpeaking(s, persona.HostID, 0)
		f.room.updateLevels(s)
	}))
	snap, err = f.room.Snapshot()
	require.NoError(t, err)
	assert.Zero(t, snap.Levels[persona.HostID])
}

func TestSpeakingGenerationGuardsRemoval(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(false, 0), instantSink{})

	require.NoError(t, f.room.do(func(s *state) {
		stale := f.room.markSpeaking(s, persona.HostID)
		f.room.markSpeaking(s, persona.HostID)
		f.room.clearSpeaking(s, persona.HostID, stale)
	}))

	snap, err := f.room.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{persona.HostID}, snap.Speaking)
}

func TestSubscribeReceivesMessagesUntilEnd(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(true, 0), instantSink{})

	events, unsubscribe, err := f.room.Subscribe()
	require.NoError(t, err)
	defer unsubscribe()

	_, err = f.room.TriggerHost()
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, EventMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "That's interesting! What do you all think about that?", ev.Message.Content)

	_, err = f.room.End()
	require.NoError(t, err)

	var last Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, EventEnded, last.Type)
}

func TestQuietThreshold(t *testing.T) {
	assert.Equal(t, 8*time.Second, QuietThreshold(8*time.Second, ""))
	assert.Equal(t, 8600*time.Millisecond, QuietThreshold(8*time.Second, "0123456789"))
	assert.Equal(t, 18*time.Second, QuietThreshold(8*time.Second, strings.Repeat("a", 1000)))
}
