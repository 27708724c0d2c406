package personality

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wutongtree/backend/internal/analysis/tone"
	"github.com/wutongtree/backend/internal/model/chat"
)

func msgs(contents ...string) []chat.Message {
	out := make([]chat.Message, 0, len(contents))
	for _, c := range contents {
		out = append(out, chat.Message{SenderName: "Alex", Content: c, Kind: chat.KindHuman})
	}
	return out
}

func TestChooseStyle(t *testing.T) {
	long := strings.Repeat("a", 51)

	tests := []struct {
		name   string
		recent []chat.Message
		want   Style
	}{
		{name: "question", recent: msgs("hi", "what do you do?"), want: StyleReactiveListener},
		{name: "question wins over bridge", recent: msgs("a", "b", "why?"), want: StyleReactiveListener},
		{name: "every third message bridges", recent: msgs("a", "b", "c"), want: StyleTopicBridger},
		{name: "long message encourages", recent: msgs("a", long), want: StyleEncourager},
		{name: "default asks", recent: msgs("a", "short"), want: StyleQuestionAsker},
		{name: "empty history bridges", recent: nil, want: StyleTopicBridger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ChooseStyle(tt.recent))
		})
	}
}

func TestRenderMoodStaysWithinToneCandidates(t *testing.T) {
	policy := NewPolicy(rand.NewSource(7))
	require.Equal(t, InitialMood, policy.Mood())

	cases := map[tone.Label][]chat.Message{
		tone.Excited:    msgs("I love this place"),
		tone.Empathetic: msgs("it was a difficult year"),
		tone.Playful:    msgs("haha you are funny"),
		tone.Curious:    msgs("I work in logistics"),
	}

	for i := 0; i < 20; i++ {
		for label, recent := range cases {
			rendering := policy.Render(recent)
			require.Equal(t, label, rendering.Tone)
			require.Contains(t, Candidates(label), rendering.Mood)
			require.Equal(t, rendering.Mood, policy.Mood())
			require.Contains(t, []Style{StyleQuestionAsker, StyleReactiveListener, StyleTopicBridger, StyleEncourager}, rendering.Style)
		}
	}
}

func TestRenderIsDeterministicForPinnedSeed(t *testing.T) {
	history := [][]chat.Message{
		msgs("I love hiking"),
		msgs("it was hard"),
		msgs("lol"),
		msgs("tell me more"),
		msgs("amazing view"),
	}

	run := func() []Mood {
		policy := NewPolicy(rand.NewSource(42))
		out := make([]Mood, 0, len(history))
		for _, recent := range history {
			out = append(out, policy.Render(recent).Mood)
		}
		return out
	}

	require.Equal(t, run(), run())
}

func TestRenderTemperatureFollowsMood(t *testing.T) {
	policy := NewPolicy(rand.NewSource(1))
	for i := 0; i < 30; i++ {
		rendering := policy.Render(msgs("haha"))
		if rendering.Mood.Lively() {
			require.Equal(t, livelyTemperature, rendering.Temperature)
		} else {
			require.Equal(t, calmTemperature, rendering.Temperature)
		}
	}
}

func TestRenderPromptContext(t *testing.T) {
	policy := NewPolicy(rand.NewSource(3))

	empty := policy.Render(nil)
	require.Contains(t, empty.SystemPrompt, "Conversation is just starting")

	rendering := policy.Render(msgs("one", "two", "three", "four"))
	require.Contains(t, rendering.SystemPrompt, "Recent messages:\nAlex: two\nAlex: three\nAlex: four")
	require.NotContains(t, rendering.SystemPrompt, "Alex: one")
	require.Contains(t, rendering.SystemPrompt, rendering.Mood.Description())
	require.Contains(t, rendering.SystemPrompt, rendering.Style.Instruction())
}

func TestAdvanceFromEveryMood(t *testing.T) {
	policy := NewPolicy(rand.NewSource(9))
	for i := 0; i < 50; i++ {
		for _, label := range tone.Labels() {
			mood, err := policy.Advance(label)
			require.NoError(t, err)
			require.Contains(t, Candidates(label), mood)
		}
	}
}
