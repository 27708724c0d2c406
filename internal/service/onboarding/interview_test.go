package onboarding

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wutongtree/backend/internal/service/auth"
	"github.com/wutongtree/backend/internal/service/llm"
	"github.com/wutongtree/backend/internal/store/kv"
)

type call struct {
	messages    []llm.Message
	temperature float64
	maxTokens   int
}

// scriptedClient 按顺序返回预设回复，记录每次调用。
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []call
}

func (c *scriptedClient) Generate(_ context.Context, messages []llm.Message, temperature float64, maxTokens int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{messages: messages, temperature: temperature, maxTokens: maxTokens})
	if c.err != nil {
		return "", c.err
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

var answers = []string{
	"Sam",
	"28",
	"I love music and philosophy, also some cooking",
	"Deep discussions about ideas",
	"I just moved to a new city",
	"Street photography",
}

func TestInterviewWithoutClientUsesScript(t *testing.T) {
	svc := NewService(nil, nil)

	snap := svc.Start()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, Questions[0], snap.Messages[0].Content)
	assert.True(t, snap.Messages[0].FromAI)

	for i, answer := range answers {
		snap, err := svc.Answer(context.Background(), answer)
		require.NoError(t, err)
		last := snap.Messages[len(snap.Messages)-1]
		if i < len(answers)-1 {
			assert.Equal(t, Questions[i+1], last.Content)
			assert.False(t, snap.Complete)
		} else {
			assert.Equal(t, DefaultAnalysis, last.Content)
			assert.True(t, snap.Complete)
		}
	}

	snap = svc.Snapshot()
	assert.Len(t, snap.Messages, 1+2*len(answers))
	assert.Equal(t, answers, snap.Responses)
	assert.Equal(t, len(Questions)-1, snap.QuestionIndex)

	_, err := svc.Answer(context.Background(), "one more")
	assert.ErrorIs(t, err, ErrComplete)
}

func TestInterviewFollowUpAndAnalysis(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"How old are you, Sam? 😊", "q3", "q4", "q5", "q6",
		"  Sam loves music and big ideas. Great matches ahead!  ",
	}}
	svc := NewService(client, nil)
	svc.Start()

	var snap Snapshot
	for _, answer := range answers {
		var err error
		snap, err = svc.Answer(context.Background(), answer)
		require.NoError(t, err)
	}

	require.Len(t, client.calls, len(answers))
	first := client.calls[0]
	assert.Equal(t, 0.8, first.temperature)
	assert.Equal(t, 100, first.maxTokens)
	assert.Contains(t, first.messages[0].Content, "Current question number: 2 of 7")
	assert.Contains(t, first.messages[1].Content, "Q1: "+Questions[0]+"\nA1: Sam")
	assert.Equal(t, "How old are you, Sam? 😊", snap.Messages[2].Content)

	analysis := client.calls[len(client.calls)-1]
	assert.Equal(t, 0.7, analysis.temperature)
	assert.Equal(t, 150, analysis.maxTokens)
	assert.Contains(t, analysis.messages[1].Content, "Sam | 28 | I love music")
	assert.Equal(t, "Sam loves music and big ideas. Great matches ahead!", snap.Messages[len(snap.Messages)-1].Content)
	assert.True(t, snap.Complete)
}

func TestInterviewFallsBackWhenClientFails(t *testing.T) {
	client := &scriptedClient{err: &llm.APIError{StatusCode: 500, Body: "down"}}
	svc := NewService(client, nil)
	svc.Start()

	snap, err := svc.Answer(context.Background(), "Sam")
	require.NoError(t, err)
	assert.Equal(t, Questions[1], snap.Messages[2].Content)

	for _, answer := range answers[1:] {
		snap, err = svc.Answer(context.Background(), answer)
		require.NoError(t, err)
	}
	assert.Equal(t, DefaultAnalysis, snap.Messages[len(snap.Messages)-1].Content)
}

func TestInterviewRejectsInvalidAnswers(t *testing.T) {
	svc := NewService(nil, nil)

	_, err := svc.Answer(context.Background(), "Sam")
	assert.ErrorIs(t, err, ErrNotStarted)

	svc.Start()
	_, err = svc.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	_, err = svc.Finish()
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestFinishSavesExtractedProfile(t *testing.T) {
	store, err := kv.Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	authSvc := auth.NewService(store)

	svc := NewService(nil, authSvc)
	svc.Start()
	for _, answer := range answers {
		_, err := svc.Answer(context.Background(), answer)
		require.NoError(t, err)
	}

	_, err = svc.Finish()
	assert.True(t, errors.Is(err, auth.ErrNotAuthenticated))

	_, err = authSvc.SignIn("google")
	require.NoError(t, err)

	u, err := svc.Finish()
	require.NoError(t, err)
	assert.Equal(t, "Sam", u.Name)
	require.NotNil(t, u.Age)
	assert.Equal(t, 28, *u.Age)
	assert.Equal(t, []string{"Philosophy", "Music", "Cooking"}, u.Interests)
	assert.Equal(t, "Deep discussions about ideas", u.LookingFor)
	assert.True(t, u.OnboardingCompleted)
}
