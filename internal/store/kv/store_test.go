package kv

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wutongtree/backend/internal/model/conversation"
	"github.com/wutongtree/backend/internal/model/user"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "wutongtree.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestConversationsUpsertAndReopen(t *testing.T) {
	s, path := openTemp(t)

	recs, err := s.Conversations()
	require.NoError(t, err)
	assert.Empty(t, recs)

	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first := conversation.Record{ID: "a", PartnerName: "Alex", Topic: conversation.DefaultTopic, DurationSeconds: 30, Date: date}
	second := conversation.Record{ID: "b", PartnerName: "Morgan", Topic: "Music", DurationSeconds: 60, Date: date}
	require.NoError(t, s.UpsertConversation(first))
	require.NoError(t, s.UpsertConversation(second))

	first.Rating = 5
	require.NoError(t, s.UpsertConversation(first))

	// 结束时的覆盖写不带评分，已有评分保留
	first.Rating = 0
	first.HasRecording = true
	require.NoError(t, s.UpsertConversation(first))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recs, err = s.Conversations()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, 5, recs[0].Rating)
	assert.True(t, recs[0].HasRecording)
	assert.Equal(t, "b", recs[1].ID)
	assert.True(t, recs[1].Date.Equal(date))
}

func TestRateConversationOverwrites(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	require.NoError(t, s.UpsertConversation(conversation.Record{ID: "a", PartnerName: "Alex", Topic: conversation.DefaultTopic}))

	rec, ok, err := s.RateConversation("a", 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, rec.Rating)

	// 改回 0 也要生效
	rec, ok, err = s.RateConversation("a", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rec.Rating)

	recs, err := s.Conversations()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].Rating)
	assert.Equal(t, "Alex", recs[0].PartnerName)

	_, ok, err = s.RateConversation("missing", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	recs, err = s.Conversations()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCurrentUserLifecycle(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	_, ok, err := s.CurrentUser()
	require.NoError(t, err)
	assert.False(t, ok)

	age := 28
	u := user.User{ID: "u1", Email: "sam@example.com", Name: "Sam", Age: &age, Subscription: user.SubscriptionFree}
	require.NoError(t, s.SaveCurrentUser(u))

	got, ok, err := s.CurrentUser()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u, got)

	require.NoError(t, s.ClearCurrentUser())
	require.NoError(t, s.ClearCurrentUser())
	_, ok, err = s.CurrentUser()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.SaveCurrentUser(user.User{}))
}
