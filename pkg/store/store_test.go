package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "chateval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scorePtr(v float64) *float64 { return &v }

func sampleTurns() []chat.Turn {
	return []chat.Turn{
		{Speaker: "Me", Message: "want to grab coffee tomorrow morning?", RelevanceScore: nil},
		{Speaker: "Them", Message: "sure, when?", RelevanceScore: scorePtr(3.2)},
		{Speaker: "Me", Message: "10 works", RelevanceScore: scorePtr(-1.5)},
	}
}

func TestSaveConversationDefaultTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, title, err := s.SaveConversation(ctx, "user1", "", sampleTurns(), nil)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, "want to grab coffee tomorrow m..", title, "first message truncated to 30 runes")
	assert.True(t, strings.HasSuffix(title, ".."))

	// Short first message passes through untruncated.
	_, title, err = s.SaveConversation(ctx, "user1", "", []chat.Turn{{Speaker: "Me", Message: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", title)

	// Explicit titles are kept.
	_, title, err = s.SaveConversation(ctx, "user1", "my title", sampleTurns(), nil)
	require.NoError(t, err)
	assert.Equal(t, "my title", title)
}

func TestSaveConversationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.SaveConversation(ctx, "user1", "t", sampleTurns(), nil)
	require.NoError(t, err)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	require.Len(t, conv.Turns, 3)
	assert.Equal(t, "Me", conv.Turns[0].Speaker)
	assert.Nil(t, conv.Turns[0].RelevanceScore, "NULL score survives the round trip")
	require.NotNil(t, conv.Turns[1].RelevanceScore)
	assert.Equal(t, 3.2, *conv.Turns[1].RelevanceScore)
	assert.Equal(t, "10 works", conv.Turns[2].Message, "sequence order preserved")
}

func TestSaveConversationOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.SaveConversation(ctx, "user1", "first", sampleTurns(), nil)
	require.NoError(t, err)

	updated := []chat.Turn{{Speaker: "Me", Message: "rewritten", RelevanceScore: scorePtr(1)}}
	id2, title, err := s.SaveConversation(ctx, "user1", "second", updated, &id)
	require.NoError(t, err)
	assert.Equal(t, id, id2, "overwrite keeps the id")
	assert.Equal(t, "second", title)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 1, "old messages are replaced, not appended")
	assert.Equal(t, "rewritten", conv.Turns[0].Message)

	entries, err := s.History(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "overwrite must not duplicate the listing")
}

func TestSaveConversationIgnoresForeignID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	theirs, _, err := s.SaveConversation(ctx, "user1", "theirs", sampleTurns(), nil)
	require.NoError(t, err)

	// Another user pointing at that id gets a fresh conversation instead.
	mine, _, err := s.SaveConversation(ctx, "user2", "mine", sampleTurns(), &theirs)
	require.NoError(t, err)
	assert.NotEqual(t, theirs, mine)

	conv, err := s.GetConversation(ctx, theirs)
	require.NoError(t, err)
	assert.Equal(t, "theirs", conv.Title)
}

func TestSaveConversationStaleIDCreatesNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := int64(9999)
	id, _, err := s.SaveConversation(ctx, "user1", "t", sampleTurns(), &stale)
	require.NoError(t, err)
	assert.NotEqual(t, stale, id)
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _, err := s.SaveConversation(ctx, "user1", "a", sampleTurns(), nil)
	require.NoError(t, err)
	second, _, err := s.SaveConversation(ctx, "user1", "b", sampleTurns()[:2], nil)
	require.NoError(t, err)
	_, _, err = s.SaveConversation(ctx, "other", "not mine", sampleTurns(), nil)
	require.NoError(t, err)

	entries, err := s.History(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, entries, 2, "history is scoped to the user")
	assert.Equal(t, second, entries[0].ID, "newest first")
	assert.Equal(t, 2, entries[0].MessageCount)
	assert.Equal(t, first, entries[1].ID)
	assert.Equal(t, 3, entries[1].MessageCount)
	assert.NotContains(t, entries[0].Date, "+", "timestamps are naive UTC")
}

func TestSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.SaveConversation(ctx, "user1", "t", sampleTurns(), nil)
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, id))

	entries, err := s.History(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, entries, "deleted sessions vanish from the listing")

	// The rows themselves stay loadable.
	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 3)

	assert.ErrorIs(t, s.SoftDelete(ctx, 12345), ErrNotFound)
}

func TestSaveUndeletesOnOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.SaveConversation(ctx, "user1", "t", sampleTurns(), nil)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, id))

	_, _, err = s.SaveConversation(ctx, "user1", "t", sampleTurns(), &id)
	require.NoError(t, err)

	entries, err := s.History(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "resaving a deleted session restores it")
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversation(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.SaveConversation(ctx, "user1", "t", sampleTurns(), nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveFeedback(ctx, id, 5, "spot on"))
	require.NoError(t, s.SaveFeedback(ctx, id, 2, ""), "multiple ratings per session are allowed")
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "short", defaultTitle("short"))
	long := strings.Repeat("x", 31)
	assert.Equal(t, strings.Repeat("x", 30)+"..", defaultTitle(long))
	// Rune-based, not byte-based.
	cjk := strings.Repeat("好", 31)
	assert.Equal(t, strings.Repeat("好", 30)+"..", defaultTitle(cjk))
}
