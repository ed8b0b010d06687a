package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaestate/ava-agent/internal/agent/model"
	"github.com/avaestate/ava-agent/internal/testutil/fakellm"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func contents(ms []Memory) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Content)
	}
	return out
}

func TestStoreAddDeduplicatesPerThread(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	added, err := s.Add(ctx, "5511", "Budget is 500k USD")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(ctx, "5511", "  budget   IS 500k usd ")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.Add(ctx, "5522", "Budget is 500k USD")
	require.NoError(t, err)
	assert.True(t, added, "other threads keep their own copy")

	added, err = s.Add(ctx, "5511", "   ")
	require.NoError(t, err)
	assert.False(t, added)

	recent, err := s.Recent(ctx, "5511", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Budget is 500k USD"}, contents(recent))
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, fact := range []string{
		"Wants a 2 bedroom apartment in Miami",
		"Has two dogs",
		"Prefers ocean view",
	} {
		_, err := s.Add(ctx, "5511", fact)
		require.NoError(t, err)
	}
	_, err := s.Add(ctx, "5522", "Looking in Miami Beach")
	require.NoError(t, err)

	found, err := s.Search(ctx, "5511", "anything in miami with an ocean view?", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"Wants a 2 bedroom apartment in Miami", "Prefers ocean view"},
		contents(found))

	found, err = s.Search(ctx, "5511", `"unbalanced quote AND (`, 5)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = s.Search(ctx, "5511", "a b ?", 5)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStoreRecentOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, fact := range []string{"first", "second", "third"} {
		_, err := s.Add(ctx, "5511", fact)
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, "5511", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, contents(recent))

	require.NoError(t, s.DeleteThread(ctx, "5511"))
	recent, err = s.Recent(ctx, "5511", 2)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestStoreInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add(ctx, "5511", "Works from home")
	require.NoError(t, err)
	found, err := s.Search(ctx, "5511", "home office", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Works from home"}, contents(found))
}

func TestSanitizeFTS(t *testing.T) {
	assert.Equal(t, `"bedrooms" OR "miami"`, sanitizeFTS("3 bedrooms in Miami? bedrooms"))
	assert.Equal(t, "", sanitizeFTS(`" ( ) ?`))
	assert.Equal(t, `"and"`, sanitizeFTS("AND"))
}

func TestManagerExtractAndStore(t *testing.T) {
	ctx := context.Background()

	t.Run("important fact is stored", func(t *testing.T) {
		s := newStore(t)
		fake := fakellm.New(fakellm.Text(`{"is_important": true, "formatted_memory": "Budget is 500k USD"}`))
		m := NewManager(s, fake, 5)

		require.NoError(t, m.ExtractAndStore(ctx, "5511", model.UserMessage("my budget is 500k")))

		recent, err := s.Recent(ctx, "5511", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"Budget is 500k USD"}, contents(recent))
		require.Len(t, fake.Calls(), 1)
		assert.True(t, fake.Calls()[0].Contains("my budget is 500k"))
	})

	t.Run("unimportant message is skipped", func(t *testing.T) {
		s := newStore(t)
		m := NewManager(s, fakellm.New(fakellm.Text(`{"is_important": false, "formatted_memory": ""}`)), 5)

		require.NoError(t, m.ExtractAndStore(ctx, "5511", model.UserMessage("hi")))
		recent, err := s.Recent(ctx, "5511", 5)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("assistant and search messages are not analysed", func(t *testing.T) {
		fake := fakellm.New(fakellm.Text(`{"is_important": true, "formatted_memory": "x"}`))
		m := NewManager(newStore(t), fake, 5)

		require.NoError(t, m.ExtractAndStore(ctx, "5511", model.AssistantMessage("hello")))
		require.NoError(t, m.ExtractAndStore(ctx, "5511", model.UserMessage("ctx").WithKind(model.KindSearchContext)))
		assert.Empty(t, fake.Calls())
	})

	t.Run("model failure is returned", func(t *testing.T) {
		boom := errors.New("quota")
		m := NewManager(newStore(t), fakellm.New(fakellm.Fail(boom)), 5)
		assert.ErrorIs(t, m.ExtractAndStore(ctx, "5511", model.UserMessage("my budget is 500k")), boom)
	})

	t.Run("malformed analysis is an error", func(t *testing.T) {
		m := NewManager(newStore(t), fakellm.New(fakellm.Text("sure, noted")), 5)
		assert.Error(t, m.ExtractAndStore(ctx, "5511", model.UserMessage("my budget is 500k")))
	})
}

func TestManagerRelevant(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, fact := range []string{"Has two dogs", "Prefers ocean view", "Budget is 500k USD"} {
		_, err := s.Add(ctx, "5511", fact)
		require.NoError(t, err)
	}
	m := NewManager(s, nil, 2)

	got, err := m.Relevant(ctx, "5511", "is the building dog friendly? dogs matter")
	require.NoError(t, err)
	assert.Equal(t, []string{"Has two dogs"}, got)

	got, err = m.Relevant(ctx, "5511", "hello there")
	require.NoError(t, err)
	assert.Equal(t, []string{"Budget is 500k USD", "Prefers ocean view"}, got, "falls back to the newest memories")

	got, err = m.Relevant(ctx, "9999", "dogs")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormatForPrompt(t *testing.T) {
	m := NewManager(nil, nil, 0)
	assert.Equal(t, "", m.FormatForPrompt(nil))
	assert.Equal(t, "- Has two dogs\n- Budget is 500k USD",
		m.FormatForPrompt([]string{"Has two dogs", " ", "Budget is 500k USD"}))
}
