package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/affinity/internal/model"
)

func TestContextBasic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, StoreParams{Summary: "pet", Content: "Has a cat named Luna"})
	f.put(t, StoreParams{Summary: "job", Content: "Works as a nurse"})

	res, err := f.svc.Context(ctx, ContextParams{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, defaultBudget, res.Budget)
	require.Len(t, res.Memories, 2)
	assert.Greater(t, res.Used, 0)

	recent, err := f.svc.Recent(ctx, 1, 10)
	require.NoError(t, err)
	for _, m := range recent {
		assert.Equal(t, 2, m.RecallCount, "context and recent both count as recalls")
	}
}

func TestContextBudgetExcerpt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, StoreParams{Summary: "big", Content: strings.Repeat("recuerdo ñandú ", 100)})

	res, err := f.svc.Context(ctx, ContextParams{UserID: 1, Budget: 50})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	m := res.Memories[0]
	assert.True(t, m.Excerpt)
	assert.True(t, strings.HasSuffix(m.Content, "..."))
	assert.LessOrEqual(t, len(m.Content), 50*4+len("..."))
	assert.True(t, strings.ToValidUTF8(m.Content, "?") == m.Content, "excerpt must not split a rune")
}

func TestContextTooSmallForExcerpt(t *testing.T) {
	f := newFixture(t)
	f.put(t, StoreParams{Summary: "big", Content: strings.Repeat("x", 500)})

	res, err := f.svc.Context(context.Background(), ContextParams{UserID: 1, Budget: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Memories)
	assert.Zero(t, res.Used)
}

func TestContextSkipsSensitiveByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, StoreParams{Summary: "health", Content: "diagnosis", Sensitive: true})
	open := f.put(t, StoreParams{Summary: "hobby", Content: "plays guitar"})

	res, err := f.svc.Context(ctx, ContextParams{UserID: 1})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, open.ID, res.Memories[0].ID)

	res, err = f.svc.Context(ctx, ContextParams{UserID: 1, IncludeSensitive: true})
	require.NoError(t, err)
	assert.Len(t, res.Memories, 2)
}

func TestScoreCandidatesPrefersImportantAndRecent(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	memories := []model.EmotionalMemory{
		{ID: "old-minor", Importance: 1, OccurredAt: now.AddDate(0, 0, -30)},
		{ID: "new-major", Importance: 4, OccurredAt: now.Add(-time.Hour)},
		{ID: "new-minor", Importance: 1, OccurredAt: now.Add(-time.Hour)},
	}

	scored := scoreCandidates(memories, false, now)
	require.Len(t, scored, 3)
	assert.Equal(t, "new-major", scored[0].memory.ID)
	assert.Equal(t, "new-minor", scored[1].memory.ID)
	assert.Equal(t, "old-minor", scored[2].memory.ID)
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("añ", 2))
	assert.Equal(t, "abc", truncate("abc", 10))
}
