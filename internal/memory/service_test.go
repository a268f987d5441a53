package memory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/relationship"
	"github.com/rcliao/affinity/internal/store"
	"github.com/rcliao/affinity/internal/userlock"
)

// testClock ticks one millisecond per read and can jump forward.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc     *Service
	tracker *relationship.Tracker
	clock   *testClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)}
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tracker := relationship.NewTracker(s, userlock.New(), logging.Nop())
	return &fixture{
		svc:     NewService(s, tracker, logging.Nop(), opts...),
		tracker: tracker,
		clock:   clock,
	}
}

func (f *fixture) put(t *testing.T, p StoreParams) *model.EmotionalMemory {
	t.Helper()
	if p.UserID == 0 {
		p.UserID = 1
	}
	if p.Kind == "" {
		p.Kind = model.KindStorytelling
	}
	if p.PrimaryEmotion == "" {
		p.PrimaryEmotion = model.EmotionJoy
	}
	if p.Summary == "" {
		p.Summary = "a story"
	}
	m, err := f.svc.Store(context.Background(), p)
	require.NoError(t, err)
	return m
}

func ptr(v float64) *float64 { return &v }

func ids(memories []model.EmotionalMemory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}

func TestStoreAppliesDefaultsAndCountsInteraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.put(t, StoreParams{Summary: "first chat", Content: "hola"})
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, model.DefaultImportance, m.Importance)
	assert.Equal(t, model.DefaultDecayRate, m.DecayRate)
	assert.Equal(t, model.IntensityMedium, m.Intensity)
	assert.False(t, m.Forgotten)

	r, err := f.tracker.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.InteractionCount)
	assert.Equal(t, 1, r.PositiveInteractions)
	assert.Equal(t, model.EmotionJoy, r.DominantEmotion)
	require.NotNil(t, r.LastInteractionAt)
	assert.True(t, r.LastInteractionAt.Equal(m.OccurredAt))
}

func TestStoreValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var verr *model.ValidationError

	cases := map[string]StoreParams{
		"kind":      {UserID: 1, Kind: "smalltalk", PrimaryEmotion: model.EmotionJoy, Summary: "x"},
		"emotion":   {UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: "glee", Summary: "x"},
		"secondary": {UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy, SecondaryEmotion: "meh", Summary: "x"},
		"intensity": {UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy, Intensity: 6, Summary: "x"},
		"summary":   {UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy, Summary: "  "},
		"importance": {UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy, Summary: "x",
			Importance: ptr(-1)},
		"decay": {UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy, Summary: "x",
			DecayRate: ptr(1.5)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Store(ctx, p)
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}

	recent, err := f.svc.Recent(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
	r, err := f.tracker.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, r.InteractionCount)
}

func TestStoreRejectsForgottenParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent := f.put(t, StoreParams{UserID: 1})
	require.NoError(t, f.svc.Forget(ctx, parent.ID))

	_, err := f.svc.Store(ctx, StoreParams{UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy,
		Summary: "x", ParentID: parent.ID})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "parent_memory_id", verr.Field)
}

func TestStoreParentMustBelongToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var verr *model.ValidationError

	parent := f.put(t, StoreParams{UserID: 1})
	child := f.put(t, StoreParams{UserID: 1, ParentID: parent.ID})
	assert.Equal(t, parent.ID, child.ParentID)

	_, err := f.svc.Store(ctx, StoreParams{UserID: 2, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy,
		Summary: "x", ParentID: parent.ID})
	assert.True(t, errors.As(err, &verr))

	_, err = f.svc.Store(ctx, StoreParams{UserID: 1, Kind: model.KindGreeting, PrimaryEmotion: model.EmotionJoy,
		Summary: "x", ParentID: "01NOPE"})
	assert.True(t, errors.As(err, &verr))

	r, err := f.tracker.GetOrCreate(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, r.InteractionCount, "failed store must roll back the relationship update")
}

func TestStoredConflictsStrainRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		f.put(t, StoreParams{Kind: model.KindConflict, PrimaryEmotion: model.EmotionAnger, Intensity: model.IntensityHigh})
	}

	r, err := f.tracker.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 11, r.NegativeInteractions)
	assert.Zero(t, r.PositiveInteractions)
	assert.Equal(t, model.StatusStrained, r.Status)
}

func TestRecentOrderAndRecallTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1 := f.put(t, StoreParams{Summary: "one"})
	m2 := f.put(t, StoreParams{Summary: "two"})
	m3 := f.put(t, StoreParams{Summary: "three"})

	got, err := f.svc.Recent(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{m3.ID, m2.ID}, ids(got))
	for _, m := range got {
		assert.Equal(t, 1, m.RecallCount)
		assert.NotNil(t, m.LastRecalledAt)
	}

	got, err = f.svc.Recent(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{m3.ID, m2.ID, m1.ID}, ids(got))
	assert.Equal(t, 2, got[0].RecallCount)
	assert.Equal(t, 1, got[2].RecallCount)
}

func TestDefaultLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < DefaultLimit+2; i++ {
		f.put(t, StoreParams{})
	}
	got, err := f.svc.Recent(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultLimit)
}

func TestByEmotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sad := f.put(t, StoreParams{PrimaryEmotion: model.EmotionSadness})
	f.put(t, StoreParams{PrimaryEmotion: model.EmotionJoy})

	got, err := f.svc.ByEmotion(ctx, 1, model.EmotionSadness, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{sad.ID}, ids(got))

	_, err = f.svc.ByEmotion(ctx, 1, "meh", 10)
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestByTagsFollowsTagOrderWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1 := f.put(t, StoreParams{Tags: []string{"family"}})
	m2 := f.put(t, StoreParams{Tags: []string{"music", "family"}})
	m3 := f.put(t, StoreParams{Tags: []string{"music"}})
	f.put(t, StoreParams{Tags: []string{"work"}})

	got, err := f.svc.ByTags(ctx, 1, []string{"music", "family"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{m3.ID, m2.ID, m1.ID}, ids(got))
	for _, m := range got {
		assert.Equal(t, 1, m.RecallCount)
	}

	got, err = f.svc.ByTags(ctx, 1, []string{"music", "family"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{m3.ID, m2.ID}, ids(got))

	got, err = f.svc.ByTags(ctx, 1, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTagsAreNormalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.put(t, StoreParams{Tags: []string{" cafe\u0301 ", "café", "", "jazz"}})
	assert.Equal(t, []string{"café", "jazz"}, m.Tags)

	got, err := f.svc.ByTags(ctx, 1, []string{"cafe\u0301"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, ids(got))
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, normalizeTags(nil))
	assert.Equal(t, []string{"a", "b"}, normalizeTags([]string{"a", " b", "a ", "  "}))
}

func TestImportantWithoutDecay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, StoreParams{Importance: ptr(0.5)})
	high := f.put(t, StoreParams{Importance: ptr(3)})
	mid := f.put(t, StoreParams{Importance: ptr(2)})

	got, err := f.svc.Important(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{high.ID, mid.ID}, ids(got))
}

func TestImportantWithDecay(t *testing.T) {
	ctx := context.Background()
	seed := func(f *fixture) (old, fresh *model.EmotionalMemory) {
		old = f.put(t, StoreParams{Importance: ptr(3), DecayRate: ptr(1)})
		f.clock.Advance(5 * 24 * time.Hour)
		fresh = f.put(t, StoreParams{Importance: ptr(2), DecayRate: ptr(0)})
		return old, fresh
	}

	plain := newFixture(t)
	old, fresh := seed(plain)
	got, err := plain.svc.Important(ctx, 1, 0.5, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID, fresh.ID}, ids(got))

	decayed := newFixture(t, WithDecay(true))
	_, fresh = seed(decayed)
	got, err = decayed.svc.Important(ctx, 1, 0.5, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID}, ids(got), "3*e^-5 falls below the floor")
}

func TestEffectiveImportance(t *testing.T) {
	now := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	m := model.EmotionalMemory{Importance: 2, DecayRate: 0.1, OccurredAt: now.AddDate(0, 0, -10)}
	assert.InDelta(t, 2*0.36787944117144233, EffectiveImportance(m, now), 1e-9)

	m.OccurredAt = now.Add(time.Hour)
	assert.InDelta(t, 2, EffectiveImportance(m, now), 1e-12)
}

func TestForgottenMemoriesNeverReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep := f.put(t, StoreParams{Importance: ptr(5), Tags: []string{"x"}})
	gone := f.put(t, StoreParams{Importance: ptr(5), Tags: []string{"x"}})

	require.NoError(t, f.svc.Forget(ctx, gone.ID))
	require.NoError(t, f.svc.Forget(ctx, gone.ID), "forget is idempotent")

	reads := map[string]func() ([]model.EmotionalMemory, error){
		"recent":    func() ([]model.EmotionalMemory, error) { return f.svc.Recent(ctx, 1, 10) },
		"emotion":   func() ([]model.EmotionalMemory, error) { return f.svc.ByEmotion(ctx, 1, model.EmotionJoy, 10) },
		"important": func() ([]model.EmotionalMemory, error) { return f.svc.Important(ctx, 1, 0, 10) },
		"tags":      func() ([]model.EmotionalMemory, error) { return f.svc.ByTags(ctx, 1, []string{"x"}, 10) },
	}
	for name, read := range reads {
		got, err := read()
		require.NoError(t, err, name)
		assert.Equal(t, []string{keep.ID}, ids(got), name)
	}

	res, err := f.svc.Context(ctx, ContextParams{UserID: 1})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, keep.ID, res.Memories[0].ID)
}

func TestForgetUnknownID(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Forget(context.Background(), "01UNKNOWN")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestForgetAllCountsOnlyNewlyForgotten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.put(t, StoreParams{})
	f.put(t, StoreParams{})
	f.put(t, StoreParams{})
	f.put(t, StoreParams{UserID: 2})
	require.NoError(t, f.svc.Forget(ctx, a.ID))

	n, err := f.svc.ForgetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.ForgetAll(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	other, err := f.svc.Recent(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
