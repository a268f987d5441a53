package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rcliao/affinity/internal/config"
	"github.com/rcliao/affinity/internal/contradiction"
	"github.com/rcliao/affinity/internal/enhancer"
	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/memory"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/relationship"
	"github.com/rcliao/affinity/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	e := New(s, logging.FromZap(zap.New(core), true), Options{Persona: "Diana"})
	t.Cleanup(func() { e.Close() })
	return e, logs
}

func storeParams(userID int64, kind model.InteractionKind, emotion model.Emotion) memory.StoreParams {
	return memory.StoreParams{
		UserID:         userID,
		Kind:           kind,
		Summary:        "talked",
		Content:        "we talked",
		PrimaryEmotion: emotion,
		Intensity:      model.IntensityHigh,
		Tags:           []string{"chat"},
	}
}

// roundTrip serializes a response the way a transport would.
func roundTrip(t *testing.T, r Response) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindValidation, Classify(fmt.Errorf("wrap: %w", model.Invalid("x", "bad"))))
	assert.Equal(t, KindNotFound, Classify(fmt.Errorf("wrap: %w", store.ErrNotFound)))
	assert.Equal(t, KindConflict, Classify(store.ErrConflict))
	assert.Equal(t, KindPersistence, Classify(errors.New("disk full")))
}

func TestStoreAndReadMemories(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	resp := e.StoreMemory(ctx, storeParams(1, model.KindPersonalShare, model.EmotionJoy))
	require.True(t, resp.Success, resp.Error)
	id, _ := resp.Data["memory_id"].(string)
	require.NotEmpty(t, id)

	resp = e.GetRecentMemories(ctx, 1, 5)
	require.True(t, resp.Success)
	ms := resp.Data["memories"].([]model.EmotionalMemory)
	require.Len(t, ms, 1)
	assert.Equal(t, id, ms[0].ID)

	out := roundTrip(t, resp)
	first := out["data"].(map[string]interface{})["memories"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "joy", first["primary_emotion"])
	assert.Equal(t, "personal_share", first["interaction_kind"])
	_, err := time.Parse(time.RFC3339Nano, first["timestamp"].(string))
	assert.NoError(t, err, "timestamps serialize as ISO-8601")

	assert.True(t, e.GetMemoriesByEmotion(ctx, 1, "JOY", 5).Success)
	assert.True(t, e.GetImportantMemories(ctx, 1, 0.5, 5).Success)
	assert.Len(t, e.GetMemoriesByTags(ctx, 1, []string{"chat"}, 5).Data["memories"], 1)
}

func TestValidationEnvelope(t *testing.T) {
	e, logs := newTestEngine(t)
	ctx := context.Background()

	resp := e.GetMemoriesByEmotion(ctx, 1, "glee", 5)
	assert.False(t, resp.Success)
	assert.Equal(t, KindValidation, resp.ErrorKind)
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.Data)

	resp = e.UpdatePersonalityAdaptation(ctx, 1, map[string]interface{}{"warmth": "lots"}, "")
	assert.Equal(t, KindValidation, resp.ErrorKind)

	resp = e.UpdateRelationshipStatus(ctx, 1, "soulmates", "")
	assert.Equal(t, KindValidation, resp.ErrorKind)

	warned := logs.FilterMessage("operation rejected").All()
	require.NotEmpty(t, warned)
	assert.Contains(t, warned[0].ContextMap()["user_id"], "hash:")
}

func TestNotFoundEnvelope(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	assert.Equal(t, KindNotFound, e.ForgetMemory(ctx, "01NOPE").ErrorKind)
	assert.Equal(t, KindNotFound, e.ResolveContradiction(ctx, "01NOPE", "x").ErrorKind)
}

func TestPersistenceEnvelopeAfterClose(t *testing.T) {
	e, logs := newTestEngine(t)
	require.NoError(t, e.Close())

	resp := e.GetRelationshipState(context.Background(), 1)
	assert.False(t, resp.Success)
	assert.Equal(t, KindPersistence, resp.ErrorKind)
	assert.NotEmpty(t, logs.FilterMessage("operation failed").All())

	base := map[string]interface{}{"message": "hola"}
	assert.Equal(t, base, e.EnhanceInteraction(context.Background(), 1, "reaction", base, nil))
}

func TestForgetFlow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	id := e.StoreMemory(ctx, storeParams(1, model.KindGreeting, model.EmotionJoy)).Data["memory_id"].(string)
	e.StoreMemory(ctx, storeParams(1, model.KindGreeting, model.EmotionJoy))

	assert.True(t, e.ForgetMemory(ctx, id).Success)
	assert.True(t, e.ForgetMemory(ctx, id).Success)

	resp := e.ForgetAllUserMemories(ctx, 1)
	require.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data["count"])
	assert.Equal(t, 0, e.ForgetAllUserMemories(ctx, 1).Data["count"])
	assert.Empty(t, e.GetRecentMemories(ctx, 1, 10).Data["memories"])
}

func TestRelationshipFlow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, e.RecordInteraction(ctx, 1, relationship.InteractionParams{}).Success)
	}
	r := e.GetRelationshipState(ctx, 1).Data["relationship"].(*model.RelationshipState)
	assert.Equal(t, model.StatusAcquaintance, r.Status)

	out := roundTrip(t, e.UpdateRelationshipStatus(ctx, 1, "repaired", "apologized"))
	rel := out["data"].(map[string]interface{})["relationship"].(map[string]interface{})
	assert.Equal(t, "repaired", rel["status"])
	assert.Len(t, rel["milestones"], 2)
}

func TestStoredConflictsStrain(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		require.True(t, e.StoreMemory(ctx, storeParams(1, model.KindConflict, model.EmotionAnger)).Success)
	}
	r := e.GetRelationshipState(ctx, 1).Data["relationship"].(*model.RelationshipState)
	assert.Equal(t, model.StatusStrained, r.Status)
}

func TestContradictionFlow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	resp := e.RecordContradiction(ctx, contradiction.RecordParams{
		UserID: 1, Type: "fact", OriginalStatement: "I have a dog", ContradictingStatement: "I never had pets",
	})
	require.True(t, resp.Success)
	id := resp.Data["contradiction_id"].(string)

	assert.Len(t, e.GetUnresolvedContradictions(ctx, 1).Data["contradictions"], 1)
	require.True(t, e.ResolveContradiction(ctx, id, "clarified").Success)
	assert.Empty(t, e.GetUnresolvedContradictions(ctx, 1).Data["contradictions"])

	again := e.ResolveContradiction(ctx, id, "the dog was a neighbor's")
	require.True(t, again.Success)
	assert.Equal(t, "the dog was a neighbor's", again.Data["contradiction"].(*model.Contradiction).Resolution)
}

func TestPersonalityAndEnhance(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	resp := e.UpdatePersonalityAdaptation(ctx, 1, map[string]interface{}{"humor": 0.9, "unknown": true}, "jokes a lot")
	require.True(t, resp.Success)
	p := resp.Data["adaptation"].(*model.PersonalityProfile)
	assert.Equal(t, 0.9, p.Humor)
	assert.InDelta(t, 0.05, p.Confidence, 1e-12)

	got := e.GetPersonalityAdaptation(ctx, 1).Data["adaptation"].(*model.PersonalityProfile)
	assert.Equal(t, "jokes a lot", got.AdaptationReason)

	out := e.EnhanceInteraction(ctx, 1, "reaction", map[string]interface{}{"message": "¡Gracias!"}, nil)
	assert.Equal(t, "Diana te guiña un ojo. ¡Gracias!", out["message"])
}

func TestStatsAndExport(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	id := e.StoreMemory(ctx, storeParams(1, model.KindGreeting, model.EmotionJoy)).Data["memory_id"].(string)
	e.StoreMemory(ctx, storeParams(1, model.KindGreeting, model.EmotionSadness))
	e.ForgetMemory(ctx, id)

	stats := e.GetUserStats(ctx, 1).Data["stats"].(*store.UserStats)
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 1, stats.ForgottenMemories)

	export := e.ExportUserData(ctx, 1).Data["export"].(*store.UserExport)
	assert.Len(t, export.Memories, 1)
	assert.NotNil(t, export.Relationship)
	assert.False(t, export.ExportedAt.IsZero())
}

func TestOpenFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "affinity.db")
	e, err := Open(cfg, logging.Nop())
	require.NoError(t, err)
	defer e.Close()
	assert.True(t, e.GetRelationshipState(context.Background(), 3).Success)
}

func TestZeroOptionsEnhance(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	e := New(s, logging.Nop(), Options{})
	defer e.Close()

	out := e.EnhanceInteraction(context.Background(), 1, "reaction", map[string]interface{}{"message": "hola"}, nil)
	assert.Equal(t, true, out["enhanced"])
	assert.Contains(t, out["message"], enhancer.DefaultPersona)
}

func TestOpenHonoursDisabledEnhancer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "affinity.db")
	cfg.Enhancer.Active = false
	e, err := Open(cfg, logging.Nop())
	require.NoError(t, err)
	defer e.Close()

	base := map[string]interface{}{"message": "hola"}
	assert.Equal(t, base, e.EnhanceInteraction(context.Background(), 1, "reaction", base, nil))
}

func TestSetEnhancerActive(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	base := map[string]interface{}{"message": "hola"}

	e.SetEnhancerActive(false)
	assert.Equal(t, base, e.EnhanceInteraction(ctx, 1, "reaction", base, nil))

	e.SetEnhancerActive(true)
	assert.Equal(t, true, e.EnhanceInteraction(ctx, 1, "reaction", base, nil)["enhanced"])
}

func TestWatchConfigTogglesEnhancer(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Save(path))

	require.NoError(t, e.WatchConfig(ctx, path))
	assert.Error(t, e.WatchConfig(ctx, path), "second watch is rejected")

	cfg.Enhancer.Active = false
	require.NoError(t, cfg.Save(path))

	base := map[string]interface{}{"message": "hola"}
	assert.Eventually(t, func() bool {
		_, enhanced := e.EnhanceInteraction(ctx, 1, "reaction", base, nil)["enhanced"]
		return !enhanced
	}, 5*time.Second, 50*time.Millisecond)
}
