package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rcliao/affinity/internal/model"
)

// fakeClock advances one second on every read so timestamps are distinct.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func putMemory(t *testing.T, s *SQLiteStore, userID int64, emotion model.Emotion, importance float64, tags ...string) *model.EmotionalMemory {
	t.Helper()
	m := &model.EmotionalMemory{
		ID:             s.NewID(),
		UserID:         userID,
		Kind:           model.KindGreeting,
		OccurredAt:     s.Now(),
		Summary:        "hello",
		Content:        "said hello",
		PrimaryEmotion: emotion,
		Intensity:      model.IntensityMedium,
		Importance:     importance,
		DecayRate:      model.DefaultDecayRate,
		Tags:           tags,
	}
	err := s.InTx(context.Background(), func(q Queries) error {
		return q.InsertMemory(context.Background(), m)
	})
	if err != nil {
		t.Fatalf("insert memory: %v", err)
	}
	return m
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestNewIDMonotonic(t *testing.T) {
	s := newTestStore(t)
	prev := s.NewID()
	for i := 0; i < 100; i++ {
		id := s.NewID()
		if id <= prev {
			t.Fatalf("expected increasing ids, got %s after %s", id, prev)
		}
		prev = id
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q Queries) error {
		if err := q.CreateRelationship(ctx, model.NewRelationshipState(1, s.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = s.InTx(ctx, func(q Queries) error {
		_, err := q.GetRelationship(ctx, 1)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected rolled back row to be missing, got %v", err)
	}
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		s.InTx(ctx, func(q Queries) error {
			q.CreateRelationship(ctx, model.NewRelationshipState(2, s.Now()))
			panic("kaboom")
		})
	}()

	err := s.InTx(ctx, func(q Queries) error {
		_, err := q.GetRelationship(ctx, 2)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected rolled back row to be missing, got %v", err)
	}
}

func TestRelationshipRoundTripAndVersioning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := model.NewRelationshipState(42, s.Now())
	r.EmotionCounts[model.EmotionJoy] = 3
	r.TopicInterest["music"] = 0.8
	r.LogMilestone(s.Now(), model.StatusAcquaintance, "test")

	err := s.InTx(ctx, func(q Queries) error {
		if err := q.CreateRelationship(ctx, r); err != nil {
			return err
		}
		got, err := q.GetRelationship(ctx, 42)
		if err != nil {
			return err
		}
		if got.Status != model.StatusAcquaintance || got.EmotionCounts[model.EmotionJoy] != 3 {
			t.Errorf("unexpected row %+v", got)
		}
		if len(got.Milestones) != 1 || got.Milestones[0].To != model.StatusAcquaintance {
			t.Errorf("milestones not persisted: %+v", got.Milestones)
		}
		if got.TopicInterest["music"] != 0.8 {
			t.Errorf("topic interest not persisted: %+v", got.TopicInterest)
		}

		stale := *got
		got.Trust = 0.5
		if err := q.UpdateRelationship(ctx, got); err != nil {
			return err
		}
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
		stale.Trust = 0.9
		if err := q.UpdateRelationship(ctx, &stale); !errors.Is(err, ErrConflict) {
			t.Errorf("expected conflict for stale write, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestRelationshipRowSurvivesIntact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	last := s.Now()
	want := model.NewRelationshipState(7, s.Now())
	want.Trust = 0.42
	want.Familiarity = 0.3
	want.DominantEmotion = model.EmotionTrust
	want.LastInteractionAt = &last
	want.LongestAbsenceDays = 2.5
	want.AvgMessageLength = 48
	want.InteractionCount = 12
	want.Boundaries["late_night"] = "avoid"
	want.Preferences["emoji"] = 0.5
	want.TopicInterest["travel"] = 0.25
	want.EmotionCounts[model.EmotionJoy] = 9
	want.EmotionCounts[model.EmotionTrust] = 3
	want.LogMilestone(s.Now(), model.StatusAcquaintance, "first steps")

	var got *model.RelationshipState
	err := s.InTx(ctx, func(q Queries) error {
		if err := q.CreateRelationship(ctx, want); err != nil {
			return err
		}
		var err error
		got, err = q.GetRelationship(ctx, 7)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("relationship row mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRelationshipKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InTx(ctx, func(q Queries) error {
		first := model.NewRelationshipState(5, s.Now())
		first.Trust = 0.7
		if err := q.CreateRelationship(ctx, first); err != nil {
			return err
		}
		if err := q.CreateRelationship(ctx, model.NewRelationshipState(5, s.Now())); err != nil {
			return err
		}
		got, err := q.GetRelationship(ctx, 5)
		if err != nil {
			return err
		}
		if got.Trust != 0.7 {
			t.Errorf("expected existing row to survive, got trust %v", got.Trust)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestPersonalityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := model.NewPersonalityProfile(9, s.Now())
	p.TabooTopics = []string{"politics"}
	p.TopicPreferences["cats"] = 1

	err := s.InTx(ctx, func(q Queries) error {
		if err := q.CreatePersonality(ctx, p); err != nil {
			return err
		}
		got, err := q.GetPersonality(ctx, 9)
		if err != nil {
			return err
		}
		if got.Warmth != 0.5 || got.PreferredMessageLength != model.MessageMedium {
			t.Errorf("unexpected defaults %+v", got)
		}
		if len(got.TabooTopics) != 1 || got.TopicPreferences["cats"] != 1 {
			t.Errorf("collections not persisted: %+v", got)
		}
		got.Humor = 0.9
		if err := q.UpdatePersonality(ctx, got); err != nil {
			return err
		}
		again, err := q.GetPersonality(ctx, 9)
		if err != nil {
			return err
		}
		if again.Humor != 0.9 || again.Version != 2 {
			t.Errorf("update not persisted: %+v", again)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestGetPersonalityNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	err := s.InTx(ctx, func(q Queries) error {
		_, err := q.GetPersonality(ctx, 404)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCorruptTimestampIsReported(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := putMemory(t, s, 1, model.EmotionJoy, 1)

	if _, err := s.db.Exec(`UPDATE emotional_memories SET occurred_at = 'yesterday' WHERE id = ?`, m.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	err := s.InTx(ctx, func(q Queries) error {
		_, err := q.GetMemory(ctx, m.ID)
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "occurred_at") {
		t.Fatalf("expected occurred_at parse error, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("parse failure must not look like a missing row: %v", err)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC)
	got, err := parseTime(formatTime(want))
	if err != nil || !got.Equal(want) {
		t.Errorf("round trip: got %v, %v", got, err)
	}
	if _, err := parseTime("2025-03-04T05:06:07Z"); err != nil {
		t.Errorf("RFC 3339 fallback: %v", err)
	}
	if _, err := parseTime(""); err == nil {
		t.Error("expected error for empty timestamp")
	}
}
