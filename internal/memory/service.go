// Package memory stores and recalls per-user emotional memories.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/relationship"
	"github.com/rcliao/affinity/internal/store"
)

// DefaultLimit is used by the read paths when the caller passes limit <= 0.
const DefaultLimit = 10

// StoreParams holds parameters for storing a memory.
type StoreParams struct {
	UserID               int64
	Kind                 model.InteractionKind
	Summary              string
	Content              string
	PrimaryEmotion       model.Emotion
	SecondaryEmotion     model.Emotion
	Intensity            model.Intensity // 0 means medium
	Context              map[string]interface{}
	RelatedAchievements  []string
	RelatedNarrativeKeys []string
	Importance           *float64
	DecayRate            *float64
	Tags                 []string
	Sensitive            bool
	ParentID             string
}

// Service is the memory store. Storing a memory also counts as an
// interaction on the user's relationship, in the same transaction.
type Service struct {
	store        store.Store
	tracker      *relationship.Tracker
	log          *logging.Logger
	decayEnabled bool
}

// Option configures a Service.
type Option func(*Service)

// WithDecay makes Important rank by importance decayed over the memory's age.
func WithDecay(enabled bool) Option {
	return func(s *Service) { s.decayEnabled = enabled }
}

// NewService builds a memory Service.
func NewService(s store.Store, tracker *relationship.Tracker, log *logging.Logger, opts ...Option) *Service {
	svc := &Service{store: s, tracker: tracker, log: log.With("component", "memory")}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

func (p *StoreParams) normalize() error {
	if !p.Kind.Valid() {
		return model.Invalid("interaction_kind", "unknown kind %q", p.Kind)
	}
	if !p.PrimaryEmotion.Valid() {
		return model.Invalid("primary_emotion", "unknown emotion %q", p.PrimaryEmotion)
	}
	if p.SecondaryEmotion != "" && !p.SecondaryEmotion.Valid() {
		return model.Invalid("secondary_emotion", "unknown emotion %q", p.SecondaryEmotion)
	}
	if p.Intensity == 0 {
		p.Intensity = model.IntensityMedium
	}
	if !p.Intensity.Valid() {
		return model.Invalid("intensity", "must be 1-5, got %d", p.Intensity)
	}
	if strings.TrimSpace(p.Summary) == "" {
		return model.Invalid("summary", "must not be empty")
	}
	if p.Importance != nil && (*p.Importance < 0 || math.IsNaN(*p.Importance)) {
		return model.Invalid("importance", "must be >= 0")
	}
	if p.DecayRate != nil && !(*p.DecayRate >= 0 && *p.DecayRate <= 1) {
		return model.Invalid("decay_rate", "must be within [0,1]")
	}
	p.Tags = normalizeTags(p.Tags)
	return nil
}

// Store records a memory and folds its classification into the relationship.
func (s *Service) Store(ctx context.Context, p StoreParams) (*model.EmotionalMemory, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	importance := model.DefaultImportance
	if p.Importance != nil {
		importance = *p.Importance
	}
	decay := model.DefaultDecayRate
	if p.DecayRate != nil {
		decay = *p.DecayRate
	}

	var m *model.EmotionalMemory
	_, err := s.tracker.Update(ctx, p.UserID, func(ctx context.Context, q store.Queries, r *model.RelationshipState, now time.Time) error {
		if p.ParentID != "" {
			parent, err := q.GetMemory(ctx, p.ParentID)
			if errors.Is(err, store.ErrNotFound) || (err == nil && parent.UserID != p.UserID) {
				return model.Invalid("parent_memory_id", "no memory %s for user", p.ParentID)
			}
			if err != nil {
				return err
			}
			if parent.Forgotten {
				return model.Invalid("parent_memory_id", "memory %s is forgotten", p.ParentID)
			}
		}

		m = &model.EmotionalMemory{
			ID:                   s.store.NewID(),
			UserID:               p.UserID,
			Kind:                 p.Kind,
			OccurredAt:           now,
			Summary:              p.Summary,
			Content:              p.Content,
			PrimaryEmotion:       p.PrimaryEmotion,
			SecondaryEmotion:     p.SecondaryEmotion,
			Intensity:            p.Intensity,
			Context:              p.Context,
			RelatedAchievements:  p.RelatedAchievements,
			RelatedNarrativeKeys: p.RelatedNarrativeKeys,
			Importance:           importance,
			DecayRate:            decay,
			Tags:                 p.Tags,
			Sensitive:            p.Sensitive,
			ParentID:             p.ParentID,
		}
		if err := q.InsertMemory(ctx, m); err != nil {
			return err
		}

		relationship.Observe(r, relationship.InteractionParams{Event: relationship.Event{
			Kind:      p.Kind,
			Emotion:   p.PrimaryEmotion,
			Intensity: p.Intensity,
		}}, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}

	s.log.Debug("memory stored", "user_id", p.UserID, "id", m.ID, "emotion", m.PrimaryEmotion)
	return m, nil
}

// Recent returns the user's newest memories.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]model.EmotionalMemory, error) {
	return s.recall(ctx, func(q store.Queries) ([]model.EmotionalMemory, error) {
		return q.ListMemories(ctx, store.MemoryFilter{UserID: userID, Limit: limitOrDefault(limit)})
	})
}

// ByEmotion returns the user's newest memories whose primary emotion is e.
func (s *Service) ByEmotion(ctx context.Context, userID int64, e model.Emotion, limit int) ([]model.EmotionalMemory, error) {
	if !e.Valid() {
		return nil, model.Invalid("emotion", "unknown emotion %q", e)
	}
	return s.recall(ctx, func(q store.Queries) ([]model.EmotionalMemory, error) {
		return q.ListMemories(ctx, store.MemoryFilter{UserID: userID, Emotion: e, Limit: limitOrDefault(limit)})
	})
}

// Important returns memories at or above minImportance, most important first.
// With decay enabled, importance is weighted by exp(-decay_rate * age_days).
func (s *Service) Important(ctx context.Context, userID int64, minImportance float64, limit int) ([]model.EmotionalMemory, error) {
	if math.IsNaN(minImportance) {
		return nil, model.Invalid("min_importance", "must be a number")
	}
	limit = limitOrDefault(limit)
	return s.recall(ctx, func(q store.Queries) ([]model.EmotionalMemory, error) {
		f := store.MemoryFilter{UserID: userID, MinImportance: &minImportance, Order: store.OrderImportance}
		if !s.decayEnabled {
			f.Limit = limit
			return q.ListMemories(ctx, f)
		}
		// Decayed importance never exceeds the stored value, so the SQL
		// floor is still a valid prefilter.
		all, err := q.ListMemories(ctx, f)
		if err != nil {
			return nil, err
		}
		return rankDecayed(all, minImportance, limit, s.store.Now()), nil
	})
}

// ByTags returns memories carrying any of tags. Results follow tag order:
// all matches for the first tag (newest first), then for the next, skipping
// memories already listed.
func (s *Service) ByTags(ctx context.Context, userID int64, tags []string, limit int) ([]model.EmotionalMemory, error) {
	limit = limitOrDefault(limit)
	return s.recall(ctx, func(q store.Queries) ([]model.EmotionalMemory, error) {
		var out []model.EmotionalMemory
		seen := map[string]bool{}
		for _, tag := range normalizeTags(tags) {
			if len(out) >= limit {
				break
			}
			matches, err := q.ListMemories(ctx, store.MemoryFilter{UserID: userID, Tag: tag, Limit: limit})
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				if seen[m.ID] || len(out) >= limit {
					continue
				}
				seen[m.ID] = true
				out = append(out, m)
			}
		}
		return out, nil
	})
}

// Forget flags one memory as forgotten. Forgetting twice is a no-op.
func (s *Service) Forget(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(q store.Queries) error {
		return q.ForgetMemory(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("forget memory: %w", err)
	}
	return nil
}

// ForgetAll flags every live memory of a user and returns how many changed.
func (s *Service) ForgetAll(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.store.InTx(ctx, func(q store.Queries) error {
		var err error
		n, err = q.ForgetUserMemories(ctx, userID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("forget user memories: %w", err)
	}
	s.log.Info("memories forgotten", "user_id", userID, "count", n)
	return n, nil
}

// recall runs a read in one transaction and records the recall of every
// memory it returns. The returned values already reflect the update.
func (s *Service) recall(ctx context.Context, read func(q store.Queries) ([]model.EmotionalMemory, error)) ([]model.EmotionalMemory, error) {
	var out []model.EmotionalMemory
	err := s.store.InTx(ctx, func(q store.Queries) error {
		memories, err := read(q)
		if err != nil {
			return err
		}
		if err := markRecalled(ctx, q, memories, s.store.Now()); err != nil {
			return err
		}
		out = memories
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	if out == nil {
		out = []model.EmotionalMemory{}
	}
	return out, nil
}

func markRecalled(ctx context.Context, q store.Queries, memories []model.EmotionalMemory, now time.Time) error {
	if len(memories) == 0 {
		return nil
	}
	ids := make([]string, len(memories))
	for i := range memories {
		ids[i] = memories[i].ID
	}
	if err := q.TouchMemories(ctx, ids, now); err != nil {
		return err
	}
	for i := range memories {
		at := now
		memories[i].LastRecalledAt = &at
		memories[i].RecallCount++
	}
	return nil
}

// EffectiveImportance is the memory's importance decayed over its age.
func EffectiveImportance(m model.EmotionalMemory, now time.Time) float64 {
	age := now.Sub(m.OccurredAt).Hours() / 24
	if age < 0 {
		age = 0
	}
	return m.Importance * math.Exp(-m.DecayRate*age)
}

func rankDecayed(memories []model.EmotionalMemory, floor float64, limit int, now time.Time) []model.EmotionalMemory {
	type scored struct {
		m     model.EmotionalMemory
		score float64
	}
	var candidates []scored
	for _, m := range memories {
		if score := EffectiveImportance(m, now); score >= floor {
			candidates = append(candidates, scored{m: m, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]model.EmotionalMemory, len(candidates))
	for i, c := range candidates {
		out[i] = c.m
	}
	return out
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
