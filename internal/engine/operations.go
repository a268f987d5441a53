package engine

import (
	"context"
	"fmt"

	"github.com/rcliao/affinity/internal/contradiction"
	"github.com/rcliao/affinity/internal/memory"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/relationship"
	"github.com/rcliao/affinity/internal/store"
)

type data = map[string]interface{}

// run executes fn and wraps its outcome. A panic becomes a persistence failure.
func (e *Engine) run(op string, userID int64, fn func() (data, error)) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			resp = e.fail(op, userID, fmt.Errorf("%s: panic: %v", op, p))
		}
	}()
	d, err := fn()
	if err != nil {
		return e.fail(op, userID, err)
	}
	return ok(d)
}

func memories(ms []model.EmotionalMemory, err error) (data, error) {
	if err != nil {
		return nil, err
	}
	return data{"memories": ms}, nil
}

func relationshipData(r *model.RelationshipState, err error) (data, error) {
	if err != nil {
		return nil, err
	}
	return data{"relationship": r}, nil
}

func adaptation(p *model.PersonalityProfile, err error) (data, error) {
	if err != nil {
		return nil, err
	}
	return data{"adaptation": p}, nil
}

// StoreMemory stores a memory and returns its id.
func (e *Engine) StoreMemory(ctx context.Context, p memory.StoreParams) Response {
	return e.run("store_memory", p.UserID, func() (data, error) {
		m, err := e.Memories.Store(ctx, p)
		if err != nil {
			return nil, err
		}
		return data{"memory_id": m.ID}, nil
	})
}

// GetRecentMemories returns the newest memories.
func (e *Engine) GetRecentMemories(ctx context.Context, userID int64, limit int) Response {
	return e.run("get_recent_memories", userID, func() (data, error) {
		return memories(e.Memories.Recent(ctx, userID, limit))
	})
}

// GetMemoriesByEmotion returns memories with the given primary emotion.
func (e *Engine) GetMemoriesByEmotion(ctx context.Context, userID int64, emotion string, limit int) Response {
	return e.run("get_memories_by_emotion", userID, func() (data, error) {
		em, err := model.ParseEmotion(emotion)
		if err != nil {
			return nil, err
		}
		return memories(e.Memories.ByEmotion(ctx, userID, em, limit))
	})
}

// GetImportantMemories returns memories at or above minImportance.
func (e *Engine) GetImportantMemories(ctx context.Context, userID int64, minImportance float64, limit int) Response {
	return e.run("get_important_memories", userID, func() (data, error) {
		return memories(e.Memories.Important(ctx, userID, minImportance, limit))
	})
}

// GetMemoriesByTags returns memories carrying any of tags, in tag order.
func (e *Engine) GetMemoriesByTags(ctx context.Context, userID int64, tags []string, limit int) Response {
	return e.run("get_memories_by_tags", userID, func() (data, error) {
		return memories(e.Memories.ByTags(ctx, userID, tags, limit))
	})
}

// ForgetMemory flags one memory as forgotten.
func (e *Engine) ForgetMemory(ctx context.Context, memoryID string) Response {
	return e.run("forget_memory", 0, func() (data, error) {
		if err := e.Memories.Forget(ctx, memoryID); err != nil {
			return nil, err
		}
		return data{"memory_id": memoryID, "count": 1}, nil
	})
}

// ForgetAllUserMemories flags every memory of the user.
func (e *Engine) ForgetAllUserMemories(ctx context.Context, userID int64) Response {
	return e.run("forget_all_user_memories", userID, func() (data, error) {
		n, err := e.Memories.ForgetAll(ctx, userID)
		if err != nil {
			return nil, err
		}
		return data{"count": n}, nil
	})
}

// GetMemoryContext assembles scored memories into a token budget.
func (e *Engine) GetMemoryContext(ctx context.Context, p memory.ContextParams) Response {
	return e.run("get_memory_context", p.UserID, func() (data, error) {
		res, err := e.Memories.Context(ctx, p)
		if err != nil {
			return nil, err
		}
		return data{"context": res}, nil
	})
}

// GetRelationshipState returns the relationship, creating it if needed.
func (e *Engine) GetRelationshipState(ctx context.Context, userID int64) Response {
	return e.run("get_relationship_state", userID, func() (data, error) {
		return relationshipData(e.Relationships.GetOrCreate(ctx, userID))
	})
}

// UpdateRelationshipStatus sets the status manually and logs a milestone.
func (e *Engine) UpdateRelationshipStatus(ctx context.Context, userID int64, status, reason string) Response {
	return e.run("update_relationship_status", userID, func() (data, error) {
		st, err := model.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		return relationshipData(e.Relationships.SetStatus(ctx, userID, st, reason))
	})
}

// RecordInteraction counts one interaction.
func (e *Engine) RecordInteraction(ctx context.Context, userID int64, p relationship.InteractionParams) Response {
	return e.run("record_interaction", userID, func() (data, error) {
		return relationshipData(e.Relationships.RecordInteraction(ctx, userID, p))
	})
}

// RecordContradiction stores an open contradiction.
func (e *Engine) RecordContradiction(ctx context.Context, p contradiction.RecordParams) Response {
	return e.run("record_contradiction", p.UserID, func() (data, error) {
		c, err := e.Contradictions.Record(ctx, p)
		if err != nil {
			return nil, err
		}
		return data{"contradiction_id": c.ID, "contradiction": c}, nil
	})
}

// ResolveContradiction resolves, or re-resolves, a contradiction.
func (e *Engine) ResolveContradiction(ctx context.Context, id, resolution string) Response {
	return e.run("resolve_contradiction", 0, func() (data, error) {
		c, err := e.Contradictions.Resolve(ctx, id, resolution)
		if err != nil {
			return nil, err
		}
		return data{"contradiction": c}, nil
	})
}

// GetUnresolvedContradictions lists open contradictions, newest first.
func (e *Engine) GetUnresolvedContradictions(ctx context.Context, userID int64) Response {
	return e.run("get_unresolved_contradictions", userID, func() (data, error) {
		cs, err := e.Contradictions.Unresolved(ctx, userID)
		if err != nil {
			return nil, err
		}
		return data{"contradictions": cs}, nil
	})
}

// GetPersonalityAdaptation returns the profile, creating it if needed.
func (e *Engine) GetPersonalityAdaptation(ctx context.Context, userID int64) Response {
	return e.run("get_personality_adaptation", userID, func() (data, error) {
		return adaptation(e.Profiles.GetOrCreate(ctx, userID))
	})
}

// UpdatePersonalityAdaptation applies a JSON-style patch to the profile.
func (e *Engine) UpdatePersonalityAdaptation(ctx context.Context, userID int64, patch map[string]interface{}, reason string) Response {
	return e.run("update_personality_adaptation", userID, func() (data, error) {
		return adaptation(e.Profiles.UpdateRaw(ctx, userID, patch, reason))
	})
}

// EnhanceInteraction decorates base for action. It never fails.
func (e *Engine) EnhanceInteraction(ctx context.Context, userID int64, action string, base, hints map[string]interface{}) map[string]interface{} {
	return e.Enhancer.Enhance(ctx, userID, action, base, hints)
}

// GetUserStats returns per-user counts.
func (e *Engine) GetUserStats(ctx context.Context, userID int64) Response {
	return e.run("get_user_stats", userID, func() (data, error) {
		var stats *store.UserStats
		err := e.store.InTx(ctx, func(q store.Queries) error {
			var err error
			stats, err = q.UserStats(ctx, userID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("user stats: %w", err)
		}
		return data{"stats": stats}, nil
	})
}

// ExportUserData returns every live record held for the user.
func (e *Engine) ExportUserData(ctx context.Context, userID int64) Response {
	return e.run("export_user_data", userID, func() (data, error) {
		var export *store.UserExport
		err := e.store.InTx(ctx, func(q store.Queries) error {
			var err error
			export, err = q.ExportUser(ctx, userID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("export user: %w", err)
		}
		export.ExportedAt = e.store.Now()
		return data{"export": export}, nil
	})
}
