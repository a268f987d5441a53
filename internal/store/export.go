package store

import (
	"context"
	"errors"

	"github.com/rcliao/affinity/internal/model"
)

// ExportUser collects every live record held for a user. Forgotten memories
// are left out. Reading through the export does not count as a recall.
func (q *queries) ExportUser(ctx context.Context, userID int64) (*UserExport, error) {
	memories, err := q.ListMemories(ctx, MemoryFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	contradictions, err := q.ListContradictions(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	out := &UserExport{
		UserID:         userID,
		Memories:       memories,
		Contradictions: contradictions,
	}
	if out.Memories == nil {
		out.Memories = []model.EmotionalMemory{}
	}
	if out.Contradictions == nil {
		out.Contradictions = []model.Contradiction{}
	}

	rel, err := q.GetRelationship(ctx, userID)
	switch {
	case err == nil:
		out.Relationship = rel
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	prof, err := q.GetPersonality(ctx, userID)
	switch {
	case err == nil:
		out.Personality = prof
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return out, nil
}
