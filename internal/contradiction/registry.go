// Package contradiction records conflicting statements made by a user.
package contradiction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/store"
)

// DefaultType is used when a contradiction is recorded without a type.
const DefaultType = "statement"

// RecordParams holds parameters for recording a contradiction.
type RecordParams struct {
	UserID                 int64
	Type                   string
	OriginalStatement      string
	ContradictingStatement string
	Context                map[string]interface{}
	RelatedMemoryIDs       []string
}

// Registry stores contradictions and their resolutions.
type Registry struct {
	store store.Store
	log   *logging.Logger
}

// NewRegistry builds a Registry.
func NewRegistry(s store.Store, log *logging.Logger) *Registry {
	return &Registry{store: s, log: log.With("component", "contradiction")}
}

// Record stores a new open contradiction. Related memories must belong to
// the user and must not be forgotten.
func (r *Registry) Record(ctx context.Context, p RecordParams) (*model.Contradiction, error) {
	typ := strings.TrimSpace(p.Type)
	if typ == "" {
		typ = DefaultType
	}

	related := make([]string, 0, len(p.RelatedMemoryIDs))
	seen := map[string]bool{}
	for _, id := range p.RelatedMemoryIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		related = append(related, id)
	}

	var c *model.Contradiction
	err := r.store.InTx(ctx, func(q store.Queries) error {
		for _, id := range related {
			m, err := q.GetMemory(ctx, id)
			if errors.Is(err, store.ErrNotFound) || (err == nil && m.UserID != p.UserID) {
				return model.Invalid("related_memory_ids", "no memory %s for user", id)
			}
			if err != nil {
				return err
			}
			if m.Forgotten {
				return model.Invalid("related_memory_ids", "memory %s is forgotten", id)
			}
		}

		c = &model.Contradiction{
			ID:                     r.store.NewID(),
			UserID:                 p.UserID,
			Type:                   typ,
			OriginalStatement:      p.OriginalStatement,
			ContradictingStatement: p.ContradictingStatement,
			DetectedAt:             r.store.Now(),
			Context:                p.Context,
			RelatedMemoryIDs:       related,
		}
		return q.InsertContradiction(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("record contradiction: %w", err)
	}

	r.log.Debug("contradiction recorded", "user_id", p.UserID, "id", c.ID, "type", c.Type)
	return c, nil
}

// Resolve marks a contradiction resolved. Resolving again replaces the
// resolution text and timestamp.
func (r *Registry) Resolve(ctx context.Context, id, resolution string) (*model.Contradiction, error) {
	var c *model.Contradiction
	err := r.store.InTx(ctx, func(q store.Queries) error {
		var err error
		c, err = q.GetContradiction(ctx, id)
		if err != nil {
			return err
		}
		now := r.store.Now()
		c.Resolution = resolution
		c.ResolvedAt = &now
		c.Resolved = true
		return q.UpdateContradiction(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve contradiction: %w", err)
	}
	return c, nil
}

// Unresolved lists the user's open contradictions, most recently detected first.
func (r *Registry) Unresolved(ctx context.Context, userID int64) ([]model.Contradiction, error) {
	var out []model.Contradiction
	err := r.store.InTx(ctx, func(q store.Queries) error {
		var err error
		out, err = q.ListContradictions(ctx, userID, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list contradictions: %w", err)
	}
	if out == nil {
		out = []model.Contradiction{}
	}
	return out, nil
}
