package relationship

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/store"
	"github.com/rcliao/affinity/internal/userlock"
)

const maxAttempts = 3

// MutateFunc changes r inside the update transaction. It may use q for
// additional writes that must commit together with the relationship row.
type MutateFunc func(ctx context.Context, q store.Queries, r *model.RelationshipState, now time.Time) error

// Tracker owns the relationship rows. Every mutation for a user runs under
// that user's lock and commits in one transaction.
type Tracker struct {
	store store.Store
	locks *userlock.Locker
	log   *logging.Logger
}

// NewTracker builds a Tracker. locks may be shared with other services that
// serialize per-user work.
func NewTracker(s store.Store, locks *userlock.Locker, log *logging.Logger) *Tracker {
	return &Tracker{store: s, locks: locks, log: log.With("component", "relationship")}
}

// GetOrCreate returns the user's relationship, creating the default row if absent.
func (t *Tracker) GetOrCreate(ctx context.Context, userID int64) (*model.RelationshipState, error) {
	var out *model.RelationshipState
	err := t.store.InTx(ctx, func(q store.Queries) error {
		var err error
		out, err = getOrCreate(ctx, q, userID, t.store.Now())
		return err
	})
	return out, err
}

// RecordInteraction counts an interaction and folds its classification in.
func (t *Tracker) RecordInteraction(ctx context.Context, userID int64, p InteractionParams) (*model.RelationshipState, error) {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return t.Update(ctx, userID, func(_ context.Context, _ store.Queries, r *model.RelationshipState, now time.Time) error {
		Observe(r, p, now)
		return nil
	})
}

// ApplyEmotionalEvent folds an event into the metrics without counting an interaction.
func (t *Tracker) ApplyEmotionalEvent(ctx context.Context, userID int64, ev Event) (*model.RelationshipState, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return t.Update(ctx, userID, func(_ context.Context, _ store.Queries, r *model.RelationshipState, now time.Time) error {
		apply(r, ev, now)
		return nil
	})
}

// SetStatus is the administrative override. It always logs a milestone,
// even when status equals the current one.
func (t *Tracker) SetStatus(ctx context.Context, userID int64, status model.Status, reason string) (*model.RelationshipState, error) {
	if !status.Valid() {
		return nil, model.Invalid("status", "unknown status %q", status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual override"
	}
	return t.Update(ctx, userID, func(_ context.Context, _ store.Queries, r *model.RelationshipState, now time.Time) error {
		r.LogMilestone(now, status, reason)
		r.UpdatedAt = now
		return nil
	})
}

// Update loads (or creates) the relationship, runs fn and writes the row
// back, all in one transaction under the user's lock. A version conflict
// from a writer outside this process reruns the whole transaction.
func (t *Tracker) Update(ctx context.Context, userID int64, fn MutateFunc) (*model.RelationshipState, error) {
	unlock, err := t.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *model.RelationshipState
	for attempt := 1; ; attempt++ {
		var changed []model.Milestone
		err = t.store.InTx(ctx, func(q store.Queries) error {
			now := t.store.Now()
			r, err := getOrCreate(ctx, q, userID, now)
			if err != nil {
				return err
			}
			milestones := len(r.Milestones)
			if err := fn(ctx, q, r, now); err != nil {
				return err
			}
			if err := q.UpdateRelationship(ctx, r); err != nil {
				return err
			}
			changed = r.Milestones[milestones:]
			out = r
			return nil
		})
		if err == nil {
			for _, m := range changed {
				t.log.Info("relationship status changed",
					"user_id", userID, "from", m.From, "to", m.To, "reason", m.Reason)
			}
			return out, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxAttempts {
			return nil, fmt.Errorf("update relationship: %w", err)
		}
		t.log.Warn("relationship write conflict, retrying", "user_id", userID, "attempt", attempt)
	}
}

// Observe applies an interaction to r: bookkeeping first, then the
// emotional event and status check.
func Observe(r *model.RelationshipState, p InteractionParams, now time.Time) *model.Milestone {
	p = p.withDefaults()
	touch(r, p, now)
	return apply(r, p.Event, now)
}

func getOrCreate(ctx context.Context, q store.Queries, userID int64, now time.Time) (*model.RelationshipState, error) {
	r, err := q.GetRelationship(ctx, userID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := q.CreateRelationship(ctx, model.NewRelationshipState(userID, now)); err != nil {
		return nil, err
	}
	return q.GetRelationship(ctx, userID)
}
