// Package personality keeps the per-user presentation profile.
package personality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/store"
	"github.com/rcliao/affinity/internal/userlock"
)

const (
	confidenceStep = 0.05
	maxAttempts    = 3
)

// Profiles reads and adapts personality profiles.
type Profiles struct {
	store store.Store
	locks *userlock.Locker
	log   *logging.Logger
}

// NewProfiles builds a Profiles service.
func NewProfiles(s store.Store, locks *userlock.Locker, log *logging.Logger) *Profiles {
	return &Profiles{store: s, locks: locks, log: log.With("component", "personality")}
}

// GetOrCreate returns the user's profile, creating the neutral one if absent.
func (p *Profiles) GetOrCreate(ctx context.Context, userID int64) (*model.PersonalityProfile, error) {
	var out *model.PersonalityProfile
	err := p.store.InTx(ctx, func(q store.Queries) error {
		var err error
		out, err = getOrCreate(ctx, q, userID, p.store)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get personality: %w", err)
	}
	return out, nil
}

// Update applies patch, stamps the change and raises confidence by one step.
// An empty reason keeps the previous one.
func (p *Profiles) Update(ctx context.Context, userID int64, patch Patch, reason string) (*model.PersonalityProfile, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	unlock, err := p.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *model.PersonalityProfile
	for attempt := 1; ; attempt++ {
		err = p.store.InTx(ctx, func(q store.Queries) error {
			pp, err := getOrCreate(ctx, q, userID, p.store)
			if err != nil {
				return err
			}
			now := p.store.Now()
			patch.apply(pp)
			if r := strings.TrimSpace(reason); r != "" {
				pp.AdaptationReason = r
			}
			pp.LastSignificantChange = &now
			pp.Confidence = math.Min(1, pp.Confidence+confidenceStep)
			pp.UpdatedAt = now
			if err := q.UpdatePersonality(ctx, pp); err != nil {
				return err
			}
			out = pp
			return nil
		})
		if err == nil {
			if patch.Empty() {
				p.log.Debug("personality confirmed without trait changes", "user_id", userID, "confidence", out.Confidence)
			} else {
				p.log.Info("personality adapted", "user_id", userID, "confidence", out.Confidence, "reason", out.AdaptationReason)
			}
			return out, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxAttempts {
			return nil, fmt.Errorf("update personality: %w", err)
		}
		p.log.Warn("personality write conflict, retrying", "user_id", userID, "attempt", attempt)
	}
}

// UpdateRaw parses a JSON-style patch and applies it.
func (p *Profiles) UpdateRaw(ctx context.Context, userID int64, raw map[string]interface{}, reason string) (*model.PersonalityProfile, error) {
	patch, err := ParsePatch(raw)
	if err != nil {
		return nil, err
	}
	return p.Update(ctx, userID, patch, reason)
}

func getOrCreate(ctx context.Context, q store.Queries, userID int64, s store.Store) (*model.PersonalityProfile, error) {
	pp, err := q.GetPersonality(ctx, userID)
	if err == nil {
		return pp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := q.CreatePersonality(ctx, model.NewPersonalityProfile(userID, s.Now())); err != nil {
		return nil, err
	}
	return q.GetPersonality(ctx, userID)
}
