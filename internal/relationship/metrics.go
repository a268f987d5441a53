// Package relationship folds interactions into per-user relationship state.
package relationship

import (
	"math"
	"time"

	"github.com/rcliao/affinity/internal/model"
)

// Event is an emotionally classified interaction.
type Event struct {
	Kind      model.InteractionKind
	Emotion   model.Emotion
	Intensity model.Intensity
}

// InteractionParams describes one interaction to record. Hints are optional;
// an empty classification defaults to a medium-intensity joyful greeting.
type InteractionParams struct {
	MessageLength *float64 // characters
	ResponseTime  *float64 // seconds
	Event
}

func (p InteractionParams) withDefaults() InteractionParams {
	if p.Kind == "" {
		p.Kind = model.KindGreeting
	}
	if p.Emotion == "" {
		p.Emotion = model.EmotionJoy
	}
	if p.Intensity == 0 {
		p.Intensity = model.IntensityMedium
	}
	return p
}

func (p InteractionParams) validate() error {
	if p.MessageLength != nil && (*p.MessageLength < 0 || math.IsNaN(*p.MessageLength)) {
		return model.Invalid("message_length", "must be >= 0")
	}
	if p.ResponseTime != nil && (*p.ResponseTime < 0 || math.IsNaN(*p.ResponseTime)) {
		return model.Invalid("response_time", "must be >= 0")
	}
	return p.Event.validate()
}

func (e Event) validate() error {
	if !e.Kind.Valid() {
		return model.Invalid("interaction_kind", "unknown kind %q", e.Kind)
	}
	if !e.Emotion.Valid() {
		return model.Invalid("emotion", "unknown emotion %q", e.Emotion)
	}
	if !e.Intensity.Valid() {
		return model.Invalid("intensity", "must be 1-5, got %d", e.Intensity)
	}
	return nil
}

// TrustModifier is the per-kind trust delta.
func TrustModifier(kind model.InteractionKind) float64 {
	switch kind {
	case model.KindPersonalShare:
		return 0.05
	case model.KindConfession:
		return 0.10
	case model.KindConflict:
		return -0.03
	case model.KindResolution:
		return 0.07
	case model.KindPraise:
		return 0.03
	case model.KindCriticism:
		return -0.02
	default:
		return 0.01
	}
}

// NextFamiliarity grows familiarity with diminishing returns. It never decreases.
func NextFamiliarity(f float64) float64 {
	return math.Min(1, f+0.01/(f+0.1))
}

// RapportDelta is the rapport change for one emotion at the given intensity.
func RapportDelta(e model.Emotion, i model.Intensity) float64 {
	switch e.Valence() {
	case model.ValencePositive:
		return 0.02 * float64(i) / 5
	case model.ValenceNegative:
		return -0.01 * float64(i) / 5
	default:
		return 0
	}
}

// DominantEmotion returns the most counted emotion. Ties go to the emotion
// that comes first in model.AllEmotions.
func DominantEmotion(counts map[model.Emotion]int) model.Emotion {
	var best model.Emotion
	bestN := 0
	for _, e := range model.AllEmotions {
		if n := counts[e]; n > bestN {
			best, bestN = e, n
		}
	}
	return best
}

// Volatility expands the tally into its implied sequence (canonical emotion
// order, each emotion repeated by its count) and returns the share of
// adjacent pairs that differ.
func Volatility(counts map[model.Emotion]int) float64 {
	total, distinct := 0, 0
	for _, e := range model.AllEmotions {
		n := counts[e]
		if n <= 0 {
			continue
		}
		total += n
		distinct++
	}
	if total <= 1 {
		return 0
	}
	return float64(distinct-1) / float64(total-1)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

// touch applies the interaction bookkeeping: count, rolling averages,
// absence and frequency.
func touch(r *model.RelationshipState, p InteractionParams, now time.Time) {
	r.InteractionCount++
	n := float64(r.InteractionCount)

	if p.MessageLength != nil {
		r.AvgMessageLength = (r.AvgMessageLength*(n-1) + *p.MessageLength) / n
	}
	if p.ResponseTime != nil {
		r.AvgResponseTime = (r.AvgResponseTime*(n-1) + *p.ResponseTime) / n
	}

	if r.LastInteractionAt != nil {
		if gap := days(now.Sub(*r.LastInteractionAt)); gap > r.LongestAbsenceDays {
			r.LongestAbsenceDays = gap
		}
	}
	at := now
	r.LastInteractionAt = &at

	r.CommunicationFrequency = n / math.Max(1, days(now.Sub(r.StartedAt)))
}

// apply folds an emotional event into r and runs the status check. It
// returns the milestone when the status changed.
func apply(r *model.RelationshipState, ev Event, now time.Time) *model.Milestone {
	r.Trust = clamp01(r.Trust + TrustModifier(ev.Kind))
	r.Familiarity = NextFamiliarity(r.Familiarity)
	r.Rapport = clamp01(r.Rapport + RapportDelta(ev.Emotion, ev.Intensity))

	switch ev.Emotion.Valence() {
	case model.ValencePositive:
		r.PositiveInteractions++
	case model.ValenceNegative:
		r.NegativeInteractions++
	}

	if r.EmotionCounts == nil {
		r.EmotionCounts = map[model.Emotion]int{}
	}
	r.EmotionCounts[ev.Emotion]++
	r.DominantEmotion = DominantEmotion(r.EmotionCounts)
	r.Volatility = Volatility(r.EmotionCounts)

	r.UpdatedAt = now

	next, reason, ok := NextStatus(r)
	if !ok {
		return nil
	}
	r.LogMilestone(now, next, reason)
	return &r.Milestones[len(r.Milestones)-1]
}
