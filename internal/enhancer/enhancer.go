// Package enhancer decorates bot replies with relationship-aware flavor.
// Enhancement is best effort: Enhance never fails and never drops keys of
// the result it was given.
package enhancer

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/personality"
	"github.com/rcliao/affinity/internal/relationship"
)

// DefaultPersona is the character name used by the built-in strategies.
const DefaultPersona = "Diana"

// Gate decides whether enhancement runs at all.
type Gate interface {
	Active(ctx context.Context, userID int64) bool
}

// StaticGate is a Gate with a fixed answer.
type StaticGate bool

func (g StaticGate) Active(context.Context, int64) bool { return bool(g) }

// SwitchGate is a Gate that can be flipped at runtime, e.g. on config reload.
type SwitchGate struct {
	on atomic.Bool
}

// NewSwitchGate returns a SwitchGate in the given position.
func NewSwitchGate(active bool) *SwitchGate {
	g := &SwitchGate{}
	g.on.Store(active)
	return g
}

// Set flips the gate.
func (g *SwitchGate) Set(active bool) { g.on.Store(active) }

func (g *SwitchGate) Active(context.Context, int64) bool { return g.on.Load() }

// Input is what a Strategy sees. Base and Context are private copies.
type Input struct {
	UserID       int64
	Action       string
	Persona      string
	Base         map[string]interface{}
	Context      map[string]interface{}
	Relationship *model.RelationshipState
	Profile      *model.PersonalityProfile
}

// Strategy produces the enhanced result for one action. Keys it returns
// are merged over the base result.
type Strategy interface {
	Enhance(ctx context.Context, in Input) (map[string]interface{}, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, in Input) (map[string]interface{}, error)

func (f StrategyFunc) Enhance(ctx context.Context, in Input) (map[string]interface{}, error) {
	return f(ctx, in)
}

// Enhancer dispatches actions to registered strategies.
type Enhancer struct {
	tracker    *relationship.Tracker
	profiles   *personality.Profiles
	log        *logging.Logger
	gate       Gate
	persona    string
	strategies map[string]Strategy
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithGate replaces the default always-on gate.
func WithGate(g Gate) Option {
	return func(e *Enhancer) { e.gate = g }
}

// WithPersona sets the character name.
func WithPersona(name string) Option {
	return func(e *Enhancer) {
		if name != "" {
			e.persona = name
		}
	}
}

// WithStrategy registers s for action, replacing any existing one.
func WithStrategy(action string, s Strategy) Option {
	return func(e *Enhancer) { e.strategies[action] = s }
}

// New builds an Enhancer with the built-in "reaction" strategy registered.
func New(tracker *relationship.Tracker, profiles *personality.Profiles, log *logging.Logger, opts ...Option) *Enhancer {
	e := &Enhancer{
		tracker:  tracker,
		profiles: profiles,
		log:      log.With("component", "enhancer"),
		gate:     StaticGate(true),
		persona:  DefaultPersona,
		strategies: map[string]Strategy{
			ActionReaction: StrategyFunc(reaction),
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enhance reads the user's state, records the interaction and, when the gate
// is open, runs the strategy for action. Any failure returns base as given.
func (e *Enhancer) Enhance(ctx context.Context, userID int64, action string, base, hints map[string]interface{}) (out map[string]interface{}) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Warn("enhancement panicked, returning base result", "user_id", userID, "action", action, "panic", fmt.Sprint(p))
			out = base
		}
	}()

	enhanced, err := e.enhance(ctx, userID, action, base, hints)
	if err != nil {
		e.log.Warn("enhancement failed, returning base result", "user_id", userID, "action", action, "error", err)
		return base
	}
	return enhanced
}

func (e *Enhancer) enhance(ctx context.Context, userID int64, action string, base, hints map[string]interface{}) (map[string]interface{}, error) {
	rel, err := e.tracker.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := e.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := e.tracker.RecordInteraction(ctx, userID, interactionFromHints(hints)); err != nil {
		return nil, err
	}

	if !e.gate.Active(ctx, userID) {
		return base, nil
	}
	strategy, ok := e.strategies[action]
	if !ok {
		return base, nil
	}

	extra, err := strategy.Enhance(ctx, Input{
		UserID:       userID,
		Action:       action,
		Persona:      e.persona,
		Base:         copyMap(base),
		Context:      copyMap(hints),
		Relationship: rel,
		Profile:      profile,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", action, err)
	}

	out := copyMap(base)
	for k, v := range extra {
		out[k] = v
	}
	return out, nil
}

// interactionFromHints reads the optional hints a caller may pass. Malformed
// values are skipped so a bad hint never blocks the interaction count.
func interactionFromHints(hints map[string]interface{}) relationship.InteractionParams {
	var p relationship.InteractionParams
	if v, ok := nonNegative(hints["message_length"]); ok {
		p.MessageLength = &v
	} else if msg, ok := hints["message"].(string); ok {
		n := float64(len([]rune(msg)))
		p.MessageLength = &n
	}
	if v, ok := nonNegative(hints["response_time"]); ok {
		p.ResponseTime = &v
	}
	if s, ok := hints["interaction_kind"].(string); ok {
		if k, err := model.ParseKind(s); err == nil {
			p.Kind = k
		}
	}
	if s, ok := hints["emotion"].(string); ok {
		if em, err := model.ParseEmotion(s); err == nil {
			p.Emotion = em
		}
	}
	if v, ok := nonNegative(hints["intensity"]); ok && model.Intensity(v).Valid() && v == math.Trunc(v) {
		p.Intensity = model.Intensity(v)
	}
	return p
}

func nonNegative(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
