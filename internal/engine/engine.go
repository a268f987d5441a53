// Package engine is the in-process entry point for bot handlers. Every
// operation returns a Response envelope; failures are classified and
// logged, never returned as Go errors.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/affinity/internal/config"
	"github.com/rcliao/affinity/internal/contradiction"
	"github.com/rcliao/affinity/internal/enhancer"
	"github.com/rcliao/affinity/internal/logging"
	"github.com/rcliao/affinity/internal/memory"
	"github.com/rcliao/affinity/internal/model"
	"github.com/rcliao/affinity/internal/personality"
	"github.com/rcliao/affinity/internal/relationship"
	"github.com/rcliao/affinity/internal/store"
	"github.com/rcliao/affinity/internal/userlock"
)

// Error kinds reported in Response.ErrorKind.
const (
	KindValidation  = "validation"
	KindNotFound    = "not_found"
	KindConflict    = "conflict"
	KindPersistence = "persistence"
)

// Response is the envelope every operation returns.
type Response struct {
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
}

// Options configures the services an Engine wires.
type Options struct {
	DecayEnabled bool
	// EnhancerDisabled starts the enhancement gate closed.
	EnhancerDisabled bool
	Persona          string
}

// Engine wires the services over one store.
type Engine struct {
	store          store.Store
	log            *logging.Logger
	Memories       *memory.Service
	Relationships  *relationship.Tracker
	Contradictions *contradiction.Registry
	Profiles       *personality.Profiles
	Enhancer       *enhancer.Enhancer

	gate    *enhancer.SwitchGate
	watcher *config.Watcher
}

// New builds an Engine over s. The engine does not own s until Close is called.
func New(s store.Store, log *logging.Logger, opts Options) *Engine {
	locks := userlock.New()
	tracker := relationship.NewTracker(s, locks, log)
	profiles := personality.NewProfiles(s, locks, log)
	gate := enhancer.NewSwitchGate(!opts.EnhancerDisabled)
	return &Engine{
		store:          s,
		log:            log.With("component", "engine"),
		Memories:       memory.NewService(s, tracker, log, memory.WithDecay(opts.DecayEnabled)),
		Relationships:  tracker,
		Contradictions: contradiction.NewRegistry(s, log),
		Profiles:       profiles,
		Enhancer: enhancer.New(tracker, profiles, log,
			enhancer.WithGate(gate),
			enhancer.WithPersona(opts.Persona)),
		gate: gate,
	}
}

// Open opens the SQLite store named by cfg and builds an Engine over it.
func Open(cfg *config.Config, log *logging.Logger) (*Engine, error) {
	s, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return New(s, log, Options{
		DecayEnabled:     cfg.Memory.DecayEnabled,
		EnhancerDisabled: !cfg.Enhancer.Active,
		Persona:          cfg.Enhancer.Persona,
	}), nil
}

// SetEnhancerActive opens or closes the enhancement gate.
func (e *Engine) SetEnhancerActive(active bool) {
	e.gate.Set(active)
}

// WatchConfig follows changes to the config file at path. Only settings that
// are safe to change at runtime are applied; today that is enhancer.active.
func (e *Engine) WatchConfig(ctx context.Context, path string) error {
	if e.watcher != nil {
		return fmt.Errorf("config already watched")
	}
	w, err := config.Watch(ctx, path, e.log, func(cfg *config.Config) {
		e.SetEnhancerActive(cfg.Enhancer.Active)
		e.log.Info("enhancer gate updated", "active", cfg.Enhancer.Active)
	})
	if err != nil {
		return err
	}
	e.watcher = w
	return nil
}

// Close stops any config watcher and closes the underlying store.
func (e *Engine) Close() error {
	if e.watcher != nil {
		e.watcher.Close()
	}
	return e.store.Close()
}

// Classify maps an error onto one of the error kinds.
func Classify(err error) string {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	default:
		return KindPersistence
	}
}

func ok(data map[string]interface{}) Response {
	return Response{Success: true, Data: data}
}

func (e *Engine) fail(op string, userID int64, err error) Response {
	kind := Classify(err)
	switch kind {
	case KindValidation, KindNotFound:
		e.log.Warn("operation rejected", "op", op, "user_id", userID, "kind", kind, "error", err)
	default:
		e.log.Error("operation failed", "op", op, "user_id", userID, "kind", kind, "error", err)
	}
	return Response{Success: false, Error: err.Error(), ErrorKind: kind}
}
