// Package store provides the engine's persistence interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/affinity/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a versioned row changed since it was read.
	ErrConflict = errors.New("version conflict")
)

// MemoryOrder selects the ordering of a memory listing.
type MemoryOrder int

const (
	// OrderRecent orders by timestamp, newest first.
	OrderRecent MemoryOrder = iota
	// OrderImportance orders by importance, highest first, then newest.
	OrderImportance
)

// MemoryFilter holds parameters for listing a user's memories.
// Forgotten memories are never returned.
type MemoryFilter struct {
	UserID        int64
	Emotion       model.Emotion // matches primary emotion when set
	Tag           string
	MinImportance *float64
	Order         MemoryOrder
	Limit         int // 0 means no limit
}

// UserStats holds per-user counts.
type UserStats struct {
	UserID                 int64                 `json:"user_id"`
	TotalMemories          int                   `json:"total_memories"`
	ActiveMemories         int                   `json:"active_memories"`
	ForgottenMemories      int                   `json:"forgotten_memories"`
	ByEmotion              map[model.Emotion]int `json:"by_emotion"`
	OpenContradictions     int                   `json:"open_contradictions"`
	ResolvedContradictions int                   `json:"resolved_contradictions"`
}

// UserExport is every live record held for one user.
type UserExport struct {
	UserID         int64                     `json:"user_id"`
	ExportedAt     time.Time                 `json:"exported_at"`
	Memories       []model.EmotionalMemory   `json:"memories"`
	Relationship   *model.RelationshipState  `json:"relationship,omitempty"`
	Personality    *model.PersonalityProfile `json:"personality,omitempty"`
	Contradictions []model.Contradiction     `json:"contradictions"`
}

// Queries are the operations available inside a transaction.
type Queries interface {
	InsertMemory(ctx context.Context, m *model.EmotionalMemory) error
	GetMemory(ctx context.Context, id string) (*model.EmotionalMemory, error)
	ListMemories(ctx context.Context, f MemoryFilter) ([]model.EmotionalMemory, error)
	// TouchMemories bumps recall_count and sets last_recalled_at for each id.
	TouchMemories(ctx context.Context, ids []string, at time.Time) error
	// ForgetMemory flags one memory. Returns ErrNotFound for unknown ids.
	ForgetMemory(ctx context.Context, id string) error
	// ForgetUserMemories flags every live memory of a user and returns how many changed.
	ForgetUserMemories(ctx context.Context, userID int64) (int, error)

	GetRelationship(ctx context.Context, userID int64) (*model.RelationshipState, error)
	CreateRelationship(ctx context.Context, r *model.RelationshipState) error
	// UpdateRelationship writes r if its Version still matches the stored row,
	// then increments r.Version. Returns ErrConflict otherwise.
	UpdateRelationship(ctx context.Context, r *model.RelationshipState) error

	InsertContradiction(ctx context.Context, c *model.Contradiction) error
	GetContradiction(ctx context.Context, id string) (*model.Contradiction, error)
	UpdateContradiction(ctx context.Context, c *model.Contradiction) error
	ListContradictions(ctx context.Context, userID int64, unresolvedOnly bool) ([]model.Contradiction, error)

	GetPersonality(ctx context.Context, userID int64) (*model.PersonalityProfile, error)
	CreatePersonality(ctx context.Context, p *model.PersonalityProfile) error
	UpdatePersonality(ctx context.Context, p *model.PersonalityProfile) error

	UserStats(ctx context.Context, userID int64) (*UserStats, error)
	ExportUser(ctx context.Context, userID int64) (*UserExport, error)
}

// Store defines the engine storage interface.
type Store interface {
	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back when fn returns an error or panics.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// NewID returns a new sortable identifier.
	NewID() string

	// Now returns the store clock's current time in UTC.
	Now() time.Time

	// Close closes the store.
	Close() error
}
