package model

import "time"

// EmotionalMemory is one recorded emotional interaction with a user.
type EmotionalMemory struct {
	ID                   string                 `json:"id"`
	UserID               int64                  `json:"user_id"`
	Kind                 InteractionKind        `json:"interaction_kind"`
	OccurredAt           time.Time              `json:"timestamp"`
	Summary              string                 `json:"summary"`
	Content              string                 `json:"content"`
	PrimaryEmotion       Emotion                `json:"primary_emotion"`
	SecondaryEmotion     Emotion                `json:"secondary_emotion,omitempty"`
	Intensity            Intensity              `json:"intensity"`
	Context              map[string]interface{} `json:"context,omitempty"`
	RelatedAchievements  []string               `json:"related_achievements,omitempty"`
	RelatedNarrativeKeys []string               `json:"related_narrative_keys,omitempty"`
	Importance           float64                `json:"importance"`
	DecayRate            float64                `json:"decay_rate"`
	LastRecalledAt       *time.Time             `json:"last_recalled_at,omitempty"`
	RecallCount          int                    `json:"recall_count"`
	Tags                 []string               `json:"tags,omitempty"`
	Sensitive            bool                   `json:"is_sensitive"`
	Forgotten            bool                   `json:"is_forgotten"`
	ParentID             string                 `json:"parent_memory_id,omitempty"`
}

// Memory defaults applied when the caller leaves a field unset.
const (
	DefaultImportance = 1.0
	DefaultDecayRate  = 0.1
)
