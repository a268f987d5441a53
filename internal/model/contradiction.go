package model

import "time"

// Contradiction is a detected conflict between two statements of one user.
type Contradiction struct {
	ID                     string                 `json:"id"`
	UserID                 int64                  `json:"user_id"`
	Type                   string                 `json:"contradiction_type"`
	OriginalStatement      string                 `json:"original_statement"`
	ContradictingStatement string                 `json:"contradicting_statement"`
	Resolution             string                 `json:"resolution,omitempty"`
	DetectedAt             time.Time              `json:"detected_at"`
	ResolvedAt             *time.Time             `json:"resolved_at,omitempty"`
	Resolved               bool                   `json:"is_resolved"`
	Context                map[string]interface{} `json:"context,omitempty"`
	RelatedMemoryIDs       []string               `json:"related_memory_ids"`
}
