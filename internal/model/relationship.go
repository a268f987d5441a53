package model

import "time"

// Milestone is one entry of the append-only status-change log.
type Milestone struct {
	At     time.Time `json:"timestamp"`
	From   Status    `json:"old_status"`
	To     Status    `json:"new_status"`
	Reason string    `json:"reason"`
}

// RelationshipState is the per-user relationship row.
type RelationshipState struct {
	UserID                 int64                  `json:"user_id"`
	Status                 Status                 `json:"status"`
	Trust                  float64                `json:"trust_level"`
	Familiarity            float64                `json:"familiarity"`
	Rapport                float64                `json:"rapport"`
	DominantEmotion        Emotion                `json:"dominant_emotion,omitempty"`
	Volatility             float64                `json:"emotional_volatility"`
	PositiveInteractions   int                    `json:"positive_interactions"`
	NegativeInteractions   int                    `json:"negative_interactions"`
	StartedAt              time.Time              `json:"relationship_start"`
	LastInteractionAt      *time.Time             `json:"last_interaction,omitempty"`
	LongestAbsenceDays     float64                `json:"longest_absence_days"`
	AvgResponseTime        float64                `json:"avg_response_time"`
	AvgMessageLength       float64                `json:"avg_message_length"`
	CommunicationFrequency float64                `json:"communication_frequency"`
	InteractionCount       int                    `json:"interaction_count"`
	MilestoneCount         int                    `json:"milestone_count"`
	Milestones             []Milestone            `json:"milestones"`
	Boundaries             map[string]interface{} `json:"boundaries"`
	Preferences            map[string]interface{} `json:"preferences"`
	TopicInterest          map[string]float64     `json:"topic_interest"`
	EmotionCounts          map[Emotion]int        `json:"emotion_counts"`
	Version                int                    `json:"version"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

// Relationship defaults for a freshly created row.
const (
	InitialTrust       = 0.1
	InitialRapport     = 0.1
	InitialFamiliarity = 0.0
)

// NewRelationshipState returns the default row for a user first seen at now.
func NewRelationshipState(userID int64, now time.Time) *RelationshipState {
	return &RelationshipState{
		UserID:        userID,
		Status:        StatusInitial,
		Trust:         InitialTrust,
		Familiarity:   InitialFamiliarity,
		Rapport:       InitialRapport,
		StartedAt:     now,
		Milestones:    []Milestone{},
		Boundaries:    map[string]interface{}{},
		Preferences:   map[string]interface{}{},
		TopicInterest: map[string]float64{},
		EmotionCounts: map[Emotion]int{},
		UpdatedAt:     now,
	}
}

// LogMilestone moves the relationship to status and appends to the log.
func (r *RelationshipState) LogMilestone(at time.Time, to Status, reason string) {
	r.Milestones = append(r.Milestones, Milestone{At: at, From: r.Status, To: to, Reason: reason})
	r.MilestoneCount++
	r.Status = to
}
