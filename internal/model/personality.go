package model

import "time"

// MessageLength is the preferred size of generated replies.
type MessageLength string

const (
	MessageShort  MessageLength = "short"
	MessageMedium MessageLength = "medium"
	MessageLong   MessageLength = "long"
)

// Valid reports whether m is a known length.
func (m MessageLength) Valid() bool {
	switch m {
	case MessageShort, MessageMedium, MessageLong:
		return true
	default:
		return false
	}
}

// PersonalityProfile holds per-user presentation parameters.
type PersonalityProfile struct {
	UserID int64 `json:"user_id"`

	// Traits, each in [0,1].
	Warmth                  float64 `json:"warmth"`
	Formality               float64 `json:"formality"`
	Humor                   float64 `json:"humor"`
	Directness              float64 `json:"directness"`
	Assertiveness           float64 `json:"assertiveness"`
	Curiosity               float64 `json:"curiosity"`
	EmotionalExpressiveness float64 `json:"emotional_expressiveness"`

	PreferredMessageLength MessageLength `json:"preferred_message_length"`
	ComplexityLevel        float64       `json:"complexity_level"`
	EmojiUsage             float64       `json:"emoji_usage"`
	ResponseDelayMS        int           `json:"response_delay_ms"`

	TopicPreferences         map[string]float64 `json:"topic_preferences"`
	TabooTopics              []string           `json:"taboo_topics"`
	MemoryReferenceFrequency float64            `json:"memory_reference_frequency"`

	AdaptationReason      string     `json:"adaptation_reason,omitempty"`
	LastSignificantChange *time.Time `json:"last_significant_change,omitempty"`
	Confidence            float64    `json:"confidence_score"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPersonalityProfile returns the neutral profile for a user.
func NewPersonalityProfile(userID int64, now time.Time) *PersonalityProfile {
	return &PersonalityProfile{
		UserID:                   userID,
		Warmth:                   0.5,
		Formality:                0.5,
		Humor:                    0.5,
		Directness:               0.5,
		Assertiveness:            0.5,
		Curiosity:                0.5,
		EmotionalExpressiveness:  0.5,
		PreferredMessageLength:   MessageMedium,
		ComplexityLevel:          0.5,
		EmojiUsage:               0.3,
		TopicPreferences:         map[string]float64{},
		TabooTopics:              []string{},
		MemoryReferenceFrequency: 0.3,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}
