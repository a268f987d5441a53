// Package model defines the emotional engine's entity and enum types.
package model

import (
	"strconv"
	"strings"
)

// Emotion is the primary classification of an interaction, supplied by the caller.
type Emotion string

const (
	EmotionJoy          Emotion = "joy"
	EmotionSadness      Emotion = "sadness"
	EmotionAnger        Emotion = "anger"
	EmotionFear         Emotion = "fear"
	EmotionSurprise     Emotion = "surprise"
	EmotionDisgust      Emotion = "disgust"
	EmotionTrust        Emotion = "trust"
	EmotionAnticipation Emotion = "anticipation"
	EmotionNeutral      Emotion = "neutral"
)

// AllEmotions lists every emotion in canonical order. The order is used to
// break ties deterministically when deriving the dominant emotion.
var AllEmotions = []Emotion{
	EmotionJoy,
	EmotionSadness,
	EmotionAnger,
	EmotionFear,
	EmotionSurprise,
	EmotionDisgust,
	EmotionTrust,
	EmotionAnticipation,
	EmotionNeutral,
}

// Valence is the rapport/tally classification of an emotion.
type Valence int

const (
	ValenceNeutral Valence = iota
	ValencePositive
	ValenceNegative
)

// Valence classifies the emotion. Surprise and neutral carry no valence.
func (e Emotion) Valence() Valence {
	switch e {
	case EmotionJoy, EmotionTrust, EmotionAnticipation:
		return ValencePositive
	case EmotionSadness, EmotionAnger, EmotionFear, EmotionDisgust:
		return ValenceNegative
	case EmotionSurprise, EmotionNeutral:
		return ValenceNeutral
	default:
		return ValenceNeutral
	}
}

// Valid reports whether e is one of the known emotions.
func (e Emotion) Valid() bool {
	for _, k := range AllEmotions {
		if k == e {
			return true
		}
	}
	return false
}

// ParseEmotion converts a case-insensitive name into an Emotion.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", &ValidationError{Field: "emotion", Reason: "unknown emotion " + strconv.Quote(s)}
	}
	return e, nil
}

// InteractionKind categorizes what happened in an interaction.
type InteractionKind string

const (
	KindGreeting      InteractionKind = "greeting"
	KindHelpRequest   InteractionKind = "help_request"
	KindFeedback      InteractionKind = "feedback"
	KindPersonalShare InteractionKind = "personal_share"
	KindMilestone     InteractionKind = "milestone"
	KindConflict      InteractionKind = "conflict"
	KindResolution    InteractionKind = "resolution"
	KindPraise        InteractionKind = "praise"
	KindCriticism     InteractionKind = "criticism"
	KindConfession    InteractionKind = "confession"
	KindStorytelling  InteractionKind = "storytelling"
	KindAdviceSeeking InteractionKind = "advice_seeking"
	KindAdviceGiving  InteractionKind = "advice_giving"
)

// AllKinds lists every interaction kind.
var AllKinds = []InteractionKind{
	KindGreeting,
	KindHelpRequest,
	KindFeedback,
	KindPersonalShare,
	KindMilestone,
	KindConflict,
	KindResolution,
	KindPraise,
	KindCriticism,
	KindConfession,
	KindStorytelling,
	KindAdviceSeeking,
	KindAdviceGiving,
}

// Valid reports whether k is one of the known kinds.
func (k InteractionKind) Valid() bool {
	for _, v := range AllKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ParseKind converts a name such as "personal-share" or "personal_share" into a kind.
func ParseKind(s string) (InteractionKind, error) {
	k := InteractionKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", &ValidationError{Field: "interaction_kind", Reason: "unknown interaction kind " + strconv.Quote(s)}
	}
	return k, nil
}

// Intensity is a 1-5 ordinal strength of an emotion.
type Intensity int

const (
	IntensityVeryLow  Intensity = 1
	IntensityLow      Intensity = 2
	IntensityMedium   Intensity = 3
	IntensityHigh     Intensity = 4
	IntensityVeryHigh Intensity = 5
)

var intensityNames = map[string]Intensity{
	"very_low":  IntensityVeryLow,
	"low":       IntensityLow,
	"medium":    IntensityMedium,
	"high":      IntensityHigh,
	"very_high": IntensityVeryHigh,
}

// Valid reports whether i is within 1-5.
func (i Intensity) Valid() bool {
	return i >= IntensityVeryLow && i <= IntensityVeryHigh
}

// ParseIntensity accepts "1".."5" or a name like "high" / "very-high".
func ParseIntensity(s string) (Intensity, error) {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if i, ok := intensityNames[v]; ok {
		return i, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || !Intensity(n).Valid() {
		return 0, &ValidationError{Field: "intensity", Reason: "must be 1-5 or very_low..very_high, got " + strconv.Quote(s)}
	}
	return Intensity(n), nil
}

// Status is the discrete stage of the modeled relationship.
type Status string

const (
	StatusInitial      Status = "initial"
	StatusAcquaintance Status = "acquaintance"
	StatusFriendly     Status = "friendly"
	StatusClose        Status = "close"
	StatusIntimate     Status = "intimate"
	StatusStrained     Status = "strained"
	StatusRepaired     Status = "repaired"
	StatusDistant      Status = "distant"
	StatusComplex      Status = "complex"
)

// AllStatuses lists every relationship status.
var AllStatuses = []Status{
	StatusInitial,
	StatusAcquaintance,
	StatusFriendly,
	StatusClose,
	StatusIntimate,
	StatusStrained,
	StatusRepaired,
	StatusDistant,
	StatusComplex,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseStatus converts a case-insensitive name into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Reason: "unknown status " + strconv.Quote(s)}
	}
	return st, nil
}
