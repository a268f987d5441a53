package personality

import (
	"encoding/json"
	"math"

	"github.com/rcliao/affinity/internal/model"
)

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	Warmth                   *float64
	Formality                *float64
	Humor                    *float64
	Directness               *float64
	Assertiveness            *float64
	Curiosity                *float64
	EmotionalExpressiveness  *float64
	PreferredMessageLength   *model.MessageLength
	ComplexityLevel          *float64
	EmojiUsage               *float64
	ResponseDelayMS          *int
	TopicPreferences         map[string]float64
	TabooTopics              []string
	MemoryReferenceFrequency *float64
}

// unitFields are the patch keys holding a value in [0,1].
func (p *Patch) unitFields() map[string]**float64 {
	return map[string]**float64{
		"warmth":                     &p.Warmth,
		"formality":                  &p.Formality,
		"humor":                      &p.Humor,
		"directness":                 &p.Directness,
		"assertiveness":              &p.Assertiveness,
		"curiosity":                  &p.Curiosity,
		"emotional_expressiveness":   &p.EmotionalExpressiveness,
		"complexity_level":           &p.ComplexityLevel,
		"emoji_usage":                &p.EmojiUsage,
		"memory_reference_frequency": &p.MemoryReferenceFrequency,
	}
}

// ParsePatch maps a JSON-style object onto a Patch. Unknown keys are
// ignored; known keys with the wrong type or an out-of-range value fail.
func ParsePatch(raw map[string]interface{}) (Patch, error) {
	var p Patch

	for key, dst := range p.unitFields() {
		v, ok := raw[key]
		if !ok {
			continue
		}
		f, err := unit(key, v)
		if err != nil {
			return Patch{}, err
		}
		*dst = &f
	}

	if v, ok := raw["preferred_message_length"]; ok {
		s, isString := v.(string)
		ml := model.MessageLength(s)
		if !isString || !ml.Valid() {
			return Patch{}, model.Invalid("preferred_message_length", "must be short, medium or long")
		}
		p.PreferredMessageLength = &ml
	}

	if v, ok := raw["response_delay_ms"]; ok {
		f, ok := number(v)
		if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return Patch{}, model.Invalid("response_delay_ms", "must be a non-negative integer")
		}
		ms := int(f)
		p.ResponseDelayMS = &ms
	}

	if v, ok := raw["topic_preferences"]; ok {
		topics, err := topicMap(v)
		if err != nil {
			return Patch{}, err
		}
		p.TopicPreferences = topics
	}

	if v, ok := raw["taboo_topics"]; ok {
		taboo, err := stringList("taboo_topics", v)
		if err != nil {
			return Patch{}, err
		}
		p.TabooTopics = taboo
	}

	return p, nil
}

// Validate checks the ranges of a Patch built directly in Go.
func (p Patch) Validate() error {
	for key, dst := range p.unitFields() {
		if v := *dst; v != nil && !inUnit(*v) {
			return model.Invalid(key, "must be within [0,1]")
		}
	}
	if p.PreferredMessageLength != nil && !p.PreferredMessageLength.Valid() {
		return model.Invalid("preferred_message_length", "must be short, medium or long")
	}
	if p.ResponseDelayMS != nil && *p.ResponseDelayMS < 0 {
		return model.Invalid("response_delay_ms", "must be >= 0")
	}
	for topic, w := range p.TopicPreferences {
		if !inUnit(w) {
			return model.Invalid("topic_preferences", "weight for %q must be within [0,1]", topic)
		}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	for _, dst := range p.unitFields() {
		if *dst != nil {
			return false
		}
	}
	return p.PreferredMessageLength == nil && p.ResponseDelayMS == nil &&
		p.TopicPreferences == nil && p.TabooTopics == nil
}

func (p Patch) apply(pp *model.PersonalityProfile) {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&pp.Warmth, p.Warmth)
	set(&pp.Formality, p.Formality)
	set(&pp.Humor, p.Humor)
	set(&pp.Directness, p.Directness)
	set(&pp.Assertiveness, p.Assertiveness)
	set(&pp.Curiosity, p.Curiosity)
	set(&pp.EmotionalExpressiveness, p.EmotionalExpressiveness)
	set(&pp.ComplexityLevel, p.ComplexityLevel)
	set(&pp.EmojiUsage, p.EmojiUsage)
	set(&pp.MemoryReferenceFrequency, p.MemoryReferenceFrequency)
	if p.PreferredMessageLength != nil {
		pp.PreferredMessageLength = *p.PreferredMessageLength
	}
	if p.ResponseDelayMS != nil {
		pp.ResponseDelayMS = *p.ResponseDelayMS
	}
	if p.TopicPreferences != nil {
		pp.TopicPreferences = p.TopicPreferences
	}
	if p.TabooTopics != nil {
		pp.TabooTopics = p.TabooTopics
	}
}

func inUnit(f float64) bool {
	return f >= 0 && f <= 1
}

func unit(key string, v interface{}) (float64, error) {
	f, ok := number(v)
	if !ok {
		return 0, model.Invalid(key, "must be a number")
	}
	if !inUnit(f) {
		return 0, model.Invalid(key, "must be within [0,1], got %v", f)
	}
	return f, nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func topicMap(v interface{}) (map[string]float64, error) {
	out := map[string]float64{}
	switch m := v.(type) {
	case map[string]float64:
		for k, w := range m {
			out[k] = w
		}
	case map[string]interface{}:
		for k, raw := range m {
			w, ok := number(raw)
			if !ok {
				return nil, model.Invalid("topic_preferences", "weight for %q must be a number", k)
			}
			out[k] = w
		}
	default:
		return nil, model.Invalid("topic_preferences", "must be an object of topic weights")
	}
	for k, w := range out {
		if !inUnit(w) {
			return nil, model.Invalid("topic_preferences", "weight for %q must be within [0,1]", k)
		}
	}
	return out, nil
}

func stringList(key string, v interface{}) ([]string, error) {
	switch l := v.(type) {
	case []string:
		return append([]string{}, l...), nil
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, model.Invalid(key, "must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, model.Invalid(key, "must be a list of strings")
	}
}
