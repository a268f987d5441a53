package enhancer

import (
	"context"
	"strings"

	"github.com/rcliao/affinity/internal/model"
)

// ActionReaction acknowledges a user's reaction to a message.
const ActionReaction = "reaction"

const traitHigh, traitLow = 0.7, 0.3

// AddressTerm picks how the persona addresses the user. Statuses outside
// the positive ladder get no address term.
func AddressTerm(status model.Status, warmth float64) string {
	switch status {
	case model.StatusIntimate:
		return "mi amor más preciado"
	case model.StatusClose:
		return "mi dulce amor"
	case model.StatusFriendly:
		if warmth >= traitHigh {
			return "mi dulce amor"
		}
		return "mi admirador"
	case model.StatusAcquaintance:
		return "mi admirador"
	default:
		return ""
	}
}

// ReactionVerb picks the gesture from the humor and warmth traits.
func ReactionVerb(humor, warmth float64) string {
	switch {
	case humor >= traitHigh:
		return "te guiña un ojo"
	case warmth >= traitHigh:
		return "te lanza un beso"
	case warmth <= traitLow:
		return "te mira fijamente"
	default:
		return "sonríe"
	}
}

func reaction(_ context.Context, in Input) (map[string]interface{}, error) {
	address := AddressTerm(in.Relationship.Status, in.Profile.Warmth)
	verb := ReactionVerb(in.Profile.Humor, in.Profile.Warmth)

	var b strings.Builder
	b.WriteString(in.Persona)
	b.WriteString(" ")
	b.WriteString(verb)
	if address != "" {
		b.WriteString(", ")
		b.WriteString(address)
	}
	b.WriteString(".")

	if msg, ok := in.Base["message"].(string); ok && msg != "" {
		b.WriteString(" ")
		b.WriteString(msg)
	}

	return map[string]interface{}{
		"message":             b.String(),
		"address_term":        address,
		"reaction_verb":       verb,
		"relationship_status": string(in.Relationship.Status),
		"enhanced":            true,
	}, nil
}
