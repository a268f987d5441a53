package relationship

import (
	"fmt"

	"github.com/rcliao/affinity/internal/model"
)

// Thresholds for the forward transitions.
const (
	acquaintanceInteractions = 5

	friendlyFamiliarity = 0.3
	friendlyTrust       = 0.2

	closeTrust        = 0.6
	closeRapport      = 0.5
	closeInteractions = 20

	intimateTrust        = 0.8
	intimateRapport      = 0.7
	intimateInteractions = 50

	strainedMinInteractions = 10
)

// epsilon absorbs float drift from summing small deltas, so 0.1 plus ten
// steps of 0.01 counts as reaching 0.2.
const epsilon = 1e-9

func atLeast(v, threshold float64) bool {
	return v >= threshold-epsilon
}

// forward maps a status to the single status it can grow into.
var forward = map[model.Status]model.Status{
	model.StatusInitial:      model.StatusAcquaintance,
	model.StatusAcquaintance: model.StatusFriendly,
	model.StatusFriendly:     model.StatusClose,
	model.StatusClose:        model.StatusIntimate,
}

// overrideExempt are the statuses the negative override never fires from.
func overrideExempt(s model.Status) bool {
	return s == model.StatusStrained || s == model.StatusDistant
}

// AllowedNext lists the statuses reachable from s by an automatic transition.
func AllowedNext(s model.Status) []model.Status {
	var out []model.Status
	if to, ok := forward[s]; ok {
		out = append(out, to)
	}
	if !overrideExempt(s) {
		out = append(out, model.StatusStrained)
	}
	return out
}

// NextStatus evaluates the state machine against r's current metrics. The
// negative override is checked first and short-circuits forward growth.
func NextStatus(r *model.RelationshipState) (model.Status, string, bool) {
	if r.NegativeInteractions > r.PositiveInteractions &&
		r.InteractionCount > strainedMinInteractions &&
		!overrideExempt(r.Status) {
		return model.StatusStrained, fmt.Sprintf("negative interactions (%d) outnumber positive (%d)",
			r.NegativeInteractions, r.PositiveInteractions), true
	}

	to, ok := forward[r.Status]
	if !ok {
		return r.Status, "", false
	}

	switch r.Status {
	case model.StatusInitial:
		if r.InteractionCount >= acquaintanceInteractions {
			return to, fmt.Sprintf("reached %d interactions", r.InteractionCount), true
		}
	case model.StatusAcquaintance:
		if atLeast(r.Familiarity, friendlyFamiliarity) && atLeast(r.Trust, friendlyTrust) {
			return to, fmt.Sprintf("familiarity %.2f and trust %.2f", r.Familiarity, r.Trust), true
		}
	case model.StatusFriendly:
		if atLeast(r.Trust, closeTrust) && atLeast(r.Rapport, closeRapport) && r.InteractionCount >= closeInteractions {
			return to, fmt.Sprintf("trust %.2f, rapport %.2f after %d interactions",
				r.Trust, r.Rapport, r.InteractionCount), true
		}
	case model.StatusClose:
		if atLeast(r.Trust, intimateTrust) && atLeast(r.Rapport, intimateRapport) && r.InteractionCount >= intimateInteractions {
			return to, fmt.Sprintf("trust %.2f, rapport %.2f after %d interactions",
				r.Trust, r.Rapport, r.InteractionCount), true
		}
	}
	return r.Status, "", false
}
