package mapping

import (
	"github.com/google/uuid"

	"github.com/WithSecureLabs/chainsaw/pkg/sigma"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// sigmaMetadata exposes the handful of a Sigma rule's own declared fields a
// precondition's "for" clause can gate on: the rule's logsource, not any
// field of the record being hunted.
func sigmaMetadata(r *sigma.Rule) map[string]string {
	return map[string]string{
		"title":              r.Title,
		"level":              r.Level,
		"status":             r.Status,
		"logsource.category": r.Logsource.Category,
		"logsource.product":  r.Logsource.Product,
		"logsource.service":  r.Logsource.Service,
	}
}

func matchesPrecondition(for_ map[string]string, meta map[string]string) bool {
	if len(for_) == 0 {
		return false
	}
	for field, want := range for_ {
		if meta[field] != want {
			return false
		}
	}
	return true
}

// ResolvePreconditions walks the mapping's preconditions in declaration
// order and, for every Sigma rule whose own metadata matches a
// precondition's "for" clause, assigns that precondition's compiled filter
// to the rule's id. A rule matching more than one precondition keeps the
// last one declared; ANDing them together instead is a plausible
// alternative this doesn't attempt.
func ResolvePreconditions(m *Mapping, rules map[uuid.UUID]*sigma.Rule) map[uuid.UUID]tau.Node {
	out := make(map[uuid.UUID]tau.Node)
	if m.Extensions == nil {
		return out
	}
	for _, precondition := range m.Extensions.Preconditions {
		if len(precondition.For) == 0 {
			continue
		}
		for id, r := range rules {
			if matchesPrecondition(precondition.For, sigmaMetadata(r)) {
				out[id] = precondition.Tree
			}
		}
	}
	return out
}
