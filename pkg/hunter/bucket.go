package hunter

import (
	"strconv"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// bucketKey is the literal (Provider, EventID) tuple a precondition filter
// reduces to: rules whose precondition can be reduced to
// one or more such tuples are only evaluated against documents carrying a
// matching tuple; everything else lives in the universal bucket.
type bucketKey struct {
	provider string
	eventID  int64
}

// extractBucketKeys walks a compiled precondition tree looking for a flat
// AND (or OR-of-ANDs, matching the precondition DSL's top-level-sequence-
// means-OR rule) of Eq predicates against the record's Provider and
// EventID fields. ok is false when the tree doesn't reduce cleanly, which
// sends the owning rule to the universal bucket rather than risk silently
// dropping a match it can't safely bucket.
func extractBucketKeys(n tau.Node) ([]bucketKey, bool) {
	switch v := n.(type) {
	case tau.Or:
		var out []bucketKey
		for _, child := range v {
			keys, ok := extractBucketKeys(child)
			if !ok {
				return nil, false
			}
			out = append(out, keys...)
		}
		return out, true
	case tau.And:
		nodes := make([]tau.Node, len(v))
		copy(nodes, v)
		return extractConjunction(nodes)
	case tau.Predicate:
		return extractConjunction([]tau.Node{v})
	default:
		return nil, false
	}
}

func extractConjunction(nodes []tau.Node) ([]bucketKey, bool) {
	var (
		provider     string
		haveProvider bool
		eventIDs     []int64
	)
	for _, n := range nodes {
		p, ok := n.(tau.Predicate)
		if !ok || p.Op != tau.OpEq {
			return nil, false
		}
		switch lastSegment(p.Path) {
		case "Provider":
			if p.Operand.List != nil {
				return nil, false
			}
			s, ok := p.Operand.Scalar.AsString()
			if !ok {
				return nil, false
			}
			provider, haveProvider = s, true
		case "EventID":
			for _, scalar := range operandScalars(p.Operand) {
				s, ok := scalar.AsString()
				if !ok {
					return nil, false
				}
				id, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return nil, false
				}
				eventIDs = append(eventIDs, id)
			}
		default:
			return nil, false
		}
	}
	if !haveProvider || len(eventIDs) == 0 {
		return nil, false
	}
	out := make([]bucketKey, 0, len(eventIDs))
	for _, id := range eventIDs {
		out = append(out, bucketKey{provider: provider, eventID: id})
	}
	return out, true
}

func operandScalars(o tau.Operand) []document.Value {
	if o.List != nil {
		return o.List
	}
	return []document.Value{o.Scalar}
}

func lastSegment(p document.Path) string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1].Key
}

var (
	providerPath = document.ParsePath("Event.System.Provider")
	eventIDPath  = document.ParsePath("Event.System.EventID")
)

// documentBucketKey extracts the literal Provider/EventID tuple a record
// itself carries, for bucket lookup.
func documentBucketKey(d *document.Document) (bucketKey, bool) {
	provider, ok := d.GetPath(providerPath).AsString()
	if !ok {
		return bucketKey{}, false
	}
	id, ok := d.GetPath(eventIDPath).AsInt64()
	if !ok {
		return bucketKey{}, false
	}
	return bucketKey{provider: provider, eventID: id}, true
}
