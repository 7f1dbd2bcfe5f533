// Package rule defines the tagged Rule variant common to both the Sigma
// and Chainsaw rule kinds: shared Kind/Level/Status metadata, a stable
// identity, and the compiled tau tree and optional aggregation spec the
// loader and hunter need without caring which concrete dialect produced a
// rule.
package rule

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/WithSecureLabs/chainsaw/pkg/aggregate"
	"github.com/WithSecureLabs/chainsaw/pkg/chainsaw"
	"github.com/WithSecureLabs/chainsaw/pkg/sigma"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// Kind identifies which rule dialect a Rule was parsed from.
type Kind int

const (
	KindChainsaw Kind = iota
	KindSigma
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSigma:
		return "sigma"
	default:
		return "chainsaw"
	}
}

// ParseKind parses the CLI/mapping-facing spelling of a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "chainsaw":
		return KindChainsaw, nil
	case "sigma":
		return KindSigma, nil
	default:
		return 0, fmt.Errorf("unknown rule kind %q, must be chainsaw or sigma", s)
	}
}

// Level is the rule's severity.
type Level int

const (
	LevelInfo Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	case LevelLow:
		return "low"
	default:
		return "info"
	}
}

// ParseLevel parses a rule's `level:` YAML value, defaulting unrecognised
// or empty input to LevelInfo so a missing field never blocks loading.
func ParseLevel(s string) Level {
	switch s {
	case "critical":
		return LevelCritical
	case "high":
		return LevelHigh
	case "medium":
		return LevelMedium
	case "low":
		return LevelLow
	default:
		return LevelInfo
	}
}

// Status is the rule's maturity/confidence tag.
type Status int

const (
	StatusExperimental Status = iota
	StatusTest
	StatusStable
	StatusDeprecated
	StatusUnsupported
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusStable:
		return "stable"
	case StatusTest:
		return "test"
	case StatusDeprecated:
		return "deprecated"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "experimental"
	}
}

// ParseStatus parses a rule's `status:` YAML value, defaulting to
// StatusExperimental.
func ParseStatus(s string) Status {
	switch s {
	case "stable":
		return StatusStable
	case "test":
		return StatusTest
	case "deprecated":
		return StatusDeprecated
	case "unsupported":
		return StatusUnsupported
	default:
		return StatusExperimental
	}
}

// Rule is the uniform, loader/hunter-facing view of one compiled detection,
// regardless of the dialect it was parsed from.
type Rule struct {
	ID     uuid.UUID
	Kind   Kind
	Name   string
	Group  string
	Level  Level
	Status Status
	Path   string

	Tree      tau.Node
	Aggregate *aggregate.Spec

	sigma    *sigma.Rule
	chainsaw *chainsaw.Rule
}

// IsAggregation reports whether this rule only emits once a hit bucket
// satisfies its Aggregate threshold, per original_source/src/hunt.rs's
// Hunt::is_aggregation.
func (r *Rule) IsAggregation() bool { return r.Aggregate != nil }

// Sigma returns the underlying Sigma rule and true, or false if this Rule
// was not parsed from Sigma YAML.
func (r *Rule) Sigma() (*sigma.Rule, bool) { return r.sigma, r.sigma != nil }

// Chainsaw returns the underlying Chainsaw rule and true, or false if this
// Rule was not parsed from Chainsaw YAML.
func (r *Rule) Chainsaw() (*chainsaw.Rule, bool) { return r.chainsaw, r.chainsaw != nil }

// FromSigma wraps a compiled Sigma rule into the uniform Rule type.
func FromSigma(r *sigma.Rule, tree tau.Node, agg *aggregate.Spec) *Rule {
	return &Rule{
		ID:        newID(r.ID, r.Title),
		Kind:      KindSigma,
		Name:      r.Title,
		Level:     ParseLevel(r.Level),
		Status:    ParseStatus(r.Status),
		Path:      r.Path,
		Tree:      tree,
		Aggregate: agg,
		sigma:     r,
	}
}

// FromChainsaw wraps a compiled Chainsaw rule into the uniform Rule type.
func FromChainsaw(r *chainsaw.Rule, tree tau.Node, agg *aggregate.Spec) *Rule {
	return &Rule{
		ID:        newID(r.Title, r.Group),
		Kind:      KindChainsaw,
		Name:      r.Title,
		Group:     r.Group,
		Level:     ParseLevel(r.Level),
		Status:    ParseStatus(r.Status),
		Path:      r.Path,
		Tree:      tree,
		Aggregate: agg,
		chainsaw:  r,
	}
}

// newID derives a stable rule identity from the rule's own declared fields.
// A Sigma rule's `id:` is a UUID already and is preferred verbatim; when
// absent (or for a Chainsaw rule, which has no id field at all) a
// deterministic v5 UUID is derived from the rule's name, giving the hunter
// a stable join key across runs without requiring every rule author to
// hand-assign one (see pkg/hunter's use of rule.ID as an aggregation/
// precondition bucket key, grounded on original_source/src/hunt.rs's
// Uuid-keyed maps).
func newID(primary, fallback string) uuid.UUID {
	if id, err := uuid.Parse(primary); err == nil {
		return id
	}
	seed := primary
	if seed == "" {
		seed = fallback
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}
