// Package mapping binds a directory of Sigma rules onto a concrete log
// format (EVTX, JSONL, ...) via a mapping file: a field table that
// translates generic selection names onto the format's real field paths,
// optional group hunts that run independently of any single rule, and
// preconditions that add a record filter to every Sigma rule whose own
// metadata matches them.
//
// Grounded on original_source/src/hunt.rs's Precondition/Extensions/Group/
// Mapping structs and the Mapper/Mapped field-resolution dispatch.
package mapping

import (
	"fmt"
	"io/ioutil"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/WithSecureLabs/chainsaw/pkg/chainsaw"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// Precondition narrows the Sigma rules it applies to: "for" names
// field/value pairs that must all match the rule's own declared fields
// (e.g. its logsource), and Filter is the tau expression applied to every
// record before the gated rule's own detection logic runs.
type Precondition struct {
	For    map[string]string `yaml:"for"`
	Filter chainsaw.Filter   `yaml:"filter"`

	Tree tau.Node `yaml:"-"`
}

// Extensions holds optional mapping behaviour beyond the field table.
type Extensions struct {
	Preconditions []Precondition `yaml:"preconditions,omitempty"`
}

// Group is a standalone hunt: a named filter plus its own field table and
// timestamp field, evaluated independently of the mapping's Sigma rules.
type Group struct {
	ID        uuid.UUID       `yaml:"-"`
	Fields    []chainsaw.Field `yaml:"fields"`
	Filter    chainsaw.Filter `yaml:"filter"`
	Name      string          `yaml:"name"`
	Timestamp string          `yaml:"timestamp"`

	Tree   tau.Node     `yaml:"-"`
	Mapper *FieldMapper `yaml:"-"`
}

// Mapping is one parsed mapping YAML document.
type Mapping struct {
	Exclusions []string    `yaml:"exclusions,omitempty"`
	Extensions *Extensions `yaml:"extensions,omitempty"`
	Groups     []Group     `yaml:"groups,omitempty"`
	Kind       string      `yaml:"kind"`
	Rules      string      `yaml:"rules"`

	Path string `yaml:"-"`
}

// ParseMapping decodes a mapping YAML document, compiles every group's
// filter and every precondition's filter, and assigns each group a
// deterministic id (v4-random in the original; here derived from the
// mapping path and group name so repeated loads of the same file are
// stable).
func ParseMapping(path string, data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mapping: %s: parse yaml: %w", path, err)
	}
	if m.Rules == "chainsaw" {
		return nil, ErrChainsawRulesUnsupported{Path: path}
	}
	m.Path = path

	if m.Extensions != nil {
		for i := range m.Extensions.Preconditions {
			p := &m.Extensions.Preconditions[i]
			tree, err := compileGroupLikeFilter(p.Filter)
			if err != nil {
				return nil, fmt.Errorf("mapping: %s: precondition %d: %w", path, i, err)
			}
			p.Tree = tree
		}
	}

	for i := range m.Groups {
		g := &m.Groups[i]
		g.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(path+"\x00"+g.Name))
		g.Mapper = NewFieldMapper(g.Fields)
		tree, err := compileGroupLikeFilter(g.Filter)
		if err != nil {
			return nil, fmt.Errorf("mapping: %s: group %q: %w", path, g.Name, err)
		}
		g.Tree = tree
	}

	return &m, nil
}

// LoadMapping reads and parses a mapping file from disk.
func LoadMapping(path string) (*Mapping, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMapping(path, data)
}

// compileGroupLikeFilter compiles a group or precondition's filter block,
// which shares the named-subexpression + condition shape of a Chainsaw
// rule's filter.
func compileGroupLikeFilter(f chainsaw.Filter) (tau.Node, error) {
	if f == nil {
		return nil, nil
	}
	tree, _, err := chainsaw.Compile(&chainsaw.Rule{Title: "mapping", Filter: f})
	return tree, err
}

// Excludes reports whether ruleName is listed in the mapping's exclusions.
func (m *Mapping) Excludes(ruleName string) bool {
	for _, name := range m.Exclusions {
		if name == ruleName {
			return true
		}
	}
	return false
}
