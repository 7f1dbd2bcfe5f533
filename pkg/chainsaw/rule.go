// Package chainsaw compiles the native Chainsaw rule format (fields,
// container-parsed subfields, named filter subexpressions) into the shared
// tau matcher IR.
package chainsaw

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

// Container describes how a Chainsaw field's raw string value decomposes
// into synthetic subfields.
type Container struct {
	Field     string `yaml:"field,omitempty"`
	Format    string `yaml:"format,omitempty"` // "kv" | "json"
	Delimiter string `yaml:"delimiter,omitempty"`
	Separator string `yaml:"separator,omitempty"`
}

// Field is one entry of the rule's `fields:` projection table: it both
// projects output columns and, via Container, declares a subfield view.
type Field struct {
	Name      string    `yaml:"name,omitempty"`
	To        string    `yaml:"to,omitempty"`
	From      string    `yaml:"from,omitempty"`
	Visible   *bool     `yaml:"visible,omitempty"`
	Container Container `yaml:"container,omitempty"`
	// Cast names a value coercion applied after resolution: "int" or "str",
	// mirroring tau_engine's ModSym on a mapped field.
	Cast string `yaml:"cast,omitempty"`
}

// Filter is the `filter:` block: a `condition` string plus any number of
// named subexpressions the condition references. Named entries are
// whatever is left in the YAML map once `condition` is pulled out, so this
// type intentionally captures the raw map the same way Sigma's Detection
// does.
type Filter map[string]interface{}

// Condition extracts the mandatory `condition` entry.
func (f Filter) Condition() (string, bool) {
	c, ok := f["condition"].(string)
	return c, ok
}

// Expressions returns every named subexpression besides `condition`.
func (f Filter) Expressions() map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		if k == "condition" {
			continue
		}
		out[k] = v
	}
	return out
}

// AggregateSpec is the rule-level `aggregate:` block's raw YAML shape,
// grounded on original_source/src/rule/mod.rs's Aggregate{count, fields}.
type AggregateSpec struct {
	Count  string   `yaml:"count"`
	Fields []string `yaml:"fields"`
}

// Rule is the decoded form of a Chainsaw native rule YAML document.
type Rule struct {
	Title       string         `yaml:"title"`
	Group       string         `yaml:"group"`
	Description string         `yaml:"description"`
	Authors     []string       `yaml:"authors"`
	Kind        string         `yaml:"kind"`
	Level       string         `yaml:"level"`
	Status      string         `yaml:"status"`
	Timestamp   string         `yaml:"timestamp"`
	Fields      []Field        `yaml:"fields"`
	Filter      Filter         `yaml:"filter"`
	Aggregate   *AggregateSpec `yaml:"aggregate,omitempty"`

	Path string `yaml:"-"`
}

// ParseRule decodes a single Chainsaw rule YAML document.
func ParseRule(data []byte) (*Rule, error) {
	var r Rule
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("chainsaw: parse rule yaml: %w", err)
	}
	if r.Filter == nil {
		return nil, ErrMissingFilter{}
	}
	return &r, nil
}

// LoadRule reads and parses a Chainsaw rule file from disk.
func LoadRule(path string) (*Rule, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := ParseRule(data)
	if err != nil {
		return nil, fmt.Errorf("chainsaw: %s: %w", path, err)
	}
	r.Path = path
	return r, nil
}

// IsChainsawSchema reports whether the raw decoded YAML document looks like
// a Chainsaw rule, i.e. carries `filter:` together with either an explicit
// `kind: evtx` or a `fields:` key.
func IsChainsawSchema(raw map[string]interface{}) bool {
	_, hasFilter := raw["filter"]
	if !hasFilter {
		return false
	}
	if kind, ok := raw["kind"].(string); ok && kind == "evtx" {
		return true
	}
	_, hasFields := raw["fields"]
	return hasFields
}

// ContainerSpec builds the document.ContainerSpec a compiled field
// reference needs to resolve a container-parsed subfield path such as
// "Hashes.SHA1" where "Hashes" is container-mapped.
func ContainerSpec(c Container) document.ContainerSpec {
	spec := document.ContainerSpec{Field: c.Field, Delimiter: c.Delimiter, Separator: c.Separator}
	if c.Format == "json" {
		spec.Format = document.ContainerJSON
	}
	return spec
}
