// Package sigma compiles the community Sigma rule YAML format into the
// shared tau matcher IR.
package sigma

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Logsource is the `logsource:` block: the abstract description of which
// event stream a rule targets, resolved against a mapping's preconditions
// at compile time.
type Logsource struct {
	Product    string `yaml:"product,omitempty"`
	Category   string `yaml:"category,omitempty"`
	Service    string `yaml:"service,omitempty"`
	Definition string `yaml:"definition,omitempty"`
}

// Detection is the raw `detection:` block: named selections plus the
// `condition` string that combines them. Values are the loosely typed
// output of the YAML decoder; selection compilation interprets them.
type Detection map[string]interface{}

// Condition extracts the mandatory `condition` entry.
func (d Detection) Condition() (string, bool) {
	c, ok := d["condition"].(string)
	return c, ok
}

// Selections returns every entry except `condition`.
func (d Detection) Selections() map[string]interface{} {
	out := make(map[string]interface{}, len(d))
	for k, v := range d {
		if k == "condition" {
			continue
		}
		out[k] = v
	}
	return out
}

// Rule is the decoded form of a Sigma rule YAML document.
type Rule struct {
	Title          string    `yaml:"title"`
	ID             string    `yaml:"id"`
	Status         string    `yaml:"status"`
	Level          string    `yaml:"level"`
	Description    string    `yaml:"description"`
	Author         string    `yaml:"author"`
	References     []string  `yaml:"references"`
	Tags           []string  `yaml:"tags"`
	Falsepositives []string  `yaml:"falsepositives"`
	Fields         []string  `yaml:"fields"`
	Logsource      Logsource `yaml:"logsource"`
	Detection      Detection `yaml:"detection"`

	Path string `yaml:"-"`
}

// ParseRule decodes a single Sigma rule YAML document.
func ParseRule(data []byte) (*Rule, error) {
	var r Rule
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("sigma: parse rule yaml: %w", err)
	}
	if r.Detection == nil {
		return nil, ErrMissingDetection{}
	}
	return &r, nil
}

// LoadRule reads and parses a Sigma rule file from disk.
func LoadRule(path string) (*Rule, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := ParseRule(data)
	if err != nil {
		return nil, fmt.Errorf("sigma: %s: %w", path, err)
	}
	r.Path = path
	return r, nil
}

// IsSigmaSchema reports whether the raw decoded YAML document looks like a
// Sigma rule, i.e. carries `detection:` and `logsource:` keys, used by the
// loader to classify a file before choosing a parser.
func IsSigmaSchema(raw map[string]interface{}) bool {
	_, hasDetection := raw["detection"]
	_, hasLogsource := raw["logsource"]
	return hasDetection && hasLogsource
}
