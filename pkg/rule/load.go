package rule

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/WithSecureLabs/chainsaw/pkg/chainsaw"
	"github.com/WithSecureLabs/chainsaw/pkg/sigma"
)

// Classify inspects a raw decoded rule document and reports which dialect
// it belongs to, per 4.E's classification rule: Chainsaw rules carry
// `filter:` (with `fields:` or `kind: evtx`); Sigma rules carry
// `detection:`/`logsource:`.
func Classify(raw map[string]interface{}) (Kind, bool) {
	if chainsaw.IsChainsawSchema(raw) {
		return KindChainsaw, true
	}
	if sigma.IsSigmaSchema(raw) {
		return KindSigma, true
	}
	return 0, false
}

// Load decodes, classifies and compiles one rule file's contents. resolve
// is consulted only for Sigma rules, to bind selection field names onto
// concrete paths per the mapping (4.D); pass nil to fall back to the
// conventional Event.EventData.<field> location for every field.
func Load(path string, data []byte, resolve sigma.FieldResolver) (*Rule, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rule: %s: parse yaml: %w", path, err)
	}

	kind, ok := Classify(raw)
	if !ok {
		return nil, fmt.Errorf("rule: %s: does not match sigma or chainsaw schema", path)
	}

	switch kind {
	case KindSigma:
		r, err := sigma.ParseRule(data)
		if err != nil {
			return nil, fmt.Errorf("rule: %s: %w", path, err)
		}
		r.Path = path
		tree, spec, err := sigma.Compile(r, resolve)
		if err != nil {
			return nil, fmt.Errorf("rule: %s: %w", path, err)
		}
		return FromSigma(r, tree, spec), nil
	default:
		r, err := chainsaw.ParseRule(data)
		if err != nil {
			return nil, fmt.Errorf("rule: %s: %w", path, err)
		}
		r.Path = path
		tree, spec, err := chainsaw.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("rule: %s: %w", path, err)
		}
		return FromChainsaw(r, tree, spec), nil
	}
}
