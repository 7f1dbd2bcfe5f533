package mapping

import "fmt"

// ErrChainsawRulesUnsupported indicates a mapping file declared
// `rules: chainsaw`, which is rejected outright: a mapping's field table
// only ever makes sense for Sigma's generic selection names, never
// Chainsaw's rules, which already name concrete paths.
type ErrChainsawRulesUnsupported struct{ Path string }

func (e ErrChainsawRulesUnsupported) Error() string {
	return fmt.Sprintf("mapping: %s: chainsaw rules do not support mappings", e.Path)
}
