package cmd

import (
	"github.com/BurntSushi/toml"
)

// Profile is an optional TOML file of default hunt settings, grounded on
// the corpus's config.Load pattern (BurntSushi/toml.DecodeFile into a
// plain struct): a way to check in a reusable rule-set/mapping/window
// combination without retyping flags every run. Flags always win over a
// loaded Profile; a Profile only supplies viper defaults.
type Profile struct {
	Rules      []string `toml:"rules"`
	Mapping    string   `toml:"mapping"`
	Exclude    []string `toml:"exclude"`
	Level      []string `toml:"level"`
	Status     []string `toml:"status"`
	Kind       []string `toml:"kind"`
	Workers    int      `toml:"workers"`
	SkipErrors bool     `toml:"skip_errors"`
	Output     string   `toml:"output"`
}

// LoadProfile decodes a TOML profile file.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
