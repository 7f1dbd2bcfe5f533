// Package loader walks rule directories, classifies and compiles every
// *.yml/*.yaml file found, and applies the level/status/kind/exclusion
// filters a hunt run is configured with.
//
// The directory walk and per-file parse-or-collect-error loop follow
// original_source/src/rule/mod.rs::load's kind-filter short-circuit and
// post-parse level/status retain filtering.
package loader

import (
	"fmt"
	"io/fs"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/WithSecureLabs/chainsaw/pkg/rule"
	"github.com/WithSecureLabs/chainsaw/pkg/sigma"
)

// Filter narrows which rules Load admits. A nil set within Filter means "no
// restriction", matching original_source's Option<HashSet<_>> semantics: a
// rule is admitted unless a non-nil set is given and it isn't a member.
type Filter struct {
	Levels   map[rule.Level]bool
	Statuses map[rule.Status]bool
	Kinds    map[rule.Kind]bool
}

func (f Filter) allowsLevel(l rule.Level) bool {
	if f.Levels == nil {
		return true
	}
	return f.Levels[l]
}

func (f Filter) allowsStatus(s rule.Status) bool {
	if f.Statuses == nil {
		return true
	}
	return f.Statuses[s]
}

func (f Filter) allowsKind(k rule.Kind) bool {
	if f.Kinds == nil {
		return true
	}
	return f.Kinds[k]
}

// LevelSet builds a Levels filter from CLI-facing level names.
func LevelSet(names ...string) map[rule.Level]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[rule.Level]bool, len(names))
	for _, n := range names {
		out[rule.ParseLevel(n)] = true
	}
	return out
}

// StatusSet builds a Statuses filter from CLI-facing status names.
func StatusSet(names ...string) map[rule.Status]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[rule.Status]bool, len(names))
	for _, n := range names {
		out[rule.ParseStatus(n)] = true
	}
	return out
}

// KindSet builds a Kinds filter from CLI-facing kind names ("sigma",
// "chainsaw").
func KindSet(names ...string) (map[rule.Kind]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make(map[rule.Kind]bool, len(names))
	for _, n := range names {
		k, err := rule.ParseKind(n)
		if err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, nil
}

// Diagnostic records a non-fatal problem encountered while loading one
// file, keeping a single bad or duplicate rule from aborting the whole run.
type Diagnostic struct {
	Path string
	Err  error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Path, d.Err)
}

// Result is the outcome of a Load call: the compiled rules plus a
// diagnostic per file that failed to parse or compile.
type Result struct {
	Rules       []*rule.Rule
	Diagnostics []Diagnostic
}

// Load recursively reads every *.yml/*.yaml file under dirs, classifies and
// compiles each one, and applies filter and exclusions. resolve is used to
// bind Sigma selection fields onto concrete paths; pass nil (or a
// mapping.FieldMapper's Resolve) per pkg/rule.Load's contract. Chainsaw
// rules ignore resolve entirely, carrying their own field bindings.
func Load(dirs []string, filter Filter, exclusions []string, resolve sigma.FieldResolver, log *logrus.Entry) (*Result, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	excluded := make(map[string]bool, len(exclusions))
	for _, name := range exclusions {
		excluded[name] = true
	}

	files, err := walk(dirs)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	seen := make(map[uuid.UUID]string, len(files))

	for _, path := range files {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Path: path, Err: err})
			continue
		}

		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Path: path, Err: fmt.Errorf("parse yaml: %w", err)})
			continue
		}
		kind, ok := rule.Classify(raw)
		if !ok {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Path: path, Err: fmt.Errorf("does not match sigma or chainsaw schema")})
			continue
		}
		if !filter.allowsKind(kind) {
			continue
		}

		r, err := rule.Load(path, data, resolve)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Path: path, Err: err})
			continue
		}

		if excluded[r.Name] {
			log.WithField("rule", r.Name).Debug("loader: rule excluded")
			continue
		}
		if !filter.allowsLevel(r.Level) || !filter.allowsStatus(r.Status) {
			continue
		}

		if prior, dup := seen[r.ID]; dup {
			log.WithFields(logrus.Fields{"path": path, "prior": prior, "id": r.ID}).Warn("loader: duplicate rule id, keeping first")
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Path: path, Err: fmt.Errorf("duplicate rule id %s, already loaded from %s", r.ID, prior)})
			continue
		}
		seen[r.ID] = path

		res.Rules = append(res.Rules, r)
	}

	return res, nil
}

// walk finds every *.yml/*.yaml file under dirs, recursing subdirectories.
func walk(dirs []string) ([]string, error) {
	out := make([]string, 0)
	for _, dir := range dirs {
		if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yml", ".yaml":
				out = append(out, path)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}
