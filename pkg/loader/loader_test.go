package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WithSecureLabs/chainsaw/pkg/rule"
)

const sigmaRuleYAML = `
title: Suspicious Process
id: 11111111-1111-1111-1111-111111111111
level: high
status: stable
logsource:
  category: process_creation
detection:
  selection:
    Image|endswith: '\evil.exe'
  condition: selection
`

const chainsawRuleYAML = `
title: Suspicious Login
group: logon
level: medium
status: experimental
kind: evtx
filter:
  selection:
    Event.EventData.LogonType: "3"
  condition: selection
`

const junkYAML = `
title: nothing useful
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWalksNestedDirectoriesAndClassifies(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, root, "sigma.yml", sigmaRuleYAML)
	writeFile(t, sub, "chainsaw.yaml", chainsawRuleYAML)

	res, err := Load([]string{root}, Filter{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Len(t, res.Rules, 2)
}

func TestLoadSkipsNonYamlFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sigma.yml", sigmaRuleYAML)
	writeFile(t, root, "README.md", "not a rule")

	res, err := Load([]string{root}, Filter{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Rules, 1)
}

func TestLoadEmitsDiagnosticForUnclassifiableFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "junk.yml", junkYAML)

	res, err := Load([]string{root}, Filter{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rules)
	require.Len(t, res.Diagnostics, 1)
}

func TestLoadDedupesByIDKeepingFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.yml", sigmaRuleYAML)
	writeFile(t, root, "b.yml", sigmaRuleYAML)

	res, err := Load([]string{root}, Filter{}, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rules, 1)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, filepath.Join(root, "a.yml"), res.Rules[0].Path)
}

func TestLoadExcludesRuleByExactTitle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sigma.yml", sigmaRuleYAML)

	res, err := Load([]string{root}, Filter{}, []string{"Suspicious Process"}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rules)
}

func TestLoadFiltersByKindBeforeParsing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sigma.yml", sigmaRuleYAML)
	writeFile(t, root, "chainsaw.yml", chainsawRuleYAML)

	kinds, err := KindSet("chainsaw")
	require.NoError(t, err)
	res, err := Load([]string{root}, Filter{Kinds: kinds}, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.KindChainsaw, res.Rules[0].Kind)
}

func TestLoadFiltersByLevelAfterParsing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sigma.yml", sigmaRuleYAML)
	writeFile(t, root, "chainsaw.yml", chainsawRuleYAML)

	res, err := Load([]string{root}, Filter{Levels: LevelSet("high")}, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.LevelHigh, res.Rules[0].Level)
}

func TestLoadFiltersByStatus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sigma.yml", sigmaRuleYAML)
	writeFile(t, root, "chainsaw.yml", chainsawRuleYAML)

	res, err := Load([]string{root}, Filter{Statuses: StatusSet("experimental")}, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.StatusExperimental, res.Rules[0].Status)
}
