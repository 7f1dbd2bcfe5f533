package hunter

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WithSecureLabs/chainsaw/pkg/chainsaw"
	"github.com/WithSecureLabs/chainsaw/pkg/document"
	"github.com/WithSecureLabs/chainsaw/pkg/rule"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// sliceSource replays a fixed slice of Documents, implementing Source.
type sliceSource struct {
	docs []*document.Document
	pos  int
}

func (s *sliceSource) Next() (*document.Document, error) {
	if s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	d := s.docs[s.pos]
	s.pos++
	return d, nil
}

func (s *sliceSource) Close() error { return nil }

func recordAt(provider string, eventID int64, ts string, eventData map[string]interface{}) *document.Document {
	return document.FromMap(map[string]interface{}{
		"Event": map[string]interface{}{
			"System": map[string]interface{}{
				"Provider":    provider,
				"EventID":     eventID,
				"TimeCreated": ts,
			},
			"EventData": eventData,
		},
	})
}

const sigmaMimikatzYAML = `
title: Mimikatz Process
id: 22222222-2222-2222-2222-222222222222
level: high
status: stable
logsource:
  category: process_creation
detection:
  selection:
    Image|endswith: '\mimikatz.exe'
  condition: selection
`

func mustLoadRule(t *testing.T, yaml string) *rule.Rule {
	t.Helper()
	r, err := rule.Load("rule.yml", []byte(yaml), nil)
	require.NoError(t, err)
	return r
}

func TestHuntFileEmitsDetectionForMatchingRule(t *testing.T) {
	r := mustLoadRule(t, sigmaMimikatzYAML)
	h := New(Config{Rules: []*rule.Rule{r}})

	doc := recordAt("Microsoft-Windows-Sysmon", 1, "2024-01-01T00:00:00Z", map[string]interface{}{
		"Image": `C:\tools\mimikatz.exe`,
	})

	dets, err := h.HuntFile(context.Background(), File{Name: "f1", Source: &sliceSource{docs: []*document.Document{doc}}})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, r.ID, dets[0].RuleID)
}

func TestHuntFileDropsDocumentsOutsideTimeWindow(t *testing.T) {
	r := mustLoadRule(t, sigmaMimikatzYAML)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	h := New(Config{Rules: []*rule.Rule{r}, From: &from, To: &to})

	onBoundary := recordAt("x", 1, "2024-01-01T00:00:00Z", map[string]interface{}{"Image": `C:\tools\mimikatz.exe`})
	inside := recordAt("x", 1, "2024-01-01T12:00:00Z", map[string]interface{}{"Image": `C:\tools\mimikatz.exe`})

	dets, err := h.HuntFile(context.Background(), File{Name: "f1", Source: &sliceSource{docs: []*document.Document{onBoundary, inside}}})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, inside, dets[0].Document)
}

func TestHuntFileBucketsByProviderAndEventID(t *testing.T) {
	r := mustLoadRule(t, sigmaMimikatzYAML)
	precondition, _, err := chainsaw.Compile(&chainsaw.Rule{
		Title: "precondition",
		Filter: chainsaw.Filter{
			"selection": map[string]interface{}{
				"Event.System.Provider":      "Microsoft-Windows-Sysmon",
				"int(Event.System.EventID)": 1,
			},
			"condition": "selection",
		},
	})
	require.NoError(t, err)

	h := New(Config{
		Rules:         []*rule.Rule{r},
		Preconditions: map[uuid.UUID]tau.Node{r.ID: precondition},
	})

	matches := recordAt("Microsoft-Windows-Sysmon", 1, "2024-01-01T00:00:00Z", map[string]interface{}{"Image": `C:\tools\mimikatz.exe`})
	wrongProvider := recordAt("Microsoft-Windows-Security-Auditing", 1, "2024-01-01T00:00:00Z", map[string]interface{}{"Image": `C:\tools\mimikatz.exe`})

	dets, err := h.HuntFile(context.Background(), File{Name: "f1", Source: &sliceSource{docs: []*document.Document{matches, wrongProvider}}})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, matches, dets[0].Document)
}

const sigmaAggregationYAML = `
title: Many Logon Failures
level: medium
logsource:
  category: authentication
detection:
  selection:
    EventID: "4625"
  condition: selection | count() by TargetUserName >= 3
`

func TestHuntFileAggregatesWithinFileAndEmitsOnceThresholdMet(t *testing.T) {
	r := mustLoadRule(t, sigmaAggregationYAML)
	h := New(Config{Rules: []*rule.Rule{r}})

	mk := func(ts string) *document.Document {
		return recordAt("x", 1, ts, map[string]interface{}{"EventID": "4625", "TargetUserName": "bob"})
	}
	docs := []*document.Document{mk("2024-01-01T00:00:03Z"), mk("2024-01-01T00:00:01Z"), mk("2024-01-01T00:00:02Z")}

	dets, err := h.HuntFile(context.Background(), File{Name: "f1", Source: &sliceSource{docs: docs}})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), dets[0].Timestamp.UTC())
}

func TestHuntFileWithholdsAggregateBelowThreshold(t *testing.T) {
	r := mustLoadRule(t, sigmaAggregationYAML)
	h := New(Config{Rules: []*rule.Rule{r}})

	doc := recordAt("x", 1, "2024-01-01T00:00:00Z", map[string]interface{}{"EventID": "4625", "TargetUserName": "bob"})

	dets, err := h.HuntFile(context.Background(), File{Name: "f1", Source: &sliceSource{docs: []*document.Document{doc}}})
	require.NoError(t, err)
	assert.Empty(t, dets)
}
