// Package scenariotest provides a small in-memory scenario for tests.
package scenariotest

import (
	"testing"
	"testing/fstest"

	"github.com/ashureev/escape-labs/internal/scenario"
)

// Manifest is a six-room scenario with low thresholds.
const Manifest = `label: Test Heist
lore: lore.md
discovery_threshold: 3
score_threshold: 10
rooms:
  - key: intro
    title: Introduction
    kind: intro
    narrative: rooms/intro.md
  - key: briefing
    title: Briefing
    kind: chat
    narrative: rooms/briefing.md
    system_prompt: rooms/briefing_system.md
    unlock:
      flag: unlocked
  - key: discovery
    title: Discovery
    kind: discovery
    narrative: rooms/discovery.md
    system_prompt: rooms/discovery_system.md
  - key: eda
    title: EDA
    kind: chat
    narrative: rooms/eda.md
    system_prompt: rooms/eda_system.md
    downloads:
      - filename: data.csv
        type: dataset
        group: data
        description: Main dataset
        min_discovered: 3
      - filename: fields.csv
        type: fields
        group: metadata
        description: Field descriptions
  - key: engineering
    title: Engineering
    kind: scoring
    narrative: rooms/engineering.md
    system_prompt: rooms/engineering_system.md
  - key: submission
    title: Submission
    kind: submission
    narrative: rooms/submission.md
`

// Fields is the catalog: id, date, price, bedrooms, sqft.
const Fields = `name,description,type,category,is_target
id,Row identifier,int,identifier,false
date,Sale date,date,time,false
price,Sale price,float,target,TRUE
bedrooms,Number of bedrooms,int,structure,false
sqft,Living area,int,structure,
, missing name row,,,
`

// FS returns a fresh copy of the scenario files.
func FS() fstest.MapFS {
	return fstest.MapFS{
		"scenario.yaml":               {Data: []byte(Manifest)},
		"lore.md":                     {Data: []byte("The vault hums.")},
		"rooms/intro.md":              {Data: []byte("# Welcome")},
		"rooms/briefing.md":           {Data: []byte("# Briefing")},
		"rooms/briefing_system.md":    {Data: []byte("You are the briefer.")},
		"rooms/discovery.md":          {Data: []byte("# Discovery")},
		"rooms/discovery_system.md":   {Data: []byte("You are the steward.")},
		"rooms/eda.md":                {Data: []byte("# EDA")},
		"rooms/eda_system.md":         {Data: []byte("You are the analyst.")},
		"rooms/engineering.md":        {Data: []byte("# Engineering")},
		"rooms/engineering_system.md": {Data: []byte("You are the engineer.")},
		"rooms/submission.md":         {Data: []byte("# Submit")},
		"data/fields.csv":             {Data: []byte(Fields)},
		"data/data.csv":               {Data: []byte("id,date,price,bedrooms,sqft\n1,2014-10-13,221900,3,1180\n")},
		"data/zz_extra.csv":           {Data: []byte("other\n1\n")},
	}
}

// Load returns the scenario built from FS.
func Load(t testing.TB) *scenario.Scenario {
	t.Helper()
	s, err := scenario.Load(FS(), "test_heist")
	if err != nil {
		t.Fatalf("load test scenario: %v", err)
	}
	return s
}
