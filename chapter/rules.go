// Package chapter normalizes inconsistent document outlines onto the
// standard ten-chapter structure used by construction method statements.
package chapter

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Match tiers, in resolution order.
const (
	TierExact     = "exact"
	TierVariant   = "variant"
	TierRegex     = "regex"
	TierInherited = "inherited"
	TierExcluded  = "excluded"
	TierUnmapped  = "unmapped"
)

// Sentinel chapter IDs for titles that resolve to no real chapter.
const (
	Excluded = "excluded"
	Unmapped = "unmapped"
)

// Confidence weights per tier. Exact matches are authoritative; variant
// and regex matches carry the same reduced weight.
const (
	exactConfidence   = 1.0
	variantConfidence = 0.8
	regexConfidence   = 0.8
)

// Rule is one entry in a chapter's ordered rule list.
type Rule struct {
	Tier     string   `json:"tier" yaml:"tier"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Note     string   `json:"note,omitempty" yaml:"note,omitempty"`
}

// ChapterRule is the serialized rule set for one canonical chapter.
// Chapters are declared as an ordered list: declaration order is the
// final tie-breaker during classification and must survive a reload.
type ChapterRule struct {
	ID           string   `json:"id" yaml:"id"`
	StandardName string   `json:"standard_name" yaml:"standard_name"`
	Required     bool     `json:"required" yaml:"required"`
	Rules        []Rule   `json:"rules" yaml:"rules"`
	Exclusions   []string `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
}

// RuleTable is the serialized form of the full mapping rule table.
type RuleTable struct {
	Chapters         []ChapterRule `json:"chapters" yaml:"chapters"`
	GlobalExclusions []string      `json:"global_exclusions" yaml:"global_exclusions"`
}

// compiledChapter is the immutable, compiled form of one chapter's
// rules. Keyword slices keep declaration order; ties fall back to it.
type compiledChapter struct {
	id           string
	standardName string
	required     bool
	exact        []string
	variant      []string
	patterns     []*regexp.Regexp
	exclusions   []string
}

// Table is a compiled rule table. Immutable after Compile; safe for
// concurrent readers. Reload by compiling a fresh Table and swapping the
// pointer, never by mutating in place.
type Table struct {
	chapters         []compiledChapter
	globalExclusions []*regexp.Regexp
	names            map[string]string
}

// Compile validates and compiles a serialized rule table. Any malformed
// regex or unknown tier is a configuration error: compilation fails as a
// whole, never silently degrades.
func Compile(rt RuleTable) (*Table, error) {
	if len(rt.Chapters) == 0 {
		return nil, fmt.Errorf("rule table: no chapters declared")
	}

	t := &Table{names: make(map[string]string, len(rt.Chapters))}

	seen := make(map[string]bool, len(rt.Chapters))
	for _, ch := range rt.Chapters {
		if ch.ID == "" || ch.StandardName == "" {
			return nil, fmt.Errorf("rule table: chapter with empty id or standard_name")
		}
		if seen[ch.ID] {
			return nil, fmt.Errorf("rule table: duplicate chapter id %q", ch.ID)
		}
		seen[ch.ID] = true

		cc := compiledChapter{
			id:           ch.ID,
			standardName: ch.StandardName,
			required:     ch.Required,
			exclusions:   ch.Exclusions,
		}
		for ri, r := range ch.Rules {
			switch r.Tier {
			case TierExact:
				for _, kw := range r.Keywords {
					cc.exact = append(cc.exact, kw)
				}
			case TierVariant:
				for _, kw := range r.Keywords {
					cc.variant = append(cc.variant, kw)
				}
			case TierRegex:
				for _, p := range r.Patterns {
					re, err := regexp.Compile(p)
					if err != nil {
						return nil, fmt.Errorf("rule table: chapter %s pattern %q: %w", ch.ID, p, err)
					}
					cc.patterns = append(cc.patterns, re)
				}
			default:
				return nil, fmt.Errorf("rule table: chapter %s rule %d: unknown tier %q", ch.ID, ri, r.Tier)
			}
		}
		t.chapters = append(t.chapters, cc)
		t.names[ch.ID] = ch.StandardName
	}

	for _, p := range rt.GlobalExclusions {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("rule table: global exclusion %q: %w", p, err)
		}
		t.globalExclusions = append(t.globalExclusions, re)
	}

	slog.Info("chapter: rule table compiled",
		"chapters", len(t.chapters), "global_exclusions", len(t.globalExclusions))
	return t, nil
}

// ParseRules decodes a serialized rule table (YAML or JSON) and compiles
// it.
func ParseRules(data []byte) (*Table, error) {
	var rt RuleTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("decoding rule table: %w", err)
	}
	return Compile(rt)
}

// LoadRules reads and compiles a rule table file.
func LoadRules(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule table: %w", err)
	}
	return ParseRules(data)
}

// StandardNames returns the chapter id → standard name mapping.
func (t *Table) StandardNames() map[string]string {
	out := make(map[string]string, len(t.names))
	for k, v := range t.names {
		out[k] = v
	}
	return out
}

// chapterPartitions maps canonical chapter IDs to the vector-store
// partition that holds that chapter's fragments.
var chapterPartitions = map[string]string{
	"Ch1":  "ch01_basis",
	"Ch2":  "ch02_overview",
	"Ch3":  "ch03_organization",
	"Ch4":  "ch04_schedule",
	"Ch5":  "ch05_preparation",
	"Ch6":  "ch06_methods",
	"Ch7":  "ch07_quality",
	"Ch8":  "ch08_safety",
	"Ch9":  "ch09_emergency",
	"Ch10": "ch10_environment",
}

// Partition returns the vector-store partition for a canonical chapter
// ID, or "" for excluded/unmapped/unknown chapters.
func Partition(chapterID string) string {
	return chapterPartitions[chapterID]
}
