package chapter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Heading is one outline entry of a document: title text plus nesting
// depth (1 = top level).
type Heading struct {
	Title string
	Level int
}

// Result is the classification outcome for a single title.
type Result struct {
	Title       string  `json:"title"`
	Level       int     `json:"level"`
	ChapterID   string  `json:"chapter_id"` // "Ch1".."Ch10" | "excluded" | "unmapped"
	ChapterName string  `json:"chapter_name"`
	Confidence  float64 `json:"confidence"`
	Tier        string  `json:"tier"`
	Matched     string  `json:"matched"` // keyword or pattern that fired
}

// Mapped reports whether the result resolved to a real chapter.
func (r Result) Mapped() bool {
	return r.ChapterID != Excluded && r.ChapterID != Unmapped
}

// Classifier maps heading titles to canonical chapters. It holds a
// compiled rule table and is stateless beyond it: Classify is a pure
// function of (title, level, ancestor) and the table.
type Classifier struct {
	table *Table
}

// New creates a Classifier over a compiled rule table.
func New(t *Table) *Classifier {
	return &Classifier{table: t}
}

// Numbering prefixes stripped before keyword matching.
var (
	chapterCNRe  = regexp.MustCompile(`第[一二三四五六七八九十百千]+章\s*`)
	cnNumRe      = regexp.MustCompile(`^[一二三四五六七八九十]+、\s*`)
	numSectionRe = regexp.MustCompile(`^\d+(?:\.\d+)*[.、]?\s*`)
	parenNumRe   = regexp.MustCompile(`^[(（]\d+[)）]\s*`)
	circleNumRe  = regexp.MustCompile(`^[①②③④⑤⑥⑦⑧⑨⑩]\s*`)
)

// cleanTitle strips numbering prefixes, returning the core title text.
func cleanTitle(title string) string {
	s := chapterCNRe.ReplaceAllString(title, "")
	s = cnNumRe.ReplaceAllString(s, "")
	s = numSectionRe.ReplaceAllString(s, "")
	s = parenNumRe.ReplaceAllString(s, "")
	s = circleNumRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Classify maps a single title. ancestor, when non-nil, is the already
// classified result of the nearest preceding heading at a strictly
// shallower level; a title with no direct match inherits its chapter and
// confidence.
//
// Resolution order (first match wins): global exclusion → exact →
// variant → regex → inherit → unmapped. Chapter-level exclusion keywords
// remove a chapter from consideration for this title. Ties within a tier
// resolve to the longer matched keyword, then to rule-table declaration
// order.
func (c *Classifier) Classify(title string, level int, ancestor *Result) Result {
	for _, re := range c.table.globalExclusions {
		if re.MatchString(title) {
			return Result{
				Title: title, Level: level,
				ChapterID: Excluded, Tier: TierExcluded,
				Matched: re.String(),
			}
		}
	}

	cleaned := cleanTitle(title)

	eligible := make([]bool, len(c.table.chapters))
	for i, ch := range c.table.chapters {
		eligible[i] = !hitsExclusion(cleaned, title, ch.exclusions)
	}

	if r, ok := c.matchKeywordTier(title, cleaned, level, eligible, TierExact); ok {
		return r
	}
	if r, ok := c.matchKeywordTier(title, cleaned, level, eligible, TierVariant); ok {
		return r
	}
	if r, ok := c.matchRegexTier(title, level, eligible); ok {
		return r
	}

	if ancestor != nil && ancestor.Mapped() && ancestor.Level < level {
		return Result{
			Title: title, Level: level,
			ChapterID:   ancestor.ChapterID,
			ChapterName: ancestor.ChapterName,
			Confidence:  ancestor.Confidence,
			Tier:        TierInherited,
			Matched:     ancestor.ChapterName,
		}
	}

	return Result{Title: title, Level: level, ChapterID: Unmapped, Tier: TierUnmapped}
}

// ClassifyDocument classifies a full outline in order, applying
// sub-section inheritance: a heading with no direct match inherits the
// chapter of the nearest preceding mapped heading at a shallower level.
// Excluded headings do not disturb the inheritance chain. Deterministic:
// identical input yields identical output.
func (c *Classifier) ClassifyDocument(headings []Heading) []Result {
	results := make([]Result, 0, len(headings))
	var current *Result

	for _, h := range headings {
		r := c.Classify(h.Title, h.Level, current)
		results = append(results, r)

		if r.Tier == TierExcluded {
			continue
		}
		// A direct match at the same or a shallower level than the
		// current context starts a new chapter context.
		if r.Mapped() && r.Tier != TierInherited && (current == nil || h.Level <= current.Level) {
			ctx := r
			current = &ctx
		}
	}
	return results
}

// matchKeywordTier scans all eligible chapters' keywords for the given
// tier. Both the cleaned and the raw title are checked, since some rule
// keywords deliberately include numbering. The longest matching keyword
// wins; remaining ties resolve by chapter declaration order, then rule
// declaration order.
func (c *Classifier) matchKeywordTier(title, cleaned string, level int, eligible []bool, tier string) (Result, bool) {
	conf := exactConfidence
	if tier == TierVariant {
		conf = variantConfidence
	}

	bestLen := -1
	bestChapter := -1
	bestKw := ""

	// Strictly-greater comparison means equal-length ties keep the first
	// hit, i.e. chapter declaration order then rule declaration order.
	for ci, ch := range c.table.chapters {
		if !eligible[ci] {
			continue
		}
		kws := ch.exact
		if tier == TierVariant {
			kws = ch.variant
		}
		for _, kw := range kws {
			if !strings.Contains(cleaned, kw) && !strings.Contains(title, kw) {
				continue
			}
			if l := utf8.RuneCountInString(kw); l > bestLen {
				bestLen, bestChapter, bestKw = l, ci, kw
			}
		}
	}

	if bestChapter < 0 {
		return Result{}, false
	}
	ch := c.table.chapters[bestChapter]
	return Result{
		Title: title, Level: level,
		ChapterID:   ch.id,
		ChapterName: ch.standardName,
		Confidence:  conf,
		Tier:        tier,
		Matched:     bestKw,
	}, true
}

// matchRegexTier tries each eligible chapter's anchored patterns against
// the raw title, in declaration order.
func (c *Classifier) matchRegexTier(title string, level int, eligible []bool) (Result, bool) {
	for ci, ch := range c.table.chapters {
		if !eligible[ci] {
			continue
		}
		for _, re := range ch.patterns {
			if re.MatchString(title) {
				return Result{
					Title: title, Level: level,
					ChapterID:   ch.id,
					ChapterName: ch.standardName,
					Confidence:  regexConfidence,
					Tier:        TierRegex,
					Matched:     re.String(),
				}, true
			}
		}
	}
	return Result{}, false
}

func hitsExclusion(cleaned, original string, exclusions []string) bool {
	for _, exc := range exclusions {
		if strings.Contains(cleaned, exc) || strings.Contains(original, exc) {
			return true
		}
	}
	return false
}

// CoverageReport summarizes the classification of a full document.
type CoverageReport struct {
	Total          int            `json:"total"`
	Mapped         int            `json:"mapped"`
	ExcludedCount  int            `json:"excluded"`
	UnmappedCount  int            `json:"unmapped"`
	CoverageRate   float64        `json:"coverage_rate"`
	ByChapter      map[string]int `json:"chapter_distribution"`
	ByTier         map[string]int `json:"tier_distribution"`
	UnmappedTitles []string       `json:"unmapped_titles"`
	ExcludedTitles []string       `json:"excluded_titles"`
}

// Coverage computes statistics over ClassifyDocument output. Coverage
// counts both mapped and excluded titles as handled.
func Coverage(results []Result) CoverageReport {
	rep := CoverageReport{
		ByChapter: make(map[string]int),
		ByTier:    make(map[string]int),
	}
	rep.Total = len(results)
	if rep.Total == 0 {
		return rep
	}

	for _, r := range results {
		rep.ByTier[r.Tier]++
		switch r.ChapterID {
		case Unmapped:
			rep.UnmappedTitles = append(rep.UnmappedTitles, r.Title)
		case Excluded:
			rep.ExcludedTitles = append(rep.ExcludedTitles, r.Title)
		default:
			rep.ByChapter[r.ChapterID]++
			rep.Mapped++
		}
	}
	rep.ExcludedCount = len(rep.ExcludedTitles)
	rep.UnmappedCount = len(rep.UnmappedTitles)
	rep.CoverageRate = float64(rep.Mapped+rep.ExcludedCount) / float64(rep.Total)
	return rep
}
