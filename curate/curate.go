// Package curate turns parsed sections into chapter-tagged fragments
// ready for embedding: each section heading is classified to a canonical
// chapter, excluded boilerplate is dropped, and long bodies are split
// into embedding-sized pieces.
package curate

import (
	"strings"
	"unicode/utf8"

	"github.com/buildkb/buildkb/chapter"
	"github.com/buildkb/buildkb/parser"
	"github.com/buildkb/buildkb/store"
)

// UnmappedPartition holds fragments whose heading resolved to no
// chapter. They are kept for unrestricted search but never surface in a
// chapter-hinted query.
const UnmappedPartition = "unmapped"

// Config controls fragment sizing. Sizes are in runes since the corpus
// is predominantly CJK text with no word boundaries.
type Config struct {
	MaxRunes     int // maximum fragment length
	OverlapRunes int // trailing overlap carried into the next fragment
}

// Curator classifies and splits parsed sections for one document domain.
type Curator struct {
	cfg        Config
	classifier *chapter.Classifier
	domain     string
}

// New returns a Curator. Zero config fields get defaults (512/64 runes).
func New(table *chapter.Table, domain string, cfg Config) *Curator {
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = 512
	}
	if cfg.OverlapRunes <= 0 {
		cfg.OverlapRunes = 64
	}
	return &Curator{cfg: cfg, classifier: chapter.New(table), domain: domain}
}

// Curate converts sections into store fragments. Classification context
// carries across sections the same way it does across a heading
// sequence: a mapped heading at a level updates the context for deeper
// headings until a sibling or shallower heading replaces it.
func (c *Curator) Curate(docID int64, sections []parser.Section) []store.Fragment {
	var fragments []store.Fragment
	var current *chapter.Result
	pos := 0

	for _, sec := range sections {
		var r chapter.Result
		if sec.Heading == "" {
			// Preamble and heading-less bodies follow the surrounding
			// chapter context.
			if current != nil {
				r = *current
			} else {
				r = chapter.Result{ChapterID: chapter.Unmapped, Tier: chapter.TierUnmapped}
			}
		} else {
			r = c.classifier.Classify(sec.Heading, sec.Level, current)
			if r.ChapterID == chapter.Excluded {
				continue
			}
			if r.Mapped() && r.Tier != chapter.TierInherited &&
				(current == nil || sec.Level <= current.Level) {
				snapshot := r
				current = &snapshot
			}
		}

		content := strings.TrimSpace(sec.Content)
		if content == "" {
			continue
		}
		for _, piece := range c.split(content) {
			fragments = append(fragments, store.Fragment{
				DocumentID:  docID,
				ChapterID:   chapterID(r),
				ChapterName: r.ChapterName,
				Domain:      c.domain,
				Partition:   partitionFor(r),
				Title:       sec.Heading,
				Content:     piece,
				Position:    pos,
				Tier:        r.Tier,
				Confidence:  r.Confidence,
			})
			pos++
		}
	}
	return fragments
}

func chapterID(r chapter.Result) string {
	if !r.Mapped() {
		return ""
	}
	return r.ChapterID
}

func partitionFor(r chapter.Result) string {
	if p := chapter.Partition(r.ChapterID); p != "" {
		return p
	}
	return UnmappedPartition
}

// split breaks text into fragments of at most MaxRunes, preferring
// paragraph boundaries, then sentence boundaries. Consecutive fragments
// share OverlapRunes of trailing context.
func (c *Curator) split(text string) []string {
	if utf8.RuneCountInString(text) <= c.cfg.MaxRunes {
		return []string{text}
	}

	var fragments []string
	var current strings.Builder
	currentRunes := 0
	overlapOnly := false

	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		currentRunes = 0
		if s == "" {
			return
		}
		fragments = append(fragments, s)
		if overlap := tailRunes(s, c.cfg.OverlapRunes); overlap != "" {
			current.WriteString(overlap)
			current.WriteString("\n")
			currentRunes = utf8.RuneCountInString(overlap) + 1
			overlapOnly = true
		}
	}

	for _, para := range splitParagraphs(text) {
		units := []string{para}
		if utf8.RuneCountInString(para) > c.cfg.MaxRunes {
			units = splitSentences(para)
		}
		for _, unit := range units {
			n := utf8.RuneCountInString(unit)
			if currentRunes > 0 && currentRunes+n > c.cfg.MaxRunes {
				flush()
			}
			if currentRunes > 0 {
				current.WriteString("\n")
				currentRunes++
			}
			current.WriteString(unit)
			currentRunes += n
			overlapOnly = false
		}
	}
	// A buffer holding only carried-over overlap would duplicate the
	// previous fragment's tail.
	if s := strings.TrimSpace(current.String()); s != "" && !overlapOnly {
		fragments = append(fragments, s)
	}
	return fragments
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits at CJK sentence terminators, keeping the
// terminator with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		switch r {
		case '。', '！', '？', '；', ';', '!', '?':
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// tailRunes returns the last n runes of s, cut at a sentence boundary
// when one falls inside the window.
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	tail := runes[len(runes)-n:]
	for i, r := range tail {
		switch r {
		case '。', '！', '？', '；', '\n':
			if i+1 < len(tail) {
				return strings.TrimSpace(string(tail[i+1:]))
			}
			return ""
		}
	}
	return strings.TrimSpace(string(tail))
}
