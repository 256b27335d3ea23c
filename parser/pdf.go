package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts text from PDF plans page by page, splitting pages
// into sections at detected heading lines.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var sections []Section
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail extraction are skipped, not fatal.
			continue
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		sections = append(sections, splitPage(text, i)...)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return &ParseResult{Sections: sections, Format: "pdf"}, nil
}

func splitPage(text string, pageNum int) []Section {
	var sections []Section
	var body strings.Builder
	var heading string
	level := 0

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if heading == "" && content == "" {
			return
		}
		sections = append(sections, Section{
			Heading: heading,
			Content: content,
			Level:   level,
			Page:    pageNum,
			Type:    sectionType(heading, content),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			if heading != "" || body.Len() > 0 {
				flush()
			}
			heading = trimmed
			level = headingLevel(trimmed)
			continue
		}
		body.WriteString(trimmed)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// Heading patterns found in domestic construction plans: 章/节 chapters,
// Chinese-numeral lists, dotted arabic numbering, parenthesized and
// circled list markers.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^第[一二三四五六七八九十百0-9]+[章节篇部分]`),
	regexp.MustCompile(`^[一二三四五六七八九十]+[、.．]`),
	regexp.MustCompile(`^\d+(\.\d+)*[、.．\s]\S`),
	regexp.MustCompile(`^[（(][一二三四五六七八九十0-9]+[）)]`),
	regexp.MustCompile(`^[①②③④⑤⑥⑦⑧⑨⑩]`),
}

var dottedNumberRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)`)

func isLikelyHeading(line string) bool {
	// Headings in these documents are short; long numbered lines are
	// usually body clauses.
	if utf8.RuneCountInString(line) > 40 {
		return false
	}
	for _, p := range headingPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func headingLevel(heading string) int {
	if strings.HasPrefix(heading, "第") {
		return 1
	}
	if m := dottedNumberRe.FindString(heading); m != "" {
		return strings.Count(m, ".") + 1
	}
	r, _ := utf8.DecodeRuneInString(heading)
	switch {
	case r == '（' || r == '(':
		return 3
	case r >= '①' && r <= '⑩':
		return 4
	}
	// Chinese-numeral list markers sit at the top level.
	return 1
}

func sectionType(heading, content string) string {
	if containsTable(content) || strings.Count(content, "\t") > 3 {
		return "table"
	}
	if heading == "" {
		return "paragraph"
	}
	return "section"
}
