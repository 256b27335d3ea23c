package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// MarkdownParser handles markdown and plain-text exports of construction
// plans. ATX headings delimit sections; text before the first heading
// becomes a heading-less paragraph section.
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md", "markdown", "txt"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown: %w", err)
	}
	return &ParseResult{Sections: splitMarkdown(string(data)), Format: "md"}, nil
}

func splitMarkdown(text string) []Section {
	var sections []Section
	var body strings.Builder
	var heading string
	level := 0
	seenHeading := false

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if heading == "" && content == "" {
			return
		}
		s := Section{Heading: heading, Content: content, Level: level, Type: "section"}
		if heading == "" {
			s.Type = "paragraph"
		} else if containsTable(content) {
			s.Type = "table"
		}
		sections = append(sections, s)
	}

	for _, line := range strings.Split(text, "\n") {
		if title, lvl, ok := atxHeading(line); ok {
			if seenHeading || body.Len() > 0 {
				flush()
			}
			heading, level = title, lvl
			seenHeading = true
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// atxHeading parses "## title" style headings. The marker must be 1-6
// hashes followed by a space.
func atxHeading(line string) (title string, level int, ok bool) {
	trimmed := strings.TrimSpace(line)
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n == len(trimmed) || trimmed[n] != ' ' {
		return "", 0, false
	}
	title = strings.TrimSpace(trimmed[n:])
	if title == "" {
		return "", 0, false
	}
	return title, n, true
}

func containsTable(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|") && strings.Count(t, "|") >= 3 {
			return true
		}
	}
	return false
}
