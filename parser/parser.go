// Package parser turns source documents (markdown exports, PDF plans,
// spreadsheet registers) into ordered sections ready for chapter
// classification and rule extraction.
package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/buildkb/buildkb/chapter"
)

var (
	// ErrUnsupportedFormat is returned for unrecognized document formats.
	ErrUnsupportedFormat = errors.New("parser: unsupported document format")

	// ErrParsingFailed is returned when a document cannot be parsed.
	ErrParsingFailed = errors.New("parser: parsing failed")
)

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section
	Format   string
	Metadata map[string]string
}

// Section is one logical unit of a parsed document. Table sections carry
// their cells in Rows in addition to the rendered Content.
type Section struct {
	Heading  string
	Content  string
	Level    int // heading level, 1 = top
	Page     int
	Type     string // "section", "table", "paragraph"
	Rows     [][]string
	Metadata map[string]string
}

// Headings projects the result onto the shape the chapter classifier
// consumes, skipping heading-less preamble sections.
func (r *ParseResult) Headings() []chapter.Heading {
	headings := make([]chapter.Heading, 0, len(r.Sections))
	for _, s := range r.Sections {
		if s.Heading == "" {
			continue
		}
		headings = append(headings, chapter.Heading{Title: s.Heading, Level: s.Level})
	}
	return headings
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// Registry maps file formats to parsers.
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&MarkdownParser{}, &PDFParser{}, &XLSXParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return p, nil
}

func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// ParseFile routes a file to its parser by extension.
func (r *Registry) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	format := Format(path)
	p, err := r.Get(format)
	if err != nil {
		return nil, err
	}
	result, err := p.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParsingFailed, path, err)
	}
	result.Format = format
	return result, nil
}

// Format returns the lowercase extension without the dot.
func Format(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
