package buildkb

import (
	"errors"

	"github.com/buildkb/buildkb/parser"
)

var (
	// ErrInvalidConfig is returned for invalid configuration values or a
	// malformed rule table. Fatal at load; the process must not start with
	// a partially valid configuration.
	ErrInvalidConfig = errors.New("buildkb: invalid configuration")

	// ErrRuleTableNotFound is returned when the mapping rule table file
	// does not exist.
	ErrRuleTableNotFound = errors.New("buildkb: rule table not found")

	// ErrEmbeddingFailed is returned when embedding generation fails for
	// every fragment in a batch.
	ErrEmbeddingFailed = errors.New("buildkb: embedding generation failed")

	// Parser sentinels re-exported for callers of the facade.
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat
	ErrParsingFailed     = parser.ErrParsingFailed
)
