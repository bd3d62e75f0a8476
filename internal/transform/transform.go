// Package transform enriches normalized records before loading. Two
// implementations exist behind one interface: a deterministic heuristic
// (the default) and an optional LLM-assisted enricher that refines weak
// categories. The enricher always degrades to the heuristic on failure.
package transform

import (
	"context"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/normalize"
)

// Transformer enriches a page of canonical records in place.
type Transformer interface {
	Transform(ctx context.Context, logs []*logmodel.CanonicalLog) error
}

// Heuristic is the default transformer: it bounds summaries and fills any
// missing category using the normalizer's rule table.
type Heuristic struct{}

// NewHeuristic creates the default transformer.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Transform implements Transformer.
func (h *Heuristic) Transform(_ context.Context, logs []*logmodel.CanonicalLog) error {
	for _, c := range logs {
		ApplyHeuristic(c)
	}

	return nil
}

// ApplyHeuristic bounds the summary and ensures a category is present.
func ApplyHeuristic(c *logmodel.CanonicalLog) {
	if summaryRunes := []rune(c.MessageSummary); len(summaryRunes) > logmodel.MaxSummaryChars+len("...") {
		c.MessageSummary = string(summaryRunes[:logmodel.MaxSummaryChars]) + "..."
	}

	if c.MessageCategory == "" {
		c.MessageCategory = normalize.CategoryInfo
	}
}
