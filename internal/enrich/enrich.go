// Package enrich derives extra sink columns from report dimension values.
package enrich

import (
	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/schema"
)

// Derived column names
const (
	ColLandingPageVIN = "landingpagevinnumber"
	ColPagePathVIN    = "pagepathvinnumber"
	ColPageTypeID     = "pagetypeid"
	ColJobNumber      = "jobnumber"
)

// derivation computes one derived column from a dimension value; nil means SQL NULL
type derivation struct {
	column schema.Column
	derive func(value string) any
}

// Enricher applies the fixed rule table keyed by normalized dimension name
type Enricher struct {
	rules map[string][]derivation
}

// New builds the rule table. pages classifies page paths; a nil classifier
// only recognizes the home page.
func New(vin, jobNumber Extractor, pages *classifier.Classifier) *Enricher {
	extract := func(e Extractor) func(string) any {
		return func(value string) any {
			if value == "" {
				return nil
			}
			if out, ok := e.Extract(value); ok && out != "" {
				return out
			}
			return nil
		}
	}

	return &Enricher{
		rules: map[string][]derivation{
			"landingpagepath": {
				{column: schema.Column{Name: ColLandingPageVIN, Type: schema.ColumnString}, derive: extract(vin)},
			},
			"pagepath": {
				{column: schema.Column{Name: ColPagePathVIN, Type: schema.ColumnString}, derive: extract(vin)},
				{column: schema.Column{Name: ColPageTypeID, Type: schema.ColumnInteger}, derive: func(value string) any {
					return int64(pages.Classify(value))
				}},
			},
			"campaign": {
				{column: schema.Column{Name: ColJobNumber, Type: schema.ColumnString}, derive: extract(jobNumber)},
			},
		},
	}
}

// NewDefault builds an enricher with the standard VIN and job number extractors
func NewDefault(pages *classifier.Classifier) *Enricher {
	return New(VINExtractor{}, JobNumberExtractor{}, pages)
}

// ColumnsFor returns the derived columns of the given dimensions, in dimension order
// then rule order. Unknown dimensions contribute nothing.
func (e *Enricher) ColumnsFor(dimensions []string) []schema.Column {
	var cols []schema.Column
	seen := make(map[string]bool)
	for _, dim := range dimensions {
		if seen[dim] {
			continue
		}
		seen[dim] = true
		for _, d := range e.rules[dim] {
			cols = append(cols, d.column)
		}
	}
	return cols
}

// Enrich returns derived column values for one dimension value. It never fails;
// extraction misses are returned as nil.
func (e *Enricher) Enrich(dimension, value string) map[string]any {
	rules := e.rules[dimension]
	if len(rules) == 0 {
		return nil
	}

	out := make(map[string]any, len(rules))
	for _, d := range rules {
		out[d.column.Name] = d.derive(value)
	}
	return out
}
