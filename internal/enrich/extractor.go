package enrich

import (
	"regexp"
	"strings"
)

// Extractor pulls an identifier out of a dimension value. ok is false when nothing was found.
type Extractor interface {
	Extract(value string) (result string, ok bool)
}

// ExtractorFunc adapts a function to Extractor
type ExtractorFunc func(value string) (string, bool)

// Extract calls f
func (f ExtractorFunc) Extract(value string) (string, bool) {
	return f(value)
}

// VINs are 17 characters and never contain I, O or Q
var vinPattern = regexp.MustCompile(`(?i)(?:^|[^A-Z0-9])([A-HJ-NPR-Z0-9]{17})(?:[^A-Z0-9]|$)`)

// VINExtractor finds the first vehicle identification number in a URL or path
type VINExtractor struct{}

// Extract returns the first VIN in value, upper-cased
func (VINExtractor) Extract(value string) (string, bool) {
	m := vinPattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	vin := strings.ToUpper(m[1])
	// all-digit runs are order numbers, not VINs
	if strings.Trim(vin, "0123456789") == "" {
		return "", false
	}
	return vin, true
}

var jobNumberPattern = regexp.MustCompile(`(?:^|\D)(\d{5,})(?:\D|$)`)

// JobNumberExtractor finds the campaign job number: the first run of five or more digits
type JobNumberExtractor struct{}

// Extract returns the first digit run of length five or more
func (JobNumberExtractor) Extract(value string) (string, bool) {
	m := jobNumberPattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}
