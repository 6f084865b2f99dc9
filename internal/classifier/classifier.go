// Package classifier maps page URLs to dealer website page types using ordered substring rules.
package classifier

import "strings"

// PageType is the category stored in the pagetypeid column
type PageType int

// Page type constants. The numeric values are persisted and must not be reordered.
const (
	PageTypeHome PageType = iota + 1
	PageTypeNewSrp
	PageTypeUsedSrp
	PageTypeNewVdp
	PageTypeUsedVdp
	PageTypeCertifiedVdp
	PageTypeOther
)

var pageTypeNames = map[PageType]string{
	PageTypeHome:         "home",
	PageTypeNewSrp:       "new_srp",
	PageTypeUsedSrp:      "used_srp",
	PageTypeNewVdp:       "new_vdp",
	PageTypeUsedVdp:      "used_vdp",
	PageTypeCertifiedVdp: "certified_vdp",
	PageTypeOther:        "other",
}

func (p PageType) String() string {
	if name, ok := pageTypeNames[p]; ok {
		return name
	}
	return "unknown"
}

// SrpKind tells whether a search results page lists new or used inventory
type SrpKind int

// SRP kinds
const (
	SrpNew SrpKind = iota + 1
	SrpUsed
)

// SrpPattern is one search-results-page rule
type SrpPattern struct {
	Pattern string  `json:"pattern" yaml:"pattern" db:"pattern"`
	Kind    SrpKind `json:"kind" yaml:"kind" db:"srp_type"`
}

// VdpPattern is one vehicle-details-page rule. Within a rule New is tested first,
// then Used, then Certified.
type VdpPattern struct {
	New       string `json:"new_vdp_url_pattern,omitempty" yaml:"new"`
	Used      string `json:"used_vdp_url_pattern,omitempty" yaml:"used"`
	Certified string `json:"certified_vdp_url_pattern,omitempty" yaml:"certified"`
}

// Rules is the ordered rule set used by Classify
type Rules struct {
	Srp []SrpPattern
	Vdp []VdpPattern
}

// Classify returns the page type of url. Matching is case-insensitive and the first
// matching rule wins with precedence Home > SRP > VDP > Other.
func Classify(url string, rules Rules) PageType {
	if url == "" {
		return PageTypeOther
	}

	url = strings.ToLower(url)

	if strings.TrimSpace(url) == "/" {
		return PageTypeHome
	}

	for _, srp := range rules.Srp {
		if contains(url, srp.Pattern) {
			if srp.Kind == SrpNew {
				return PageTypeNewSrp
			}
			return PageTypeUsedSrp
		}
	}

	for _, vdp := range rules.Vdp {
		switch {
		case contains(url, vdp.New):
			return PageTypeNewVdp
		case contains(url, vdp.Used):
			return PageTypeUsedVdp
		case contains(url, vdp.Certified):
			return PageTypeCertifiedVdp
		}
	}

	return PageTypeOther
}

// contains reports whether the lower-cased url holds pattern. Empty patterns never match.
func contains(url, pattern string) bool {
	if pattern == "" {
		return false
	}
	return strings.Contains(url, strings.ToLower(pattern))
}

// Classifier binds a rule set so it can be passed around as a value
type Classifier struct {
	rules Rules
}

// New creates a classifier from account VDP patterns and the shared SRP patterns
func New(vdp []VdpPattern, srp []SrpPattern) *Classifier {
	return &Classifier{rules: Rules{Srp: srp, Vdp: vdp}}
}

// Classify classifies url with the bound rules
func (c *Classifier) Classify(url string) PageType {
	if c == nil {
		return Classify(url, Rules{})
	}
	return Classify(url, c.rules)
}
