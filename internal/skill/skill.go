// Package skill defines the indexed skill-definition contract shared by the
// catalog loader, the index service, and the discovery harness.
package skill

import (
	"fmt"
	"strings"
)

// Recognized domain tags. Every definition carries exactly one.
const (
	DomainFinance         = "finance"
	DomainInsurance       = "insurance"
	DomainLifeSciences    = "life_sciences"
	DomainManufacturing   = "manufacturing"
	DomainAgriculture     = "agriculture"
	DomainCorporatePolicy = "corporate_policy"
)

// Domains lists every recognized domain tag.
var Domains = []string{
	DomainFinance,
	DomainInsurance,
	DomainLifeSciences,
	DomainManufacturing,
	DomainAgriculture,
	DomainCorporatePolicy,
}

// File is an attached auxiliary data blob (reference tables, thresholds)
// a skill's snippet reads at run time.
type File struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Definition is the indexed record describing one skill: metadata used for
// semantic matching, the full document body with embedded executable
// snippets, and attached reference-data files. Definitions are written once
// at ingest time and never mutated during execution.
type Definition struct {
	ID               string   `json:"id"`
	Domain           string   `json:"domain"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	DocumentBody     string   `json:"document_body"`
	Files            []File   `json:"files,omitempty"`
}

// Validate checks the fields every indexed definition must carry.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("skill definition: missing id")
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("skill %s: missing description", d.ID)
	}
	if !ValidDomain(d.Domain) {
		return fmt.Errorf("skill %s: unknown domain %q", d.ID, d.Domain)
	}
	return nil
}

// ValidDomain reports whether tag is one of the recognized domain tags.
func ValidDomain(tag string) bool {
	for _, d := range Domains {
		if d == tag {
			return true
		}
	}
	return false
}

// SearchText builds the text blob the embedder indexes for a definition.
func (d *Definition) SearchText() string {
	parts := []string{d.Title, d.Description}
	if d.ShortDescription != "" {
		parts = append(parts, d.ShortDescription)
	}
	if len(d.Tags) > 0 {
		parts = append(parts, strings.Join(d.Tags, " "))
	}
	return strings.Join(parts, "\n")
}

// HasTag reports whether the definition carries the given tag.
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
