// Package labsample implements the specimen acceptance skill: a sample is
// accepted only when it reaches the lab within its type's transit window and
// temperature band. There is deliberately no default sample type; an unknown
// type is a hard failure.
package labsample

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/halgrim/skilldex/internal/refdata"
	"github.com/halgrim/skilldex/internal/registry"
	"github.com/halgrim/skilldex/internal/rules"
	"github.com/halgrim/skilldex/internal/skill"
	"github.com/halgrim/skilldex/internal/skills/inputs"
)

//go:embed data/sample_types.csv
var sampleTypesCSV []byte

var sampleTypes = refdata.MustLoadCSV("sample_types", sampleTypesCSV, "sample_type", refdata.Schema{
	"sample_type":       refdata.TypeString,
	"max_transit_hours": refdata.TypeFloat,
	"min_temp_c":        refdata.TypeFloat,
	"max_temp_c":        refdata.TypeFloat,
})

func init() {
	registry.Register(&Skill{})
}

// Skill decides whether a lab specimen is acceptable on receipt.
type Skill struct{}

// Descriptor returns the catalog metadata for this skill.
func (s *Skill) Descriptor() registry.Descriptor {
	return registry.Descriptor{
		ID:               "lab-sample-acceptance",
		Domain:           skill.DomainLifeSciences,
		Title:            "Lab Sample Acceptance",
		Description:      "Decides whether a clinical specimen is acceptable on receipt by checking the collection-to-receipt transit time against the sample type's hold limit and verifying the transport temperature band.",
		ShortDescription: "Accepts or rejects clinical specimens on receipt.",
		Tags:             []string{"specimen", "transit", "cold-chain", "quality"},
	}
}

// Evaluate checks one specimen. Required input keys: sample_type,
// collected_at, received_at (RFC 3339), transport_temp_c.
func (s *Skill) Evaluate(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	sampleType, err := inputs.String(input, "sample_type")
	if err != nil {
		return nil, err
	}
	collectedAt, err := inputs.Time(input, "collected_at")
	if err != nil {
		return nil, err
	}
	receivedAt, err := inputs.Time(input, "received_at")
	if err != nil {
		return nil, err
	}
	tempC, err := inputs.Float(input, "transport_temp_c")
	if err != nil {
		return nil, err
	}

	limits, err := sampleTypes.Row(sampleType)
	if err != nil {
		return nil, err
	}
	if receivedAt.Before(collectedAt) {
		return nil, fmt.Errorf("received_at precedes collected_at")
	}

	var findings []rules.Finding

	elapsed := receivedAt.Sub(collectedAt)
	maxTransit := time.Duration(limits.Float("max_transit_hours") * float64(time.Hour))
	// The hold limit is inclusive: a sample at exactly the limit is accepted.
	if elapsed > maxTransit {
		findings = append(findings, rules.Violation("TRANSIT_EXPIRED",
			fmt.Sprintf("transit time %s exceeds %s limit for %s", elapsed, maxTransit, sampleType)))
	}

	if tempC < limits.Float("min_temp_c") || tempC > limits.Float("max_temp_c") {
		findings = append(findings, rules.Violation("TEMPERATURE_OUT_OF_RANGE",
			fmt.Sprintf("transport temperature %.1fC outside [%.1f, %.1f]",
				tempC, limits.Float("min_temp_c"), limits.Float("max_temp_c"))))
	}

	status := "ACCEPTED"
	if len(findings) > 0 {
		status = "REJECTED"
	}

	return map[string]interface{}{
		"status":         status,
		"elapsed_hours":  rules.Round(elapsed.Hours(), 2),
		"max_hold_hours": limits.Float("max_transit_hours"),
		"violations":     rules.FindingMaps(findings),
	}, nil
}
