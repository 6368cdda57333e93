// Package cropyield implements the crop viability skill: a crop's base yield
// is adjusted by soil, rainfall, pest, and irrigation factors, then compared
// against the crop's minimum viable yield.
package cropyield

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/halgrim/skilldex/internal/refdata"
	"github.com/halgrim/skilldex/internal/registry"
	"github.com/halgrim/skilldex/internal/rules"
	"github.com/halgrim/skilldex/internal/skill"
	"github.com/halgrim/skilldex/internal/skills/inputs"
)

//go:embed data/crops.csv
var cropsCSV []byte

var crops = refdata.MustLoadCSV("crops", cropsCSV, "crop", refdata.Schema{
	"crop":             refdata.TypeString,
	"base_yield_t_ha":  refdata.TypeFloat,
	"min_viable_yield": refdata.TypeFloat,
})

// Yield adjustments apply in this declared order.
var yieldAdjustments = rules.NewAdjustmentChain(
	rules.Adjustment{
		Name:   "poor_soil",
		Factor: 0.80,
		When:   fieldEquals("soil_quality", "poor"),
	},
	rules.Adjustment{
		Name:   "rich_soil",
		Factor: 1.15,
		When:   fieldEquals("soil_quality", "rich"),
	},
	rules.Adjustment{
		Name:   "drought",
		Factor: 0.70,
		When: func(in map[string]interface{}) bool {
			mm, _ := inputs.Float(in, "rainfall_mm")
			return mm < 300
		},
	},
	rules.Adjustment{
		Name:   "high_pest_pressure",
		Factor: 0.75,
		When:   fieldEquals("pest_pressure", "high"),
	},
	rules.Adjustment{
		Name:   "irrigation",
		Factor: 1.10,
		When: func(in map[string]interface{}) bool {
			irrigated, _ := inputs.Bool(in, "irrigated")
			return irrigated
		},
	},
)

func fieldEquals(key, want string) func(map[string]interface{}) bool {
	return func(in map[string]interface{}) bool {
		v, _ := inputs.String(in, key)
		return v == want
	}
}

func init() {
	registry.Register(&Skill{})
}

// Skill projects crop yield viability for a season.
type Skill struct{}

// Descriptor returns the catalog metadata for this skill.
func (s *Skill) Descriptor() registry.Descriptor {
	return registry.Descriptor{
		ID:               "crop-yield-viability",
		Domain:           skill.DomainAgriculture,
		Title:            "Crop Yield Viability",
		Description:      "Projects a season's yield per hectare by adjusting the crop's baseline for soil quality, rainfall, pest pressure, and irrigation, and decides whether the projection clears the crop's minimum viable yield.",
		ShortDescription: "Projects crop yield and checks viability.",
		Tags:             []string{"yield", "agronomy", "season-planning"},
	}
}

// Evaluate projects one field-season. Required input keys: crop,
// soil_quality, rainfall_mm, pest_pressure, irrigated.
func (s *Skill) Evaluate(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	crop, err := inputs.String(input, "crop")
	if err != nil {
		return nil, err
	}
	soil, err := inputs.String(input, "soil_quality")
	if err != nil {
		return nil, err
	}
	rainfall, err := inputs.Float(input, "rainfall_mm")
	if err != nil {
		return nil, err
	}
	pest, err := inputs.String(input, "pest_pressure")
	if err != nil {
		return nil, err
	}
	irrigated, err := inputs.Bool(input, "irrigated")
	if err != nil {
		return nil, err
	}

	switch soil {
	case "poor", "average", "rich":
	default:
		return nil, fmt.Errorf("unknown soil_quality %q", soil)
	}
	switch pest {
	case "low", "moderate", "high":
	default:
		return nil, fmt.Errorf("unknown pest_pressure %q", pest)
	}

	row, err := crops.Row(crop)
	if err != nil {
		return nil, err
	}

	projected, fired := yieldAdjustments.Apply(row.Float("base_yield_t_ha"), input)
	minViable := row.Float("min_viable_yield")

	var recs []rules.Finding
	if rainfall < 300 && !irrigated {
		recs = append(recs, rules.Recommendation("IRRIGATION_ADVISED",
			fmt.Sprintf("rainfall %.0fmm is below the 300mm drought threshold", rainfall)))
	}
	if pest == "high" {
		recs = append(recs, rules.Recommendation("PEST_TREATMENT_ADVISED",
			"high pest pressure reduces yield by a quarter"))
	}

	return map[string]interface{}{
		"viable":              projected >= minViable,
		"projected_yield":     rules.Round(projected, 2),
		"min_viable_yield":    minViable,
		"applied_adjustments": fired,
		"recommendations":     rules.FindingMaps(recs),
	}, nil
}
