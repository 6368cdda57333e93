// Package stormclaim implements the hurricane roof-damage claim adjudication
// skill. Coverage depends on regional retrofit rules; deductibles are waived
// for severe storms when the roof retrofit is current.
package stormclaim

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

//go:embed data/roof_materials.json
var roofMaterialsJSON []byte

//go:embed data/regions.csv
var regionsCSV []byte

var roofMaterials = mustLoadRoofs()

var regions = refdata.MustLoadCSV("regions", regionsCSV, "region", refdata.Schema{
	"region":                     refdata.TypeString,
	"min_retrofit_year":          refdata.TypeInt,
	"deductible_waiver_category": refdata.TypeInt,
})

func mustLoadRoofs() *refdata.Table {
	t, err := refdata.LoadJSON("roof_materials", roofMaterialsJSON, refdata.Schema{
		"risk_multiplier":   refdata.TypeFloat,
		"retrofit_required": refdata.TypeBool,
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Claims above this risk-weighted exposure go to manual review.
const reviewExposureThreshold = 100000.0

func init() {
	registry.Register(&Skill{})
}

// Skill adjudicates storm roof claims.
type Skill struct{}

// Descriptor returns the catalog metadata for this skill.
func (s *Skill) Descriptor() registry.Descriptor {
	return registry.Descriptor{
		ID:               "storm-roof-claim",
		Domain:           skill.DomainInsurance,
		Title:            "Storm Roof Claim Adjudication",
		Description:      "Adjudicates hurricane roof damage claims: verifies retrofit compliance by region and roof material, waives deductibles for severe storm categories, and routes high-exposure claims to manual review.",
		ShortDescription: "Adjudicates hurricane roof damage claims.",
		Tags:             []string{"hurricane", "roof", "claims", "deductible"},
	}
}

// Evaluate adjudicates one claim. Required input keys: storm_category,
// roof_material, region, retrofit_year, claim_amount, deductible.
func (s *Skill) Evaluate(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	stormCategory, err := inputs.Int(input, "storm_category")
	if err != nil {
		return nil, err
	}
	roofMaterial, err := inputs.String(input, "roof_material")
	if err != nil {
		return nil, err
	}
	region, err := inputs.String(input, "region")
	if err != nil {
		return nil, err
	}
	retrofitYear, err := inputs.Int(input, "retrofit_year")
	if err != nil {
		return nil, err
	}
	claimAmount, err := inputs.Float(input, "claim_amount")
	if err != nil {
		return nil, err
	}
	deductible, err := inputs.Float(input, "deductible")
	if err != nil {
		return nil, err
	}

	roof, err := roofMaterials.Row(roofMaterial)
	if err != nil {
		return nil, err
	}
	regionRules, err := regions.Row(region)
	if err != nil {
		return nil, err
	}

	var findings []rules.Finding

	minRetrofitYear := regionRules.Int("min_retrofit_year")
	eligible := true
	if roof.Bool("retrofit_required") && retrofitYear < minRetrofitYear {
		eligible = false
		findings = append(findings, rules.Violation("RETROFIT_OUTDATED",
			fmt.Sprintf("roof material %s in %s region requires a retrofit from %d or later, got %d",
				roofMaterial, region, minRetrofitYear, retrofitYear)))
	}

	deductibleApplied := deductible
	if eligible && stormCategory >= regionRules.Int("deductible_waiver_category") {
		deductibleApplied = 0
	}

	status := "DENIED"
	payout := 0.0
	if eligible {
		exposure := claimAmount * roof.Float("risk_multiplier")
		if exposure > reviewExposureThreshold {
			status = "REVIEW_REQUIRED"
			findings = append(findings, rules.Warning("HIGH_EXPOSURE",
				fmt.Sprintf("risk-weighted exposure %.2f exceeds %.2f", exposure, reviewExposureThreshold)))
		} else {
			status = "APPROVED"
			payout = claimAmount - deductibleApplied
		}
	}

	return map[string]interface{}{
		"claim_status":       status,
		"coverage_eligible":  eligible,
		"payout_amount":      rules.Currency(payout),
		"deductible_applied": rules.Currency(deductibleApplied),
		"violations":         rules.FindingMaps(findings),
	}, nil
}
