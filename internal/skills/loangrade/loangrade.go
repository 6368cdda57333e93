// Package loangrade implements the loan risk-grading skill: probability of
// default maps to a grade through an ascending tier table, and the grade's
// base rate is adjusted by a fixed chain of risk multipliers.
package loangrade

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/halgrim/skilldex/internal/refdata"
	"github.com/halgrim/skilldex/internal/registry"
	"github.com/halgrim/skilldex/internal/rules"
	"github.com/halgrim/skilldex/internal/skill"
	"github.com/halgrim/skilldex/internal/skills/inputs"
)

//go:embed data/grades.csv
var gradesCSV []byte

var grades = refdata.MustLoadCSV("grades", gradesCSV, "grade", refdata.Schema{
	"grade":     refdata.TypeString,
	"max_pd":    refdata.TypeFloat,
	"base_rate": refdata.TypeFloat,
	"decision":  refdata.TypeString,
})

// The fallback grade for applicants past every tier bound.
const fallbackGrade = "E"

var gradeOrder = []string{"A", "B", "C", "D"}

var gradeTiers = buildTiers()

func buildTiers() *rules.TierTable {
	tiers := make([]rules.Tier, 0, len(gradeOrder))
	for _, g := range gradeOrder {
		row, err := grades.Row(g)
		if err != nil {
			panic(err)
		}
		tiers = append(tiers, rules.Tier{UpperBound: row.Float("max_pd"), Outcome: g})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].UpperBound < tiers[j].UpperBound })
	return rules.MustTierTable(tiers, fallbackGrade)
}

// Rate adjustments apply in this declared order.
var rateAdjustments = rules.NewAdjustmentChain(
	rules.Adjustment{
		Name:   "high_debt_to_income",
		Factor: 1.15,
		When: func(in map[string]interface{}) bool {
			dti, _ := inputs.Float(in, "debt_to_income")
			return dti > 0.40
		},
	},
	rules.Adjustment{
		Name:   "uncollateralized",
		Factor: 1.10,
		When: func(in map[string]interface{}) bool {
			collateralized, _ := inputs.Bool(in, "collateralized")
			return !collateralized
		},
	},
	rules.Adjustment{
		Name:   "jumbo_loan",
		Factor: 1.05,
		When: func(in map[string]interface{}) bool {
			amount, _ := inputs.Float(in, "loan_amount")
			return amount > 500000
		},
	},
)

func init() {
	registry.Register(&Skill{})
}

// Skill grades loan applications.
type Skill struct{}

// Descriptor returns the catalog metadata for this skill.
func (s *Skill) Descriptor() registry.Descriptor {
	return registry.Descriptor{
		ID:               "loan-risk-grading",
		Domain:           skill.DomainFinance,
		Title:            "Loan Risk Grading",
		Description:      "Grades loan applications by probability of default against an ascending grade tier table, then prices the interest rate by applying debt-to-income, collateral, and loan-size risk multipliers to the grade's base rate.",
		ShortDescription: "Grades loans by default probability and prices the rate.",
		Tags:             []string{"credit", "risk", "underwriting", "pricing"},
	}
}

// Evaluate grades one application. Required input keys:
// probability_of_default, debt_to_income, collateralized, loan_amount.
func (s *Skill) Evaluate(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	pd, err := inputs.Float(input, "probability_of_default")
	if err != nil {
		return nil, err
	}
	if pd < 0 || pd > 1 {
		return nil, fmt.Errorf("probability_of_default %g outside [0, 1]", pd)
	}
	// Remaining required keys fail fast even when their adjustment would
	// not trigger.
	if _, err := inputs.Float(input, "debt_to_income"); err != nil {
		return nil, err
	}
	if _, err := inputs.Bool(input, "collateralized"); err != nil {
		return nil, err
	}
	if _, err := inputs.Float(input, "loan_amount"); err != nil {
		return nil, err
	}

	grade := gradeTiers.Lookup(pd)
	if grade == fallbackGrade {
		return map[string]interface{}{
			"decision":      "DENIED",
			"grade":         grade,
			"interest_rate": 0.0,
			"findings": rules.FindingMaps([]rules.Finding{
				rules.Violation("PD_ABOVE_MAX", fmt.Sprintf("probability of default %g exceeds every grade bound", pd)),
			}),
		}, nil
	}

	row, err := grades.Row(grade)
	if err != nil {
		return nil, err
	}

	rate, fired := rateAdjustments.Apply(row.Float("base_rate"), input)

	var findings []rules.Finding
	for _, name := range fired {
		findings = append(findings, rules.Warning("RATE_ADJUSTED", "rate adjustment applied: "+name))
	}

	return map[string]interface{}{
		"decision":      row.String("decision"),
		"grade":         grade,
		"interest_rate": rules.Ratio(rate),
		"findings":      rules.FindingMaps(findings),
	}, nil
}
