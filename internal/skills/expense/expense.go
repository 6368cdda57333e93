// Package expense implements the expense-policy compliance skill: it checks
// a submitted expense against per-category spending limits.
package expense

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

//go:embed data/categories.csv
var categoriesCSV []byte

var categories = refdata.MustLoadCSV("categories", categoriesCSV, "category", refdata.Schema{
	"category":         refdata.TypeString,
	"max_amount":       refdata.TypeFloat,
	"per_head_limit":   refdata.TypeFloat,
	"vp_approval_over": refdata.TypeFloat,
})

func init() {
	registry.Register(&Skill{})
}

// Skill evaluates expense reports against the corporate spending policy.
type Skill struct{}

// Descriptor returns the catalog metadata for this skill.
func (s *Skill) Descriptor() registry.Descriptor {
	return registry.Descriptor{
		ID:               "expense-policy",
		Domain:           skill.DomainCorporatePolicy,
		Title:            "Expense Policy Compliance",
		Description:      "Checks a submitted expense against per-category amount ceilings, per-attendee limits, and VP approval thresholds from the corporate travel and entertainment policy.",
		ShortDescription: "Validates expenses against corporate spending policy.",
		Tags:             []string{"expense", "policy", "compliance", "approvals"},
	}
}

// Evaluate checks one expense. Required input keys: amount, category,
// attendees, has_vp_approval.
func (s *Skill) Evaluate(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	amount, err := inputs.Float(input, "amount")
	if err != nil {
		return nil, err
	}
	category, err := inputs.String(input, "category")
	if err != nil {
		return nil, err
	}
	attendees, err := inputs.Int(input, "attendees")
	if err != nil {
		return nil, err
	}
	hasVP, err := inputs.Bool(input, "has_vp_approval")
	if err != nil {
		return nil, err
	}

	policy, err := categories.Row(category)
	if err != nil {
		return nil, err
	}

	var findings []rules.Finding

	if maxAmount := policy.Float("max_amount"); amount > maxAmount {
		findings = append(findings, rules.Violation("AMOUNT_EXCEEDED",
			fmt.Sprintf("amount %.2f exceeds category maximum %.2f", amount, maxAmount)))
	}

	if threshold := policy.Float("vp_approval_over"); amount > threshold && !hasVP {
		findings = append(findings, rules.Violation("VP_APPROVAL_REQUIRED",
			fmt.Sprintf("amounts over %.2f require VP approval", threshold)))
	}

	perHead := 0.0
	if limit := policy.Float("per_head_limit"); limit > 0 && attendees > 0 {
		perHead = amount / float64(attendees)
		if perHead > limit {
			findings = append(findings, rules.Violation("PER_HEAD_LIMIT_EXCEEDED",
				fmt.Sprintf("per-attendee amount %.2f exceeds limit %.2f", perHead, limit)))
		}
	}

	compliant := len(findings) == 0
	approved := 0.0
	if compliant {
		approved = amount
	}

	return map[string]interface{}{
		"compliant":       compliant,
		"violations":      rules.FindingMaps(findings),
		"per_head_amount": rules.Currency(perHead),
		"approved_amount": rules.Currency(approved),
	}, nil
}
