package stormclaim

import (
	"context"
	"testing"
)

func baseClaim() map[string]interface{} {
	return map[string]interface{}{
		"storm_category": 4,
		"roof_material":  "wood_shake",
		"region":         "coastal",
		"retrofit_year":  2021,
		"claim_amount":   45000.0,
		"deductible":     2500.0,
	}
}

func evaluate(t *testing.T, input map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := (&Skill{}).Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return out
}

func TestCompliantRetrofitApprovedWithWaivedDeductible(t *testing.T) {
	out := evaluate(t, baseClaim())

	if got := out["claim_status"].(string); got != "APPROVED" {
		t.Fatalf("claim_status = %s, want APPROVED", got)
	}
	if !out["coverage_eligible"].(bool) {
		t.Fatal("expected coverage eligible")
	}
	if got := out["deductible_applied"].(float64); got != 0 {
		t.Errorf("deductible_applied = %g, want 0 (waived for category 4)", got)
	}
	if got := out["payout_amount"].(float64); got != 45000 {
		t.Errorf("payout_amount = %g, want 45000", got)
	}
}

func TestOutdatedRetrofitFlipsEligibility(t *testing.T) {
	claim := baseClaim()
	claim["retrofit_year"] = 2019

	out := evaluate(t, claim)

	if out["coverage_eligible"].(bool) {
		t.Fatal("2019 retrofit in coastal region must not be eligible")
	}
	if got := out["claim_status"].(string); got != "DENIED" {
		t.Fatalf("claim_status = %s, want DENIED", got)
	}
	if got := out["payout_amount"].(float64); got != 0 {
		t.Errorf("payout_amount = %g, want 0 for denied claim", got)
	}
}

func TestLowerCategoryKeepsDeductible(t *testing.T) {
	claim := baseClaim()
	claim["storm_category"] = 3

	out := evaluate(t, claim)

	if got := out["claim_status"].(string); got != "APPROVED" {
		t.Fatalf("claim_status = %s, want APPROVED", got)
	}
	if got := out["deductible_applied"].(float64); got != 2500 {
		t.Errorf("deductible_applied = %g, want 2500 below waiver category", got)
	}
	if got := out["payout_amount"].(float64); got != 42500 {
		t.Errorf("payout_amount = %g, want 42500", got)
	}
}

func TestHighExposureGoesToReview(t *testing.T) {
	claim := baseClaim()
	claim["claim_amount"] = 90000.0 // x1.4 wood_shake multiplier = 126000

	out := evaluate(t, claim)

	if got := out["claim_status"].(string); got != "REVIEW_REQUIRED" {
		t.Fatalf("claim_status = %s, want REVIEW_REQUIRED", got)
	}
	if got := out["payout_amount"].(float64); got != 0 {
		t.Errorf("payout_amount = %g, want 0 pending review", got)
	}
}

func TestInlandRegionLooserRetrofitWindow(t *testing.T) {
	claim := baseClaim()
	claim["region"] = "inland"
	claim["retrofit_year"] = 2012
	claim["storm_category"] = 5

	out := evaluate(t, claim)

	if !out["coverage_eligible"].(bool) {
		t.Fatal("2012 retrofit meets the inland 2010 minimum")
	}
	if got := out["deductible_applied"].(float64); got != 0 {
		t.Errorf("deductible_applied = %g, want 0 (inland waiver at category 5)", got)
	}
}
