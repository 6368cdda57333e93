// Package rules provides the evaluation patterns shared by every compiled
// skill: tiered-threshold lookup, ordered multiplicative adjustment chains,
// and output rounding.
package rules

import (
	"fmt"
	"math"
)

// Tier is one (upper bound, outcome) pair in a tier table.
type Tier struct {
	UpperBound float64
	Outcome    string
}

// TierTable evaluates a measured value against an ascending list of tiers.
// Lookup selects the first tier whose upper bound is >= the value, so a value
// exactly on a boundary belongs to that boundary's tier, not the next one.
type TierTable struct {
	tiers    []Tier
	fallback string
}

// NewTierTable builds a table from tiers sorted ascending by upper bound.
// The fallback outcome applies when the value exceeds every bound.
func NewTierTable(tiers []Tier, fallback string) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table: no tiers")
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].UpperBound <= tiers[i-1].UpperBound {
			return nil, fmt.Errorf("tier table: bounds not strictly ascending at index %d (%g <= %g)",
				i, tiers[i].UpperBound, tiers[i-1].UpperBound)
		}
	}
	return &TierTable{tiers: tiers, fallback: fallback}, nil
}

// MustTierTable is NewTierTable for static tables declared at init time.
func MustTierTable(tiers []Tier, fallback string) *TierTable {
	t, err := NewTierTable(tiers, fallback)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the outcome for v: first ascending tier with bound >= v,
// or the fallback when none matches.
func (t *TierTable) Lookup(v float64) string {
	for _, tier := range t.tiers {
		if v <= tier.UpperBound {
			return tier.Outcome
		}
	}
	return t.fallback
}

// Adjustment is one gated multiplicative factor in a chain.
type Adjustment struct {
	Name   string
	Factor float64
	When   func(input map[string]interface{}) bool
}

// AdjustmentChain applies independent multiplicative adjustments in a fixed
// declared order. Adjustments compound: applying the chain to its own output
// multiplies the triggered factors in again.
type AdjustmentChain struct {
	adjustments []Adjustment
}

// NewAdjustmentChain builds a chain preserving declaration order.
func NewAdjustmentChain(adjustments ...Adjustment) *AdjustmentChain {
	return &AdjustmentChain{adjustments: adjustments}
}

// Apply multiplies base by every triggered factor in order and returns the
// result plus the names of the adjustments that fired. Zero triggered
// adjustments return base unchanged.
func (c *AdjustmentChain) Apply(base float64, input map[string]interface{}) (float64, []string) {
	v := base
	var fired []string
	for _, a := range c.adjustments {
		if a.When == nil || a.When(input) {
			v *= a.Factor
			fired = append(fired, a.Name)
		}
	}
	return v, fired
}

// Currency rounds a monetary amount to 2 decimal places, half away from zero.
// Rounding happens only at output construction, never mid-chain.
func Currency(v float64) float64 {
	return roundTo(v, 2)
}

// Ratio rounds a probability or ratio to 4 decimal places, half away from zero.
func Ratio(v float64) float64 {
	return roundTo(v, 4)
}

// Round rounds to an arbitrary number of decimal places for non-monetary
// quantities (yields, hours).
func Round(v float64, places int) float64 {
	return roundTo(v, places)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
