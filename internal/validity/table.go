// Package validity computes the time windows in which a certificate counts
// for admission, from an explicit table of product and test rules.
package validity

import "time"

const day = 24 * time.Hour

// ProductRule describes one vaccine medical product.
type ProductRule struct {
	Code          string
	Name          string
	RequiredDoses int
	// MinimumInterval is the waiting time after the dose that completes
	// the primary series.
	MinimumInterval time.Duration
	// BoosterInterval is added to the last dose to get the recommended
	// booster date.
	BoosterInterval time.Duration
}

type TestKind string

const (
	TestPCR TestKind = "PCR"
	TestRAT TestKind = "RAT"
)

type TestRule struct {
	Code     string
	Kind     TestKind
	Validity time.Duration
}

// Table is keyed by (certificate variant, product or test code). New codes
// are data additions.
type Table struct {
	Products       map[string]ProductRule
	DefaultProduct ProductRule
	Tests          map[string]TestRule
	// Recovery windows relative to the first positive result, used when
	// the certificate carries no df/du.
	RecoveryValidFrom  time.Duration
	RecoveryValidUntil time.Duration
}

func twoDose(code, name string) ProductRule {
	return ProductRule{
		Code:            code,
		Name:            name,
		RequiredDoses:   2,
		MinimumInterval: 21 * day,
		BoosterInterval: 90 * day,
	}
}

// DefaultTable holds the rules for the products and tests in use.
var DefaultTable = Table{
	Products: map[string]ProductRule{
		"EU/1/20/1528": twoDose("EU/1/20/1528", "Comirnaty"),
		"EU/1/20/1507": twoDose("EU/1/20/1507", "Spikevax"),
		"EU/1/21/1529": twoDose("EU/1/21/1529", "Vaxzevria"),
		"EU/1/20/1525": {
			Code:            "EU/1/20/1525",
			Name:            "Jcovden",
			RequiredDoses:   1,
			MinimumInterval: 28 * day,
			BoosterInterval: 28 * day,
		},
	},
	DefaultProduct: twoDose("", "unknown product"),
	Tests: map[string]TestRule{
		"LP6464-4":   {Code: "LP6464-4", Kind: TestPCR, Validity: 48 * time.Hour},
		"LP217198-3": {Code: "LP217198-3", Kind: TestRAT, Validity: 24 * time.Hour},
	},
	RecoveryValidFrom:  28 * day,
	RecoveryValidUntil: 180 * day,
}

// Product returns the rule for code, falling back to DefaultProduct.
func (t *Table) Product(code string) ProductRule {
	if p, ok := t.Products[code]; ok {
		return p
	}
	return t.DefaultProduct
}

func (t *Table) Test(code string) (TestRule, bool) {
	r, ok := t.Tests[code]
	return r, ok
}
