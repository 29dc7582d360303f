// Package tiers holds the ordered price table of the sale.
package tiers

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ligun0805/tier-sale/internal/errs"
	"github.com/ligun0805/tier-sale/internal/units"
	"github.com/samber/lo"
)

// Tier is one priced tranche of the sale. Prices are in the smallest unit of the funding token.
type Tier struct {
	ID                     string
	Price                  int64
	PriceWithDiscount      int64
	MaxAllocationPerWallet int64
	MaxTotalPurchasable    int64
}

// Cost returns amount × PriceWithDiscount.
func (t Tier) Cost(amount int64) *big.Int {
	return units.MulInt64(amount, t.PriceWithDiscount)
}

// Catalog is an immutable, ascending-price list of tiers addressed by 1-based index.
type Catalog struct {
	tiers []Tier
}

// NewCatalog validates ordering and returns a catalog holding a copy of tiers.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, errors.Wrap(errs.ConfigDefect, "tier catalog is empty")
	}
	for i, t := range tiers {
		if t.ID == "" {
			return nil, errors.Wrapf(errs.ConfigDefect, "tier %d has no id", i+1)
		}
		if t.PriceWithDiscount <= 0 || t.MaxAllocationPerWallet <= 0 {
			return nil, errors.Wrapf(errs.ConfigDefect, "tier %d (%s) has non-positive price or allocation", i+1, t.ID)
		}
		if i > 0 && t.Price <= tiers[i-1].Price {
			return nil, errors.Wrapf(errs.ConfigDefect, "tier %d (%s) is not priced above tier %d", i+1, t.ID, i)
		}
	}
	return &Catalog{tiers: append([]Tier(nil), tiers...)}, nil
}

// Len is the number of tiers.
func (c *Catalog) Len() int { return len(c.tiers) }

// All returns a copy of every tier in fallback order.
func (c *Catalog) All() []Tier { return append([]Tier(nil), c.tiers...) }

// Get returns the tier at 1-based index n.
func (c *Catalog) Get(n int) (Tier, bool) {
	if n < 1 || n > len(c.tiers) {
		return Tier{}, false
	}
	return c.tiers[n-1], true
}

// Range returns tiers min..max inclusive (1-based), cheapest first.
func (c *Catalog) Range(min, max int) ([]Tier, error) {
	if _, ok := c.Get(min); !ok {
		return nil, errors.Wrapf(errs.ConfigDefect, "unknown tier %d, expected 1..%d", min, c.Len())
	}
	if _, ok := c.Get(max); !ok {
		return nil, errors.Wrapf(errs.ConfigDefect, "unknown tier %d, expected 1..%d", max, c.Len())
	}
	if min > max {
		return nil, errors.Wrapf(errs.ConfigDefect, "minimum tier %d is greater than maximum tier %d", min, max)
	}
	return append([]Tier(nil), c.tiers[min-1:max]...), nil
}

// MinAllocation is the smallest per-wallet cap across tiers.
func MinAllocation(tiers []Tier) int64 {
	return lo.Min(lo.Map(tiers, func(t Tier, _ int) int64 { return t.MaxAllocationPerWallet }))
}

// Highest returns the most expensive tier, which sizes funding and allowance.
func Highest(tiers []Tier) Tier {
	return lo.MaxBy(tiers, func(a, b Tier) bool { return a.PriceWithDiscount > b.PriceWithDiscount })
}
