package execution

import (
	"math/big"
	"sort"
	"strings"

	"github.com/certen/swapcoordinator/pkg/order"
)

// price returns taker_amount / maker_amount as an exact rational, so two
// large decimal amounts can be compared without floating-point drift.
func price(o *order.Order) *big.Rat {
	maker := new(big.Int)
	maker.SetString(o.MakerAmount, 10)
	taker := new(big.Int)
	taker.SetString(o.TakerAmount, 10)
	if maker.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(taker, maker)
}

// slippageThreshold converts a float64 slippage tolerance (e.g. 0.05) into
// an exact rational upper bound of 1+tolerance.
func slippageThreshold(maxSlippage float64) *big.Rat {
	one := big.NewRat(1, 1)
	tol := new(big.Rat).SetFloat64(maxSlippage)
	if tol == nil {
		tol = new(big.Rat)
	}
	return new(big.Rat).Add(one, tol)
}

// FindMatches returns every candidate order complementary to target,
// sorted by best effective price first, then oldest first. A candidate is
// complementary when its maker/taker assets mirror target's exactly and
// the combined exchange rate does not exceed maxSlippage above parity.
func FindMatches(target *order.Entry, candidates []*order.Entry, maxSlippage float64) []*order.Entry {
	t := target.Signed.Order
	threshold := slippageThreshold(maxSlippage)
	tPrice := price(&t)

	var out []*order.Entry
	for _, c := range candidates {
		if c.Signed.OrderHash == target.Signed.OrderHash {
			continue // reject self-match
		}
		co := c.Signed.Order
		if !assetsMirror(t, co) {
			continue
		}
		combined := new(big.Rat).Mul(tPrice, price(&co))
		if combined.Cmp(threshold) > 0 {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		pi := price(&out[i].Signed.Order)
		pj := price(&out[j].Signed.Order)
		if cmp := pi.Cmp(pj); cmp != 0 {
			return cmp < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// assetsMirror reports whether candidate offers what target wants and
// wants what target offers: target.DestAsset == candidate.SourceAsset and
// target.SourceAsset == candidate.DestAsset.
func assetsMirror(target, candidate order.Order) bool {
	return strings.EqualFold(target.DestAsset, candidate.SourceAsset) &&
		strings.EqualFold(target.SourceAsset, candidate.DestAsset)
}
