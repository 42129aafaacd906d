// Package selector implements tiered, language-preference variant
// selection for the live saver.
package selector

import (
	"sort"

	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/model"
)

type Tier int

const (
	TierLow Tier = iota
	TierMid
	TierHigh
)

// Select sorts variants by ascending bandwidth, splits into three equal
// tiers, and within the requested tier picks the highest-bandwidth variant
// whose audio language matches one of preferredLanguages (in preference
// order).
func Select(variants []*model.Variant, tier Tier, preferredLanguages []string) (*model.Variant, error) {
	sorted := append([]*model.Variant(nil), variants...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Bandwidth < sorted[j].Bandwidth })

	n := len(sorted)
	if n == 0 {
		return nil, dasherr.New(dasherr.Critical, dasherr.Player, dasherr.NoLanguageMatch, nil)
	}
	var lo, hi int
	switch tier {
	case TierLow:
		lo, hi = 0, n/3
	case TierMid:
		lo, hi = n/3+1, 2*n/3
	default:
		lo, hi = 2*n/3+1, n-1
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi >= n {
		hi = n - 1
	}
	if lo < 0 {
		lo = 0
	}
	candidates := sorted[lo : hi+1]

	for i := len(candidates) - 1; i >= 0; i-- {
		v := candidates[i]
		if v.Audio == nil {
			continue
		}
		for _, lang := range preferredLanguages {
			if v.Audio.Language == lang {
				return v, nil
			}
		}
	}
	return nil, dasherr.New(dasherr.Critical, dasherr.Player, dasherr.NoLanguageMatch, nil)
}
