package reward

import (
	"crypto/rand"
	"math/big"
	"sort"
)

// pickWeighted selects one definition with probability proportional to its
// weight, using a CSPRNG draw over the cumulative weight line. Definitions
// with non-positive weights never win. The scan order is pinned by display
// order then id so the cumulative walk is stable across calls.
func pickWeighted(definitions []RewardDefinition) (RewardDefinition, error) {
	pool := make([]RewardDefinition, 0, len(definitions))
	var totalWeight int64
	for _, definition := range definitions {
		if definition.Weight <= 0 {
			continue
		}
		pool = append(pool, definition)
		totalWeight += definition.Weight
	}
	if totalWeight <= 0 {
		return RewardDefinition{}, ErrNoRewardsConfigured
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].DisplayOrder != pool[j].DisplayOrder {
			return pool[i].DisplayOrder < pool[j].DisplayOrder
		}
		return pool[i].RewardID < pool[j].RewardID
	})
	drawn, err := rand.Int(rand.Reader, big.NewInt(totalWeight))
	if err != nil {
		return RewardDefinition{}, WrapError("draw", "random", "source", err)
	}
	target := drawn.Int64()
	var cumulative int64
	for _, definition := range pool {
		cumulative += definition.Weight
		if target < cumulative {
			return definition, nil
		}
	}
	return pool[len(pool)-1], nil
}
