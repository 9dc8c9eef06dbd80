package evo

import "math/rand"

// BitFlip flips one uniformly chosen allele with probability Rate.
type BitFlip struct {
	Rate float64
}

func (BitFlip) Name() string {
	return "bit_flip"
}

func (m BitFlip) Mutate(rng *rand.Rand, ind *Individual) (int, bool) {
	if ind == nil || len(ind.Positions) == 0 {
		return -1, false
	}
	if rng.Float64() >= m.Rate {
		return -1, false
	}
	idx := rng.Intn(len(ind.Positions))
	if ind.Positions[idx] == 0 {
		ind.Positions[idx] = 1
	} else {
		ind.Positions[idx] = 0
	}
	return idx, true
}
