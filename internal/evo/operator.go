package evo

import "math/rand"

// Selector shrinks an evaluated population. Implementations must not modify
// the input slice.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, population []*Individual) (Selection, error)
}

// Recombiner refills a survivor set back to its target size.
type Recombiner interface {
	Name() string
	Crossover(rng *rand.Rand, survivors []*Individual, newID func() string) ([]*Individual, error)
}

// Mutator changes one genome in place and reports the touched allele.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, ind *Individual) (index int, mutated bool)
}
