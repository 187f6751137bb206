package scheduler

import "math/rand"

// Chooser picks an index into loads (a per-engine outstanding-task count,
// already filtered down to only the candidates maybeRun considers
// eligible) and returns the chosen index. Grounded 1:1 on the module-level
// chooser functions in task_scheduler.py (lru, plainrandom, twobin,
// leastload, weighted); numpy's vectorized sampling becomes a plain
// math/rand walk since the input is one float per live engine, not a
// payload-sized array.
type Chooser func(loads []int, rng *rand.Rand) int

// SchemeName selects a Chooser. Grounded on spec.md §6's scheme_name enum
// plus task_scheduler.py's `scheme_name` trait.
type SchemeName string

const (
	SchemeLeastLoad SchemeName = "leastload"
	SchemePure      SchemeName = "pure"
	SchemeLRU       SchemeName = "lru"
	SchemePlainRand SchemeName = "plainrandom"
	SchemeWeighted  SchemeName = "weighted"
	SchemeTwoBin    SchemeName = "twobin"
)

// ChooserFor resolves a scheme name to its Chooser function. Unknown names
// fall back to leastload, the spec's stated default.
func ChooserFor(name SchemeName) Chooser {
	switch name {
	case SchemeLRU, SchemePure:
		return lru
	case SchemePlainRand:
		return plainrandom
	case SchemeWeighted:
		return weighted
	case SchemeTwoBin:
		return twobin
	default:
		return leastload
	}
}

// lru always hands out the first candidate. It relies on engineTable.AddJob
// rotating an engine to the tail of the LRU list every time it receives
// work, so "index 0" is always whichever live candidate has gone longest
// without a dispatch.
func lru(loads []int, rng *rand.Rand) int {
	return 0
}

// plainrandom picks uniformly at random among the candidates, ignoring
// load entirely.
func plainrandom(loads []int, rng *rand.Rand) int {
	return rng.Intn(len(loads))
}

// twobin samples two candidate indices uniformly and returns the smaller
// one, ignoring load entirely: with loads kept in LRU order (oldest
// first), this is "the LRU of two" random picks. Grounded on
// task_scheduler.py's twobin, which discards the loads slice's values and
// only uses its length.
func twobin(loads []int, rng *rand.Rand) int {
	if len(loads) == 1 {
		return 0
	}
	a := rng.Intn(len(loads))
	b := rng.Intn(len(loads))
	if a < b {
		return a
	}
	return b
}

// leastload returns the index of the minimum load, breaking ties toward
// the earliest (least recently used, per LRU ordering) candidate.
func leastload(loads []int, rng *rand.Rand) int {
	best := 0
	for i := 1; i < len(loads); i++ {
		if loads[i] < loads[best] {
			best = i
		}
	}
	return best
}

// weightedEpsilon biases the inverse-load weighting so a zero-load engine
// is weighted ~1e6x over a load-1 engine instead of dividing by zero.
const weightedEpsilon = 1e-6

// weighted draws two candidate indices from the cumulative distribution
// over 1/(epsilon+load) and keeps whichever of the two carries the
// greater weight (the lesser load), breaking ties toward the first draw.
// Grounded on task_scheduler.py's `weighted`: draw two uniform points in
// [0, totalWeight) and locate each by walking cumulative weights, then
// prefer the draw with the larger weight.
func weighted(loads []int, rng *rand.Rand) int {
	weights := make([]float64, len(loads))
	cumulative := make([]float64, len(loads))
	var total float64
	for i, l := range loads {
		w := 1.0 / (weightedEpsilon + float64(l))
		weights[i] = w
		total += w
		cumulative[i] = total
	}
	if total == 0 {
		return 0
	}
	draw := func(x float64) int {
		i := 0
		for i < len(cumulative)-1 && cumulative[i] < x {
			i++
		}
		return i
	}
	idx := draw(rng.Float64() * total)
	idy := draw(rng.Float64() * total)
	if weights[idy] > weights[idx] {
		return idy
	}
	return idx
}
