// Package resample generates land exchange samples for one activity such that
// the ratio of land transformed from to land transformed to stays constant
// across Monte Carlo iterations.
package resample

import (
	"context"
	"iter"
	"math/rand/v2"

	"landbalancer/internal/inventory"
	"landbalancer/internal/landflow"
	"landbalancer/internal/samples"
)

// Environment is the database-level context handed to a resampler.
type Environment struct {
	Database       string
	Biosphere      string
	Group          string
	Classification landflow.Classification
}

// Resampler produces the sample blocks of one activity. The returned sequence
// is finite and may be ranged over more than once; it stops at the first error.
type Resampler interface {
	Generate(ctx context.Context, act inventory.Activity, env Environment, iterations int) iter.Seq2[samples.Block, error]
}

// Func adapts a function to the Resampler interface.
type Func func(ctx context.Context, act inventory.Activity, env Environment, iterations int) iter.Seq2[samples.Block, error]

// Generate calls f.
func (f Func) Generate(ctx context.Context, act inventory.Activity, env Environment, iterations int) iter.Seq2[samples.Block, error] {
	return f(ctx, act, env, iterations)
}

// ActivityBalancer is the default Resampler. Every land exchange is drawn from
// its own distribution, then the land-in draws of each iteration are rescaled
// so that sum(in)/sum(out) equals the deterministic ratio of the activity.
type ActivityBalancer struct {
	rng *rand.Rand
}

// NewActivityBalancer returns a balancer with a reproducible random stream.
func NewActivityBalancer(seed uint64) *ActivityBalancer {
	return &ActivityBalancer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomActivityBalancer returns a balancer seeded from the runtime source.
func NewRandomActivityBalancer() *ActivityBalancer {
	return &ActivityBalancer{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// landGroups splits the biosphere exchanges of act into land-in and land-out.
func landGroups(act inventory.Activity, cls landflow.Classification) (in, out []inventory.Exchange) {
	for _, exc := range act.Biosphere() {
		switch {
		case cls.IsLandIn(exc.Input):
			in = append(in, exc)
		case cls.IsLandOut(exc.Input):
			out = append(out, exc)
		}
	}
	return in, out
}

// StaticRatio returns sum(in)/sum(out) of the deterministic amounts and
// whether the activity has a balance to preserve.
func StaticRatio(act inventory.Activity, cls landflow.Classification) (float64, bool) {
	return ratioOf(landGroups(act, cls))
}

func ratioOf(in, out []inventory.Exchange) (float64, bool) {
	if len(in) == 0 || len(out) == 0 {
		return 0, false
	}
	sumIn, sumOut := sumAmounts(in), sumAmounts(out)
	if sumIn == 0 || sumOut == 0 {
		return 0, false
	}
	return sumIn / sumOut, true
}

func sumAmounts(excs []inventory.Exchange) float64 {
	var s float64
	for _, e := range excs {
		s += e.Amount
	}
	return s
}

func anyUncertain(groups ...[]inventory.Exchange) bool {
	for _, g := range groups {
		for _, e := range g {
			if e.Uncertainty.Uncertain() {
				return true
			}
		}
	}
	return false
}

// Generate implements Resampler. Activities without both land-in and land-out
// exchanges, with a zero deterministic total, or without any uncertain land
// exchange yield no block.
func (b *ActivityBalancer) Generate(ctx context.Context, act inventory.Activity, env Environment, iterations int) iter.Seq2[samples.Block, error] {
	return func(yield func(samples.Block, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(samples.Block{}, err)
			return
		}
		in, out := landGroups(act, env.Classification)
		ratio, ok := ratioOf(in, out)
		if !ok {
			return
		}
		if !anyUncertain(in, out) {
			return
		}
		block, err := b.balance(act.Key, in, out, ratio, iterations)
		yield(block, err)
	}
}

func (b *ActivityBalancer) balance(act inventory.Key, in, out []inventory.Exchange, ratio float64, iterations int) (samples.Block, error) {
	m := samples.NewMatrix(len(in)+len(out), iterations)
	index := make([]samples.IndexEntry, 0, m.Rows())
	for i, exc := range append(append([]inventory.Exchange(nil), in...), out...) {
		if err := Draw(b.rng, exc.Amount, exc.Uncertainty, m.Row(i)); err != nil {
			return samples.Block{}, err
		}
		index = append(index, samples.Untagged{Input: exc.Input, Output: act})
	}
	for j := 0; j < iterations; j++ {
		var sumIn, sumOut float64
		for i := range in {
			sumIn += m.At(i, j)
		}
		for i := range out {
			sumOut += m.At(len(in)+i, j)
		}
		if sumIn == 0 {
			continue
		}
		factor := ratio * sumOut / sumIn
		for i := range in {
			m.Set(i, j, m.At(i, j)*factor)
		}
	}
	return samples.Block{Samples: m, Index: index}, nil
}
