package dataset

import (
	"math"

	"trading-chartsv1/internal/indicator"
)

// resumable kernels continue from a previously emitted value.
type resumable interface {
	indicator.Kernel
	Resume(count int, current float64)
}

// extendResumable appends outputs for positions [from, to) to out. The kernel
// resumes from out[from-1] once seeded; before that it replays vals[0:from].
func extendResumable(k resumable, out []float64, vals func(int) float64, from, to int) []float64 {
	if from > 0 && !math.IsNaN(out[from-1]) {
		k.Resume(from, out[from-1])
	} else {
		for i := 0; i < from; i++ {
			k.Update(vals(i))
		}
	}
	for i := from; i < to; i++ {
		k.Update(vals(i))
		out = append(out, k.Value())
	}
	return out
}

// warmWindow feeds the n-1 inputs preceding from into a fresh window kernel.
func warmWindow(update func(int), n, from int) {
	for i := max(0, from-n+1); i < from; i++ {
		update(i)
	}
}

// extendWindow appends window-kernel outputs for positions [from, to).
func extendWindow(k indicator.Kernel, out []float64, vals func(int) float64, n, from, to int) []float64 {
	warmWindow(func(i int) { k.Update(vals(i)) }, n, from)
	for i := from; i < to; i++ {
		k.Update(vals(i))
		out = append(out, k.Value())
	}
	return out
}

// extendMean appends the n-wide trailing mean of src for positions [from, to).
// A window containing an unavailable value is unavailable.
func extendMean(out, src []float64, n, from, to int) []float64 {
	for i := from; i < to; i++ {
		if i < n-1 {
			out = append(out, Unavailable)
			continue
		}
		var sum float64
		for _, v := range src[i-n+1 : i+1] {
			sum += v
		}
		// NaN propagates through the sum
		out = append(out, sum/float64(n))
	}
	return out
}
