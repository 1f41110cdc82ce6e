package anymem

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
)

// Cost computes one training cost per instance in the
// batch.
//
// With SoftmaxLoss, the cost is the cross-entropy between
// the answer distribution and the labels, normalized so
// that several true options share the target mass.
// With SigmoidLoss, every real option contributes a
// sigmoid cross-entropy term; padded options contribute
// nothing.
func (r *Result) Cost() anydiff.Res {
	c := r.Logits.Output().Creator()
	batch := r.Batch.Size
	numOpts := r.Batch.Lengths.Options

	switch r.loss {
	case SigmoidLoss:
		desired := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(r.Batch.Labels)))
		perOption := anynet.SigmoidCE{}.Cost(desired, r.Logits, batch*numOpts)
		masked := maskRes(perOption, r.Masks.Options.Vector(c, 1))
		return anydiff.SumCols(&anydiff.Matrix{
			Data: masked,
			Rows: batch,
			Cols: numOpts,
		})
	default:
		desired := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(
			targetDistribution(r.Batch.Labels, numOpts))))
		return anynet.DotCost{}.Cost(desired, r.LogProbs, batch)
	}
}

// Correct counts the instances whose most probable option
// is labeled as true.
func (r *Result) Correct() int {
	probs := vectorFloats(r.Probs.Output())
	numOpts := r.Batch.Lengths.Options
	var res int
	for i := 0; i < r.Batch.Size; i++ {
		row := probs[i*numOpts : (i+1)*numOpts]
		best := 0
		for j, p := range row {
			if p > row[best] {
				best = j
			}
		}
		if r.Batch.Labels[i*numOpts+best] != 0 {
			res++
		}
	}
	return res
}

// targetDistribution normalizes every row of a label
// matrix to sum to 1.
// Rows without any true label stay zero.
func targetDistribution(labels []float64, cols int) []float64 {
	res := make([]float64, len(labels))
	for i := 0; i < len(labels); i += cols {
		var sum float64
		for _, x := range labels[i : i+cols] {
			sum += x
		}
		if sum == 0 {
			continue
		}
		for j, x := range labels[i : i+cols] {
			res[i+j] = x / sum
		}
	}
	return res
}
