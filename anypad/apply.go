package anypad

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// maskPenalty is how far padded logits are placed below
// the largest real logit of their chunk before a softmax.
// It is finite so that fully padded chunks stay finite.
const maskPenalty = 1e4

// ApplyMask zeroes out the padded entries of scores.
// The mask vector contains 1 for real entries and 0 for
// padding, as produced by Mask.Vector.
func ApplyMask(scores anydiff.Res, mask anyvec.Vector) anydiff.Res {
	if scores.Output().Len() != mask.Len() {
		panic(fmt.Sprintf("mask length %d does not match score length %d", mask.Len(),
			scores.Output().Len()))
	}
	return anydiff.Mul(scores, anydiff.NewConst(mask))
}

// MaskedLogSoftmax computes a log-softmax over each chunk
// of scores, ignoring padded entries.
//
// Each chunk is shifted so that its largest real entry is
// zero, and padded entries are set to a large negative,
// but finite, value.
// This holds for any finite scores, however large.
// A fully padded chunk yields a uniform distribution over
// its entries rather than NaNs.
func MaskedLogSoftmax(scores anydiff.Res, mask anyvec.Vector, chunk int) anydiff.Res {
	if chunk <= 0 || scores.Output().Len()%chunk != 0 {
		panic(fmt.Sprintf("chunk size %d must divide score length %d", chunk,
			scores.Output().Len()))
	}
	values := vectorFloats(scores.Output())
	present := vectorFloats(mask)
	offsets := make([]float64, len(values))
	for start := 0; start < len(values); start += chunk {
		var max float64
		var found bool
		for i := start; i < start+chunk; i++ {
			if present[i] != 0 && (!found || values[i] > max) {
				max, found = values[i], true
			}
		}
		for i := start; i < start+chunk; i++ {
			if present[i] != 0 {
				offsets[i] = -max
			} else {
				offsets[i] = -maskPenalty
			}
		}
	}
	c := mask.Creator()
	offsetVec := c.MakeVectorData(c.MakeNumericList(offsets))
	shifted := anydiff.Add(ApplyMask(scores, mask), anydiff.NewConst(offsetVec))
	return anydiff.LogSoftmax(shifted, chunk)
}

// MaskedSoftmax computes a softmax over each chunk of
// scores in which every padded entry is exactly zero.
//
// The probabilities of the real entries in a chunk sum to
// one, unless the chunk is fully padded, in which case all
// of its outputs are zero.
func MaskedSoftmax(scores anydiff.Res, mask anyvec.Vector, chunk int) anydiff.Res {
	return ApplyMask(anydiff.Exp(MaskedLogSoftmax(scores, mask, chunk)), mask)
}

func vectorFloats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return append([]float64{}, data...)
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}
