package anymem

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

type gatherRes struct {
	In     anydiff.Res
	Mapper anyvec.Mapper
	Out    anyvec.Vector
}

// gather produces a vector whose i-th component is
// in[table[i]].
// Components may be gathered any number of times; their
// gradients are summed.
func gather(in anydiff.Res, table []int) anydiff.Res {
	c := in.Output().Creator()
	mapper := c.MakeMapper(in.Output().Len(), table)
	out := c.MakeVector(len(table))
	mapper.Map(in.Output(), out)
	return &gatherRes{
		In:     in,
		Mapper: mapper,
		Out:    out,
	}
}

func (g *gatherRes) Output() anyvec.Vector {
	return g.Out
}

func (g *gatherRes) Vars() anydiff.VarSet {
	return g.In.Vars()
}

func (g *gatherRes) Propagate(u anyvec.Vector, grad anydiff.Grad) {
	downstream := u.Creator().MakeVector(g.In.Output().Len())
	g.Mapper.MapTranspose(u, downstream)
	g.In.Propagate(downstream, grad)
}

// sumMiddle treats in as a packed (outer, mid, inner)
// tensor and sums over the middle axis, producing an
// (outer, inner) tensor.
func sumMiddle(in anydiff.Res, outer, mid, inner int) anydiff.Res {
	if in.Output().Len() != outer*mid*inner {
		panic("input size does not match dimensions")
	}
	table := make([]int, 0, outer*mid*inner)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			for m := 0; m < mid; m++ {
				table = append(table, (o*mid+m)*inner+i)
			}
		}
	}
	return anydiff.SumCols(&anydiff.Matrix{
		Data: gather(in, table),
		Rows: outer * inner,
		Cols: mid,
	})
}

// repeatMiddle treats in as a packed (outer, inner) tensor
// and repeats every row, producing an (outer, times, inner)
// tensor.
func repeatMiddle(in anydiff.Res, outer, times, inner int) anydiff.Res {
	if in.Output().Len() != outer*inner {
		panic("input size does not match dimensions")
	}
	table := make([]int, 0, outer*times*inner)
	for o := 0; o < outer; o++ {
		for t := 0; t < times; t++ {
			for i := 0; i < inner; i++ {
				table = append(table, o*inner+i)
			}
		}
	}
	return gather(in, table)
}

// repeatEach repeats every component of in the given
// number of times.
func repeatEach(in anydiff.Res, times int) anydiff.Res {
	return repeatMiddle(in, in.Output().Len(), times, 1)
}

// maskRes multiplies in by a constant mask vector.
func maskRes(in anydiff.Res, mask anyvec.Vector) anydiff.Res {
	return anydiff.Mul(in, anydiff.NewConst(mask))
}

// vectorFloats converts a float32 or float64 vector into a
// []float64.
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
		panic("unsupported numeric type")
	}
}
