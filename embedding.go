package anymem

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var e Embedding
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeEmbedding)
}

// An Embedding is a learned lookup table which maps token
// indices to vectors.
//
// Weights is a packed (VocabSize, Dims) matrix.
type Embedding struct {
	VocabSize int
	Dims      int
	Weights   *anydiff.Var
}

// DeserializeEmbedding deserializes an Embedding.
func DeserializeEmbedding(d []byte) (*Embedding, error) {
	var dims serializer.Int
	var weights *anyvecsave.S
	if err := serializer.DeserializeAny(d, &dims, &weights); err != nil {
		return nil, essentials.AddCtx("deserialize Embedding", err)
	}
	if dims <= 0 || weights.Vector.Len()%int(dims) != 0 {
		return nil, errors.New("deserialize Embedding: invalid matrix dimensions")
	}
	return &Embedding{
		VocabSize: weights.Vector.Len() / int(dims),
		Dims:      int(dims),
		Weights:   anydiff.NewVar(weights.Vector),
	}, nil
}

// NewEmbedding creates a new, randomized Embedding.
// Each component is drawn from a normal distribution with
// variance 1/dims.
func NewEmbedding(c anyvec.Creator, vocabSize, dims int) *Embedding {
	weights := c.MakeVector(vocabSize * dims)
	anyvec.Rand(weights, anyvec.Normal, nil)
	weights.Scale(c.MakeNumeric(1 / math.Sqrt(float64(dims))))
	return &Embedding{
		VocabSize: vocabSize,
		Dims:      dims,
		Weights:   anydiff.NewVar(weights),
	}
}

// Lookup produces a packed matrix with one row per index.
//
// Indices outside of the vocabulary are looked up as
// anytok.UnknownIndex.
// The padding index is looked up like any other; callers
// are expected to mask its rows.
func (e *Embedding) Lookup(indices []int) anydiff.Res {
	table := make([]int, 0, len(indices)*e.Dims)
	for _, idx := range indices {
		if idx < 0 || idx >= e.VocabSize {
			idx = anytok.UnknownIndex
		}
		for i := 0; i < e.Dims; i++ {
			table = append(table, idx*e.Dims+i)
		}
	}
	return gather(e.Weights, table)
}

// Parameters returns the lookup table.
func (e *Embedding) Parameters() []*anydiff.Var {
	return []*anydiff.Var{e.Weights}
}

// SerializerType returns the unique ID used to serialize
// an Embedding with the serializer package.
func (e *Embedding) SerializerType() string {
	return "github.com/unixpickle/anymem.Embedding"
}

// Serialize serializes the Embedding.
func (e *Embedding) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(e.Dims),
		&anyvecsave.S{Vector: e.Weights.Vector},
	)
}
