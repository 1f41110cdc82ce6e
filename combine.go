package anymem

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anynet"
)

// embed produces the combined embedding of every word slot
// in a padded word tensor.
//
// The result is a packed matrix with one row of size
// EmbeddingSize per word slot.
// Rows for padded words are exactly zero.
//
// When the model has a character embedding, each word's
// vector is the concatenation of its word embedding and the
// mean embedding of its real characters.
func (m *Model) embed(words, chars *anypad.IntTensor, wordMask, charMask *anypad.Mask) anydiff.Res {
	c := m.Words.Weights.Vector.Creator()
	numWords := len(words.Data)
	res := m.Words.Lookup(words.Data)
	if m.Chars != nil {
		res = anynet.ConcatMixer{}.Mix(res, m.embedChars(chars, charMask), numWords)
	}
	return maskRes(res, wordMask.Vector(c, m.Params.EmbeddingSize))
}

// embedChars averages the embeddings of the characters of
// every word slot.
// Slots without characters get a zero vector.
func (m *Model) embedChars(chars *anypad.IntTensor, mask *anypad.Mask) anydiff.Res {
	c := m.Chars.Weights.Vector.Creator()
	dims := m.Chars.Dims
	wordLen := chars.Shape[len(chars.Shape)-1]
	numWords := len(chars.Data) / wordLen

	embedded := maskRes(m.Chars.Lookup(chars.Data), mask.Vector(c, dims))
	sums := sumMiddle(embedded, numWords, wordLen, dims)

	scales := make([]float64, 0, numWords*dims)
	for i := 0; i < numWords; i++ {
		var count int
		for _, present := range mask.Data[i*wordLen : (i+1)*wordLen] {
			if present {
				count++
			}
		}
		scale := 1 / float64(maxInt(count, 1))
		for j := 0; j < dims; j++ {
			scales = append(scales, scale)
		}
	}
	return maskRes(sums, c.MakeVectorData(c.MakeNumericList(scales)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
