package anymem

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
)

// Summary lists the stages of the model, their output
// shapes and parameter counts, and whether each stage
// propagates a padding mask.
func (m *Model) Summary() string {
	p := m.Params
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tOUTPUT\tPARAMS\tMASKED")

	wordDims, charDims := p.wordDims()
	fmt.Fprintf(w, "word embedding\t(batch, options, [knowledge,] %d, %d)\t%d\tyes\n",
		p.MaxSentenceLength, wordDims, countParams(m.Words.Parameters()))
	if m.Chars != nil {
		fmt.Fprintf(w, "character embedding\t(batch, options, [knowledge,] %d, %d, %d)\t%d\tyes\n",
			p.MaxSentenceLength, p.MaxWordLength, charDims, countParams(m.Chars.Parameters()))
		fmt.Fprintf(w, "character mean\t(batch, options, [knowledge,] %d, %d)\t0\tyes\n",
			p.MaxSentenceLength, charDims)
	}
	fmt.Fprintf(w, "combined embedding\t(batch, options, [knowledge,] %d, %d)\t0\tyes\n",
		p.MaxSentenceLength, p.EmbeddingSize)
	fmt.Fprintf(w, "sentence encoding\t(batch, options, [knowledge,] %d)\t0\tyes\n",
		p.EmbeddingSize)
	for i := 0; i < p.NumMemoryLayers; i++ {
		fmt.Fprintf(w, "knowledge selector %d\t(batch, options, %d)\t0\tyes\n", i,
			p.MaxKnowledgeLength)
		var params int
		if len(m.Updates) > i {
			params = countParams(m.Updates[i].Parameters())
		}
		fmt.Fprintf(w, "memory update %d (%s)\t(batch, options, %d)\t%d\tno\n", i,
			p.MemoryUpdate, p.EmbeddingSize, params)
	}
	fmt.Fprintf(w, "hidden layer\t(batch, options, %d)\t%d\tno\n", p.HiddenSize,
		countParams(m.Hidden.Parameters()))
	fmt.Fprintf(w, "option score\t(batch, options)\t%d\tno\n",
		countParams(m.Output.Parameters()))
	fmt.Fprintf(w, "answer option softmax\t(batch, %d)\t0\tyes\n", p.NumOptions)
	w.Flush()

	fmt.Fprintf(&buf, "total parameters: %d\n", countParams(m.Parameters()))
	return buf.String()
}

func countParams(params []*anydiff.Var) int {
	var res int
	for _, p := range params {
		res += p.Vector.Len()
	}
	return res
}

var _ anynet.Parameterizer = (*Model)(nil)
