package anymem

import (
	"fmt"
	"io"
	"os"

	"github.com/unixpickle/anymem/anypad"
)

// An Observable is an intermediate output of a Model which
// can be inspected after Apply.
type Observable int

const (
	// AnswerOptionSoftmax is the answer distribution, shaped
	// (batch, options).
	AnswerOptionSoftmax Observable = iota

	// KnowledgeSelector is the attention of a memory layer
	// over knowledge snippets, shaped (batch, options,
	// knowledge).
	KnowledgeSelector

	// CombinedBackgroundEmbedding is the word-level
	// embedding of the knowledge snippets, shaped
	// (batch*options, knowledge, words, embedding).
	CombinedBackgroundEmbedding

	// CombinedOptionEmbedding is the word-level embedding of
	// the answer options, shaped (batch*options, words,
	// embedding).
	CombinedOptionEmbedding
)

var observableNames = []string{
	"answer_option_softmax",
	"knowledge_selector",
	"combined_background_embedding",
	"combined_option_embedding",
}

// ParseObservable finds an Observable by name.
func ParseObservable(name string) (Observable, error) {
	for i, x := range observableNames {
		if x == name {
			return Observable(i), nil
		}
	}
	return 0, fmt.Errorf("unknown observable: %q", name)
}

// String returns the name of the Observable.
func (o Observable) String() string {
	if o < 0 || int(o) >= len(observableNames) {
		return fmt.Sprintf("Observable(%d)", int(o))
	}
	return observableNames[o]
}

// A Tensor is a dense, row-major array of values.
type Tensor struct {
	Shape []int
	Data  []float64
}

// At returns the value at the given index.
func (t *Tensor) At(idx ...int) float64 {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("expected %d indices but got %d", len(t.Shape), len(idx)))
	}
	var offset int
	for i, x := range idx {
		if x < 0 || x >= t.Shape[i] {
			panic(fmt.Sprintf("index %v out of bounds for shape %v", idx, t.Shape))
		}
		offset = offset*t.Shape[i] + x
	}
	return t.Data[offset]
}

// An Observation is the value of an Observable for one
// batch.
//
// Mask has the shape of Value without the embedding axis
// (if there is one), and marks which entries are real.
type Observation struct {
	Name  Observable
	Hop   int
	Value *Tensor
	Mask  *anypad.Mask
}

// Observe extracts an intermediate output.
//
// The hop selects the memory layer for KnowledgeSelector
// and is ignored otherwise.
func (r *Result) Observe(name Observable, hop int) (*Observation, error) {
	b := r.Batch.Size
	l := r.Batch.Lengths
	e := r.embeddingSize
	res := &Observation{Name: name}
	switch name {
	case AnswerOptionSoftmax:
		res.Value = newTensor(vectorFloats(r.Probs.Output()), b, l.Options)
		res.Mask = r.Masks.Options
	case KnowledgeSelector:
		if hop < 0 || hop >= len(r.selectors) {
			return nil, fmt.Errorf("observe %s: hop %d out of range [0, %d)", name, hop,
				len(r.selectors))
		}
		res.Hop = hop
		res.Value = newTensor(vectorFloats(r.selectors[hop].Output()), b, l.Options,
			l.Knowledge)
		res.Mask = r.Masks.Knowledge
	case CombinedBackgroundEmbedding:
		res.Value = newTensor(vectorFloats(r.backgroundEmbedding.Output()), b*l.Options,
			l.Knowledge, l.Words, e)
		res.Mask = reshapeMask(r.Masks.KnowledgeWords, b*l.Options, l.Knowledge, l.Words)
	case CombinedOptionEmbedding:
		res.Value = newTensor(vectorFloats(r.optionEmbedding.Output()), b*l.Options,
			l.Words, e)
		res.Mask = reshapeMask(r.Masks.OptionWords, b*l.Options, l.Words)
	default:
		return nil, fmt.Errorf("observe: unknown observable %d", int(name))
	}
	return res, nil
}

// Fprint writes the observation to w, or to os.Stdout if
// w is nil.
func (o *Observation) Fprint(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	id := o.Name.String()
	if o.Name == KnowledgeSelector {
		id = fmt.Sprintf("%s %d", id, o.Hop)
	}
	fmt.Fprintln(w, "Debug ("+id+"):", "shape", o.Value.Shape, "values:", o.Value.Data)
	fmt.Fprintln(w, "Debug ("+id+"):", "mask shape", o.Mask.Shape, "mask:", o.Mask.Data)
}

func newTensor(data []float64, shape ...int) *Tensor {
	size := 1
	for _, x := range shape {
		size *= x
	}
	if size != len(data) {
		panic(fmt.Sprintf("shape %v does not match %d values", shape, len(data)))
	}
	return &Tensor{Shape: shape, Data: data}
}

func reshapeMask(m *anypad.Mask, shape ...int) *anypad.Mask {
	return &anypad.Mask{Shape: shape, Data: m.Data}
}
