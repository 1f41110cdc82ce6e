// Package anymem implements memory networks for answering
// multiple-choice questions with background knowledge.
//
// A Model consumes padded batches from the anypad package.
// Masks flow through every stage, so padded words,
// knowledge snippets and answer options never influence
// the scores of real ones, and padded answer options are
// assigned a probability of exactly zero.
package anymem

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// A Model is a memory network which scores the answer
// options of multiple-choice questions.
//
// Every option is encoded as a bag of word embeddings.
// The encoding is used as the initial memory, and each
// memory layer attends over the option's knowledge
// snippets and merges the selected knowledge back into the
// memory.
// Finally, every option is scored from its encoding and
// its final memory.
type Model struct {
	Params Params

	Words *Embedding

	// Chars is nil unless Params.Encoding includes
	// characters.
	Chars *Embedding

	// Updates has one layer per memory layer when
	// Params.MemoryUpdate is DenseConcatUpdate.
	Updates []*anynet.FC

	Hidden *anynet.FC
	Output *anynet.FC
}

// NewModel creates a randomly initialized Model.
//
// The vocabulary sizes include the padding and unknown
// indices.
// The character vocabulary is ignored unless the encoding
// includes characters.
func NewModel(c anyvec.Creator, p Params, wordVocab, charVocab int) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if wordVocab < 2 || (p.Encoding.Characters() && charVocab < 2) {
		return nil, errors.New("new model: vocabulary must include reserved indices")
	}
	wordDims, charDims := p.wordDims()
	res := &Model{
		Params: p,
		Words:  NewEmbedding(c, wordVocab, wordDims),
		Hidden: anynet.NewFC(c, p.EmbeddingSize*2, p.HiddenSize),
		Output: anynet.NewFC(c, p.HiddenSize, 1),
	}
	if charDims > 0 {
		res.Chars = NewEmbedding(c, charVocab, charDims)
	}
	if p.MemoryUpdate == DenseConcatUpdate {
		for i := 0; i < p.NumMemoryLayers; i++ {
			res.Updates = append(res.Updates, anynet.NewFC(c, p.EmbeddingSize*2,
				p.EmbeddingSize))
		}
	}
	return res, nil
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	if len(slice) < 4 {
		return nil, errors.New("deserialize Model: too few components")
	}
	params, ok1 := slice[0].(*Params)
	words, ok2 := slice[1].(*Embedding)
	hidden, ok3 := slice[2].(*anynet.FC)
	output, ok4 := slice[3].(*anynet.FC)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("deserialize Model: unexpected component types")
	}
	res := &Model{
		Params: *params,
		Words:  words,
		Hidden: hidden,
		Output: output,
	}
	rest := slice[4:]
	if params.Encoding.Characters() {
		if len(rest) == 0 {
			return nil, errors.New("deserialize Model: missing character embedding")
		}
		if res.Chars, ok1 = rest[0].(*Embedding); !ok1 {
			return nil, fmt.Errorf("deserialize Model: not an Embedding: %T", rest[0])
		}
		rest = rest[1:]
	}
	for _, x := range rest {
		if fc, ok := x.(*anynet.FC); ok {
			res.Updates = append(res.Updates, fc)
		} else {
			return nil, fmt.Errorf("deserialize Model: not an FC: %T", x)
		}
	}
	if params.MemoryUpdate == DenseConcatUpdate && len(res.Updates) != params.NumMemoryLayers {
		return nil, errors.New("deserialize Model: wrong number of memory update layers")
	}
	return res, nil
}

// Parameters returns the learnable variables of every
// component.
func (m *Model) Parameters() []*anydiff.Var {
	res := m.Words.Parameters()
	if m.Chars != nil {
		res = append(res, m.Chars.Parameters()...)
	}
	for _, u := range m.Updates {
		res = append(res, u.Parameters()...)
	}
	res = append(res, m.Hidden.Parameters()...)
	res = append(res, m.Output.Parameters()...)
	return res
}

// A Result stores the outputs of a Model for a batch.
type Result struct {
	Batch *anypad.Batch
	Masks *anypad.Masks

	// Logits stores one unnormalized score per option slot.
	Logits anydiff.Res

	// LogProbs and Probs are the (log-)probabilities over
	// the options of each instance.
	// Padded options have a probability of exactly 0.
	LogProbs anydiff.Res
	Probs    anydiff.Res

	optionEmbedding     anydiff.Res
	backgroundEmbedding anydiff.Res
	selectors           []anydiff.Res
	embeddingSize       int
	loss                Loss
}

// Apply runs the model on a batch.
//
// The batch must have been padded to m.Params.Lengths();
// otherwise an *anypad.ConfigError is returned.
func (m *Model) Apply(b *anypad.Batch, masks *anypad.Masks) (*Result, error) {
	if b.Lengths != m.Params.Lengths() {
		return nil, &anypad.ConfigError{
			Msg: fmt.Sprintf("batch lengths %+v do not match model lengths %+v", b.Lengths,
				m.Params.Lengths()),
		}
	}
	if b.Size == 0 {
		return nil, errors.New("apply model: empty batch")
	}

	c := m.Words.Weights.Vector.Creator()
	numOpts := m.Params.NumOptions
	knowLen := m.Params.MaxKnowledgeLength
	sentLen := m.Params.MaxSentenceLength
	embSize := m.Params.EmbeddingSize
	rows := b.Size * numOpts

	res := &Result{Batch: b, Masks: masks, embeddingSize: embSize, loss: m.Params.Loss}
	res.optionEmbedding = m.embed(b.OptionWords, b.OptionChars, masks.OptionWords,
		masks.OptionChars)
	res.backgroundEmbedding = m.embed(b.KnowledgeWords, b.KnowledgeChars, masks.KnowledgeWords,
		masks.KnowledgeChars)

	options := sumMiddle(res.optionEmbedding, rows, sentLen, embSize)
	knowledge := sumMiddle(res.backgroundEmbedding, rows*knowLen, sentLen, embSize)
	knowMask := masks.Knowledge.Vector(c, 1)

	memory := options
	for hop := 0; hop < m.Params.NumMemoryLayers; hop++ {
		hop := hop
		memory = anydiff.Pool(memory, func(memory anydiff.Res) anydiff.Res {
			selector := m.selectKnowledge(memory, knowledge, knowMask, rows)
			res.selectors = append(res.selectors, selector)
			selected := m.weightKnowledge(selector, knowledge, rows)
			return m.updateMemory(hop, memory, selected, rows)
		})
	}

	res.Logits = m.scoreOptions(options, memory, rows)
	optMask := masks.Options.Vector(c, 1)
	res.LogProbs = anypad.MaskedLogSoftmax(res.Logits, optMask, numOpts)
	res.Probs = anypad.MaskedSoftmax(res.Logits, optMask, numOpts)
	return res, nil
}

// Predict computes the answer option probabilities for a
// batch, packed as a (batch, options) matrix.
func (m *Model) Predict(b *anypad.Batch, masks *anypad.Masks) ([]float64, error) {
	res, err := m.Apply(b, masks)
	if err != nil {
		return nil, err
	}
	return vectorFloats(res.Probs.Output()), nil
}

// selectKnowledge computes the attention of every memory
// over the knowledge snippets of its option.
func (m *Model) selectKnowledge(memory, knowledge anydiff.Res, mask anyvec.Vector,
	rows int) anydiff.Res {
	knowLen := m.Params.MaxKnowledgeLength
	embSize := m.Params.EmbeddingSize
	repeated := repeatMiddle(memory, rows, knowLen, embSize)
	dots := anydiff.SumCols(&anydiff.Matrix{
		Data: anydiff.Mul(repeated, knowledge),
		Rows: rows * knowLen,
		Cols: embSize,
	})
	return anypad.MaskedSoftmax(dots, mask, knowLen)
}

// weightKnowledge sums the knowledge snippets of each
// option, weighted by the attention.
func (m *Model) weightKnowledge(selector, knowledge anydiff.Res, rows int) anydiff.Res {
	embSize := m.Params.EmbeddingSize
	weights := repeatEach(selector, embSize)
	return sumMiddle(anydiff.Mul(weights, knowledge), rows, m.Params.MaxKnowledgeLength,
		embSize)
}

func (m *Model) updateMemory(hop int, memory, selected anydiff.Res, rows int) anydiff.Res {
	switch m.Params.MemoryUpdate {
	case DenseConcatUpdate:
		joined := anynet.ConcatMixer{}.Mix(memory, selected, rows)
		return anynet.Tanh.Apply(m.Updates[hop].Apply(joined, rows), rows)
	default:
		return anydiff.Add(memory, selected)
	}
}

func (m *Model) scoreOptions(options, memory anydiff.Res, rows int) anydiff.Res {
	joined := anynet.ConcatMixer{}.Mix(options, memory, rows)
	hidden := anynet.Tanh.Apply(m.Hidden.Apply(joined, rows), rows)
	return m.Output.Apply(hidden, rows)
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/unixpickle/anymem.Model"
}

// Serialize serializes the Model.
func (m *Model) Serialize() ([]byte, error) {
	list := []serializer.Serializer{&m.Params, m.Words, m.Hidden, m.Output}
	if m.Chars != nil {
		list = append(list, m.Chars)
	}
	for _, u := range m.Updates {
		list = append(list, u)
	}
	return serializer.SerializeSlice(list)
}
