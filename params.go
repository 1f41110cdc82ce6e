package anymem

import (
	"fmt"

	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gopkg.in/yaml.v3"
)

func init() {
	var p Params
	serializer.RegisterTypedDeserializer(p.SerializerType(), DeserializeParams)
}

// A MemoryUpdate determines how a memory layer merges the
// selected knowledge into the current memory.
type MemoryUpdate string

const (
	// SumUpdate adds the selected knowledge to the memory.
	SumUpdate MemoryUpdate = "sum"

	// DenseConcatUpdate applies a learned tanh layer to the
	// concatenation of the memory and the knowledge.
	DenseConcatUpdate MemoryUpdate = "dense_concat"
)

// A Loss determines how answer options are scored during
// training.
type Loss string

const (
	// SoftmaxLoss treats the options as one categorical
	// distribution with a single correct option.
	SoftmaxLoss Loss = "softmax"

	// SigmoidLoss treats every option as an independent
	// true/false statement.
	SigmoidLoss Loss = "sigmoid"
)

// Params stores the hyper-parameters of a Model.
type Params struct {
	EmbeddingSize int `yaml:"embedding_size"`
	HiddenSize    int `yaml:"hidden_size"`

	NumOptions         int `yaml:"num_options"`
	MaxKnowledgeLength int `yaml:"max_knowledge_length"`
	MaxSentenceLength  int `yaml:"max_sentence_length"`

	// MaxWordLength is only used when Encoding includes
	// characters.
	MaxWordLength int `yaml:"max_word_length"`

	NumMemoryLayers int             `yaml:"num_memory_layers"`
	MemoryUpdate    MemoryUpdate    `yaml:"memory_update"`
	Encoding        anytok.Encoding `yaml:"encoding"`
	Loss            Loss            `yaml:"loss"`
}

// DefaultParams returns the default hyper-parameters.
// The padding lengths are left at zero, meaning that they
// should be inferred from data.
func DefaultParams() Params {
	return Params{
		EmbeddingSize:   20,
		HiddenSize:      10,
		NumMemoryLayers: 1,
		MemoryUpdate:    SumUpdate,
		Encoding:        anytok.Words,
		Loss:            SoftmaxLoss,
	}
}

// DeserializeParams deserializes Params.
func DeserializeParams(d []byte) (*Params, error) {
	var res Params
	if err := yaml.Unmarshal(d, &res); err != nil {
		return nil, essentials.AddCtx("deserialize Params", err)
	}
	return &res, nil
}

// Validate checks that a Model can be built with the
// hyper-parameters.
func (p *Params) Validate() error {
	positive := []struct {
		name string
		val  int
	}{
		{"embedding_size", p.EmbeddingSize},
		{"hidden_size", p.HiddenSize},
		{"num_options", p.NumOptions},
		{"max_knowledge_length", p.MaxKnowledgeLength},
		{"max_sentence_length", p.MaxSentenceLength},
		{"num_memory_layers", p.NumMemoryLayers},
	}
	if p.Encoding.Characters() {
		positive = append(positive, struct {
			name string
			val  int
		}{"max_word_length", p.MaxWordLength})
		if p.EmbeddingSize < 2 {
			return &anypad.ConfigError{
				Msg: "embedding_size must be at least 2 to hold words and characters",
			}
		}
	}
	for _, x := range positive {
		if x.val <= 0 {
			return &anypad.ConfigError{Msg: fmt.Sprintf("%s must be positive (got %d)", x.name,
				x.val)}
		}
	}
	switch p.MemoryUpdate {
	case SumUpdate, DenseConcatUpdate:
	default:
		return &anypad.ConfigError{Msg: fmt.Sprintf("unknown memory_update: %q", p.MemoryUpdate)}
	}
	switch p.Loss {
	case SoftmaxLoss, SigmoidLoss:
	default:
		return &anypad.ConfigError{Msg: fmt.Sprintf("unknown loss: %q", p.Loss)}
	}
	return nil
}

// Lengths returns the padding lengths which batches for
// the model must use.
func (p *Params) Lengths() anypad.Lengths {
	res := anypad.Lengths{
		Options:   p.NumOptions,
		Knowledge: p.MaxKnowledgeLength,
		Words:     p.MaxSentenceLength,
	}
	if p.Encoding.Characters() {
		res.Chars = p.MaxWordLength
	}
	return res
}

// InferLengths fills in every zero padding length from
// the natural lengths of a data set.
func (p *Params) InferLengths(l anypad.Lengths) {
	if p.NumOptions == 0 {
		p.NumOptions = l.Options
	}
	if p.MaxKnowledgeLength == 0 {
		p.MaxKnowledgeLength = l.Knowledge
	}
	if p.MaxSentenceLength == 0 {
		p.MaxSentenceLength = l.Words
	}
	if p.MaxWordLength == 0 && p.Encoding.Characters() {
		p.MaxWordLength = l.Chars
	}
}

// wordDims returns the embedding sizes of the word and
// character channels.
// Together they always add up to EmbeddingSize.
func (p *Params) wordDims() (words, chars int) {
	if !p.Encoding.Characters() {
		return p.EmbeddingSize, 0
	}
	chars = p.EmbeddingSize / 2
	return p.EmbeddingSize - chars, chars
}

// SerializerType returns the unique ID used to serialize
// Params with the serializer package.
func (p *Params) SerializerType() string {
	return "github.com/unixpickle/anymem.Params"
}

// Serialize serializes the Params as YAML.
func (p *Params) Serialize() ([]byte, error) {
	return yaml.Marshal(p)
}
