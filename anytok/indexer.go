package anytok

import (
	"errors"

	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"gopkg.in/yaml.v3"
)

// These are the namespaces used by IndexSentence.
const (
	WordNamespace = "words"
	CharNamespace = "characters"
)

// Reserved indices, present in every namespace.
const (
	PaddingIndex = anypad.Padding
	UnknownIndex = 1
)

const (
	paddingToken = "@@PADDING@@"
	unknownToken = "@@UNKNOWN@@"
)

func init() {
	var i Indexer
	serializer.RegisterTypedDeserializer(i.SerializerType(), DeserializeIndexer)
}

// An Indexer maps tokens to indices, with one vocabulary
// per namespace.
//
// Index 0 is reserved for padding and index 1 for tokens
// which are not in the vocabulary.
//
// An Indexer belongs to a single training run: it is
// fit on training data and then passed to everything
// that needs to index text, including prediction after
// the model is reloaded.
type Indexer struct {
	// Frozen prevents new tokens from being added.
	Frozen bool

	tokens  map[string][]string
	indices map[string]map[string]int
}

// NewIndexer creates an empty Indexer.
func NewIndexer() *Indexer {
	return &Indexer{
		tokens:  map[string][]string{},
		indices: map[string]map[string]int{},
	}
}

// DeserializeIndexer deserializes an Indexer.
// The result is frozen.
func DeserializeIndexer(d []byte) (*Indexer, error) {
	var vocabs map[string][]string
	if err := yaml.Unmarshal(d, &vocabs); err != nil {
		return nil, essentials.AddCtx("deserialize Indexer", err)
	}
	res := NewIndexer()
	for ns, toks := range vocabs {
		for _, tok := range toks {
			if tok == paddingToken || tok == unknownToken {
				return nil, errors.New("deserialize Indexer: reserved token in vocabulary")
			}
			res.Add(ns, tok)
		}
	}
	res.Frozen = true
	return res, nil
}

// Add adds a token to a namespace and returns its index.
// If the Indexer is frozen, unknown tokens are not added
// and UnknownIndex is returned.
func (i *Indexer) Add(namespace, token string) int {
	if idx, ok := i.lookup(namespace, token); ok {
		return idx
	}
	if i.Frozen {
		return UnknownIndex
	}
	if i.indices[namespace] == nil {
		i.indices[namespace] = map[string]int{paddingToken: PaddingIndex, unknownToken: UnknownIndex}
		i.tokens[namespace] = []string{paddingToken, unknownToken}
	}
	idx := len(i.tokens[namespace])
	i.indices[namespace][token] = idx
	i.tokens[namespace] = append(i.tokens[namespace], token)
	return idx
}

// Fit adds every token which appears at least minCount
// times, in order of first appearance.
func (i *Indexer) Fit(namespace string, tokens []string, minCount int) {
	counts := map[string]int{}
	for _, tok := range tokens {
		counts[tok]++
	}
	for _, tok := range tokens {
		if counts[tok] >= minCount {
			i.Add(namespace, tok)
		}
	}
}

// Index looks up a token without modifying the Indexer.
func (i *Indexer) Index(namespace, token string) int {
	if idx, ok := i.lookup(namespace, token); ok {
		return idx
	}
	return UnknownIndex
}

// Token returns the token for an index.
func (i *Indexer) Token(namespace string, idx int) string {
	switch idx {
	case PaddingIndex:
		return paddingToken
	case UnknownIndex:
		return unknownToken
	}
	toks := i.tokens[namespace]
	if idx < 0 || idx >= len(toks) {
		return unknownToken
	}
	return toks[idx]
}

// VocabSize returns the number of indices in use in a
// namespace, including the reserved ones.
func (i *Indexer) VocabSize(namespace string) int {
	if toks, ok := i.tokens[namespace]; ok {
		return len(toks)
	}
	return 2
}

// IndexSentence tokenizes and indexes a piece of text.
// If fit is true, unseen tokens are added to the Indexer.
func (i *Indexer) IndexSentence(t *Tokenizer, text string, fit bool) (anypad.Sentence, error) {
	words, chars := t.Tokenize(text)
	if len(words) == 0 {
		return anypad.Sentence{}, errors.New("index sentence: no words in text")
	}
	lookup := i.Index
	if fit {
		lookup = i.Add
	}
	var res anypad.Sentence
	for _, w := range words {
		res.Words = append(res.Words, lookup(WordNamespace, w))
	}
	if chars != nil {
		res.Chars = make([][]int, len(chars))
		for j, word := range chars {
			for _, c := range word {
				res.Chars[j] = append(res.Chars[j], lookup(CharNamespace, c))
			}
		}
	}
	return res, nil
}

// SerializerType returns the unique ID used to serialize
// an Indexer with the serializer package.
func (i *Indexer) SerializerType() string {
	return "github.com/unixpickle/anymem/anytok.Indexer"
}

// Serialize serializes the vocabularies.
func (i *Indexer) Serialize() ([]byte, error) {
	vocabs := map[string][]string{}
	for ns, toks := range i.tokens {
		vocabs[ns] = toks[2:]
	}
	return yaml.Marshal(vocabs)
}

func (i *Indexer) lookup(namespace, token string) (int, bool) {
	if token == paddingToken || token == unknownToken {
		// Text may never produce the padding index.
		return UnknownIndex, true
	}
	idx, ok := i.indices[namespace][token]
	return idx, ok
}
