package anyqa

import (
	"crypto/md5"

	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/anynet/anysgd"
)

// A Sample is an indexed question.
type Sample struct {
	QuestionID string
	Instance   *anypad.Instance
}

// A SampleList is an anysgd.SampleList of questions.
//
// It implements anysgd.Hasher by hashing question IDs, so
// that train/validation splits are stable across runs.
type SampleList []*Sample

// Len returns the number of samples.
func (s SampleList) Len() int {
	return len(s)
}

// Swap swaps two samples.
func (s SampleList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Slice copies a sub-slice of the list.
func (s SampleList) Slice(i, j int) anysgd.SampleList {
	return append(SampleList{}, s[i:j]...)
}

// Hash hashes the question ID of a sample.
func (s SampleList) Hash(i int) []byte {
	sum := md5.Sum([]byte(s[i].QuestionID))
	return sum[:]
}

// GetSample returns the sample at the index.
func (s SampleList) GetSample(i int) (*Sample, error) {
	return s[i], nil
}

// Instances returns the padded-ready instances.
func (s SampleList) Instances() []*anypad.Instance {
	res := make([]*anypad.Instance, len(s))
	for i, x := range s {
		res[i] = x.Instance
	}
	return res
}

// IndexInstances tokenizes and indexes raw instances.
//
// If fit is set and the indexer is not frozen, the
// vocabulary is first fit to every token which appears at
// least minCount times.
// Either way, tokens outside of the vocabulary are indexed
// as anytok.UnknownIndex.
func IndexInstances(raw []*RawInstance, tok *anytok.Tokenizer, idx *anytok.Indexer, fit bool,
	minCount int) (SampleList, error) {
	if fit && !idx.Frozen {
		fitIndexer(raw, tok, idx, minCount)
	}
	var res SampleList
	for i, r := range raw {
		inst := &anypad.Instance{
			Labels:    append([]bool{}, r.Labels...),
			Knowledge: make([][]anypad.Sentence, len(r.Options)),
		}
		for j, text := range r.Options {
			s, err := idx.IndexSentence(tok, text, false)
			if err != nil {
				return nil, &anypad.ValidationError{Instance: i, Msg: "option " + text + ": " +
					err.Error()}
			}
			inst.Options = append(inst.Options, s)
			for _, snippet := range r.Knowledge[j] {
				s, err := idx.IndexSentence(tok, snippet, false)
				if err != nil {
					// Snippets without words carry no knowledge.
					continue
				}
				inst.Knowledge[j] = append(inst.Knowledge[j], s)
			}
		}
		res = append(res, &Sample{QuestionID: r.QuestionID, Instance: inst})
	}
	return res, nil
}

func fitIndexer(raw []*RawInstance, tok *anytok.Tokenizer, idx *anytok.Indexer, minCount int) {
	var words, chars []string
	addText := func(text string) {
		w, c := tok.Tokenize(text)
		words = append(words, w...)
		for _, word := range c {
			chars = append(chars, word...)
		}
	}
	for _, r := range raw {
		for j, text := range r.Options {
			addText(text)
			for _, snippet := range r.Knowledge[j] {
				addText(snippet)
			}
		}
	}
	idx.Fit(anytok.WordNamespace, words, minCount)
	if tok.Encoding.Characters() {
		idx.Fit(anytok.CharNamespace, chars, minCount)
	}
}
