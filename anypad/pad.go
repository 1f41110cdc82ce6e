package anypad

import "fmt"

// A Sentence is an indexed piece of text.
//
// Chars is optional.
// If it is set, it must contain the character indices of
// every word in Words.
type Sentence struct {
	Words []int
	Chars [][]int
}

// An Instance is an indexed multiple-choice example.
//
// Knowledge, if non-nil, holds the background snippets of
// each answer option, so len(Knowledge) == len(Options).
//
// Label is the index of the correct option.
// For multi-label data, Labels is set instead and marks
// every option which is true.
type Instance struct {
	Options   []Sentence
	Knowledge [][]Sentence
	Label     int
	Labels    []bool
}

// Validate checks that the instance can be padded.
func (i *Instance) Validate() error {
	if len(i.Options) == 0 {
		return &ValidationError{Instance: -1, Msg: "no answer options"}
	}
	if i.Knowledge != nil && len(i.Knowledge) != len(i.Options) {
		return &ValidationError{
			Instance: -1,
			Msg: fmt.Sprintf("%d knowledge lists for %d options", len(i.Knowledge),
				len(i.Options)),
		}
	}
	if i.Labels != nil {
		if len(i.Labels) != len(i.Options) {
			return &ValidationError{
				Instance: -1,
				Msg:      fmt.Sprintf("%d labels for %d options", len(i.Labels), len(i.Options)),
			}
		}
	} else if i.Label < 0 || i.Label >= len(i.Options) {
		return &ValidationError{
			Instance: -1,
			Msg:      fmt.Sprintf("label %d out of range for %d options", i.Label, len(i.Options)),
		}
	}
	for j, s := range i.Options {
		if err := validateSentence(s); err != nil {
			return &ValidationError{Instance: -1, Msg: fmt.Sprintf("option %d: %s", j, err)}
		}
	}
	for j, know := range i.Knowledge {
		for k, s := range know {
			if err := validateSentence(s); err != nil {
				return &ValidationError{
					Instance: -1,
					Msg:      fmt.Sprintf("option %d knowledge %d: %s", j, k, err),
				}
			}
		}
	}
	return nil
}

// labelVector returns the positive options.
func (i *Instance) labelVector() []bool {
	if i.Labels != nil {
		return i.Labels
	}
	res := make([]bool, len(i.Options))
	res[i.Label] = true
	return res
}

func validateSentence(s Sentence) error {
	if len(s.Words) == 0 {
		return fmt.Errorf("empty sentence")
	}
	for _, w := range s.Words {
		if w <= Padding {
			return fmt.Errorf("word index %d is not positive", w)
		}
	}
	if s.Chars == nil {
		return nil
	}
	if len(s.Chars) != len(s.Words) {
		return fmt.Errorf("%d character lists for %d words", len(s.Chars), len(s.Words))
	}
	for _, word := range s.Chars {
		if len(word) == 0 {
			return fmt.Errorf("empty word")
		}
		for _, c := range word {
			if c <= Padding {
				return fmt.Errorf("character index %d is not positive", c)
			}
		}
	}
	return nil
}

// Lengths specifies the padded size of every channel.
//
// If Chars is 0, no character channel is produced.
type Lengths struct {
	Options   int
	Knowledge int
	Words     int
	Chars     int
}

// Validate makes sure no length is negative.
func (l Lengths) Validate() error {
	for _, x := range []struct {
		name string
		val  int
	}{
		{"options", l.Options},
		{"knowledge", l.Knowledge},
		{"words", l.Words},
		{"chars", l.Chars},
	} {
		if x.val < 0 {
			return &ConfigError{Msg: fmt.Sprintf("negative %s length: %d", x.name, x.val)}
		}
	}
	return nil
}

// MaxLengths computes the smallest Lengths which fit every
// instance without truncation.
// The character length is 0 unless some sentence carries
// character indices.
func MaxLengths(insts []*Instance) Lengths {
	var res Lengths
	sentence := func(s Sentence) {
		res.Words = maxInt(res.Words, len(s.Words))
		for _, w := range s.Chars {
			res.Chars = maxInt(res.Chars, len(w))
		}
	}
	for _, inst := range insts {
		res.Options = maxInt(res.Options, len(inst.Options))
		for _, s := range inst.Options {
			sentence(s)
		}
		for _, know := range inst.Knowledge {
			res.Knowledge = maxInt(res.Knowledge, len(know))
			for _, s := range know {
				sentence(s)
			}
		}
	}
	return res
}

// A Batch is a padded batch of instances.
//
// Shapes, with n = Size and l = Lengths:
//
//     OptionWords:    (n, l.Options, l.Words)
//     OptionChars:    (n, l.Options, l.Words, l.Chars)
//     KnowledgeWords: (n, l.Options, l.Knowledge, l.Words)
//     KnowledgeChars: (n, l.Options, l.Knowledge, l.Words, l.Chars)
//
// The character tensors are nil when l.Chars is 0.
// Labels is a packed (n, l.Options) matrix of 0s and 1s.
type Batch struct {
	Size    int
	Lengths Lengths

	OptionWords    *IntTensor
	OptionChars    *IntTensor
	KnowledgeWords *IntTensor
	KnowledgeChars *IntTensor

	Labels []float64
}

// Masks stores the masks derived from a Batch.
//
// OptionWords and KnowledgeWords account for characters:
// when a character channel exists, a word is present if
// its index or any of its characters is present.
type Masks struct {
	Options        *Mask
	Knowledge      *Mask
	OptionWords    *Mask
	KnowledgeWords *Mask
	OptionChars    *Mask
	KnowledgeChars *Mask
}

// Pad validates and pads a list of instances.
//
// Options, knowledge snippets, words and characters which
// exceed their length are truncated from the left, so that
// the rightmost content is kept.
// If this drops an option labeled as true, or leaves it
// without words, Pad fails with a *ConfigError.
func Pad(insts []*Instance, l Lengths) (*Batch, *Masks, error) {
	b, err := NewBatch(len(insts), l)
	if err != nil {
		return nil, nil, err
	}
	for i, inst := range insts {
		if err := b.PadInstance(i, inst); err != nil {
			return nil, nil, err
		}
	}
	return b, b.Masks(), nil
}

// NewBatch creates a fully padded batch of n instances.
func NewBatch(n int, l Lengths) (*Batch, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	b := &Batch{
		Size:           n,
		Lengths:        l,
		OptionWords:    NewIntTensor(n, l.Options, l.Words),
		KnowledgeWords: NewIntTensor(n, l.Options, l.Knowledge, l.Words),
		Labels:         make([]float64, n*l.Options),
	}
	if l.Chars > 0 {
		b.OptionChars = NewIntTensor(n, l.Options, l.Words, l.Chars)
		b.KnowledgeChars = NewIntTensor(n, l.Options, l.Knowledge, l.Words, l.Chars)
	}
	return b, nil
}

// PadInstance validates an instance and writes it into
// row i of the batch, truncating it like Pad does.
//
// Different rows may be filled concurrently.
func (b *Batch) PadInstance(i int, inst *Instance) error {
	if err := inst.Validate(); err != nil {
		err.(*ValidationError).Instance = i
		return err
	}
	l := b.Lengths
	labels := inst.labelVector()
	optStart := truncStart(len(inst.Options), l.Options)
	for o := 0; o < optStart; o++ {
		if labels[o] {
			return &ConfigError{
				Msg: fmt.Sprintf("instance %d: %d options do not fit in %d slots "+
					"without dropping true option %d", i, len(inst.Options), l.Options, o),
			}
		}
	}
	for o := optStart; o < len(inst.Options); o++ {
		slot := o - optStart
		if labels[o] && l.Words == 0 {
			return &ConfigError{
				Msg: fmt.Sprintf("instance %d: true option %d has no words left "+
					"with a sentence length of 0", i, o),
			}
		}
		if labels[o] {
			b.Labels[i*l.Options+slot] = 1
		}
		b.putSentence(b.OptionWords, b.OptionChars, []int{i, slot}, inst.Options[o])
		if inst.Knowledge == nil {
			continue
		}
		know := inst.Knowledge[o]
		kStart := truncStart(len(know), l.Knowledge)
		for k := kStart; k < len(know); k++ {
			b.putSentence(b.KnowledgeWords, b.KnowledgeChars, []int{i, slot, k - kStart},
				know[k])
		}
	}
	return nil
}

// Masks derives all the masks of the batch.
func (b *Batch) Masks() *Masks {
	res := &Masks{
		OptionWords:    ComputeMask(b.OptionWords),
		KnowledgeWords: ComputeMask(b.KnowledgeWords),
	}
	if b.OptionChars != nil {
		res.OptionChars = ComputeMask(b.OptionChars)
		res.KnowledgeChars = ComputeMask(b.KnowledgeChars)
		res.OptionWords = res.OptionWords.Or(res.OptionChars.Collapse(1))
		res.KnowledgeWords = res.KnowledgeWords.Or(res.KnowledgeChars.Collapse(1))
	}
	res.Options = res.OptionWords.Collapse(1)
	res.Knowledge = res.KnowledgeWords.Collapse(1)
	return res
}

func (b *Batch) putSentence(words, chars *IntTensor, prefix []int, s Sentence) {
	maxWords := words.Shape[len(words.Shape)-1]
	base := offset(words.Shape, prefix)
	wStart := truncStart(len(s.Words), maxWords)
	for w := wStart; w < len(s.Words); w++ {
		words.Data[base+w-wStart] = s.Words[w]
	}
	if chars == nil || s.Chars == nil {
		return
	}
	maxChars := chars.Shape[len(chars.Shape)-1]
	for w := wStart; w < len(s.Words); w++ {
		wordIdx := append(append([]int{}, prefix...), w-wStart)
		charBase := offset(chars.Shape, wordIdx)
		cs := s.Chars[w]
		cStart := truncStart(len(cs), maxChars)
		for c := cStart; c < len(cs); c++ {
			chars.Data[charBase+c-cStart] = cs[c]
		}
	}
}

// truncStart returns the first index to keep when fitting
// count items into size slots.
func truncStart(count, size int) int {
	if count > size {
		return count - size
	}
	return 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
