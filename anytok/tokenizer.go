// Package anytok splits text into tokens and maps tokens
// to the indices consumed by anypad.
package anytok

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// An Encoding determines which channels a Tokenizer
// produces for every word.
type Encoding int

const (
	Words Encoding = iota
	WordsAndCharacters
)

var encodingNames = map[Encoding]string{
	Words:              "words",
	WordsAndCharacters: "words and characters",
}

// ParseEncoding parses an encoding name, such as "words"
// or "words and characters".
func ParseEncoding(name string) (Encoding, error) {
	for e, n := range encodingNames {
		if n == name {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown encoding: %q", name)
}

// String returns the encoding name.
func (e Encoding) String() string {
	if n, ok := encodingNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// Characters reports whether the encoding includes a
// character channel.
func (e Encoding) Characters() bool {
	return e == WordsAndCharacters
}

// MarshalYAML encodes the encoding by name.
func (e Encoding) MarshalYAML() (interface{}, error) {
	if _, ok := encodingNames[e]; !ok {
		return nil, fmt.Errorf("unknown encoding: %d", int(e))
	}
	return e.String(), nil
}

// UnmarshalYAML decodes an encoding name.
func (e *Encoding) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseEncoding(name)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// A WordSplitter splits raw text into words.
type WordSplitter interface {
	Split(text string) []string
}

// SimpleSplitter lower-cases text and splits it on white
// space.
// Punctuation characters become tokens of their own.
type SimpleSplitter struct{}

// Split splits the text.
func (s SimpleSplitter) Split(text string) []string {
	var res []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			res = append(res, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			res = append(res, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return res
}

// A Tokenizer turns text into words and, depending on the
// Encoding, the characters of every word.
type Tokenizer struct {
	// Splitter is used to find words.
	// If nil, SimpleSplitter is used.
	Splitter WordSplitter

	Encoding Encoding
}

// Tokenize splits the text.
// The chars result is nil unless the encoding includes
// characters.
func (t *Tokenizer) Tokenize(text string) (words []string, chars [][]string) {
	splitter := t.Splitter
	if splitter == nil {
		splitter = SimpleSplitter{}
	}
	words = splitter.Split(text)
	if !t.Encoding.Characters() {
		return words, nil
	}
	chars = make([][]string, len(words))
	for i, w := range words {
		for _, r := range w {
			chars[i] = append(chars[i], string(r))
		}
	}
	return words, chars
}
