// Package jiebatok provides an anytok.WordSplitter for
// Chinese text, backed by the jieba segmenter.
package jiebatok

import (
	"strings"
	"unicode"

	"github.com/yanyiwu/gojieba"
)

// A Splitter segments text with jieba.
//
// A Splitter holds native resources, so Free should be
// called once it is no longer needed.
type Splitter struct {
	// HMM enables jieba's hidden Markov model for words
	// which are not in its dictionary.
	HMM bool

	jieba *gojieba.Jieba
}

// NewSplitter creates a Splitter with jieba's default
// dictionaries and HMM enabled.
func NewSplitter() *Splitter {
	return &Splitter{HMM: true, jieba: gojieba.NewJieba()}
}

// Split segments the text into words.
// Segments which only contain white space are dropped,
// and Latin text is lower-cased.
func (s *Splitter) Split(text string) []string {
	var res []string
	for _, word := range s.jieba.Cut(text, s.HMM) {
		if strings.TrimFunc(word, unicode.IsSpace) == "" {
			continue
		}
		res = append(res, strings.ToLower(word))
	}
	return res
}

// Free releases the segmenter.
func (s *Splitter) Free() {
	s.jieba.Free()
}
