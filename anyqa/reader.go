// Package anyqa reads multiple-choice question data and
// trains memory networks on it.
package anyqa

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/essentials"
)

// A RawInstance is a question before it has been
// tokenized and indexed.
type RawInstance struct {
	QuestionID string
	Options    []string
	Labels     []bool

	// Knowledge has one list of background snippets per
	// option.
	Knowledge [][]string
}

// ReadInstances reads instances and, optionally, their
// background knowledge.
//
// Every line of the instance data has the form
//
//     question_id<TAB>option text<TAB>label
//
// where label is 0 or 1.
// Consecutive lines with the same question ID are the
// options of one instance.
//
// Every line of the background data has the form
//
//     question_id<TAB>option_number<TAB>snippet<TAB>...
//
// where option_number is the 0-based index of the option
// within its question.
//
// The background reader may be nil.
// Malformed lines result in an *anypad.ValidationError.
func ReadInstances(instances, background io.Reader) ([]*RawInstance, error) {
	var res []*RawInstance
	byID := map[string]*RawInstance{}
	err := readTSV(instances, func(lineNum int, fields []string) error {
		id := fields[0]
		continued := len(res) > 0 && res[len(res)-1].QuestionID == id
		instIdx := len(res)
		if continued {
			instIdx--
		}
		if len(fields) != 3 {
			return lineError(instIdx, lineNum, "expected 3 fields but got %d", len(fields))
		}
		label, err := parseLabel(fields[2])
		if err != nil {
			return lineError(instIdx, lineNum, "%s", err)
		}
		if !continued {
			if _, ok := byID[id]; ok {
				return lineError(len(res), lineNum, "question %q is not contiguous", id)
			}
			inst := &RawInstance{QuestionID: id}
			byID[id] = inst
			res = append(res, inst)
		}
		inst := res[len(res)-1]
		inst.Options = append(inst.Options, fields[1])
		inst.Labels = append(inst.Labels, label)
		inst.Knowledge = append(inst.Knowledge, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, inst := range res {
		if !anyTrue(inst.Labels) {
			return nil, &anypad.ValidationError{
				Instance: i,
				Msg:      fmt.Sprintf("question %q has no true option", inst.QuestionID),
			}
		}
	}

	if background == nil {
		return res, nil
	}
	err = readTSV(background, func(lineNum int, fields []string) error {
		if len(fields) < 2 {
			return lineError(-1, lineNum, "expected at least 2 fields but got %d", len(fields))
		}
		inst, ok := byID[fields[0]]
		if !ok {
			return lineError(-1, lineNum, "unknown question %q", fields[0])
		}
		optIdx, err := strconv.Atoi(fields[1])
		if err != nil || optIdx < 0 || optIdx >= len(inst.Options) {
			return lineError(-1, lineNum, "invalid option number %q", fields[1])
		}
		for _, snippet := range fields[2:] {
			if strings.TrimSpace(snippet) != "" {
				inst.Knowledge[optIdx] = append(inst.Knowledge[optIdx], snippet)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReadInstanceFiles is like ReadInstances, but it reads
// from files.
// If backgroundPath is empty, no background is read.
func ReadInstanceFiles(path, backgroundPath string) ([]*RawInstance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var background io.Reader
	if backgroundPath != "" {
		bf, err := os.Open(backgroundPath)
		if err != nil {
			return nil, err
		}
		defer bf.Close()
		background = bf
	}
	return ReadInstances(f, background)
}

func readTSV(r io.Reader, f func(lineNum int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lineNum int
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := f(lineNum, strings.Split(line, "\t")); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return essentials.AddCtx("read TSV", err)
	}
	return nil
}

func parseLabel(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid label %q", s)
	}
}

func lineError(inst, line int, format string, args ...interface{}) error {
	return &anypad.ValidationError{
		Instance: inst,
		Msg:      fmt.Sprintf("line %d: ", line) + fmt.Sprintf(format, args...),
	}
}

func anyTrue(b []bool) bool {
	for _, x := range b {
		if x {
			return true
		}
	}
	return false
}
