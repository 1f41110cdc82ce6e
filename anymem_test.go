package anymem

import (
	"math"
	"strings"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestModelPaddedOption(t *testing.T) {
	for _, update := range []MemoryUpdate{SumUpdate, DenseConcatUpdate} {
		t.Run(string(update), func(t *testing.T) {
			p := testParams()
			p.NumOptions = 5
			p.MemoryUpdate = update
			p.NumMemoryLayers = 2
			model := testModel(t, p)

			inst := &anypad.Instance{
				Options: []anypad.Sentence{
					words(2, 3), words(4), words(5, 6, 7), words(8),
				},
				Knowledge: [][]anypad.Sentence{
					{words(2, 9)},
					{words(3), words(4, 5)},
					nil,
					{words(6), words(7), words(8)},
				},
				Label: 1,
			}
			batch, masks := padInstances(t, p, inst)
			probs, err := model.Predict(batch, masks)
			if err != nil {
				t.Fatal(err)
			}
			if len(probs) != 5 {
				t.Fatalf("expected 5 probabilities but got %d", len(probs))
			}
			if probs[4] != 0 {
				t.Errorf("padded option has probability %v", probs[4])
			}
			var sum float64
			for _, x := range probs[:4] {
				if x <= 0 {
					t.Errorf("real option has probability %v", x)
				}
				sum += x
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Errorf("probabilities sum to %v", sum)
			}
		})
	}
}

func TestModelKnowledgeSelector(t *testing.T) {
	p := testParams()
	p.NumOptions = 2
	p.NumMemoryLayers = 2
	model := testModel(t, p)

	inst := &anypad.Instance{
		Options: []anypad.Sentence{words(2, 3), words(4)},
		Knowledge: [][]anypad.Sentence{
			{words(5), words(6, 7)},
			nil,
		},
	}
	batch, masks := padInstances(t, p, inst)
	res, err := model.Apply(batch, masks)
	if err != nil {
		t.Fatal(err)
	}
	for hop := 0; hop < 2; hop++ {
		obs, err := res.Observe(KnowledgeSelector, hop)
		if err != nil {
			t.Fatal(err)
		}
		expectedShape := []int{1, 2, p.MaxKnowledgeLength}
		if !equalInts(obs.Value.Shape, expectedShape) {
			t.Fatalf("expected shape %v but got %v", expectedShape, obs.Value.Shape)
		}
		for _, x := range obs.Value.Data {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("hop %d: non-finite attention: %v", hop, obs.Value.Data)
			}
		}
		if sum := obs.Value.At(0, 0, 0) + obs.Value.At(0, 0, 1); math.Abs(sum-1) > 1e-6 {
			t.Errorf("hop %d: attention sums to %v", hop, sum)
		}
		for k := 2; k < p.MaxKnowledgeLength; k++ {
			if obs.Value.At(0, 0, k) != 0 {
				t.Errorf("hop %d: padded snippet %d has attention %v", hop, k,
					obs.Value.At(0, 0, k))
			}
		}
		for k := 0; k < p.MaxKnowledgeLength; k++ {
			if obs.Value.At(0, 1, k) != 0 {
				t.Errorf("hop %d: empty option has attention %v", hop, obs.Value.At(0, 1, k))
			}
			if obs.Mask.At(0, 1, k) {
				t.Errorf("hop %d: empty option has knowledge mask", hop)
			}
		}
	}
	if _, err := res.Observe(KnowledgeSelector, 2); err == nil {
		t.Error("expected error for out-of-range hop")
	}
}

func TestModelCombinedEmbedding(t *testing.T) {
	p := testParams()
	p.Encoding = anytok.WordsAndCharacters
	p.NumOptions = 1
	p.MaxKnowledgeLength = 3
	p.MaxSentenceLength = 1
	p.MaxWordLength = 3
	model := testModel(t, p)

	var insts []*anypad.Instance
	for _, numKnow := range []int{2, 3, 1, 2} {
		inst := &anypad.Instance{
			Options:   []anypad.Sentence{charWords([]int{2, 3})},
			Knowledge: [][]anypad.Sentence{{}},
		}
		for k := 0; k < numKnow; k++ {
			inst.Knowledge[0] = append(inst.Knowledge[0], charWords([]int{4, 5, 6}[:k+1]))
		}
		insts = append(insts, inst)
	}
	batch, masks := padInstances(t, p, insts...)
	res, err := model.Apply(batch, masks)
	if err != nil {
		t.Fatal(err)
	}

	obs, err := res.Observe(CombinedBackgroundEmbedding, 0)
	if err != nil {
		t.Fatal(err)
	}
	expectedShape := []int{4, 3, 1, p.EmbeddingSize}
	if !equalInts(obs.Value.Shape, expectedShape) {
		t.Fatalf("expected shape %v but got %v", expectedShape, obs.Value.Shape)
	}
	if !equalInts(obs.Mask.Shape, expectedShape[:3]) {
		t.Fatalf("expected mask shape %v but got %v", expectedShape[:3], obs.Mask.Shape)
	}
	expectedMask := [][]bool{
		{true, true, false},
		{true, true, true},
		{true, false, false},
		{true, true, false},
	}
	for i, row := range expectedMask {
		for k, present := range row {
			if obs.Mask.At(i, k, 0) != present {
				t.Errorf("mask[%d,%d,0] should be %v", i, k, present)
			}
			var norm float64
			for e := 0; e < p.EmbeddingSize; e++ {
				x := obs.Value.At(i, k, 0, e)
				if math.IsNaN(x) || math.IsInf(x, 0) {
					t.Fatalf("non-finite embedding at [%d,%d,0,%d]", i, k, e)
				}
				norm += x * x
			}
			if !present && norm != 0 {
				t.Errorf("padded snippet [%d,%d] has non-zero embedding", i, k)
			} else if present && norm == 0 {
				t.Errorf("real snippet [%d,%d] has zero embedding", i, k)
			}
		}
	}

	obs, err = res.Observe(CombinedOptionEmbedding, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !equalInts(obs.Value.Shape, []int{4, 1, p.EmbeddingSize}) {
		t.Errorf("unexpected option embedding shape: %v", obs.Value.Shape)
	}
	if obs.Mask.Count() != 4 {
		t.Errorf("expected 4 real option words but got %d", obs.Mask.Count())
	}
}

func TestModelLengthMismatch(t *testing.T) {
	p := testParams()
	model := testModel(t, p)
	other := p
	other.MaxSentenceLength++
	batch, masks := padInstances(t, other, &anypad.Instance{
		Options: []anypad.Sentence{words(2), words(3)},
	})
	_, err := model.Apply(batch, masks)
	if _, ok := err.(*anypad.ConfigError); !ok {
		t.Fatalf("expected ConfigError but got %v", err)
	}
}

func TestModelGradient(t *testing.T) {
	for _, loss := range []Loss{SoftmaxLoss, SigmoidLoss} {
		t.Run(string(loss), func(t *testing.T) {
			p := testParams()
			p.EmbeddingSize = 4
			p.HiddenSize = 3
			p.NumOptions = 3
			p.Loss = loss
			p.Encoding = anytok.WordsAndCharacters
			p.MaxWordLength = 2
			p.MemoryUpdate = DenseConcatUpdate
			model := testModel(t, p)
			batch, masks := padInstances(t, p, &anypad.Instance{
				Options: []anypad.Sentence{charWords([]int{2, 3}), charWords([]int{4})},
				Knowledge: [][]anypad.Sentence{
					{charWords([]int{5})},
					{charWords([]int{6, 7}), charWords([]int{3})},
				},
			})
			checker := &anydifftest.ResChecker{
				F: func() anydiff.Res {
					res, err := model.Apply(batch, masks)
					if err != nil {
						t.Fatal(err)
					}
					return res.Cost()
				},
				V: model.Parameters(),
			}
			checker.FullCheck(t)
		})
	}
}

func TestModelSummary(t *testing.T) {
	p := testParams()
	p.Encoding = anytok.WordsAndCharacters
	p.MaxWordLength = 4
	summary := testModel(t, p).Summary()
	for _, x := range []string{"character embedding", "knowledge selector 0",
		"answer option softmax", "total parameters"} {
		if !strings.Contains(summary, x) {
			t.Errorf("summary missing %q:\n%s", x, summary)
		}
	}
}

func TestParseObservable(t *testing.T) {
	for _, o := range []Observable{AnswerOptionSoftmax, KnowledgeSelector,
		CombinedBackgroundEmbedding, CombinedOptionEmbedding} {
		parsed, err := ParseObservable(o.String())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != o {
			t.Errorf("expected %v but got %v", o, parsed)
		}
	}
	if _, err := ParseObservable("dense_1"); err == nil {
		t.Error("expected error")
	}
}

func testParams() Params {
	p := DefaultParams()
	p.EmbeddingSize = 6
	p.HiddenSize = 4
	p.NumOptions = 2
	p.MaxKnowledgeLength = 4
	p.MaxSentenceLength = 3
	return p
}

func testModel(t *testing.T, p Params) *Model {
	model, err := NewModel(anyvec64.DefaultCreator{}, p, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	return model
}

func padInstances(t *testing.T, p Params, insts ...*anypad.Instance) (*anypad.Batch,
	*anypad.Masks) {
	batch, masks, err := anypad.Pad(insts, p.Lengths())
	if err != nil {
		t.Fatal(err)
	}
	return batch, masks
}

func words(ids ...int) anypad.Sentence {
	return anypad.Sentence{Words: ids}
}

// charWords creates a sentence whose words are spelled by
// the characters of the same ids.
func charWords(ids []int) anypad.Sentence {
	res := anypad.Sentence{Words: ids}
	for _, id := range ids {
		res.Chars = append(res.Chars, []int{id, id%3 + 2})
	}
	return res
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i, x := range a {
		if b[i] != x {
			return false
		}
	}
	return true
}
