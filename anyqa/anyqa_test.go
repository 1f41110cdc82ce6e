package anyqa

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anymem"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/anyvec/anyvec64"
)

const testInstances = `q1	the sun is a star	1
q1	the sun is a planet	0
q1	the sun is a moon	0
q1	the sun is a comet	0
`

const testBackground = `q1	0	the sun is a star	stars shine
q1	1	planets orbit stars
q1	2	moons orbit planets
q1	3	comets have tails	comets orbit the sun
`

const additionalInstances = `q2	water is wet	1
q2	water is dry	0
q2	water is hot	0
q2	water is loud	0
q3	fire is hot	1
q3	fire is cold	0
q3	fire is wet	0
q3	fire is quiet	0
`

const additionalBackground = `q2	0	water makes things wet
q3	0	fire is hot	fire burns
q3	2	rain is wet
`

func TestReadInstances(t *testing.T) {
	insts, err := ReadInstances(strings.NewReader(testInstances),
		strings.NewReader(testBackground))
	require.NoError(t, err)
	require.Len(t, insts, 1)
	inst := insts[0]
	require.Equal(t, "q1", inst.QuestionID)
	require.Equal(t, []bool{true, false, false, false}, inst.Labels)
	require.Equal(t, "the sun is a moon", inst.Options[2])
	require.Equal(t, [][]string{
		{"the sun is a star", "stars shine"},
		{"planets orbit stars"},
		{"moons orbit planets"},
		{"comets have tails", "comets orbit the sun"},
	}, inst.Knowledge)

	insts, err = ReadInstances(strings.NewReader(additionalInstances), nil)
	require.NoError(t, err)
	require.Len(t, insts, 2)
	require.Equal(t, make([][]string, 4), insts[1].Knowledge)
}

func TestReadInstancesErrors(t *testing.T) {
	for _, data := range []string{
		"q1\tan option\n",
		"q1\tan option\tmaybe\n",
		"q1\tan option\t0\n",
		"q1\ta\t1\nq2\tb\t1\nq1\tc\t0\n",
	} {
		_, err := ReadInstances(strings.NewReader(data), nil)
		require.IsType(t, &anypad.ValidationError{}, err, "data: %q", data)
	}
	for _, background := range []string{
		"q2\t0\tsnippet\n",
		"q1\t4\tsnippet\n",
		"q1\n",
	} {
		_, err := ReadInstances(strings.NewReader(testInstances),
			strings.NewReader(background))
		require.IsType(t, &anypad.ValidationError{}, err, "background: %q", background)
	}
}

func TestReadInstancesErrorIndex(t *testing.T) {
	for _, x := range []struct {
		data     string
		instance int
	}{
		{"q1\ta\t1\nq1\tb\tmaybe\n", 0},
		{"q1\ta\t1\nq1\tb\n", 0},
		{"q1\ta\t1\nq2\tb\tmaybe\n", 1},
		{"q1\ta\t1\nq2\tb\t1\nq2\tc\n", 1},
	} {
		_, err := ReadInstances(strings.NewReader(x.data), nil)
		require.IsType(t, &anypad.ValidationError{}, err, "data: %q", x.data)
		require.Equal(t, x.instance, err.(*anypad.ValidationError).Instance, "data: %q", x.data)
	}
}

func TestIndexInstances(t *testing.T) {
	raw, err := ReadInstances(strings.NewReader(testInstances),
		strings.NewReader(testBackground))
	require.NoError(t, err)
	tok := &anytok.Tokenizer{Encoding: anytok.Words}
	idx := anytok.NewIndexer()
	samples, err := IndexInstances(raw, tok, idx, true, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	inst := samples[0].Instance
	require.Len(t, inst.Options, 4)
	require.Len(t, inst.Knowledge[0], 2)
	require.Equal(t, idx.Index(anytok.WordNamespace, "star"), inst.Options[0].Words[4])

	idx.Frozen = true
	raw, err = ReadInstances(strings.NewReader(additionalInstances), nil)
	require.NoError(t, err)
	samples, err = IndexInstances(raw, tok, idx, true, 1)
	require.NoError(t, err)
	require.Equal(t, anytok.UnknownIndex, samples[0].Instance.Options[0].Words[0])
	require.Equal(t, idx.Index(anytok.WordNamespace, "is"), samples[0].Instance.Options[0].Words[1])
}

func TestPaddingDebug(t *testing.T) {
	cfg := testConfig()
	cfg.Model.NumOptions = 5
	cfg.Model.EmbeddingSize = 2
	cfg.Model.MaxKnowledgeLength = 3
	cfg.Debug.Outputs = []string{"answer_option_softmax", "knowledge_selector"}

	run, train := trainingRun(t, cfg)
	defer run.Close()
	require.Contains(t, run.Model.Summary(), "answer option softmax")

	var calls int
	run.DebugFunc = func(epoch int, obs []*anymem.Observation) {
		calls++
		require.Len(t, obs, 2)
		answers := obs[0]
		require.Equal(t, anymem.AnswerOptionSoftmax, answers.Name)
		require.Equal(t, []int{1, 5}, answers.Value.Shape)
		require.Equal(t, 0.0, answers.Value.At(0, 4))
		require.False(t, answers.Mask.At(0, 4))

		attention := obs[1]
		require.Equal(t, anymem.KnowledgeSelector, attention.Name)
		require.Equal(t, []int{1, 5, 3}, attention.Value.Shape)
		for _, idx := range [][2]int{
			{0, 2}, {1, 1}, {1, 2}, {2, 1}, {2, 2}, {3, 2}, {4, 0}, {4, 1}, {4, 2},
		} {
			require.Equal(t, 0.0, attention.Value.At(0, idx[0], idx[1]), "index %v", idx)
		}
		require.InDelta(t, 1.0, attention.Value.At(0, 0, 0)+attention.Value.At(0, 0, 1), 1e-6)
	}
	require.NoError(t, run.Train(train, nil, nil))
	require.Equal(t, 1, calls)
}

func TestWordsAndCharactersDebug(t *testing.T) {
	cfg := testConfig()
	cfg.Model.EmbeddingSize = 4
	cfg.Model.MaxKnowledgeLength = 3
	cfg.Model.MaxSentenceLength = 1
	cfg.Model.Encoding = anytok.WordsAndCharacters
	cfg.Debug.Outputs = []string{"combined_background_embedding"}

	run, train := trainingRun(t, cfg)
	defer run.Close()
	require.NotNil(t, run.Model.Chars)

	var calls int
	run.DebugFunc = func(epoch int, obs []*anymem.Observation) {
		calls++
		require.Len(t, obs, 1)
		embeddings := obs[0]
		require.Equal(t, []int{4, 3, 1, 4}, embeddings.Value.Shape)
		require.Equal(t, []int{4, 3, 1}, embeddings.Mask.Shape)
		expected := [][]bool{
			{true, true, false},
			{true, false, false},
			{true, false, false},
			{true, true, false},
		}
		for i, row := range expected {
			for k, present := range row {
				require.Equal(t, present, embeddings.Mask.At(i, k, 0), "mask[%d,%d,0]", i, k)
			}
		}
	}
	require.NoError(t, run.Train(train, nil, nil))
	require.Equal(t, 1, calls)
}

func TestSaveLoad(t *testing.T) {
	cfg := testConfig()
	cfg.Model.MemoryUpdate = anymem.DenseConcatUpdate
	cfg.Model.NumMemoryLayers = 2
	run, train := trainingRun(t, cfg)
	defer run.Close()
	require.NoError(t, run.Train(train, nil, nil))

	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, run.Save(path))

	loaded, err := LoadRun(path, testConfig())
	require.NoError(t, err)
	defer loaded.Close()
	require.Equal(t, run.ID, loaded.ID)
	require.True(t, loaded.Indexer.Frozen)
	require.Equal(t, run.Model.Params, loaded.Model.Params)

	expected, err := run.Predict(train)
	require.NoError(t, err)
	actual, err := loaded.Predict(train)
	require.NoError(t, err)
	require.InDeltaSlice(t, expected, actual, 1e-8)

	// Train both models further on new data, using the
	// loaded indexer for both.
	more, err := ReadInstances(strings.NewReader(additionalInstances),
		strings.NewReader(additionalBackground))
	require.NoError(t, err)
	moreSamples, _, err := loaded.PrepareData(more, nil)
	require.NoError(t, err)
	require.Len(t, moreSamples, 2)
	require.Equal(t, run.Model.Params, loaded.Model.Params)

	require.NoError(t, run.Train(moreSamples, nil, nil))
	require.NoError(t, loaded.Train(moreSamples, nil, nil))

	expected, err = run.Predict(moreSamples)
	require.NoError(t, err)
	actual, err = loaded.Predict(moreSamples)
	require.NoError(t, err)
	require.InDeltaSlice(t, expected, actual, 1e-8)
}

func TestTrainStatus(t *testing.T) {
	cfg := testConfig()
	cfg.Training.Epochs = 3
	run, train := trainingRun(t, cfg)
	defer run.Close()

	var costs []float64
	var validations int
	run.StatusFunc = func(epoch, iter int, cost float64) {
		require.Equal(t, len(costs), iter)
		costs = append(costs, cost)
	}
	run.ValidationFunc = func(epoch int, cost, accuracy float64) {
		validations++
		require.True(t, accuracy >= 0 && accuracy <= 1)
	}
	require.NoError(t, run.Train(train, train, nil))
	require.Len(t, costs, 3)
	require.Equal(t, 3, validations)

	stop := make(chan struct{})
	close(stop)
	costs = nil
	require.NoError(t, run.Train(train, nil, stop))
	require.Empty(t, costs)
}

func TestFetchConcurrent(t *testing.T) {
	raw, err := ReadInstances(strings.NewReader(additionalInstances+testInstances),
		strings.NewReader(additionalBackground+testBackground))
	require.NoError(t, err)
	run := NewRun(testConfig())
	defer run.Close()
	samples, _, err := run.PrepareData(raw, nil)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.NoError(t, run.BuildModel(anyvec64.DefaultCreator{}))

	expected, expectedMasks, err := anypad.Pad(samples.Instances(), run.Model.Params.Lengths())
	require.NoError(t, err)
	for _, maxGos := range []int{1, 2, 8} {
		trainer := run.Trainer()
		trainer.MaxGos = maxGos
		batch, err := trainer.Fetch(samples)
		require.NoError(t, err)
		b := batch.(*Batch)
		require.Equal(t, samples, b.Samples)
		require.Equal(t, expected, b.Padded)
		require.Equal(t, expectedMasks, b.Masks)
	}

	bad := append(SampleList{}, samples...)
	bad[1] = &Sample{QuestionID: "bad", Instance: &anypad.Instance{Label: 0}}
	_, err = run.Trainer().Fetch(bad)
	require.IsType(t, &anypad.ValidationError{}, err)
	require.Equal(t, 1, err.(*anypad.ValidationError).Instance)
}

func TestPrepareDataSplit(t *testing.T) {
	cfg := testConfig()
	cfg.Training.ValidationSplit = 0.5
	run := NewRun(cfg)
	defer run.Close()
	raw, err := ReadInstances(strings.NewReader(additionalInstances+testInstances), nil)
	require.NoError(t, err)
	train, val, err := run.PrepareData(raw, nil)
	if err != nil {
		// Every question may hash into the validation set.
		require.Contains(t, err.Error(), "no training data")
		return
	}
	require.Equal(t, 3, len(train)+len(val))
	require.Equal(t, 4, run.Config.Model.NumOptions)
	require.Equal(t, 1, run.Config.Model.MaxKnowledgeLength)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  embedding_size: 8
  encoding: words and characters
  memory_update: dense_concat
training:
  epochs: 2
tokenizer:
  splitter: jieba
debug:
  outputs: [knowledge_selector]
`), 0644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Model.EmbeddingSize)
	require.Equal(t, anytok.WordsAndCharacters, cfg.Model.Encoding)
	require.Equal(t, anymem.DenseConcatUpdate, cfg.Model.MemoryUpdate)
	require.Equal(t, 2, cfg.Training.Epochs)
	require.Equal(t, 32, cfg.Training.BatchSize)
	require.Equal(t, []anymem.Observable{anymem.KnowledgeSelector}, cfg.Debug.Observables())

	tok, free := cfg.NewTokenizer()
	defer free()
	words, _ := tok.Tokenize("我来到北京")
	require.Contains(t, words, "北京")

	require.NoError(t, os.WriteFile(path, []byte("debug:\n  outputs: [dense_1]\n"), 0644))
	_, err = LoadConfig(path)
	require.IsType(t, &anypad.ConfigError{}, err)

	require.NoError(t, os.WriteFile(path, []byte("model:\n  num_options: -1\n"), 0644))
	_, err = LoadConfig(path)
	require.IsType(t, &anypad.ConfigError{}, err)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Model.EmbeddingSize = 6
	cfg.Model.HiddenSize = 4
	cfg.Training.Epochs = 1
	cfg.Training.BatchSize = 0
	cfg.Training.Shuffle = false
	cfg.Training.ValidationSplit = 0
	cfg.Training.LearningRate = 0.01
	cfg.Debug.MaxInstances = 1
	return cfg
}

// trainingRun creates a run with a model for the test
// question.
func trainingRun(t *testing.T, cfg *Config) (*Run, SampleList) {
	raw, err := ReadInstances(strings.NewReader(testInstances),
		strings.NewReader(testBackground))
	require.NoError(t, err)
	run := NewRun(cfg)
	train, _, err := run.PrepareData(raw, nil)
	require.NoError(t, err)
	require.NoError(t, run.BuildModel(anyvec64.DefaultCreator{}))
	return run, train
}
