package anyqa

import (
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/unixpickle/anymem"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A Run is a single training run.
//
// The Indexer belongs to the run: it is fit on the
// training data of the run, saved with the model, and
// frozen once the run has been loaded from disk.
type Run struct {
	ID        uuid.UUID
	Config    *Config
	Indexer   *anytok.Indexer
	Tokenizer *anytok.Tokenizer
	Model     *anymem.Model

	// StatusFunc, if non-nil, is called after every training
	// iteration with the cost of the mini-batch.
	StatusFunc func(epoch, iter int, cost float64)

	// ValidationFunc, if non-nil, is called after every
	// epoch with the validation cost and accuracy.
	ValidationFunc func(epoch int, cost, accuracy float64)

	// DebugFunc, if non-nil, is called after every epoch
	// with the observations requested by Config.Debug.
	DebugFunc func(epoch int, obs []*anymem.Observation)

	freeTokenizer func()
}

// NewRun creates a run with a fresh ID and an empty
// Indexer.
func NewRun(cfg *Config) *Run {
	tok, free := cfg.NewTokenizer()
	return &Run{
		ID:            uuid.New(),
		Config:        cfg,
		Indexer:       anytok.NewIndexer(),
		Tokenizer:     tok,
		freeTokenizer: free,
	}
}

// LoadRun loads a run saved with Save.
//
// The model parameters in cfg are replaced by the saved
// ones, and the saved Indexer is frozen.
func LoadRun(path string, cfg *Config) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load run", err)
	}
	var id string
	var model *anymem.Model
	var indexer *anytok.Indexer
	if err := serializer.DeserializeAny(data, &id, &model, &indexer); err != nil {
		return nil, essentials.AddCtx("load run", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, essentials.AddCtx("load run", err)
	}
	newCfg := *cfg
	newCfg.Model = model.Params
	tok, free := newCfg.NewTokenizer()
	return &Run{
		ID:            parsedID,
		Config:        &newCfg,
		Indexer:       indexer,
		Tokenizer:     tok,
		Model:         model,
		freeTokenizer: free,
	}, nil
}

// Close releases the resources of the tokenizer.
func (r *Run) Close() {
	if r.freeTokenizer != nil {
		r.freeTokenizer()
		r.freeTokenizer = nil
	}
}

// Save saves the run ID, the model and the Indexer to a
// single file.
func (r *Run) Save(path string) error {
	if r.Model == nil {
		return errors.New("save run: no model")
	}
	data, err := serializer.SerializeAny(r.ID.String(), r.Model, r.Indexer)
	if err != nil {
		return essentials.AddCtx("save run", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save run", err)
	}
	return nil
}

// PrepareData indexes training and validation data.
//
// If the Indexer is not frozen, it is fit to the training
// data.
// If validation is nil, Config.Training.ValidationSplit
// determines how much training data is held out instead.
// If there is no model yet, zero padding lengths in the
// config are inferred from the training data.
func (r *Run) PrepareData(train, validation []*RawInstance) (trainSamples,
	valSamples SampleList, err error) {
	trainSamples, err = IndexInstances(train, r.Tokenizer, r.Indexer, true,
		r.Config.Training.MinTokenCount)
	if err != nil {
		return nil, nil, err
	}
	if validation != nil {
		valSamples, err = IndexInstances(validation, r.Tokenizer, r.Indexer, false, 0)
		if err != nil {
			return nil, nil, err
		}
	} else if split := r.Config.Training.ValidationSplit; split > 0 {
		left, right := anysgd.HashSplit(trainSamples, 1-split)
		trainSamples, valSamples = left.(SampleList), right.(SampleList)
	}
	if len(trainSamples) == 0 {
		return nil, nil, errors.New("prepare data: no training data")
	}
	if r.Model == nil {
		l := anypad.MaxLengths(append(trainSamples.Instances(), valSamples.Instances()...))
		if l.Knowledge == 0 {
			l.Knowledge = 1
		}
		if l.Chars == 0 {
			l.Chars = 1
		}
		r.Config.Model.InferLengths(l)
	}
	return trainSamples, valSamples, nil
}

// BuildModel creates a new model with the configured
// parameters and the vocabulary of the Indexer.
func (r *Run) BuildModel(c anyvec.Creator) error {
	model, err := anymem.NewModel(c, r.Config.Model,
		r.Indexer.VocabSize(anytok.WordNamespace),
		r.Indexer.VocabSize(anytok.CharNamespace))
	if err != nil {
		return err
	}
	r.Model = model
	return nil
}

// Trainer creates a Trainer for the model.
func (r *Run) Trainer() *Trainer {
	return &Trainer{Model: r.Model, MaxGos: r.Config.Training.MaxGos}
}

// Train trains the model for the configured number of
// epochs with Adam, or until stop is closed.
//
// The Indexer is frozen once training starts.
func (r *Run) Train(train, validation SampleList, stop <-chan struct{}) error {
	if r.Model == nil {
		return errors.New("train: no model")
	}
	r.Indexer.Frozen = true
	t := r.Trainer()
	loop := &Loop{
		Trainer:      t,
		Transformer:  &anysgd.Adam{},
		Samples:      append(SampleList{}, train...),
		LearningRate: r.Config.Training.LearningRate,
		BatchSize:    r.Config.Training.BatchSize,
		Shuffle:      r.Config.Training.Shuffle,
		StatusFunc: func(epoch, iter int, b *Batch) {
			if r.StatusFunc != nil {
				r.StatusFunc(epoch, iter, t.LastCost)
			}
		},
		EpochFunc: func(epoch int) error {
			if r.ValidationFunc != nil && len(validation) > 0 {
				cost, acc, err := t.Evaluate(validation, r.Config.Training.BatchSize)
				if err != nil {
					return err
				}
				r.ValidationFunc(epoch, cost, acc)
			}
			if r.DebugFunc != nil && len(r.Config.Debug.Outputs) > 0 {
				data := train
				if r.Config.Debug.Data == DebugValidation {
					data = validation
				}
				obs, err := r.Debug(data)
				if err != nil {
					return err
				}
				r.DebugFunc(epoch, obs)
			}
			return nil
		},
	}
	return loop.Run(r.Config.Training.Epochs, stop)
}

// Debug applies the model to the first debug instances of
// the data and collects the configured observations.
//
// KnowledgeSelector is observed for every memory layer.
func (r *Run) Debug(data SampleList) ([]*anymem.Observation, error) {
	if len(data) == 0 {
		return nil, errors.New("debug: no data")
	}
	if max := r.Config.Debug.MaxInstances; max > 0 && max < len(data) {
		data = data[:max]
	}
	batch, err := r.Trainer().Fetch(data)
	if err != nil {
		return nil, err
	}
	b := batch.(*Batch)
	res, err := r.Model.Apply(b.Padded, b.Masks)
	if err != nil {
		return nil, err
	}
	var obs []*anymem.Observation
	for _, name := range r.Config.Debug.Observables() {
		hops := 1
		if name == anymem.KnowledgeSelector {
			hops = r.Model.Params.NumMemoryLayers
		}
		for hop := 0; hop < hops; hop++ {
			o, err := res.Observe(name, hop)
			if err != nil {
				return nil, err
			}
			obs = append(obs, o)
		}
	}
	return obs, nil
}

// Predict computes the answer probabilities of every
// sample, packed as a (samples, options) matrix.
func (r *Run) Predict(samples SampleList) ([]float64, error) {
	if r.Model == nil {
		return nil, errors.New("predict: no model")
	}
	batch, err := r.Trainer().Fetch(samples)
	if err != nil {
		return nil, err
	}
	b := batch.(*Batch)
	return r.Model.Predict(b.Padded, b.Masks)
}
