package anyqa

import (
	"fmt"
	"os"

	"github.com/unixpickle/anymem"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anymem/anytok"
	"github.com/unixpickle/anymem/anytok/jiebatok"
	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"
)

// Splitter names for TokenizerConfig.
const (
	SimpleSplitter = "simple"
	JiebaSplitter  = "jieba"
)

// Debug data sources for DebugConfig.
const (
	DebugTraining   = "training"
	DebugValidation = "validation"
)

// Config describes a training run.
type Config struct {
	Model     anymem.Params   `yaml:"model"`
	Data      DataConfig      `yaml:"data"`
	Training  TrainingConfig  `yaml:"training"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Debug     DebugConfig     `yaml:"debug"`
}

// DataConfig lists the input files.
// Background files are optional.
type DataConfig struct {
	TrainFile                string `yaml:"train_file"`
	TrainBackgroundFile      string `yaml:"train_background_file"`
	ValidationFile           string `yaml:"validation_file"`
	ValidationBackgroundFile string `yaml:"validation_background_file"`
}

// TrainingConfig stores optimization settings.
type TrainingConfig struct {
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	Shuffle      bool    `yaml:"shuffle"`

	// ValidationSplit is the fraction of training data held
	// out for validation when no validation file is given.
	ValidationSplit float64 `yaml:"validation_split"`

	// MinTokenCount is the number of occurrences a token
	// needs to enter the vocabulary.
	MinTokenCount int `yaml:"min_token_count"`

	MaxGos int `yaml:"max_gos"`
}

// TokenizerConfig selects how words are found.
// The Encoding lives in the model parameters, since the
// model architecture depends on it.
type TokenizerConfig struct {
	Splitter string `yaml:"splitter"`

	// HMM enables jieba's hidden Markov model for unseen
	// words.
	HMM bool `yaml:"hmm"`
}

// DebugConfig selects observations to report after each
// epoch.
type DebugConfig struct {
	Data    string   `yaml:"data"`
	Outputs []string `yaml:"outputs"`

	// MaxInstances limits the debug batch size.
	MaxInstances int `yaml:"max_instances"`
}

// DefaultConfig creates a Config with default settings.
func DefaultConfig() *Config {
	return &Config{
		Model: anymem.DefaultParams(),
		Training: TrainingConfig{
			BatchSize:       32,
			Epochs:          20,
			LearningRate:    0.001,
			Shuffle:         true,
			ValidationSplit: 0.1,
			MinTokenCount:   1,
		},
		Tokenizer: TokenizerConfig{Splitter: SimpleSplitter, HMM: true},
		Debug: DebugConfig{
			Data:         DebugTraining,
			MaxInstances: 10,
		},
	}
}

// LoadConfig reads a YAML config file.
// Missing settings keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	res := DefaultConfig()
	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks the settings which do not depend on
// data.
// Model parameters are validated once the padding lengths
// have been inferred.
func (c *Config) Validate() error {
	if c.Training.BatchSize < 0 || c.Training.Epochs < 0 || c.Training.MinTokenCount < 0 ||
		c.Training.MaxGos < 0 {
		return &anypad.ConfigError{Msg: "training settings may not be negative"}
	}
	if c.Training.LearningRate <= 0 {
		return &anypad.ConfigError{Msg: "learning_rate must be positive"}
	}
	if c.Training.ValidationSplit < 0 || c.Training.ValidationSplit >= 1 {
		return &anypad.ConfigError{Msg: "validation_split must be in [0, 1)"}
	}
	switch c.Tokenizer.Splitter {
	case SimpleSplitter, JiebaSplitter:
	default:
		return &anypad.ConfigError{Msg: fmt.Sprintf("unknown splitter: %q", c.Tokenizer.Splitter)}
	}
	switch c.Debug.Data {
	case DebugTraining, DebugValidation:
	default:
		return &anypad.ConfigError{Msg: fmt.Sprintf("unknown debug data: %q", c.Debug.Data)}
	}
	for _, name := range c.Debug.Outputs {
		if _, err := anymem.ParseObservable(name); err != nil {
			return &anypad.ConfigError{Msg: err.Error()}
		}
	}
	l := c.Model.Lengths()
	return l.Validate()
}

// Observables parses the debug outputs.
func (d *DebugConfig) Observables() []anymem.Observable {
	var res []anymem.Observable
	for _, name := range d.Outputs {
		if o, err := anymem.ParseObservable(name); err == nil {
			res = append(res, o)
		}
	}
	return res
}

// NewTokenizer creates the configured tokenizer.
//
// The returned function releases the resources of the
// splitter and must be called when the tokenizer is no
// longer needed.
func (c *Config) NewTokenizer() (*anytok.Tokenizer, func()) {
	res := &anytok.Tokenizer{Encoding: c.Model.Encoding}
	if c.Tokenizer.Splitter == JiebaSplitter {
		splitter := jiebatok.NewSplitter()
		splitter.HMM = c.Tokenizer.HMM
		res.Splitter = splitter
		return res, splitter.Free
	}
	res.Splitter = anytok.SimpleSplitter{}
	return res, func() {}
}
