package anyqa

import (
	"errors"
	"runtime"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anymem"
	"github.com/unixpickle/anymem/anypad"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Batch stores a padded batch of questions.
type Batch struct {
	Samples SampleList
	Padded  *anypad.Batch
	Masks   *anypad.Masks
}

// A Trainer can construct batches, compute gradients, and
// tally up costs for a memory network.
type Trainer struct {
	Model *anymem.Model

	// After every gradient computation, LastCost is set to
	// the average cost from the batch.
	LastCost float64

	// MaxGos specifies the maximum goroutines to use
	// simultaneously for fetching samples.
	// If it is 0, GOMAXPROCS is used.
	MaxGos int
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must be a SampleList.
// The batch may not be empty.
//
// Rows of the batch are padded concurrently.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}

	l := s.(SampleList)
	padded, err := anypad.NewBatch(l.Len(), t.Model.Params.Lengths())
	if err != nil {
		return nil, err
	}
	samples := make(SampleList, l.Len())

	idxChan := make(chan int, l.Len())
	for i := 0; i < l.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := t.MaxGos
	if maxGos == 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	wg := sync.WaitGroup{}
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := l.GetSample(i)
				if err != nil {
					errChan <- essentials.AddCtx("fetch batch", err)
					return
				}
				if err := padded.PadInstance(i, sample.Instance); err != nil {
					errChan <- err
					return
				}
				samples[i] = sample
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return &Batch{Samples: samples, Padded: padded, Masks: padded.Masks()}, nil
}

// TotalCost computes the average cost for the *Batch.
func (t *Trainer) TotalCost(batch anysgd.Batch) anydiff.Res {
	b := batch.(*Batch)
	res, err := t.Model.Apply(b.Padded, b.Masks)
	if err != nil {
		panic(err)
	}
	total := anydiff.Sum(res.Cost())
	divisor := 1 / float64(b.Padded.Size)
	return anydiff.Scale(total, total.Output().Creator().MakeNumeric(divisor))
}

// Gradient computes the gradient of the average cost of
// the batch and sets t.LastCost.
//
// The b argument must be a *Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	params := t.Model.Parameters()
	res := anydiff.Grad{}
	for _, p := range params {
		res[p] = p.Vector.Creator().MakeVector(p.Vector.Len())
	}

	cost := t.TotalCost(b)
	upstream := cost.Output().Creator().MakeVector(1)
	upstream.AddScalar(upstream.Creator().MakeNumeric(1))
	cost.Propagate(upstream, res)
	t.LastCost = floatSum(cost.Output())

	return res
}

// Evaluate computes the average cost and the accuracy of
// the model on a list of samples, in batches of the given
// size.
func (t *Trainer) Evaluate(s SampleList, batchSize int) (cost, accuracy float64, err error) {
	if s.Len() == 0 {
		return 0, 0, errors.New("evaluate: no samples")
	}
	if batchSize <= 0 {
		batchSize = s.Len()
	}
	var correct int
	for i := 0; i < s.Len(); i += batchSize {
		end := i + batchSize
		if end > s.Len() {
			end = s.Len()
		}
		batch, err := t.Fetch(s.Slice(i, end))
		if err != nil {
			return 0, 0, err
		}
		b := batch.(*Batch)
		res, err := t.Model.Apply(b.Padded, b.Masks)
		if err != nil {
			return 0, 0, err
		}
		cost += floatSum(res.Cost().Output())
		correct += res.Correct()
	}
	n := float64(s.Len())
	return cost / n, float64(correct) / n, nil
}

// A Loop runs mini-batch training.
type Loop struct {
	Trainer *Trainer

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer anysgd.Transformer

	Samples      SampleList
	LearningRate float64

	// BatchSize is the mini-batch size.
	// If it is 0, the entire sample list is used at every
	// iteration.
	BatchSize int

	// Shuffle indicates whether to shuffle the samples at
	// the start of every epoch.
	Shuffle bool

	// StatusFunc, if non-nil, is called after every
	// iteration.
	StatusFunc func(epoch, iter int, batch *Batch)

	// EpochFunc, if non-nil, is called after every epoch.
	// If it returns an error, training stops.
	EpochFunc func(epoch int) error
}

// Run trains for the given number of epochs, or until
// stop is closed.
// If epochs is 0, training only ends when stop is closed.
func (l *Loop) Run(epochs int, stop <-chan struct{}) error {
	if l.Samples.Len() == 0 {
		return errors.New("run training: empty sample list")
	}
	var iter int
	for epoch := 0; epochs == 0 || epoch < epochs; epoch++ {
		if l.Shuffle {
			anysgd.Shuffle(l.Samples)
		}
		for idx := 0; idx < l.Samples.Len(); {
			if stopped(stop) {
				return nil
			}
			batchSize := l.batchSize(l.Samples.Len() - idx)
			batch, err := l.Trainer.Fetch(l.Samples.Slice(idx, idx+batchSize))
			if err != nil {
				return err
			}
			idx += batchSize

			grad := l.Trainer.Gradient(batch)
			if l.Transformer != nil {
				grad = l.Transformer.Transform(grad)
			}
			scaleGrad(grad, -l.LearningRate)
			grad.AddToVars()

			if l.StatusFunc != nil {
				l.StatusFunc(epoch, iter, batch.(*Batch))
			}
			iter++
		}
		if l.EpochFunc != nil {
			if err := l.EpochFunc(epoch); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loop) batchSize(remaining int) int {
	if l.BatchSize == 0 || l.BatchSize > remaining {
		return remaining
	}
	return l.BatchSize
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, v := range g {
		g.Scale(v.Creator().MakeNumeric(s))
		return
	}
}

func floatSum(v anyvec.Vector) float64 {
	switch data := v.Data().(type) {
	case []float32:
		var sum float32
		for _, x := range data {
			sum += x
		}
		return float64(sum)
	case []float64:
		var sum float64
		for _, x := range data {
			sum += x
		}
		return sum
	default:
		return 0
	}
}
