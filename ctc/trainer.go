package ctc

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Batch is a packed set of input sequences with one
// label per sequence.
type Batch struct {
	Inputs anyseq.Seq
	Labels [][]int
}

// A Trainer plugs the CTC cost into anysgd.
// It implements anysgd.Fetcher and anysgd.Gradienter.
type Trainer struct {
	// Func maps input sequences to per-frame label log
	// probabilities.
	Func   func(anyseq.Seq) anyseq.Seq
	Params []*anydiff.Var

	// Blank is the label index of the blank symbol.
	// Labels containing it are rejected by Fetch.
	Blank int

	// Average divides the batch cost by the number of
	// sequences, for both gradients and LastCost.
	Average bool

	// LastCost is the (possibly averaged) batch cost from
	// the latest call to Gradient.
	LastCost anyvec.Numeric

	// SampleCosts holds the negative log likelihood of
	// every sequence from the latest call to Gradient.
	SampleCosts []float64
}

// Fetch packs a subset of samples into a *Batch.
// The s argument must be a non-empty SampleList.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	list, ok := s.(SampleList)
	if !ok {
		return nil, fmt.Errorf("fetch batch: unsupported sample list %T", s)
	} else if list.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}

	inputs := make([][]anyvec.Vector, list.Len())
	batch := &Batch{Labels: make([][]int, list.Len())}
	for i := range inputs {
		sample, err := list.GetSample(i)
		if err != nil {
			return nil, essentials.AddCtx("fetch batch", err)
		}
		for _, l := range sample.Label {
			if l == t.Blank {
				return nil, fmt.Errorf("fetch batch: sample %d: label contains blank", i)
			}
		}
		inputs[i] = sample.Input
		batch.Labels[i] = sample.Label
	}
	batch.Inputs = anyseq.ConstSeqList(list.Creator(), inputs)
	return batch, nil
}

// TotalCost computes the summed (or averaged) cost of the
// batch.
func (t *Trainer) TotalCost(b *Batch) anydiff.Res {
	_, total := t.batchCost(b)
	return total
}

// Gradient back-propagates the batch cost through Func.
// It updates LastCost and SampleCosts.
//
// The b argument must be a *Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	costs, total := t.batchCost(b.(*Batch))
	t.LastCost = anyvec.Sum(total.Output())
	t.SampleCosts = append([]float64{}, vectorTo64(costs.Output()).Data().([]float64)...)

	grad := anydiff.NewGrad(t.Params...)
	c := total.Output().Creator()
	total.Propagate(c.MakeVectorData(c.MakeNumericList([]float64{1})), grad)
	return grad
}

func (t *Trainer) batchCost(b *Batch) (costs, total anydiff.Res) {
	costs = Cost(t.Func(b.Inputs), b.Labels, t.Blank)
	total = anydiff.Sum(costs)
	if t.Average && len(b.Labels) > 0 {
		c := total.Output().Creator()
		total = anydiff.Scale(total, c.MakeNumeric(1/float64(len(b.Labels))))
	}
	return costs, total
}
