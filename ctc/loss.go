package ctc

import (
	"math"

	"github.com/unixpickle/essentials"
)

// Loss computes the CTC loss and its gradient for batches
// of log-probability sequences.
//
// Each sample in a batch is processed independently, in
// its own goroutine.
type Loss struct {
	// Blank is the label index of the blank symbol.
	Blank int
}

// NewLoss creates a Loss with the given blank index.
func NewLoss(blank int) *Loss {
	return &Loss{Blank: blank}
}

// A LossResult stores the result of a batched loss
// computation.
type LossResult struct {
	// Losses stores the negative log-likelihood of each
	// target.
	Losses []float64

	// Grads stores, for each sample, the gradient of the
	// loss with respect to the unnormalized activations
	// that produced the log-probabilities through a
	// log-softmax.
	// It is indexed by timestep, then by label.
	// Timesteps past a sample's length have zero gradient.
	Grads [][][]float64
}

// Forward computes the loss and gradient for a batch.
//
// The logProbs argument is indexed by sample, timestep,
// and label.
// Only the first seqLens[i] timesteps and the first
// targetLens[i] target labels of each sample are used.
//
// Lengths are not validated.
// If a target cannot be aligned to its sequence, the loss
// is +Inf and the gradient contains NaNs.
func (l *Loss) Forward(logProbs [][][]float64, targets [][]int, seqLens,
	targetLens []int) *LossResult {
	batch := len(seqLens)
	res := &LossResult{
		Losses: make([]float64, batch),
		Grads:  make([][][]float64, batch),
	}
	essentials.ConcurrentMap(batch, batch, func(i int) {
		seq := logProbs[i][:seqLens[i]]
		loss, occupancy := l.Sample(seq, targets[i][:targetLens[i]])
		res.Losses[i] = loss
		res.Grads[i] = activationGrad(logProbs[i], occupancy)
	})
	return res
}

// Sample computes the loss for a single sequence.
//
// In addition to the loss, it returns the log posterior
// probability of each label at each timestep, indexed by
// timestep then label.
// The derivative of the loss with respect to seq[t][k] is
// -exp(occupancy[t][k]).
func (l *Loss) Sample(seq [][]float64, label []int) (loss float64,
	occupancy [][]float64) {
	if len(seq) == 0 {
		if len(label) == 0 {
			return 0, nil
		}
		return math.Inf(1), nil
	}
	ext := extendTarget(label, l.Blank)
	alpha := forwardProbs(seq, ext, l.Blank)
	logProb := finalLogProb(alpha)
	beta := backwardProbs(seq, ext, l.Blank)
	return -logProb, logOccupancy(seq, ext, alpha, beta, logProb)
}

// activationGrad turns label occupancies into gradients
// with respect to pre-softmax activations.
func activationGrad(seq [][]float64, occupancy [][]float64) [][]float64 {
	res := make([][]float64, len(seq))
	for t, frame := range seq {
		res[t] = make([]float64, len(frame))
		if t >= len(occupancy) {
			continue
		}
		for k, x := range frame {
			res[t][k] = math.Exp(x) - math.Exp(occupancy[t][k])
		}
	}
	return res
}
