package ctc

import (
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/floats"
)

// Segmented computes a loss which splits each sample into
// independently aligned words.
//
// For every sample, the target is first force-aligned to
// the sequence.
// Frames where the alignment agrees with the per-frame
// argmax are considered well recognized.
// The sequence is cut before each run of separator frames
// whose preceding word was entirely well recognized, and
// the loss is the sum of the CTC losses of the pieces.
//
// Samples with fewer than half of their frames well
// recognized, or without any cut, use the regular loss.
// Arguments and results are the same as for Forward.
func (l *Loss) Segmented(logProbs [][][]float64, targets [][]int, seqLens,
	targetLens []int, separator int) *LossResult {
	batch := len(seqLens)
	res := &LossResult{
		Losses: make([]float64, batch),
		Grads:  make([][][]float64, batch),
	}
	essentials.ConcurrentMap(batch, batch, func(i int) {
		seq := logProbs[i][:seqLens[i]]
		label := targets[i][:targetLens[i]]
		var occupancy [][]float64
		segments := l.segments(seq, label, separator)
		if len(segments) < 2 {
			res.Losses[i], occupancy = l.Sample(seq, label)
		} else {
			for _, s := range segments {
				loss, occ := l.Sample(seq[s.Start:s.End], s.Target)
				res.Losses[i] += loss
				occupancy = append(occupancy, occ...)
			}
		}
		res.Grads[i] = activationGrad(logProbs[i], occupancy)
	})
	return res
}

// A segment is a range of frames with its own target.
type segment struct {
	Start  int
	End    int
	Target []int
}

// segments splits a sequence at well recognized word
// boundaries.
// It returns nil if the sequence should not be split.
func (l *Loss) segments(seq [][]float64, label []int, separator int) []segment {
	path, _ := Align(seq, label, l.Blank)
	if path == nil {
		return nil
	}

	good := make([]bool, len(path))
	var numGood int
	for t, frame := range seq {
		if floats.MaxIdx(frame) == path[t] {
			good[t] = true
			numGood++
		}
	}
	if 2*numGood < len(seq) {
		return nil
	}

	cuts := []int{0}
	wordGood := true
	for t, x := range path {
		if t > 0 && x == separator && path[t-1] != separator {
			if wordGood && t > cuts[len(cuts)-1] {
				cuts = append(cuts, t)
			}
			wordGood = true
		}
		if !good[t] {
			wordGood = false
		}
	}
	if len(cuts) < 2 {
		return nil
	}
	cuts = append(cuts, len(path))

	res := make([]segment, len(cuts)-1)
	for i := range res {
		start, end := cuts[i], cuts[i+1]
		res[i] = segment{
			Start:  start,
			End:    end,
			Target: collapse(path[start:end], l.Blank),
		}
	}
	return res
}
