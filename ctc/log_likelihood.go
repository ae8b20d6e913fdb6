package ctc

import (
	"math"

	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/floats"
)

// extendTarget injects blanks at the start and end of the
// label, and between entries.
func extendTarget(label []int, blank int) []int {
	res := make([]int, len(label)*2+1)
	for i := range res {
		res[i] = blank
	}
	for i, x := range label {
		res[i*2+1] = x
	}
	return res
}

// canSkip checks if a path may jump directly from
// extended position j-2 to position j.
func canSkip(ext []int, j, blank int) bool {
	return j >= 2 && j < len(ext) && ext[j] != blank && ext[j-2] != ext[j]
}

// reachable returns the range of extended positions which
// lie on at least one complete path at time t.
func reachable(t, steps, positions int) (start, end int) {
	start = essentials.MaxInt(0, positions-2*(steps-t))
	end = essentials.MinInt(t*2+2, positions)
	return
}

// A trellis stores log probabilities indexed first by
// extended position, then by time.
// Unreachable entries are -Inf.
type trellis [][]float64

func newTrellis(positions, steps int) trellis {
	res := make(trellis, positions)
	for i := range res {
		res[i] = make([]float64, steps)
		for j := range res[i] {
			res[i][j] = math.Inf(-1)
		}
	}
	return res
}

// forwardProbs computes the alpha table: the log
// probability of every path prefix ending at each
// extended position.
func forwardProbs(seq [][]float64, ext []int, blank int) trellis {
	steps, positions := len(seq), len(ext)
	alpha := newTrellis(positions, steps)

	start, end := reachable(0, steps, positions)
	for j := start; j < end; j++ {
		alpha[j][0] = seq[0][ext[j]]
	}

	for t := 1; t < steps; t++ {
		start, end := reachable(t, steps, positions)
		for j := start; j < end; j++ {
			sum := alpha[j][t-1]
			if j > 0 {
				sum = addLogs(sum, alpha[j-1][t-1])
				if canSkip(ext, j, blank) {
					sum = addLogs(sum, alpha[j-2][t-1])
				}
			}
			alpha[j][t] = sum + seq[t][ext[j]]
		}
	}
	return alpha
}

// backwardProbs computes the beta table: the log
// probability of every path suffix starting after each
// extended position.
func backwardProbs(seq [][]float64, ext []int, blank int) trellis {
	steps, positions := len(seq), len(ext)
	beta := newTrellis(positions, steps)

	last := steps - 1
	start, _ := reachable(last, steps, positions)
	for j := start; j < positions; j++ {
		beta[j][last] = 0
	}

	for t := steps - 2; t >= 0; t-- {
		next := seq[t+1]
		start, end := reachable(t, steps, positions)
		for j := start; j < end; j++ {
			sum := beta[j][t+1] + next[ext[j]]
			if j+1 < positions {
				sum = addLogs(sum, beta[j+1][t+1]+next[ext[j+1]])
				if canSkip(ext, j+2, blank) {
					sum = addLogs(sum, beta[j+2][t+1]+next[ext[j+2]])
				}
			}
			beta[j][t] = sum
		}
	}
	return beta
}

// finalLogProb sums the probabilities of the complete
// paths in an alpha table.
func finalLogProb(alpha trellis) float64 {
	positions := len(alpha)
	last := len(alpha[0]) - 1
	if positions == 1 {
		return alpha[0][last]
	}
	return addLogs(alpha[positions-1][last], alpha[positions-2][last])
}

// logOccupancy computes, for every timestep and label,
// the log of the posterior probability that the label is
// emitted at that timestep.
func logOccupancy(seq [][]float64, ext []int, alpha, beta trellis, logProb float64) [][]float64 {
	positions := map[int][]int{}
	for j, label := range ext {
		positions[label] = append(positions[label], j)
	}

	res := make([][]float64, len(seq))
	terms := make([]float64, 0, len(ext))
	for t, frame := range seq {
		res[t] = make([]float64, len(frame))
		for label := range frame {
			js, ok := positions[label]
			if !ok {
				res[t][label] = math.Inf(-1)
				continue
			}
			terms = terms[:0]
			for _, j := range js {
				terms = append(terms, alpha[j][t]+beta[j][t])
			}
			res[t][label] = floats.LogSumExp(terms) - logProb
		}
	}
	return res
}

// addLogs adds two numbers in the log domain.
func addLogs(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	} else if math.IsInf(b, -1) {
		return a
	}
	normalizer := math.Max(a, b)
	exp1 := math.Exp(a - normalizer)
	exp2 := math.Exp(b - normalizer)
	return math.Log(exp1+exp2) + normalizer
}
