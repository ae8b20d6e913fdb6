package ctc

import "math"

// Align finds the most likely frame-level path for a
// label.
//
// The returned path has one label per timestep, blanks
// included, and collapses to label.
// The second return value is the log probability of the
// path.
// If no path exists, Align returns nil and -Inf.
func Align(seq [][]float64, label []int, blank int) ([]int, float64) {
	if len(seq) == 0 {
		if len(label) == 0 {
			return []int{}, 0
		}
		return nil, math.Inf(-1)
	}

	ext := extendTarget(label, blank)
	steps, positions := len(seq), len(ext)
	delta := newTrellis(positions, steps)
	from := make([][]int, positions)
	for j := range from {
		from[j] = make([]int, steps)
	}

	start, end := reachable(0, steps, positions)
	for j := start; j < end; j++ {
		delta[j][0] = seq[0][ext[j]]
	}
	for t := 1; t < steps; t++ {
		start, end := reachable(t, steps, positions)
		for j := start; j < end; j++ {
			best, arg := delta[j][t-1], j
			if j > 0 && delta[j-1][t-1] > best {
				best, arg = delta[j-1][t-1], j-1
			}
			if canSkip(ext, j, blank) && delta[j-2][t-1] > best {
				best, arg = delta[j-2][t-1], j-2
			}
			delta[j][t] = best + seq[t][ext[j]]
			from[j][t] = arg
		}
	}

	last := steps - 1
	pos := positions - 1
	if positions > 1 && delta[positions-2][last] > delta[pos][last] {
		pos = positions - 2
	}
	score := delta[pos][last]
	if math.IsInf(score, -1) {
		return nil, score
	}

	path := make([]int, steps)
	for t := last; t >= 0; t-- {
		path[t] = ext[pos]
		pos = from[pos][t]
	}
	return path, score
}

// collapse merges repeated labels in a frame-level path
// and removes blanks.
func collapse(path []int, blank int) []int {
	res := []int{}
	last := -1
	for _, x := range path {
		if x != last && x != blank {
			res = append(res, x)
		}
		last = x
	}
	return res
}
