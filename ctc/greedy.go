package ctc

import "gonum.org/v1/gonum/floats"

// BestPath decodes a sequence by taking the most likely
// label at every timestep, merging repeats, and removing
// blanks.
func BestPath(seq [][]float64, blank int) []int {
	res, _ := bestPath(seq, blank)
	return res
}

// bestPath is like BestPath, but it also returns the log
// probability of the frame-level path.
func bestPath(seq [][]float64, blank int) ([]int, float64) {
	path := make([]int, len(seq))
	var score float64
	for t, frame := range seq {
		path[t] = floats.MaxIdx(frame)
		score += frame[path[t]]
	}
	return collapse(path, blank), score
}
