package ctc

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestAlign(t *testing.T) {
	for i := 0; i < 20; i++ {
		labelLen := rand.Intn(5)
		label := make([]int, labelLen)
		for i := range label {
			label[i] = rand.Intn(testSymbolCount)
		}
		seq := logRows(randomProbs(2*labelLen+1+rand.Intn(4), testSymbolCount+1))
		path, score := Align(seq, label, testSymbolCount)
		if len(path) != len(seq) {
			t.Fatalf("expected %d frames but got %d", len(seq), len(path))
		}
		if actual := collapse(path, testSymbolCount); !reflect.DeepEqual(actual, label) {
			t.Errorf("path %v collapses to %v, not %v", path, actual, label)
		}
		var pathScore float64
		for t, x := range path {
			pathScore += seq[t][x]
		}
		if math.Abs(pathScore-score) > 1e-8 {
			t.Errorf("expected path score %f but got %f", pathScore, score)
		}
		loss, _ := NewLoss(testSymbolCount).Sample(seq, label)
		if score > -loss+1e-8 {
			t.Errorf("path score %f exceeds total %f", score, -loss)
		}
	}
}

func TestAlignImpossible(t *testing.T) {
	seq := logRows(randomProbs(2, 3))
	path, score := Align(seq, []int{1, 1}, 0)
	if path != nil || !math.IsInf(score, -1) {
		t.Errorf("expected no path but got %v (%f)", path, score)
	}
}

func TestSegmentedSplit(t *testing.T) {
	const blank, sep = 0, 1
	path := []int{2, 2, 0, 1, 3, 3, 0, 1, 2, 0}
	label := []int{2, 1, 3, 1, 2}
	seq := peakedSequence(path, 4, 0.9)

	loss := NewLoss(blank)
	segments := loss.segments(seq, label, sep)
	expected := []segment{
		{Start: 0, End: 3, Target: []int{2}},
		{Start: 3, End: 7, Target: []int{1, 3}},
		{Start: 7, End: 10, Target: []int{1, 2}},
	}
	if !reflect.DeepEqual(segments, expected) {
		t.Fatalf("expected %v but got %v", expected, segments)
	}

	padded := append(append([][]float64{}, seq...), seq[0], seq[1])
	res := loss.Segmented([][][]float64{padded}, [][]int{append(label, 3)},
		[]int{len(seq)}, []int{len(label)}, sep)
	var expectedLoss float64
	for _, s := range expected {
		l, _ := loss.Sample(seq[s.Start:s.End], s.Target)
		expectedLoss += l
	}
	if math.Abs(res.Losses[0]-expectedLoss) > 1e-8 {
		t.Errorf("expected loss %f but got %f", expectedLoss, res.Losses[0])
	}
	if len(res.Grads[0]) != len(padded) {
		t.Fatalf("expected %d gradient rows but got %d", len(padded), len(res.Grads[0]))
	}
	for i, row := range res.Grads[0] {
		var sum float64
		for _, x := range row {
			if i >= len(seq) && x != 0 {
				t.Errorf("padding frame %d has gradient %f", i, x)
			}
			sum += x
		}
		if math.Abs(sum) > 1e-8 {
			t.Errorf("frame %d: gradient sums to %f", i, sum)
		}
	}
}

func TestSegmentedFallback(t *testing.T) {
	const blank, sep = 0, 1
	seq := peakedSequence([]int{3, 3, 3, 3, 3, 3}, 4, 0.7)
	label := []int{2, 2, 2}

	loss := NewLoss(blank)
	if segments := loss.segments(seq, label, sep); segments != nil {
		t.Errorf("expected no segments but got %v", segments)
	}
	l1 := loss.Segmented([][][]float64{seq}, [][]int{label}, []int{len(seq)},
		[]int{len(label)}, sep)
	l2 := loss.Forward([][][]float64{seq}, [][]int{label}, []int{len(seq)},
		[]int{len(label)})
	if !reflect.DeepEqual(l1, l2) {
		t.Errorf("expected %v but got %v", l2, l1)
	}
}

// peakedSequence creates log probabilities where each
// frame gives the path label probability p and splits
// the remaining mass evenly.
func peakedSequence(path []int, numLabels int, p float64) [][]float64 {
	res := make([][]float64, len(path))
	for t, x := range path {
		res[t] = make([]float64, numLabels)
		for k := range res[t] {
			if k == x {
				res[t][k] = math.Log(p)
			} else {
				res[t][k] = math.Log((1 - p) / float64(numLabels-1))
			}
		}
	}
	return res
}
