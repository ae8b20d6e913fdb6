package ctc

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/gaoyiyeah/end2end/lm"
)

// labelProb represents the probability of a labeling,
// split up into the probability of the labeling without a
// trailing blank and with a trailing blank.
type labelProb struct {
	Blank   float64
	NoBlank float64
}

func (l labelProb) Total() float64 {
	return addLogs(l.Blank, l.NoBlank)
}

func (l labelProb) merge(other labelProb) labelProb {
	return labelProb{
		Blank:   addLogs(l.Blank, other.Blank),
		NoBlank: addLogs(l.NoBlank, other.NoBlank),
	}
}

// A hypothesis is one candidate labeling in a beam.
type hypothesis struct {
	Labels []int

	// Prob is the acoustic probability of the labeling.
	Prob labelProb

	// LMScore is the sum of the language model scores of
	// the completed words.
	LMScore float64
	LMState lm.State

	// Word is the text emitted since the last separator.
	Word string

	key uint64
}

func (h *hypothesis) score(lmWeight float64) float64 {
	return h.Prob.Total() + lmWeight*h.LMScore
}

// A beam is the set of hypotheses alive at a timestep.
// Hypotheses with the same labels share one entry.
type beam struct {
	hyps  []hypothesis
	index map[uint64][]int
}

func newBeam() *beam {
	return &beam{index: map[uint64][]int{}}
}

// add inserts a hypothesis, merging it into an existing
// entry with the same labels.
func (b *beam) add(h hypothesis) {
	for _, i := range b.index[h.key] {
		if labelsEqual(b.hyps[i].Labels, h.Labels) {
			b.hyps[i].Prob = b.hyps[i].Prob.merge(h.Prob)
			return
		}
	}
	b.index[h.key] = append(b.index[h.key], len(b.hyps))
	b.hyps = append(b.hyps, h)
}

// prune sorts the hypotheses by score and keeps the best
// width of them.
func (b *beam) prune(width int, lmWeight float64) {
	sort.SliceStable(b.hyps, func(i, j int) bool {
		return b.hyps[i].score(lmWeight) > b.hyps[j].score(lmWeight)
	})
	if len(b.hyps) > width {
		b.hyps = b.hyps[:width]
	}
	b.index = nil
}

// beamSearch decodes one sequence.
// It returns the labels of the best hypothesis and its
// combined score.
func (d *Decoder) beamSearch(seq [][]float64) ([]int, float64) {
	root := hypothesis{Prob: labelProb{Blank: 0, NoBlank: math.Inf(-1)}}
	if d.model != nil {
		root.LMState = d.model.BeginSentence()
	}
	cur := &beam{hyps: []hypothesis{root}}

	for _, frame := range seq {
		next := newBeam()
		for i := range cur.hyps {
			d.extend(next, &cur.hyps[i], frame)
		}
		if len(next.hyps) == 0 {
			continue
		}
		next.prune(d.cfg.BeamWidth, d.cfg.LMWeight)
		cur = next
	}

	for i := range cur.hyps {
		h := &cur.hyps[i]
		if h.Word != "" && d.model != nil {
			score, state := d.scoreWord(h.LMState, h.Word)
			h.LMScore += score
			h.LMState = state
			h.Word = ""
		}
	}
	cur.prune(1, d.cfg.LMWeight)
	best := cur.hyps[0]
	return append([]int{}, best.Labels...), best.score(d.cfg.LMWeight)
}

// extend adds every continuation of h through a frame to
// the next beam.
func (d *Decoder) extend(next *beam, h *hypothesis, frame []float64) {
	last := -1
	if len(h.Labels) > 0 {
		last = h.Labels[len(h.Labels)-1]
	}
	total := h.Prob.Total()
	for label, logProb := range frame {
		if logProb < d.cfg.PruneLogProb {
			continue
		}
		if label == d.cfg.Blank {
			stay := *h
			stay.Prob = labelProb{Blank: total + logProb, NoBlank: math.Inf(-1)}
			next.add(stay)
			continue
		}
		if label == last {
			stay := *h
			stay.Prob = labelProb{Blank: math.Inf(-1), NoBlank: h.Prob.NoBlank + logProb}
			next.add(stay)

			// A repeated label needs a blank in between.
			if !math.IsInf(h.Prob.Blank, -1) {
				child := d.child(h, label)
				child.Prob = labelProb{Blank: math.Inf(-1), NoBlank: h.Prob.Blank + logProb}
				next.add(child)
			}
			continue
		}
		child := d.child(h, label)
		child.Prob = labelProb{Blank: math.Inf(-1), NoBlank: total + logProb}
		next.add(child)
	}
}

// child creates the hypothesis which appends a label to h,
// applying the language model at word boundaries.
// The acoustic probability is left for the caller to set.
func (d *Decoder) child(h *hypothesis, label int) hypothesis {
	labels := make([]int, len(h.Labels)+1)
	copy(labels, h.Labels)
	labels[len(h.Labels)] = label
	res := hypothesis{
		Labels:  labels,
		LMScore: h.LMScore,
		LMState: h.LMState,
		key:     childKey(h.key, label),
	}
	if label != d.separator {
		res.Word = h.Word + d.cfg.Labels[label]
	} else if h.Word != "" && d.model != nil {
		score, state := d.scoreWord(h.LMState, h.Word)
		res.LMScore += score
		res.LMState = state
	}
	return res
}

func childKey(parent uint64, label int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], parent)
	binary.LittleEndian.PutUint64(buf[8:], uint64(label))
	return xxhash.Sum64(buf[:])
}

func labelsEqual(l1, l2 []int) bool {
	if len(l1) != len(l2) {
		return false
	}
	for i, x := range l1 {
		if l2[i] != x {
			return false
		}
	}
	return true
}
