package ctc

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Cost computes the cost for a batch of output sequences.
// The cost for each sequence is the negative log
// likelihood of the corresponding label.
//
// The outputs are all in the log domain, with one entry
// per label (including the blank) at each timestep.
//
// The anyvec.Creator must use an anyvec.NumericList type
// []float32 or []float64.
// No other numeric types are supported.
// Internally, all computations are done with float64
// copies of the sequences.
func Cost(seqs anyseq.Seq, labels [][]int, blank int) anydiff.Res {
	if len(seqs.Output()) == 0 {
		return anydiff.NewConst(seqs.Creator().MakeVector(0))
	}
	return pool(seqs, func(in []*anydiff.Var, lengths []int) anydiff.Res {
		return newCostRes(in, lengths, labels, blank)
	})
}

type costRes struct {
	Pools     []*anydiff.Var
	Occupancy [][][]float64
	OutVec    anyvec.Vector
	V         anydiff.VarSet
}

func newCostRes(pools []*anydiff.Var, lengths []int, labels [][]int, blank int) *costRes {
	loss := NewLoss(blank)
	costs := make([]float64, len(pools))
	occupancy := make([][][]float64, len(pools))
	essentials.ConcurrentMap(len(pools), len(pools), func(i int) {
		seq := vectorRows(pools[i].Vector, lengths[i])
		costs[i], occupancy[i] = loss.Sample(seq, labels[i])
	})

	var varSets []anydiff.VarSet
	for _, p := range pools {
		varSets = append(varSets, p.Vars())
	}
	c := pools[0].Vector.Creator()
	return &costRes{
		Pools:     pools,
		Occupancy: occupancy,
		OutVec:    c.MakeVectorData(c.MakeNumericList(costs)),
		V:         anydiff.MergeVarSets(varSets...),
	}
}

func (c *costRes) Output() anyvec.Vector {
	return c.OutVec
}

func (c *costRes) Vars() anydiff.VarSet {
	return c.V
}

func (c *costRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	upstream := vectorTo64(u).Data().([]float64)
	for i, pvar := range c.Pools {
		grad, ok := g[pvar]
		if !ok || len(c.Occupancy[i]) == 0 {
			continue
		}
		rows := make([][]float64, len(c.Occupancy[i]))
		for t, occ := range c.Occupancy[i] {
			rows[t] = make([]float64, len(occ))
			for k, x := range occ {
				rows[t][k] = -upstream[i] * math.Exp(x)
			}
		}
		grad.Add(rowsFrom64(grad.Creator(), rows))
	}
}

type poolRes struct {
	In      anyseq.Seq
	Pools   []*anydiff.Var
	Lengths []int
	Res     anydiff.Res
}

// pool joins the timesteps of each sequence into a single
// variable, so that per-sequence computations can treat
// a sequence as one vector.
func pool(seqs anyseq.Seq, f func(in []*anydiff.Var, lengths []int) anydiff.Res) anydiff.Res {
	rawData := anyseq.SeparateSeqs(seqs.Output())
	pools := make([]*anydiff.Var, len(rawData))
	lengths := make([]int, len(rawData))
	for i, raw := range rawData {
		pools[i] = anydiff.NewVar(seqs.Creator().Concat(raw...))
		lengths[i] = len(raw)
	}
	return &poolRes{
		In:      seqs,
		Pools:   pools,
		Lengths: lengths,
		Res:     f(pools, lengths),
	}
}

func (p *poolRes) Output() anyvec.Vector {
	return p.Res.Output()
}

func (p *poolRes) Vars() anydiff.VarSet {
	return p.In.Vars()
}

func (p *poolRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	for _, pvar := range p.Pools {
		g[pvar] = pvar.Vector.Creator().MakeVector(pvar.Vector.Len())
	}
	p.Res.Propagate(u, g)
	downstream := make([][]anyvec.Vector, len(p.Pools))
	for i, pvar := range p.Pools {
		downstream[i] = splitVec(g[pvar], p.Lengths[i])
		delete(g, p.Pools[i])
	}
	joinedU := anyseq.ConstSeqList(u.Creator(), downstream).Output()
	p.In.Propagate(joinedU, g)
}

func splitVec(vec anyvec.Vector, parts int) []anyvec.Vector {
	res := make([]anyvec.Vector, parts)
	if parts == 0 {
		return res
	}
	chunkSize := vec.Len() / parts
	for i := range res {
		res[i] = vec.Slice(i*chunkSize, (i+1)*chunkSize)
	}
	return res
}
