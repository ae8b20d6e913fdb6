package ctc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gaoyiyeah/end2end/lm"
	"github.com/jellydator/ttlcache/v3"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/essentials"
)

// Config configures a Decoder.
type Config struct {
	// Blank is the label index of the blank symbol.
	Blank int `mapstructure:"blank"`

	// BeamWidth is the maximum number of hypotheses kept
	// after every timestep.
	BeamWidth int `mapstructure:"beam_width"`

	// Labels maps label indices to their text.
	Labels []string `mapstructure:"labels"`

	// LMPath is the path to an ARPA or compiled language
	// model.
	// If it is empty and no model is supplied with
	// WithModel, decoding uses acoustic scores only.
	LMPath string `mapstructure:"lm_path"`

	// CaseSensitive disables lower-casing of words before
	// they are looked up in the language model.
	CaseSensitive bool `mapstructure:"case_sensitive"`

	// LMWeight scales language model scores before they
	// are added to acoustic scores.
	LMWeight float64 `mapstructure:"lm_weight"`

	// OOVScore is the language model score given to words
	// that are not in the vocabulary.
	OOVScore float64 `mapstructure:"oov_score"`

	// PruneLogProb is the log probability below which a
	// label is not considered during beam search.
	PruneLogProb float64 `mapstructure:"prune_log_prob"`

	// Separator is the label text that ends a word.
	Separator string `mapstructure:"separator"`
}

// DefaultConfig returns the default decoder configuration.
// Labels must still be set.
func DefaultConfig() Config {
	return Config{
		BeamWidth:    100,
		LMWeight:     1,
		OOVScore:     -1000,
		PruneLogProb: -16,
		Separator:    " ",
	}
}

// SeparatorIndex returns the index of the first label
// matching Separator, or -1 if there is none.
func (c Config) SeparatorIndex() int {
	for i, label := range c.Labels {
		if label == c.Separator && i != c.Blank {
			return i
		}
	}
	return -1
}

// An Option customizes a Decoder.
type Option func(d *Decoder)

// WithModel sets the language model, overriding
// Config.LMPath.
func WithModel(m lm.Model) Option {
	return func(d *Decoder) {
		d.model = m
	}
}

// WithCacheCapacity bounds the number of words in the
// word lookup cache.
// A capacity of zero means no bound.
func WithCacheCapacity(n int) Option {
	return func(d *Decoder) {
		d.cacheCapacity = n
	}
}

type wordLookup struct {
	Index lm.WordIndex
	Known bool
}

// A Decoder turns label probabilities into text.
//
// A Decoder is safe for concurrent use.
type Decoder struct {
	cfg       Config
	separator int
	model     lm.Model

	cache         *ttlcache.Cache[string, wordLookup]
	cacheCapacity int
}

// NewDecoder creates a Decoder.
func NewDecoder(cfg Config, opts ...Option) (*Decoder, error) {
	if cfg.BeamWidth < 1 {
		return nil, fmt.Errorf("create decoder: invalid beam width %d", cfg.BeamWidth)
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("create decoder: empty label table")
	}
	if cfg.Blank < 0 || cfg.Blank >= len(cfg.Labels) {
		return nil, fmt.Errorf("create decoder: blank %d out of range", cfg.Blank)
	}

	d := &Decoder{cfg: cfg, separator: cfg.SeparatorIndex()}
	for _, o := range opts {
		o(d)
	}
	if d.model == nil && cfg.LMPath != "" {
		model, err := lm.LoadFile(cfg.LMPath)
		if err != nil {
			return nil, essentials.AddCtx("create decoder", err)
		}
		d.model = model
	}

	cacheOpts := []ttlcache.Option[string, wordLookup]{
		ttlcache.WithTTL[string, wordLookup](ttlcache.NoTTL),
	}
	if d.cacheCapacity > 0 {
		cacheOpts = append(cacheOpts,
			ttlcache.WithCapacity[string, wordLookup](uint64(d.cacheCapacity)))
	}
	d.cache = ttlcache.New(cacheOpts...)
	return d, nil
}

// Config returns the configuration of the decoder.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Model returns the language model, or nil if there is
// none.
func (d *Decoder) Model() lm.Model {
	return d.model
}

// Output is the result of decoding a batch.
type Output struct {
	// Indices stores the decoded labels of each sample,
	// padded with the blank index to the longest result.
	Indices [][]int

	// Lengths stores the number of decoded labels for each
	// sample.
	Lengths []int

	// Strings stores the text of each result.
	Strings []string

	// Scores stores the log score of each result.
	// For beam search, this includes the weighted language
	// model score.
	Scores []float64
}

// Decode runs a beam search on every sample in a batch.
//
// The logProbs argument is indexed by sample, timestep,
// and label, and only the first lengths[i] timesteps of
// each sample are used.
func (d *Decoder) Decode(logProbs [][][]float64, lengths []int) *Output {
	return d.decodeBatch(logProbs, lengths, d.beamSearch)
}

// DecodeGreedy decodes every sample in a batch with
// BestPath.
func (d *Decoder) DecodeGreedy(logProbs [][][]float64, lengths []int) *Output {
	return d.decodeBatch(logProbs, lengths, func(seq [][]float64) ([]int, float64) {
		return bestPath(seq, d.cfg.Blank)
	})
}

// DecodeSeq is like Decode, but it reads log
// probabilities from a batch of sequences, such as the
// output of a network passed to Cost.
func (d *Decoder) DecodeSeq(seqs anyseq.Seq) *Output {
	return d.Decode(seqRows(seqs))
}

// DecodeGreedySeq is like DecodeGreedy, but it reads log
// probabilities from a batch of sequences.
func (d *Decoder) DecodeGreedySeq(seqs anyseq.Seq) *Output {
	return d.DecodeGreedy(seqRows(seqs))
}

// seqRows unpacks a batch of sequences into per-sample
// float64 frames and their lengths.
func seqRows(seqs anyseq.Seq) ([][][]float64, []int) {
	steps := anyseq.SeparateSeqs(seqs.Output())
	res := make([][][]float64, len(steps))
	lengths := make([]int, len(steps))
	for i, seq := range steps {
		lengths[i] = len(seq)
		if len(seq) > 0 {
			res[i] = vectorRows(seqs.Creator().Concat(seq...), len(seq))
		}
	}
	return res, lengths
}

func (d *Decoder) decodeBatch(logProbs [][][]float64, lengths []int,
	f func(seq [][]float64) ([]int, float64)) *Output {
	batch := len(lengths)
	res := &Output{
		Indices: make([][]int, batch),
		Lengths: make([]int, batch),
		Strings: make([]string, batch),
		Scores:  make([]float64, batch),
	}
	essentials.ConcurrentMap(0, batch, func(i int) {
		labels, score := f(logProbs[i][:lengths[i]])
		res.Indices[i] = labels
		res.Lengths[i] = len(labels)
		res.Strings[i] = d.render(labels)
		res.Scores[i] = score
	})

	var maxLen int
	for _, l := range res.Lengths {
		maxLen = essentials.MaxInt(maxLen, l)
	}
	for i, labels := range res.Indices {
		for len(labels) < maxLen {
			labels = append(labels, d.cfg.Blank)
		}
		res.Indices[i] = labels
	}
	return res
}

func (d *Decoder) render(labels []int) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(d.cfg.Labels[l])
	}
	return b.String()
}

// ScoreSentence computes the language model score of a
// sequence of words, starting from the beginning of a
// sentence.
//
// Out-of-vocabulary words receive Config.OOVScore.
// Without a language model, the score is always 0.
func (d *Decoder) ScoreSentence(words []string) float64 {
	var total float64
	for _, s := range d.wordScores(words) {
		total += s
	}
	return total
}

// PrintScores writes the language model score of every
// word and the total score of the sentence.
func (d *Decoder) PrintScores(w io.Writer, words []string) error {
	var total float64
	for i, s := range d.wordScores(words) {
		total += s
		if _, err := fmt.Fprintf(w, "%s\t%f\n", words[i], s); err != nil {
			return essentials.AddCtx("print scores", err)
		}
	}
	if _, err := fmt.Fprintf(w, "total\t%f\n", total); err != nil {
		return essentials.AddCtx("print scores", err)
	}
	return nil
}

func (d *Decoder) wordScores(words []string) []float64 {
	res := make([]float64, len(words))
	if d.model == nil {
		return res
	}
	state := d.model.BeginSentence()
	for i, w := range words {
		res[i], state = d.scoreWord(state, w)
	}
	return res
}

// scoreWord scores a word with the language model.
// Unknown words get the OOV score and leave the state
// unchanged.
func (d *Decoder) scoreWord(state lm.State, word string) (float64, lm.State) {
	lookup := d.wordIndex(word)
	if !lookup.Known {
		return d.cfg.OOVScore, state
	}
	return d.model.Score(state, lookup.Index)
}

func (d *Decoder) wordIndex(word string) wordLookup {
	if !d.cfg.CaseSensitive {
		word = strings.ToLower(word)
	}
	if item := d.cache.Get(word); item != nil {
		return item.Value()
	}
	idx, ok := d.model.Index(word)
	res := wordLookup{Index: idx, Known: ok}
	d.cache.Set(word, res, ttlcache.DefaultTTL)
	return res
}
