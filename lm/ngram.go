package lm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NGram is a backoff n-gram language model.
// All probabilities are stored in the natural log domain.
//
// An NGram must not be modified once it is shared between
// goroutines.
type NGram struct {
	order int
	vocab map[string]WordIndex
	words []string

	// grams[k] stores the (k+1)-grams.
	grams []map[string]ngramEntry
}

type ngramEntry struct {
	LogProb    float64
	LogBackoff float64
}

// NewNGram creates an empty model of the given order.
func NewNGram(order int) *NGram {
	if order < 1 || order > MaxOrder {
		panic(fmt.Sprintf("n-gram order out of range: %d", order))
	}
	grams := make([]map[string]ngramEntry, order)
	for i := range grams {
		grams[i] = map[string]ngramEntry{}
	}
	return &NGram{
		order: order,
		vocab: map[string]WordIndex{},
		grams: grams,
	}
}

// Order returns the n-gram order of the model.
func (n *NGram) Order() int {
	return n.order
}

// VocabSize returns the number of distinct words the
// model has seen.
func (n *NGram) VocabSize() int {
	return len(n.words)
}

// Count returns the number of n-grams of the given order.
func (n *NGram) Count(order int) int {
	if order < 1 || order > n.order {
		return 0
	}
	return len(n.grams[order-1])
}

// Set adds or replaces an n-gram.
// The number of words determines the n-gram order.
func (n *NGram) Set(words []string, logProb, logBackoff float64) {
	if len(words) == 0 || len(words) > n.order {
		panic(fmt.Sprintf("cannot store %d-gram in order %d model", len(words), n.order))
	}
	ids := make([]WordIndex, len(words))
	for i, w := range words {
		ids[i] = n.intern(w)
	}
	n.grams[len(ids)-1][gramKey(ids)] = ngramEntry{
		LogProb:    logProb,
		LogBackoff: logBackoff,
	}
}

// Index looks up a word.
// Words without a unigram entry, and the unknown word
// itself, are out of vocabulary.
func (n *NGram) Index(word string) (WordIndex, bool) {
	if word == UnknownWord {
		return 0, false
	}
	idx, ok := n.vocab[word]
	if !ok {
		return 0, false
	}
	if _, ok := n.grams[0][gramKey([]WordIndex{idx})]; !ok {
		return 0, false
	}
	return idx, true
}

// Word returns the text of a word index.
func (n *NGram) Word(idx WordIndex) string {
	return n.words[idx]
}

// BeginSentence returns a context containing the
// sentence-begin marker, if the model has one.
func (n *NGram) BeginSentence() State {
	var s State
	if idx, ok := n.vocab[SentenceBegin]; ok {
		s = s.push(idx, n.order-1)
	}
	return s
}

// Score computes the backoff probability of a word.
//
// If the full n-gram is missing, the backoff weight of the
// context is added and the context is shortened, until an
// n-gram is found.
func (n *NGram) Score(state State, word WordIndex) (float64, State) {
	next := state.push(word, n.order-1)
	hist := state.words[:state.n]
	if len(hist) > n.order-1 {
		hist = hist[len(hist)-(n.order-1):]
	}
	var backoff float64
	for start := 0; start <= len(hist); start++ {
		ctx := hist[start:]
		if e, ok := n.grams[len(ctx)][gramKey(ctx, word)]; ok {
			return backoff + e.LogProb, next
		}
		if len(ctx) > 0 {
			if e, ok := n.grams[len(ctx)-1][gramKey(ctx)]; ok {
				backoff += e.LogBackoff
			}
		}
	}
	return math.Inf(-1), next
}

// SentenceLogProb scores a sequence of words starting
// from the sentence-begin context.
//
// Out-of-vocabulary words are scored as <unk> when the
// model has it, and otherwise make the result -Inf.
func (n *NGram) SentenceLogProb(words []string) float64 {
	var total float64
	state := n.BeginSentence()
	for _, w := range words {
		idx, ok := n.Index(w)
		if !ok {
			if idx, ok = n.vocab[UnknownWord]; !ok {
				return math.Inf(-1)
			}
		}
		var score float64
		score, state = n.Score(state, idx)
		total += score
	}
	return total
}

func (n *NGram) intern(word string) WordIndex {
	if idx, ok := n.vocab[word]; ok {
		return idx
	}
	idx := WordIndex(len(n.words))
	n.vocab[word] = idx
	n.words = append(n.words, word)
	return idx
}

func gramKey(ids []WordIndex, extra ...WordIndex) string {
	buf := make([]byte, 4*(len(ids)+len(extra)))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(id))
	}
	for i, id := range extra {
		binary.LittleEndian.PutUint32(buf[4*(len(ids)+i):], uint32(id))
	}
	return string(buf)
}

func parseGramKey(key string) []WordIndex {
	res := make([]WordIndex, len(key)/4)
	for i := range res {
		res[i] = WordIndex(binary.LittleEndian.Uint32([]byte(key[4*i : 4*i+4])))
	}
	return res
}
