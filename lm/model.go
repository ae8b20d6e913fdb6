// Package lm provides word-level language models for
// rescoring decoding hypotheses.
//
// Models are queried with explicit, immutable context
// states, so a single Model can serve many concurrent
// hypotheses without any locking.
package lm

// MaxOrder is the largest n-gram order a State can
// represent.
const MaxOrder = 8

// Special words used by ARPA language models.
const (
	SentenceBegin = "<s>"
	SentenceEnd   = "</s>"
	UnknownWord   = "<unk>"
)

// A WordIndex identifies a word in a Model's vocabulary.
type WordIndex int32

// A State is the word history used to condition the next
// query to a Model.
//
// States are plain values. Copying a State is cheap, and
// States may be compared with ==.
type State struct {
	words [MaxOrder - 1]WordIndex
	n     int
}

// Len returns the number of words in the history.
func (s State) Len() int {
	return s.n
}

// History returns the words in the state, oldest first.
func (s State) History() []WordIndex {
	return append([]WordIndex{}, s.words[:s.n]...)
}

// push appends a word, keeping at most limit words.
func (s State) push(w WordIndex, limit int) State {
	if limit <= 0 {
		return State{}
	}
	if s.n >= limit {
		copy(s.words[:limit-1], s.words[s.n-limit+1:s.n])
		s.n = limit - 1
	}
	s.words[s.n] = w
	s.n++
	return s
}

// A Model is a word-level language model.
//
// Implementations must be safe for concurrent use.
type Model interface {
	// Order returns the n-gram order of the model.
	Order() int

	// Index looks up a word in the vocabulary.
	// The second return value is false if the word is
	// out of vocabulary.
	Index(word string) (WordIndex, bool)

	// BeginSentence returns the context at the start of
	// a sentence.
	BeginSentence() State

	// Score returns the natural-log probability of word
	// given the context, along with the context that
	// follows the word.
	Score(state State, word WordIndex) (float64, State)
}
