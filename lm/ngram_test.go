package lm

import (
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/serializer"
)

const testARPA = `
Some tools write a preamble before the data section.

\data\
ngram 1=5
ngram 2=4

\1-grams:
-1.0	</s>
-99	<s>	-0.5
-0.5	hello	-0.25
-0.7	world	-0.3
-1.2	there

\2-grams:
-0.3	<s>	hello
-0.4	hello	world
-0.2	world	</s>
-0.6	hello	there

\end\
`

func loadTestModel(t *testing.T) *NGram {
	model, err := LoadARPA(strings.NewReader(testARPA))
	require.NoError(t, err)
	return model
}

func TestLoadARPA(t *testing.T) {
	model := loadTestModel(t)
	assert.Equal(t, 2, model.Order())
	assert.Equal(t, 5, model.Count(1))
	assert.Equal(t, 4, model.Count(2))
	assert.Equal(t, 0, model.Count(3))
	assert.Equal(t, 5, model.VocabSize())

	idx, ok := model.Index("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", model.Word(idx))

	_, ok = model.Index("missing")
	assert.False(t, ok)
	_, ok = model.Index(UnknownWord)
	assert.False(t, ok)
}

func TestLoadARPAErrors(t *testing.T) {
	inputs := []string{
		"",
		"\\data\\\nngram 1=1\n\\end\\\n",
		"\\data\\\nngram 1=1\n\\2-grams:\n-1 a b\n\\end\\\n",
		"\\data\\\nngram 1=1\n\\1-grams:\nabc hello\n\\end\\\n",
		"\\data\\\nngram x=1\n",
	}
	for i, in := range inputs {
		_, err := LoadARPA(strings.NewReader(in))
		assert.Error(t, err, "input %d", i)
	}
}

func TestNGramScore(t *testing.T) {
	model := loadTestModel(t)
	hello, _ := model.Index("hello")
	world, _ := model.Index("world")
	there, _ := model.Index("there")

	start := model.BeginSentence()
	assert.Equal(t, 1, start.Len())

	// Bigram present.
	score, state := model.Score(start, hello)
	assert.InDelta(t, -0.3*math.Ln10, score, 1e-9)
	assert.Equal(t, []WordIndex{hello}, state.History())

	score, state = model.Score(state, world)
	assert.InDelta(t, -0.4*math.Ln10, score, 1e-9)

	// Backoff from "world" to the unigram "there".
	score, _ = model.Score(state, there)
	assert.InDelta(t, (-0.3-1.2)*math.Ln10, score, 1e-9)

	// Backoff from "<s>" to the unigram "world".
	score, _ = model.Score(start, world)
	assert.InDelta(t, (-0.5-0.7)*math.Ln10, score, 1e-9)
}

func TestNGramHigherOrderBackoff(t *testing.T) {
	model := NewNGram(3)
	model.Set([]string{"a"}, -1, -0.5)
	model.Set([]string{"b"}, -2, -0.25)
	model.Set([]string{"c"}, -3, 0)
	model.Set([]string{"a", "b"}, -0.5, -0.1)
	model.Set([]string{"b", "c"}, -0.7, 0)
	model.Set([]string{"a", "b", "c"}, -0.2, 0)

	a, _ := model.Index("a")
	b, _ := model.Index("b")
	c, _ := model.Index("c")

	var state State
	_, state = model.Score(state, a)
	_, state = model.Score(state, b)
	score, state := model.Score(state, c)
	assert.Equal(t, -0.2, score)
	assert.Equal(t, []WordIndex{b, c}, state.History())

	// (b, c, a) is missing; back off through (c, a) to the
	// unigram "a" using the weights of (b, c) and (c).
	score, state = model.Score(state, a)
	assert.InDelta(t, 0+0-1.0, score, 1e-12)
	assert.Equal(t, []WordIndex{c, a}, state.History())

	// (c, a, b) is missing, (a, b) exists.
	score, _ = model.Score(state, b)
	assert.InDelta(t, -0.5, score, 1e-12)
}

func TestNGramConcurrentScore(t *testing.T) {
	model := loadTestModel(t)
	hello, _ := model.Index("hello")
	expected, _ := model.Score(model.BeginSentence(), hello)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = model.Score(model.BeginSentence(), hello)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, expected, r)
	}
}

func TestNGramSerialize(t *testing.T) {
	model := loadTestModel(t)
	data, err := serializer.SerializeAny(model)
	require.NoError(t, err)
	var model1 *NGram
	require.NoError(t, serializer.DeserializeAny(data, &model1))
	if !reflect.DeepEqual(model, model1) {
		t.Fatal("deserialized model differs")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	model := loadTestModel(t)

	binPath := filepath.Join(dir, "model.bin")
	require.NoError(t, SaveFile(binPath, model))
	loaded, err := LoadFile(binPath)
	require.NoError(t, err)

	hello, _ := model.Index("hello")
	expected, _ := model.Score(model.BeginSentence(), hello)
	actual, _ := loaded.Score(loaded.BeginSentence(), hello)
	assert.Equal(t, expected, actual)

	_, err = LoadFile(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
}

func TestStatePush(t *testing.T) {
	var s State
	for i := 0; i < 5; i++ {
		s = s.push(WordIndex(i), 3)
	}
	assert.Equal(t, []WordIndex{2, 3, 4}, s.History())
	assert.Equal(t, State{}, s.push(7, 0))
}

func TestSentenceLogProb(t *testing.T) {
	model := loadTestModel(t)
	assert.InDelta(t, (-0.3-0.4)*math.Ln10,
		model.SentenceLogProb([]string{"hello", "world"}), 1e-9)
	assert.Equal(t, 0.0, model.SentenceLogProb(nil))
	assert.True(t, math.IsInf(model.SentenceLogProb([]string{"missing"}), -1))

	model.Set([]string{UnknownWord}, -2, 0)
	assert.InDelta(t, -0.5*math.Ln10-2, model.SentenceLogProb([]string{"missing"}), 1e-9)
}
