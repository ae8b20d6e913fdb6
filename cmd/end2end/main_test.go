package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gaoyiyeah/end2end/ctc"
	"github.com/gaoyiyeah/end2end/lm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testARPA = `\data\
ngram 1=4

\1-grams:
-0.5	ab
-1.0	ba
-1.5	bb
-2.0	b

\end\
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// peakedFrames builds log probabilities which strongly
// favor the given frame-level path.
func peakedFrames(path []int, numLabels int) [][]float64 {
	res := make([][]float64, len(path))
	for t, x := range path {
		res[t] = make([]float64, numLabels)
		for k := range res[t] {
			if k == x {
				res[t][k] = math.Log(0.97)
			} else {
				res[t][k] = math.Log(0.03 / float64(numLabels-1))
			}
		}
	}
	return res
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func writeBatch(t *testing.T, batch *batchInput) string {
	t.Helper()
	data, err := sonic.Marshal(batch)
	require.NoError(t, err)
	return writeFile(t, "batch.json", string(data))
}

// Labels are "_", " ", "a", "b".
func testBatch() *batchInput {
	return &batchInput{
		LogProbs: [][][]float64{
			peakedFrames([]int{2, 0, 3, 1, 1, 3, 2, 0}, 4),
			peakedFrames([]int{3, 3, 0, 3, 0, 0, 0, 0}, 4),
		},
		Lengths: []int{8, 5},
		Targets: [][]int{{2, 3, 1, 3, 2}, {3, 3, 2}},
	}
}

func TestDecodeCommand(t *testing.T) {
	input := writeBatch(t, testBatch())
	for _, greedy := range []bool{false, true} {
		args := []string{"decode", "--input", input, "--alphabet", "_ ab", "--beam-width", "4"}
		if greedy {
			args = append(args, "--greedy")
		}
		out, err := execute(t, "", args...)
		require.NoError(t, err)
		assert.Equal(t, "ab ba\nbb\n", out, "greedy=%v", greedy)
	}
}

func TestDecodeCommandStdin(t *testing.T) {
	data, err := sonic.Marshal(&batchInput{
		LogProbs: [][][]float64{peakedFrames([]int{2, 3, 3}, 4)},
	})
	require.NoError(t, err)
	out, err := execute(t, string(data), "decode", "--alphabet", "_ ab", "--json")
	require.NoError(t, err)

	var res decodeOutput
	require.NoError(t, sonic.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"ab"}, res.Strings)
	assert.Equal(t, []int{2}, res.Lengths)
	assert.Equal(t, [][]int{{2, 3}}, res.Indices)
	require.Len(t, res.Scores, 1)
	assert.Less(t, res.Scores[0], 0.0)
}

func TestDecodeCommandLanguageModel(t *testing.T) {
	lmPath := writeFile(t, "model.arpa", testARPA)
	input := writeBatch(t, testBatch())
	out, err := execute(t, "", "decode", "--input", input, "--alphabet", "_ ab",
		"--lm", lmPath, "--lm-weight", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "ab ba\nbb\n", out)
}

func TestDecodeCommandConfig(t *testing.T) {
	input := writeBatch(t, testBatch())
	config := writeFile(t, "config.yaml", `
decoder:
  labels: ["_", "-", "a", "b"]
  separator: "-"
  beam_width: 3
`)
	out, err := execute(t, "", "decode", "--config", config, "--input", input)
	require.NoError(t, err)
	assert.Equal(t, "ab-ba\nbb\n", out)

	bad := writeFile(t, "bad.yaml", "decoder:\n  beam_width: 0\n")
	_, err = execute(t, "", "decode", "--config", bad, "--input", input)
	assert.Error(t, err)

	// Flags take precedence over the config file.
	_, err = execute(t, "", "decode", "--config", bad, "--input", input, "--beam-width", "2",
		"--alphabet", "_ ab")
	assert.NoError(t, err)
}

func TestDecodeCommandErrors(t *testing.T) {
	_, err := execute(t, "", "decode", "--input", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "not json", "decode")
	assert.Error(t, err)

	// Frames must have one entry per label.
	input := writeBatch(t, testBatch())
	_, err = execute(t, "", "decode", "--input", input)
	assert.Error(t, err)

	_, err = execute(t, "", "decode", "--input", input, "--alphabet", "_ ab",
		"--log-level", "loud")
	assert.Error(t, err)
}

func TestLossCommand(t *testing.T) {
	batch := testBatch()
	input := writeBatch(t, batch)
	for _, segmented := range []bool{false, true} {
		args := []string{"loss", "--input", input, "--alphabet", "_ ab"}
		if segmented {
			args = append(args, "--segmented")
		}
		out, err := execute(t, "", args...)
		require.NoError(t, err)

		lines := strings.Fields(out)
		require.Len(t, lines, 2)
		loss := ctc.NewLoss(0)
		targetLens := []int{5, 3}
		var expected []float64
		if segmented {
			expected = loss.Segmented(batch.LogProbs, batch.Targets, batch.Lengths,
				targetLens, 1).Losses
		} else {
			expected = loss.Forward(batch.LogProbs, batch.Targets, batch.Lengths,
				targetLens).Losses
		}
		for i, line := range lines {
			actual, err := strconv.ParseFloat(line, 64)
			require.NoError(t, err)
			assert.InDelta(t, expected[i], actual, 1e-5)
		}
	}
}

func TestLossCommandErrors(t *testing.T) {
	batch := testBatch()
	batch.Targets = nil
	input := writeBatch(t, batch)
	_, err := execute(t, "", "loss", "--input", input, "--alphabet", "_ ab")
	assert.Error(t, err)

	batch = testBatch()
	batch.Targets[0][0] = 7
	input = writeBatch(t, batch)
	_, err = execute(t, "", "loss", "--input", input, "--alphabet", "_ ab")
	assert.Error(t, err)

	input = writeBatch(t, testBatch())
	_, err = execute(t, "", "loss", "--input", input, "--alphabet", "_-ab", "--segmented")
	assert.Error(t, err)
}

func TestScoreCommand(t *testing.T) {
	lmPath := writeFile(t, "model.arpa", testARPA)
	out, err := execute(t, "", "score", "--lm", lmPath, "AB", "missing")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "AB\t"+strconv.FormatFloat(-0.5*math.Ln10, 'f', 6, 64), lines[0])
	assert.Equal(t, "missing\t-1000.000000", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "total\t"))

	out, err = execute(t, "", "score", "--lm", lmPath, "--case-sensitive",
		"--oov-score", "-5", "AB")
	require.NoError(t, err)
	assert.Contains(t, out, "AB\t-5.000000")

	_, err = execute(t, "", "score", "ab")
	assert.Error(t, err)
}

func TestCompileCommand(t *testing.T) {
	arpaPath := writeFile(t, "model.arpa", testARPA)
	outPath := filepath.Join(t.TempDir(), "model.bin")
	_, err := execute(t, "", "compile-lm", arpaPath, outPath, "--log-level", "error")
	require.NoError(t, err)

	compiled, err := lm.LoadFile(outPath)
	require.NoError(t, err)
	original, err := lm.LoadFile(arpaPath)
	require.NoError(t, err)
	assert.Equal(t, original.Count(1), compiled.Count(1))
	for _, w := range []string{"ab", "ba", "bb", "b"} {
		words := []string{w}
		assert.Equal(t, original.SentenceLogProb(words), compiled.SentenceLogProb(words))
	}

	_, err = execute(t, "", "compile-lm", arpaPath)
	assert.Error(t, err)
}
