package lm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n NGram
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNGram)
}

// DeserializeNGram deserializes an NGram.
func DeserializeNGram(d []byte) (*NGram, error) {
	var order int
	var vocab string
	var counts, ids, probs, backoffs *anyvecsave.S
	err := serializer.DeserializeAny(d, &order, &vocab, &counts, &ids, &probs, &backoffs)
	if err != nil {
		return nil, essentials.AddCtx("deserialize NGram", err)
	}
	if order < 1 || order > MaxOrder {
		return nil, fmt.Errorf("deserialize NGram: invalid order %d", order)
	}

	res := NewNGram(order)
	if vocab != "" {
		for _, w := range strings.Split(vocab, "\n") {
			res.intern(w)
		}
	}

	countData := floatData(counts.Vector)
	idData := floatData(ids.Vector)
	probData := floatData(probs.Vector)
	backoffData := floatData(backoffs.Vector)
	if len(countData) != order || len(probData) != len(backoffData) {
		return nil, errors.New("deserialize NGram: inconsistent tables")
	}

	var idPos, entryPos int
	for k, c := range countData {
		gramLen := k + 1
		for i := 0; i < int(c); i++ {
			if idPos+gramLen > len(idData) || entryPos >= len(probData) {
				return nil, errors.New("deserialize NGram: truncated tables")
			}
			gram := make([]WordIndex, gramLen)
			for j := range gram {
				id := int(idData[idPos+j])
				if id < 0 || id >= len(res.words) {
					return nil, fmt.Errorf("deserialize NGram: word index %d out of range", id)
				}
				gram[j] = WordIndex(id)
			}
			res.grams[k][gramKey(gram)] = ngramEntry{
				LogProb:    probData[entryPos],
				LogBackoff: backoffData[entryPos],
			}
			idPos += gramLen
			entryPos++
		}
	}
	return res, nil
}

// SerializerType returns the unique ID used to serialize
// an NGram with the serializer package.
func (n *NGram) SerializerType() string {
	return "github.com/gaoyiyeah/end2end/lm.NGram"
}

// Serialize serializes the NGram.
func (n *NGram) Serialize() ([]byte, error) {
	var counts, ids, probs, backoffs []float64
	for _, grams := range n.grams {
		keys := make([]string, 0, len(grams))
		for key := range grams {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		counts = append(counts, float64(len(keys)))
		for _, key := range keys {
			for _, id := range parseGramKey(key) {
				ids = append(ids, float64(id))
			}
			entry := grams[key]
			probs = append(probs, entry.LogProb)
			backoffs = append(backoffs, entry.LogBackoff)
		}
	}
	return serializer.SerializeAny(
		n.order,
		strings.Join(n.words, "\n"),
		saveVector(counts),
		saveVector(ids),
		saveVector(probs),
		saveVector(backoffs),
	)
}

// LoadFile reads a model from a file.
// Both ARPA text files and serialized binaries are
// accepted; the format is detected from the contents.
func LoadFile(path string) (*NGram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load language model", err)
	}
	if isARPA(data) {
		return LoadARPA(bytes.NewReader(data))
	}
	var res *NGram
	if err := serializer.DeserializeAny(data, &res); err != nil {
		return nil, essentials.AddCtx("load language model", err)
	}
	return res, nil
}

// SaveFile writes the binary form of a model.
func SaveFile(path string, n *NGram) error {
	data, err := serializer.SerializeAny(n)
	if err != nil {
		return essentials.AddCtx("save language model", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save language model", err)
	}
	return nil
}

func isARPA(data []byte) bool {
	if len(data) > 4096 {
		data = data[:4096]
	}
	return bytes.Contains(data, []byte(`\data\`))
}

func saveVector(data []float64) *anyvecsave.S {
	c := anyvec64.DefaultCreator{}
	return &anyvecsave.S{Vector: c.MakeVectorData(c.MakeNumericList(data))}
}

func floatData(v anyvec.Vector) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return d
	case []float32:
		res := make([]float64, len(d))
		for i, x := range d {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", d))
	}
}
