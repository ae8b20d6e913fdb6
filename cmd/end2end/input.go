package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/unixpickle/essentials"
)

// batchInput is the JSON form of a batch of frame log
// probabilities.
type batchInput struct {
	LogProbs      [][][]float64 `json:"log_probs"`
	Lengths       []int         `json:"lengths,omitempty"`
	Targets       [][]int       `json:"targets,omitempty"`
	TargetLengths []int         `json:"target_lengths,omitempty"`
}

// readBatch reads a batch from a file, or from stdin if
// the path is "-".
func readBatch(path string, stdin io.Reader) (*batchInput, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, essentials.AddCtx("read batch", err)
	}
	var res batchInput
	if err := sonic.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("read batch", err)
	}
	res.fillDefaults()
	return &res, nil
}

func (b *batchInput) fillDefaults() {
	if b.Lengths == nil {
		for _, seq := range b.LogProbs {
			b.Lengths = append(b.Lengths, len(seq))
		}
	}
	if b.TargetLengths == nil {
		for _, target := range b.Targets {
			b.TargetLengths = append(b.TargetLengths, len(target))
		}
	}
}

// validate checks that the batch can be passed to the
// decoder or the loss without going out of bounds.
func (b *batchInput) validate(numLabels int, needTargets bool) error {
	if len(b.LogProbs) == 0 {
		return errors.New("validate batch: empty batch")
	}
	if len(b.Lengths) != len(b.LogProbs) {
		return fmt.Errorf("validate batch: %d lengths for %d samples",
			len(b.Lengths), len(b.LogProbs))
	}
	for i, seq := range b.LogProbs {
		if b.Lengths[i] < 0 || b.Lengths[i] > len(seq) {
			return fmt.Errorf("validate batch: sample %d: length %d out of range",
				i, b.Lengths[i])
		}
		for t, frame := range seq {
			if len(frame) != numLabels {
				return fmt.Errorf("validate batch: sample %d: frame %d has %d labels "+
					"(expected %d)", i, t, len(frame), numLabels)
			}
		}
	}
	if !needTargets {
		return nil
	}
	if len(b.Targets) != len(b.LogProbs) || len(b.TargetLengths) != len(b.LogProbs) {
		return errors.New("validate batch: targets do not match samples")
	}
	for i, target := range b.Targets {
		if b.TargetLengths[i] < 0 || b.TargetLengths[i] > len(target) {
			return fmt.Errorf("validate batch: sample %d: target length %d out of range",
				i, b.TargetLengths[i])
		}
		for _, label := range target {
			if label < 0 || label >= numLabels {
				return fmt.Errorf("validate batch: sample %d: label %d out of range",
					i, label)
			}
		}
	}
	return nil
}
