package main

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gaoyiyeah/end2end/ctc"
	"github.com/spf13/cobra"
	"github.com/unixpickle/essentials"
	"go.uber.org/zap"
)

func (a *app) newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a batch of label log probabilities",
		Long: `Decode a batch of frame log probabilities into text.

The input is a JSON object with "log_probs" indexed by sample, frame,
and label, and optional "lengths".

Examples:
  # Beam search with a language model
  end2end decode --input batch.json --lm model.arpa

  # Best path decoding
  end2end decode --input batch.json --greedy`,
		Args: cobra.NoArgs,
		RunE: a.runDecode,
	}
	cmd.Flags().String("input", "-", "batch JSON file, or - for stdin")
	cmd.Flags().Bool("greedy", false, "use best path decoding instead of beam search")
	cmd.Flags().Bool("json", false, "print the full output as JSON")
	addDecoderFlags(cmd)
	return cmd
}

func (a *app) runDecode(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	greedy, _ := cmd.Flags().GetBool("greedy")
	asJSON, _ := cmd.Flags().GetBool("json")

	decoder, err := a.newDecoder(cmd)
	if err != nil {
		return err
	}
	batch, err := readBatch(inputPath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := batch.validate(len(decoder.Config().Labels), false); err != nil {
		return err
	}

	start := time.Now()
	var out *ctc.Output
	if greedy {
		out = decoder.DecodeGreedy(batch.LogProbs, batch.Lengths)
	} else {
		out = decoder.Decode(batch.LogProbs, batch.Lengths)
	}
	a.logger.Info("decoded batch",
		zap.Int("samples", len(batch.LogProbs)),
		zap.Bool("greedy", greedy),
		zap.Duration("elapsed", time.Since(start)))

	if asJSON {
		data, err := sonic.Marshal(decodeOutput{
			Indices: out.Indices,
			Lengths: out.Lengths,
			Strings: out.Strings,
			Scores:  out.Scores,
		})
		if err != nil {
			return essentials.AddCtx("decode", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	for _, s := range out.Strings {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), s); err != nil {
			return err
		}
	}
	return nil
}

type decodeOutput struct {
	Indices [][]int   `json:"indices"`
	Lengths []int     `json:"lengths"`
	Strings []string  `json:"strings"`
	Scores  []float64 `json:"scores"`
}
