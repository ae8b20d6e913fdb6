package main

import (
	"errors"
	"fmt"

	"github.com/gaoyiyeah/end2end/ctc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) newLossCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loss",
		Short: "Compute the CTC loss of a batch",
		Long: `Compute the CTC loss of every sample in a batch.

The input is a JSON object with "log_probs", "targets", and optional
"lengths" and "target_lengths".`,
		Args: cobra.NoArgs,
		RunE: a.runLoss,
	}
	cmd.Flags().String("input", "-", "batch JSON file, or - for stdin")
	cmd.Flags().Bool("segmented", false, "split samples at well recognized word boundaries")
	addDecoderFlags(cmd)
	return cmd
}

func (a *app) runLoss(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	segmented, _ := cmd.Flags().GetBool("segmented")

	cfg, err := a.decoderConfig(cmd)
	if err != nil {
		return err
	}
	batch, err := readBatch(inputPath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := batch.validate(len(cfg.Labels), true); err != nil {
		return err
	}

	loss := ctc.NewLoss(cfg.Blank)
	var res *ctc.LossResult
	if segmented {
		separator := cfg.SeparatorIndex()
		if separator < 0 {
			return errors.New("loss: no separator label")
		}
		res = loss.Segmented(batch.LogProbs, batch.Targets, batch.Lengths,
			batch.TargetLengths, separator)
	} else {
		res = loss.Forward(batch.LogProbs, batch.Targets, batch.Lengths,
			batch.TargetLengths)
	}
	a.logger.Info("computed loss", zap.Int("samples", len(res.Losses)),
		zap.Bool("segmented", segmented))

	for _, l := range res.Losses {
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%f\n", l); err != nil {
			return err
		}
	}
	return nil
}
